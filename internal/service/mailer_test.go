package service

import (
	"context"
	"errors"
	"image"
	"image/color"
	"regexp"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/shineum/pdf-mailer/internal/config"
	"github.com/shineum/pdf-mailer/internal/draft"
	"github.com/shineum/pdf-mailer/internal/email"
	"github.com/shineum/pdf-mailer/internal/imageproc"
	"github.com/shineum/pdf-mailer/internal/monitoring"
	"github.com/shineum/pdf-mailer/internal/raster"
	"github.com/shineum/pdf-mailer/internal/subject"
)

type fakeRenderer struct {
	mu    sync.Mutex
	pages int
	err   error
	calls int
}

func (r *fakeRenderer) Render(_ context.Context, pdf []byte) ([]image.Image, error) {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if err := raster.CheckContent(pdf); err != nil {
		return nil, err
	}
	imgs := make([]image.Image, r.pages)
	for i := range imgs {
		img := image.NewRGBA(image.Rect(0, 0, 1275, 1650))
		img.Set(0, 0, color.RGBA{R: uint8(i), A: 255})
		imgs[i] = img
	}
	return imgs, nil
}

type recordingProvider struct {
	mu    sync.Mutex
	err   error
	sent  []*email.Draft
	calls int
}

func (p *recordingProvider) Name() string { return "recording" }

func (p *recordingProvider) Send(_ context.Context, d *email.Draft) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls++
	if p.err != nil {
		return p.err
	}
	p.sent = append(p.sent, d)
	return nil
}

type fixture struct {
	mailer   *Mailer
	renderer *fakeRenderer
	sender   *recordingProvider
	metrics  *monitoring.Metrics
}

func newFixture(t *testing.T, settings Settings) *fixture {
	t.Helper()
	f := &fixture{
		renderer: &fakeRenderer{pages: 2},
		sender:   &recordingProvider{},
		metrics:  monitoring.NewMetrics(),
	}
	f.mailer = NewMailer(
		settings,
		f.renderer,
		subject.NewGenerator(subject.FridayToday, time.UTC),
		email.NewComposer(email.ModeAttachments, ""),
		draft.NewStore(time.Minute),
		f.sender,
		f.metrics,
		zap.NewNop(),
	)
	return f
}

func defaultSettings() Settings {
	return Settings{
		From:       "reports@example.com",
		Recipients: []string{"desk@example.com", "audit@example.com"},
		Format:     imageproc.JPEG,
	}
}

func pdfRequest(owner string) ConvertRequest {
	doc := "%PDF-1.4\n% test document\n"
	return ConvertRequest{
		Owner:     owner,
		Filename:  "report.pdf",
		Size:      int64(len(doc)),
		Document:  strings.NewReader(doc),
		ImageSize: 600,
		Quality:   80,
		Category:  subject.ONC,
		Subtopic:  "Audit",
		Body:      "Weekly pages attached.",
	}
}

func TestConvertAndSend(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultSettings())

	preview, err := f.mailer.Convert(context.Background(), pdfRequest("alice"))
	require.NoError(t, err)

	d := preview.Draft
	assert.Regexp(t, regexp.MustCompile(`^\d{4}-\d{2}-\d{2} ONC Audit$`), d.Subject)
	assert.Equal(t, []string{"desk@example.com"}, d.To, "first configured recipient is the default")
	assert.Equal(t, "reports@example.com", d.From)
	require.Len(t, d.Attachments(), 2)
	require.Len(t, preview.Pages, 2)
	for i, p := range preview.Pages {
		assert.Equal(t, i+1, p.Number)
		assert.LessOrEqual(t, p.Width, 600)
		assert.LessOrEqual(t, p.Height, 600)
		assert.Equal(t, p.Filename(), d.Images[i].Filename)
	}
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.DraftsPending))

	sent, err := f.mailer.Send(context.Background(), "alice", d.ID)
	require.NoError(t, err)
	assert.Same(t, d, sent)
	require.Len(t, f.sender.sent, 1)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EmailsSent.WithLabelValues("recording", "success")))
	assert.Equal(t, 0.0, testutil.ToFloat64(f.metrics.DraftsPending))

	_, err = f.mailer.Send(context.Background(), "alice", d.ID)
	assert.ErrorIs(t, err, draft.ErrNotFound, "a draft is sent at most once")
	assert.Equal(t, 1, f.sender.calls)
}

func TestConvert_ChosenRecipient(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultSettings())
	req := pdfRequest("alice")
	req.Recipient = "audit@example.com"

	preview, err := f.mailer.Convert(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, []string{"audit@example.com"}, preview.Draft.To)
}

func TestConvert_RecipientNotAllowed(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultSettings())
	req := pdfRequest("alice")
	req.Recipient = "attacker@example.net"

	_, err := f.mailer.Convert(context.Background(), req)
	assert.ErrorIs(t, err, ErrRecipientNotAllowed)
	assert.Zero(t, f.renderer.calls)
}

func TestConvert_TooLargeRejectedBeforeRendering(t *testing.T) {
	t.Parallel()

	settings := defaultSettings()
	settings.MaxUploadBytes = 16
	f := newFixture(t, settings)

	req := pdfRequest("alice")
	_, err := f.mailer.Convert(context.Background(), req)
	assert.ErrorIs(t, err, raster.ErrTooLarge)
	assert.Zero(t, f.renderer.calls)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.ConversionsTotal.WithLabelValues("failure")))
}

func TestConvert_UnderstatedSizeStillCapped(t *testing.T) {
	t.Parallel()

	settings := defaultSettings()
	settings.MaxUploadBytes = 16
	f := newFixture(t, settings)

	req := pdfRequest("alice")
	req.Size = 10
	_, err := f.mailer.Convert(context.Background(), req)
	assert.ErrorIs(t, err, raster.ErrTooLarge)
	assert.Zero(t, f.renderer.calls)
}

func TestConvert_InvalidInputs(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*ConvertRequest)
		want   error
	}{
		{"not a pdf", func(r *ConvertRequest) { r.Filename = "report.docx" }, raster.ErrNotPDF},
		{"size not offered", func(r *ConvertRequest) { r.ImageSize = 700 }, ErrInvalidSize},
		{"quality too low", func(r *ConvertRequest) { r.Quality = 5 }, imageproc.ErrInvalidOptions},
		{"unknown category", func(r *ConvertRequest) { r.Category = "Other" }, subject.ErrUnknownCategory},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			f := newFixture(t, defaultSettings())
			req := pdfRequest("alice")
			tt.modify(&req)

			_, err := f.mailer.Convert(context.Background(), req)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, f.renderer.calls)
		})
	}
}

func TestConvert_RendererError(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultSettings())
	f.renderer.err = raster.ErrRendererUnavailable

	_, err := f.mailer.Convert(context.Background(), pdfRequest("alice"))
	assert.ErrorIs(t, err, raster.ErrRendererUnavailable)
	assert.Zero(t, f.mailer.drafts.Len())
}

func TestSend_OtherOwner(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultSettings())
	preview, err := f.mailer.Convert(context.Background(), pdfRequest("alice"))
	require.NoError(t, err)

	_, err = f.mailer.Send(context.Background(), "bob", preview.Draft.ID)
	assert.ErrorIs(t, err, draft.ErrNotFound)
	assert.Zero(t, f.sender.calls)
}

func TestSend_TransportFailure(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultSettings())
	f.sender.err = errors.New("relay unreachable")

	preview, err := f.mailer.Convert(context.Background(), pdfRequest("alice"))
	require.NoError(t, err)

	_, err = f.mailer.Send(context.Background(), "alice", preview.Draft.ID)
	require.Error(t, err)
	assert.ErrorIs(t, err, f.sender.err)
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.EmailsSent.WithLabelValues("recording", "failure")))

	// No retry: the draft is gone.
	_, err = f.mailer.Send(context.Background(), "alice", preview.Draft.ID)
	assert.ErrorIs(t, err, draft.ErrNotFound)
	assert.Equal(t, 1, f.sender.calls)
}

func TestSend_DisabledByConfigIssues(t *testing.T) {
	t.Parallel()

	settings := defaultSettings()
	settings.Issues = map[string]string{"sender_password": "required for smtp-gmail"}
	f := newFixture(t, settings)
	assert.False(t, f.mailer.SendingEnabled())

	preview, err := f.mailer.Convert(context.Background(), pdfRequest("alice"))
	require.NoError(t, err, "previews still work while sending is disabled")

	_, err = f.mailer.Send(context.Background(), "alice", preview.Draft.ID)
	assert.ErrorIs(t, err, ErrSendingDisabled)
	assert.Zero(t, f.sender.calls)
}

func TestSubjectPreview(t *testing.T) {
	t.Parallel()

	f := newFixture(t, defaultSettings())
	got, err := f.mailer.Subject(subject.NoDate, "Budget")
	require.NoError(t, err)
	assert.Equal(t, "Budget", got)
}

func TestSettingsFrom(t *testing.T) {
	t.Parallel()

	cfg := &config.Config{
		SenderEmail:      "reports@example.com",
		SenderPassword:   "secret",
		SenderType:       config.SenderSMTPGmail,
		RecipientEmail:   "desk@example.com",
		RecipientOptions: []string{"audit@example.com", "desk@example.com"},
		Passwords:        map[string]string{"alice": "wonderland"},
	}
	cfg.Server.MaxUploadBytes = 1 << 20
	cfg.Images.DefaultSize = 800
	cfg.Images.DefaultQuality = 85
	cfg.Images.Format = "png"
	cfg.Subject.FridayPolicy = "today"
	cfg.Subject.Timezone = "UTC"

	got, err := SettingsFrom(cfg)
	require.NoError(t, err)
	assert.Equal(t, "reports@example.com", got.From)
	assert.Equal(t, []string{"desk@example.com", "audit@example.com"}, got.Recipients)
	assert.Equal(t, int64(1<<20), got.MaxUploadBytes)
	assert.Equal(t, imageproc.PNG, got.Format)
	assert.Empty(t, got.Issues)

	cfg.Images.Format = "gif"
	_, err = SettingsFrom(cfg)
	assert.Error(t, err)
}
