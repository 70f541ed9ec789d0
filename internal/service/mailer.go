// Package service runs the convert-preview-send pipeline behind the web UI.
package service

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"time"

	"go.uber.org/zap"

	"github.com/shineum/pdf-mailer/internal/config"
	"github.com/shineum/pdf-mailer/internal/draft"
	"github.com/shineum/pdf-mailer/internal/email"
	"github.com/shineum/pdf-mailer/internal/imageproc"
	"github.com/shineum/pdf-mailer/internal/monitoring"
	"github.com/shineum/pdf-mailer/internal/provider"
	"github.com/shineum/pdf-mailer/internal/raster"
	"github.com/shineum/pdf-mailer/internal/subject"
)

var (
	// ErrSendingDisabled is returned while the configuration has issues.
	ErrSendingDisabled = errors.New("sending is disabled until the configuration is fixed")
	// ErrRecipientNotAllowed is returned for recipients outside the
	// configured options.
	ErrRecipientNotAllowed = errors.New("recipient is not one of the configured options")
	// ErrInvalidSize is returned for bounding boxes outside the size choices.
	ErrInvalidSize = errors.New("unsupported image size")
)

// Settings is the part of the configuration the pipeline reads.
type Settings struct {
	From           string
	Recipients     []string
	MaxUploadBytes int64
	Format         imageproc.Format
	// Issues disables sending while non-empty.
	Issues map[string]string
}

// SettingsFrom extracts Settings from a loaded configuration.
func SettingsFrom(cfg *config.Config) (Settings, error) {
	format, err := imageproc.ParseFormat(cfg.Images.Format)
	if err != nil {
		return Settings{}, err
	}
	return Settings{
		From:           cfg.SenderEmail,
		Recipients:     cfg.Recipients(),
		MaxUploadBytes: cfg.Server.MaxUploadBytes,
		Format:         format,
		Issues:         cfg.Validate(),
	}, nil
}

// ConvertRequest is one form submission.
type ConvertRequest struct {
	Owner     string
	Filename  string
	Size      int64
	Document  io.Reader
	ImageSize int
	Quality   int
	Category  subject.Category
	Subtopic  string
	Body      string
	Recipient string
}

// Preview is a converted, composed and stored draft.
type Preview struct {
	Draft     *email.Draft
	Pages     []imageproc.Page
	ExpiresAt time.Time
}

// Mailer wires the rasterizer, image processor, subject generator,
// composer, draft store and transport together.
type Mailer struct {
	settings Settings
	renderer raster.Renderer
	subjects *subject.Generator
	composer *email.Composer
	drafts   *draft.Store
	sender   provider.Provider
	metrics  *monitoring.Metrics
	logger   *zap.Logger
}

// NewMailer creates a Mailer.
func NewMailer(
	settings Settings,
	renderer raster.Renderer,
	subjects *subject.Generator,
	composer *email.Composer,
	drafts *draft.Store,
	sender provider.Provider,
	metrics *monitoring.Metrics,
	logger *zap.Logger,
) *Mailer {
	if settings.MaxUploadBytes <= 0 {
		settings.MaxUploadBytes = raster.MaxUploadBytes
	}
	if settings.Format == "" {
		settings.Format = imageproc.JPEG
	}
	return &Mailer{
		settings: settings,
		renderer: renderer,
		subjects: subjects,
		composer: composer,
		drafts:   drafts,
		sender:   sender,
		metrics:  metrics,
		logger:   logger,
	}
}

// Settings returns the pipeline settings.
func (m *Mailer) Settings() Settings {
	return m.settings
}

// TransportName is the name of the configured provider.
func (m *Mailer) TransportName() string {
	return m.sender.Name()
}

// Mode is the composer's attachment mode.
func (m *Mailer) Mode() email.Mode {
	return m.composer.Mode()
}

// SendingEnabled reports whether the configuration allows sending.
func (m *Mailer) SendingEnabled() bool {
	return len(m.settings.Issues) == 0
}

// Subject previews the subject line for the form.
func (m *Mailer) Subject(category subject.Category, subtopic string) (string, error) {
	return m.subjects.Generate(category, subtopic)
}

// Convert validates the upload, renders and encodes every page, composes
// the message and stores it as a draft owned by req.Owner.
func (m *Mailer) Convert(ctx context.Context, req ConvertRequest) (*Preview, error) {
	start := time.Now()
	preview, err := m.convert(ctx, req)

	pages := 0
	if preview != nil {
		pages = len(preview.Pages)
	}
	m.metrics.RecordConversion(err == nil, pages, time.Since(start))
	if err != nil {
		m.logger.Warn("conversion failed",
			zap.String("user", req.Owner),
			zap.String("filename", req.Filename),
			zap.Error(err),
		)
		return nil, err
	}

	m.metrics.UpdateDraftsPending(m.drafts.Len())
	m.logger.Info("document converted",
		zap.String("user", req.Owner),
		zap.String("draft_id", preview.Draft.ID),
		zap.Int("pages", pages),
		zap.Int("image_bytes", preview.Draft.Size()),
		zap.Duration("elapsed", time.Since(start)),
	)
	return preview, nil
}

func (m *Mailer) convert(ctx context.Context, req ConvertRequest) (*Preview, error) {
	if err := raster.Validate(req.Filename, req.Size, m.settings.MaxUploadBytes); err != nil {
		return nil, err
	}
	if !slices.Contains(config.SizeChoices, req.ImageSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidSize, req.ImageSize)
	}
	recipient, err := m.recipient(req.Recipient)
	if err != nil {
		return nil, err
	}
	subj, err := m.subjects.Generate(req.Category, req.Subtopic)
	if err != nil {
		return nil, err
	}
	opts := imageproc.Options{
		MaxWidth:  req.ImageSize,
		MaxHeight: req.ImageSize,
		Quality:   req.Quality,
		Format:    m.settings.Format,
	}
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	// Read one byte past the cap so a lying Size cannot sneak a large body in.
	var buf bytes.Buffer
	if _, err := io.Copy(&buf, io.LimitReader(req.Document, m.settings.MaxUploadBytes+1)); err != nil {
		return nil, fmt.Errorf("failed to read upload: %w", err)
	}
	if int64(buf.Len()) > m.settings.MaxUploadBytes {
		return nil, fmt.Errorf("%w: more than %d bytes", raster.ErrTooLarge, m.settings.MaxUploadBytes)
	}

	imgs, err := m.renderer.Render(ctx, buf.Bytes())
	if err != nil {
		return nil, err
	}
	pages, err := imageproc.ProcessAll(ctx, imgs, opts)
	if err != nil {
		return nil, err
	}

	images := make([]email.Image, len(pages))
	for i, p := range pages {
		images[i] = email.Image{
			Filename:    p.Filename(),
			ContentType: p.ContentType,
			Width:       p.Width,
			Height:      p.Height,
			Content:     p.Data,
		}
	}

	d := m.composer.Compose(email.Input{
		From:    m.settings.From,
		To:      []string{recipient},
		Subject: subj,
		Body:    req.Body,
		Images:  images,
	})
	expires := m.drafts.Put(req.Owner, d)

	return &Preview{Draft: d, Pages: pages, ExpiresAt: expires}, nil
}

func (m *Mailer) recipient(requested string) (string, error) {
	if len(m.settings.Recipients) == 0 {
		return "", fmt.Errorf("%w: none configured", ErrRecipientNotAllowed)
	}
	if requested == "" {
		return m.settings.Recipients[0], nil
	}
	if !slices.Contains(m.settings.Recipients, requested) {
		return "", fmt.Errorf("%w: %q", ErrRecipientNotAllowed, requested)
	}
	return requested, nil
}

// Send takes the owner's draft from the store and hands it to the
// transport. The draft is consumed even when the send fails; the user
// converts again to retry.
func (m *Mailer) Send(ctx context.Context, owner, draftID string) (*email.Draft, error) {
	if !m.SendingEnabled() {
		return nil, ErrSendingDisabled
	}

	d, err := m.drafts.Take(owner, draftID)
	m.metrics.UpdateDraftsPending(m.drafts.Len())
	if err != nil {
		return nil, err
	}

	start := time.Now()
	err = m.sender.Send(ctx, d)
	m.metrics.RecordSend(m.sender.Name(), err == nil, d.Size(), time.Since(start))
	if err != nil {
		m.logger.Error("email send failed",
			zap.String("user", owner),
			zap.String("draft_id", d.ID),
			zap.String("provider", m.sender.Name()),
			zap.Error(err),
		)
		return d, fmt.Errorf("failed to send email: %w", err)
	}

	m.logger.Info("email sent",
		zap.String("user", owner),
		zap.String("draft_id", d.ID),
		zap.String("provider", m.sender.Name()),
		zap.Strings("to", d.To),
		zap.String("subject", d.Subject),
	)
	return d, nil
}

// SweepDrafts runs the draft store's expiry loop until ctx is done.
func (m *Mailer) SweepDrafts(ctx context.Context, interval time.Duration) error {
	return m.drafts.Run(ctx, interval, func(removed int) {
		if removed > 0 {
			m.metrics.RecordDraftsExpired(removed)
			m.logger.Debug("expired drafts removed", zap.Int("count", removed))
		}
		m.metrics.UpdateDraftsPending(m.drafts.Len())
	})
}
