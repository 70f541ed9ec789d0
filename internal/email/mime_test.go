package email

import (
	"bytes"
	"encoding/base64"
	"io"
	"mime"
	"mime/multipart"
	"net/mail"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mimePart struct {
	contentType string
	contentID   string
	disposition string
	body        []byte
}

// readParts flattens a multipart message into its leaf parts.
func readParts(t *testing.T, contentType string, body io.Reader) []mimePart {
	t.Helper()

	mediaType, params, err := mime.ParseMediaType(contentType)
	require.NoError(t, err)
	if !strings.HasPrefix(mediaType, "multipart/") {
		data, err := io.ReadAll(body)
		require.NoError(t, err)
		return []mimePart{{contentType: mediaType, body: data}}
	}

	var parts []mimePart
	mr := multipart.NewReader(body, params["boundary"])
	for {
		p, err := mr.NextPart()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)

		ct := p.Header.Get("Content-Type")
		if strings.HasPrefix(ct, "multipart/") {
			parts = append(parts, readParts(t, ct, p)...)
			continue
		}

		data, err := io.ReadAll(p)
		require.NoError(t, err)
		if p.Header.Get("Content-Transfer-Encoding") == "base64" {
			data, err = base64.StdEncoding.DecodeString(strings.NewReplacer("\r", "", "\n", "").Replace(string(data)))
			require.NoError(t, err)
		}
		mt, _, _ := mime.ParseMediaType(ct)
		parts = append(parts, mimePart{
			contentType: mt,
			contentID:   p.Header.Get("Content-ID"),
			disposition: p.Header.Get("Content-Disposition"),
			body:        data,
		})
	}
	return parts
}

func TestWriteMIME_Attachments(t *testing.T) {
	t.Parallel()

	d := NewComposer(ModeAttachments, "").Compose(Input{
		From:    "reports@example.com",
		To:      []string{"desk@example.com", "audit@example.com"},
		Subject: "2026-03-06 ONC Audit",
		Body:    "Hello team",
		Images:  testImages(2),
	})

	raw, err := RawMIME(d)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)
	assert.Equal(t, "reports@example.com", msg.Header.Get("From"))
	assert.Equal(t, "desk@example.com, audit@example.com", msg.Header.Get("To"))
	assert.Equal(t, "2026-03-06 ONC Audit", msg.Header.Get("Subject"))
	assert.Equal(t, d.MessageID, msg.Header.Get("Message-ID"))

	parts := readParts(t, msg.Header.Get("Content-Type"), msg.Body)
	require.Len(t, parts, 4)

	assert.Equal(t, "text/plain", parts[0].contentType)
	assert.Contains(t, string(parts[0].body), "Hello team")
	assert.Equal(t, "text/html", parts[1].contentType)
	assert.Contains(t, string(parts[1].body), "cid:page1")

	for i, img := range d.Images {
		p := parts[2+i]
		assert.Equal(t, "image/jpeg", p.contentType)
		assert.Equal(t, "<"+img.ContentID+">", p.contentID)
		assert.Contains(t, p.disposition, img.Filename)
		assert.Equal(t, img.Content, p.body)
	}
}

func TestWriteMIME_InlineHasNoAttachmentParts(t *testing.T) {
	t.Parallel()

	d := NewComposer(ModeInline, "").Compose(Input{
		From:   "reports@example.com",
		To:     []string{"desk@example.com"},
		Body:   "Inline",
		Images: testImages(2),
	})

	raw, err := RawMIME(d)
	require.NoError(t, err)

	msg, err := mail.ReadMessage(bytes.NewReader(raw))
	require.NoError(t, err)

	parts := readParts(t, msg.Header.Get("Content-Type"), msg.Body)
	require.Len(t, parts, 2)
	assert.Equal(t, "text/plain", parts[0].contentType)
	assert.Equal(t, "text/html", parts[1].contentType)
	assert.Contains(t, string(parts[1].body), "data:image/jpeg;base64,")
}
