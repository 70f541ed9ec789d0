package email

import (
	"bytes"
	"fmt"
	"io"

	"github.com/go-gomail/gomail"
)

// WriteMIME serialises d as an RFC 5322 message: a text/plain body with a
// text/html alternative, followed by one base64 part per attachment.
func WriteMIME(w io.Writer, d *Draft) error {
	m := gomail.NewMessage()
	m.SetHeader("From", d.From)
	m.SetHeader("To", d.To...)
	m.SetHeader("Subject", d.Subject)
	if d.MessageID != "" {
		m.SetHeader("Message-ID", d.MessageID)
	}

	m.SetBody("text/plain", d.TextBody)
	if d.HTMLBody != "" {
		m.AddAlternative("text/html", d.HTMLBody)
	}

	for _, img := range d.Attachments() {
		content := img.Content
		headers := map[string][]string{
			"Content-Type": {fmt.Sprintf("%s; name=%q", img.ContentType, img.Filename)},
		}
		if img.ContentID != "" {
			headers["Content-ID"] = []string{"<" + img.ContentID + ">"}
		}
		m.Attach(img.Filename,
			gomail.SetHeader(headers),
			gomail.SetCopyFunc(func(w io.Writer) error {
				_, err := w.Write(content)
				return err
			}),
		)
	}

	if _, err := m.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write MIME message: %w", err)
	}
	return nil
}

// RawMIME returns WriteMIME's output as bytes.
func RawMIME(d *Draft) ([]byte, error) {
	var buf bytes.Buffer
	if err := WriteMIME(&buf, d); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
