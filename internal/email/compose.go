package email

import (
	"encoding/base64"
	"fmt"
	"html"
	"strings"

	"github.com/google/uuid"
)

const imgStyle = "max-width: 100%; height: auto;"

// Input is everything the composer needs for one draft.
type Input struct {
	From    string
	To      []string
	Subject string
	Body    string
	Images  []Image
}

// Composer builds drafts in a fixed attachment mode.
type Composer struct {
	mode   Mode
	domain string
}

// NewComposer creates a Composer. domain is used on the right-hand side of
// generated Message-IDs; it falls back to the sender's domain.
func NewComposer(mode Mode, domain string) *Composer {
	return &Composer{mode: mode, domain: domain}
}

// Mode returns the attachment mode of drafts built by c.
func (c *Composer) Mode() Mode {
	return c.mode
}

// Compose builds a draft. Images get Content-IDs "page1", "page2", ... in
// order; the caller's slice is not modified.
func (c *Composer) Compose(in Input) *Draft {
	images := make([]Image, len(in.Images))
	for i, img := range in.Images {
		img.ContentID = fmt.Sprintf("page%d", i+1)
		images[i] = img
	}

	id := uuid.NewString()
	d := &Draft{
		ID:        id,
		MessageID: fmt.Sprintf("<%s@%s>", id, c.messageDomain(in.From)),
		From:      in.From,
		To:        append([]string(nil), in.To...),
		Subject:   in.Subject,
		TextBody:  textBody(in.Body, len(images)),
		Images:    images,
		Mode:      c.mode,
	}
	d.HTMLBody = htmlBody(in.Body, images, c.mode)
	return d
}

func (c *Composer) messageDomain(from string) string {
	if c.domain != "" {
		return c.domain
	}
	if _, domain, ok := strings.Cut(from, "@"); ok && domain != "" {
		return domain
	}
	return "localhost"
}

// htmlBody renders the body paragraph followed by one <img> per page,
// separated by horizontal rules.
func htmlBody(body string, images []Image, mode Mode) string {
	var b strings.Builder
	b.WriteString("<html><body>")
	if body != "" {
		b.WriteString("<p>")
		b.WriteString(strings.ReplaceAll(html.EscapeString(body), "\n", "<br>"))
		b.WriteString("</p>")
	}

	for i, img := range images {
		if i > 0 {
			b.WriteString("<hr>")
		}
		var src string
		if mode == ModeInline {
			src = fmt.Sprintf("data:%s;base64,%s", img.ContentType, base64.StdEncoding.EncodeToString(img.Content))
		} else {
			src = "cid:" + img.ContentID
		}
		fmt.Fprintf(&b, `<img src="%s" style="%s" alt="Page %d"><br>`, src, imgStyle, i+1)
	}

	b.WriteString("</body></html>")
	return b.String()
}

func textBody(body string, pages int) string {
	if pages == 0 {
		return body
	}
	suffix := fmt.Sprintf("(%d page images attached)", pages)
	if pages == 1 {
		suffix = "(1 page image attached)"
	}
	if body == "" {
		return suffix
	}
	return body + "\n\n" + suffix
}
