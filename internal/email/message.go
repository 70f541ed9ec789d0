// Package email defines the draft message handed to transports and builds
// its HTML and MIME forms.
package email

// Mode selects how page images travel with the message.
type Mode int

const (
	// ModeAttachments sends each image as a named binary part referenced
	// from the HTML body by Content-ID.
	ModeAttachments Mode = iota
	// ModeInline embeds each image in the HTML body as a data URI and sends
	// no separate parts.
	ModeInline
)

func (m Mode) String() string {
	if m == ModeInline {
		return "inline-base64"
	}
	return "mime-attachments"
}

// Draft is a composed message. It is built once per submission and sent at
// most once.
type Draft struct {
	ID        string
	MessageID string
	From      string
	To        []string
	Subject   string
	TextBody  string
	HTMLBody  string
	Images    []Image
	Mode      Mode
}

// Image is one page image carried by a draft.
type Image struct {
	Filename    string
	ContentType string
	ContentID   string
	Width       int
	Height      int
	Content     []byte
}

// Attachments returns the images that travel as separate parts. Inline
// drafts have none; their images live in the HTML body.
func (d *Draft) Attachments() []Image {
	if d.Mode == ModeInline {
		return nil
	}
	return d.Images
}

// Size is the total byte size of the draft's images.
func (d *Draft) Size() int {
	n := 0
	for _, img := range d.Images {
		n += len(img.Content)
	}
	return n
}
