package graph

import (
	"encoding/base64"

	"github.com/shineum/pdf-mailer/internal/email"
)

// sendMailRequest is the top-level request body for the sendMail endpoint.
type sendMailRequest struct {
	Message         sendMailMessage `json:"message"`
	SaveToSentItems bool            `json:"saveToSentItems"`
}

type sendMailMessage struct {
	Subject                string            `json:"subject"`
	Body                   messageBody       `json:"body"`
	ToRecipients           []recipient       `json:"toRecipients"`
	InternetMessageHeaders []messageHeader   `json:"internetMessageHeaders,omitempty"`
	Attachments            []graphAttachment `json:"attachments,omitempty"`
}

type messageBody struct {
	ContentType string `json:"contentType"`
	Content     string `json:"content"`
}

type recipient struct {
	EmailAddress emailAddress `json:"emailAddress"`
}

type emailAddress struct {
	Address string `json:"address"`
}

type messageHeader struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// graphAttachment is a fileAttachment. Page images are inline and bound to
// the HTML body through ContentID.
type graphAttachment struct {
	ODataType    string `json:"@odata.type"`
	Name         string `json:"name"`
	ContentType  string `json:"contentType"`
	ContentBytes string `json:"contentBytes"`
	ContentID    string `json:"contentId,omitempty"`
	IsInline     bool   `json:"isInline"`
}

// buildSendMailRequest converts a draft into a sendMail body. Inline drafts
// carry their images in the HTML and produce no attachments.
func buildSendMailRequest(d *email.Draft) *sendMailRequest {
	body := messageBody{ContentType: "Text", Content: d.TextBody}
	if d.HTMLBody != "" {
		body = messageBody{ContentType: "HTML", Content: d.HTMLBody}
	}

	to := make([]recipient, 0, len(d.To))
	for _, addr := range d.To {
		to = append(to, recipient{EmailAddress: emailAddress{Address: addr}})
	}

	var attachments []graphAttachment
	for _, img := range d.Attachments() {
		attachments = append(attachments, graphAttachment{
			ODataType:    "#microsoft.graph.fileAttachment",
			Name:         img.Filename,
			ContentType:  img.ContentType,
			ContentBytes: base64.StdEncoding.EncodeToString(img.Content),
			ContentID:    img.ContentID,
			IsInline:     img.ContentID != "",
		})
	}

	msg := sendMailMessage{
		Subject:      d.Subject,
		Body:         body,
		ToRecipients: to,
		Attachments:  attachments,
	}
	if d.ID != "" {
		// Custom headers must start with x- or X-.
		msg.InternetMessageHeaders = []messageHeader{{Name: "X-PDF-Mailer-Draft", Value: d.ID}}
	}

	return &sendMailRequest{Message: msg, SaveToSentItems: true}
}
