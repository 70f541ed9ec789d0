package web

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/shineum/pdf-mailer/internal/draft"
	"github.com/shineum/pdf-mailer/internal/imageproc"
	"github.com/shineum/pdf-mailer/internal/provider"
	"github.com/shineum/pdf-mailer/internal/provider/graph"
	"github.com/shineum/pdf-mailer/internal/provider/smtp"
	"github.com/shineum/pdf-mailer/internal/raster"
	"github.com/shineum/pdf-mailer/internal/service"
	"github.com/shineum/pdf-mailer/internal/subject"
)

// describeError maps a pipeline error to an HTTP status and the message
// shown to the user.
func describeError(err error) (int, string) {
	var (
		apiErr  *graph.APIError
		sendErr *provider.SendError
	)

	switch {
	case isBodyTooLarge(err), errors.Is(err, raster.ErrTooLarge):
		return http.StatusRequestEntityTooLarge, "The PDF file is too large."
	case errors.Is(err, raster.ErrNotPDF):
		return http.StatusBadRequest, "Only .pdf files are supported."
	case errors.Is(err, raster.ErrInvalidPDF), errors.Is(err, raster.ErrNoPages):
		return http.StatusUnprocessableEntity, fmt.Sprintf("Failed to convert PDF: %v", err)
	case errors.Is(err, raster.ErrRendererUnavailable):
		return http.StatusServiceUnavailable, "pdftoppm not found. Please install poppler."

	case errors.Is(err, service.ErrInvalidSize),
		errors.Is(err, service.ErrRecipientNotAllowed),
		errors.Is(err, imageproc.ErrInvalidOptions),
		errors.Is(err, subject.ErrUnknownCategory):
		return http.StatusBadRequest, capitalize(err.Error()) + "."
	case errors.Is(err, service.ErrSendingDisabled):
		return http.StatusServiceUnavailable, "Sending is disabled until the configuration is fixed."

	case errors.Is(err, draft.ErrExpired):
		return http.StatusGone, "This preview has expired. Convert the document again."
	case errors.Is(err, draft.ErrNotFound):
		return http.StatusNotFound, "This preview is no longer available. Convert the document again."

	case errors.Is(err, provider.ErrAuthentication):
		return http.StatusBadGateway, "The mail provider rejected the sender credentials."
	case errors.Is(err, smtp.ErrTLSUnavailable):
		return http.StatusBadGateway, "The SMTP server does not offer an encrypted connection."
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, fmt.Sprintf("Microsoft Graph returned HTTP %d: %s", apiErr.StatusCode, apiErr.Body)
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout, "The operation timed out."
	case errors.As(err, &sendErr):
		return http.StatusBadGateway, fmt.Sprintf("Failed to send email: %v", sendErr.Err)
	}
	return http.StatusInternalServerError, fmt.Sprintf("Unexpected error: %v", err)
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	if c := s[0]; c >= 'a' && c <= 'z' {
		return string(c-'a'+'A') + s[1:]
	}
	return s
}
