// Package stdout implements a dry-run Provider that prints drafts instead of
// delivering them.
package stdout

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"go.uber.org/zap"

	"github.com/shineum/pdf-mailer/internal/email"
	"github.com/shineum/pdf-mailer/internal/provider"
)

const rule = "========================================\n"

// Provider writes a readable summary of each draft to a writer.
type Provider struct {
	writer io.Writer
	logger *zap.Logger
}

// New creates a Provider that writes to os.Stdout.
func New(logger *zap.Logger) *Provider {
	return NewWithWriter(os.Stdout, logger)
}

// NewWithWriter creates a Provider that writes to w.
func NewWithWriter(w io.Writer, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{writer: w, logger: logger}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "stdout"
}

// Send prints the draft. Only a failed write is an error.
func (p *Provider) Send(ctx context.Context, d *email.Draft) error {
	attempt := provider.NewAttempt(p.Name(), p.logger.With(zap.String("draft_id", d.ID)))
	if err := ctx.Err(); err != nil {
		return attempt.Fail(err)
	}

	var b strings.Builder
	b.WriteString(rule)
	fmt.Fprintf(&b, "Message-ID: %s\n", d.MessageID)
	fmt.Fprintf(&b, "From: %s\n", d.From)
	fmt.Fprintf(&b, "To: %s\n", strings.Join(d.To, ", "))
	fmt.Fprintf(&b, "Subject: %s\n", d.Subject)
	fmt.Fprintf(&b, "Mode: %s\n", d.Mode)
	b.WriteString("Body:\n")
	b.WriteString(d.TextBody + "\n")

	if len(d.Images) > 0 {
		b.WriteString("Pages:\n")
		for _, img := range d.Images {
			fmt.Fprintf(&b, "  %s %dx%d (%s)\n", img.Filename, img.Width, img.Height, formatSize(len(img.Content)))
		}
		fmt.Fprintf(&b, "Total: %s\n", formatSize(d.Size()))
	}
	b.WriteString(rule)

	attempt.Advance(provider.StateSending)
	if _, err := io.WriteString(p.writer, b.String()); err != nil {
		return attempt.Fail(fmt.Errorf("failed to write draft: %w", err))
	}
	attempt.Done()
	return nil
}

// formatSize formats a byte count into a human-readable string.
func formatSize(bytes int) string {
	const (
		kb = 1024
		mb = kb * 1024
	)

	switch {
	case bytes >= mb:
		return fmt.Sprintf("%.1f MB", float64(bytes)/float64(mb))
	case bytes >= kb:
		return fmt.Sprintf("%.1f KB", float64(bytes)/float64(kb))
	default:
		return fmt.Sprintf("%d B", bytes)
	}
}
