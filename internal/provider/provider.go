// Package provider defines the interface for email delivery backends and the
// state machine every send walks through.
package provider

import (
	"context"

	"github.com/shineum/pdf-mailer/internal/email"
)

// Provider is the interface that email delivery backends must implement.
// Send makes exactly one delivery attempt; there are no retries.
type Provider interface {
	// Send delivers a draft through this provider.
	Send(ctx context.Context, draft *email.Draft) error

	// Name returns the human-readable name of this provider.
	Name() string
}
