// Package graph implements a Provider that sends mail through the Microsoft
// Graph sendMail endpoint with an app-only OAuth2 token.
package graph

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"

	"github.com/shineum/pdf-mailer/internal/email"
	"github.com/shineum/pdf-mailer/internal/provider"
)

const (
	sendMailURLFormat = "https://graph.microsoft.com/v1.0/users/%s/sendMail"
	requestTimeout    = 30 * time.Second
	// maxErrorBody caps how much of an error response is kept.
	maxErrorBody = 64 << 10
)

// Config holds the app registration and the mailbox to send as.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	Sender       string
}

// APIError is a non-2xx sendMail response, surfaced unmodified.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("graph API returned HTTP %d: %s", e.StatusCode, e.Body)
}

// Provider sends drafts via Microsoft Graph.
type Provider struct {
	sendURL    string
	httpClient *http.Client
	tokens     *tokenSource
	logger     *zap.Logger
}

// New creates a Graph provider.
func New(cfg Config, logger *zap.Logger) *Provider {
	client := &http.Client{Timeout: requestTimeout}
	return newWithOverrides(cfg,
		fmt.Sprintf(sendMailURLFormat, url.PathEscape(cfg.Sender)),
		fmt.Sprintf(tokenURLFormat, url.PathEscape(cfg.TenantID)),
		client, logger)
}

// newWithOverrides points the provider at test servers.
func newWithOverrides(cfg Config, sendURL, tokenURL string, client *http.Client, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{
		sendURL:    sendURL,
		httpClient: client,
		tokens:     newTokenSource(tokenURL, cfg.ClientID, cfg.ClientSecret, client),
		logger:     logger,
	}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "microsoft-graph"
}

// Send acquires a token and posts the draft to sendMail once. Any non-2xx
// response is returned as an *APIError wrapped in a *provider.SendError.
func (p *Provider) Send(ctx context.Context, d *email.Draft) error {
	attempt := provider.NewAttempt(p.Name(), p.logger.With(zap.String("draft_id", d.ID)))

	bodyJSON, err := json.Marshal(buildSendMailRequest(d))
	if err != nil {
		return attempt.Fail(fmt.Errorf("failed to marshal request body: %w", err))
	}

	attempt.Advance(provider.StateConnecting)
	token, err := p.tokens.Token(ctx)
	if err != nil {
		return attempt.Fail(err)
	}
	attempt.Advance(provider.StateAuthenticated)

	attempt.Advance(provider.StateSending)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.sendURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return attempt.Fail(fmt.Errorf("failed to create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return attempt.Fail(fmt.Errorf("HTTP request failed: %w", err))
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return attempt.Fail(&APIError{StatusCode: resp.StatusCode, Body: string(body)})
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	attempt.Done()
	return nil
}
