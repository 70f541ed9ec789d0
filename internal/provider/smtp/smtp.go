// Package smtp delivers drafts through an authenticated SMTP submission
// relay (Microsoft 365, Gmail or Yahoo).
package smtp

import (
	"context"
	cryptotls "crypto/tls"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-sasl"
	gosmtp "github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/shineum/pdf-mailer/internal/email"
	"github.com/shineum/pdf-mailer/internal/provider"
	"github.com/shineum/pdf-mailer/internal/tls"
)

// Endpoint is a submission relay address.
type Endpoint struct {
	Host string
	Port int
}

// Addr returns host:port.
func (e Endpoint) Addr() string {
	return net.JoinHostPort(e.Host, strconv.Itoa(e.Port))
}

// Known relays. All of them take STARTTLS on the submission port.
var (
	Microsoft = Endpoint{Host: "smtp.office365.com", Port: 587}
	Gmail     = Endpoint{Host: "smtp.gmail.com", Port: 587}
	Yahoo     = Endpoint{Host: "smtp.mail.yahoo.com", Port: 587}
)

const defaultTimeout = 30 * time.Second

// ErrTLSUnavailable is returned when the relay does not offer STARTTLS and
// the client requires it.
var ErrTLSUnavailable = errors.New("server does not support STARTTLS")

// noStartTLSMessage is the text go-smtp uses when EHLO lacks STARTTLS. The
// library returns it as an untyped error.
const noStartTLSMessage = "doesn't support STARTTLS"

// Config configures one relay account.
type Config struct {
	Endpoint Endpoint
	Username string
	Password string
	// Timeout bounds the whole session, from dial to QUIT.
	Timeout time.Duration
	// RequireTLS upgrades the session with STARTTLS before AUTH and fails
	// when the relay does not offer it. When false the session stays in
	// plaintext; only local test relays should run that way.
	RequireTLS bool
	// TLSConfig overrides the STARTTLS configuration. Nil verifies the
	// relay against the system roots.
	TLSConfig *cryptotls.Config
	// LocalName is sent with EHLO. The EHLO before STARTTLS always uses
	// "localhost". Defaults to "localhost".
	LocalName string
}

// Provider sends each draft over a fresh SMTP session.
type Provider struct {
	name   string
	cfg    Config
	logger *zap.Logger
}

// New creates an SMTP provider. name is used in logs and errors.
func New(name string, cfg Config, logger *zap.Logger) *Provider {
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.LocalName == "" {
		cfg.LocalName = "localhost"
	}
	if cfg.TLSConfig == nil {
		cfg.TLSConfig = tls.ClientConfig(cfg.Endpoint.Host, nil)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{name: name, cfg: cfg, logger: logger}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return p.name
}

// Send connects, upgrades with STARTTLS, authenticates with AUTH PLAIN and
// submits the draft as a single MIME message. One attempt only.
func (p *Provider) Send(ctx context.Context, d *email.Draft) error {
	attempt := provider.NewAttempt(p.name, p.logger.With(
		zap.String("draft_id", d.ID),
		zap.String("relay", p.cfg.Endpoint.Addr()),
	))

	ctx, cancel := context.WithTimeout(ctx, p.cfg.Timeout)
	defer cancel()

	attempt.Advance(provider.StateConnecting)
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "tcp", p.cfg.Endpoint.Addr())
	if err != nil {
		return attempt.Fail(fmt.Errorf("failed to connect: %w", err))
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}

	c, err := p.open(conn)
	if err != nil {
		_ = conn.Close()
		return attempt.Fail(err)
	}
	defer c.Close()

	if err := c.Auth(sasl.NewPlainClient("", p.cfg.Username, p.cfg.Password)); err != nil {
		return attempt.Fail(fmt.Errorf("%w: %v", provider.ErrAuthentication, err))
	}
	attempt.Advance(provider.StateAuthenticated)

	attempt.Advance(provider.StateSending)
	if err := c.Mail(d.From, nil); err != nil {
		return attempt.Fail(fmt.Errorf("MAIL FROM: %w", err))
	}
	for _, rcpt := range d.To {
		if err := c.Rcpt(rcpt, nil); err != nil {
			return attempt.Fail(fmt.Errorf("RCPT TO %s: %w", rcpt, err))
		}
	}

	w, err := c.Data()
	if err != nil {
		return attempt.Fail(fmt.Errorf("DATA: %w", err))
	}
	if err := email.WriteMIME(w, d); err != nil {
		_ = w.Close()
		return attempt.Fail(err)
	}
	if err := w.Close(); err != nil {
		return attempt.Fail(fmt.Errorf("message rejected: %w", err))
	}

	// The message is accepted once DATA closes; a failed QUIT only loses
	// the goodbye.
	if err := c.Quit(); err != nil {
		p.logger.Debug("QUIT failed", zap.Error(err))
	}
	attempt.Done()
	return nil
}

// open greets the relay and, when TLS is required, upgrades the session
// before anything else is sent.
func (p *Provider) open(conn net.Conn) (*gosmtp.Client, error) {
	if !p.cfg.RequireTLS {
		c := gosmtp.NewClient(conn)
		if err := c.Hello(p.cfg.LocalName); err != nil {
			_ = c.Close()
			return nil, fmt.Errorf("EHLO: %w", err)
		}
		return c, nil
	}

	c, err := gosmtp.NewClientStartTLS(conn, p.cfg.TLSConfig)
	if err != nil {
		var smtpErr *gosmtp.SMTPError
		if !errors.As(err, &smtpErr) && strings.Contains(err.Error(), noStartTLSMessage) {
			return nil, ErrTLSUnavailable
		}
		return nil, fmt.Errorf("STARTTLS: %w", err)
	}
	// The EHLO after the upgrade is still pending.
	if err := c.Hello(p.cfg.LocalName); err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("EHLO: %w", err)
	}
	if state, ok := c.TLSConnectionState(); ok {
		p.logger.Debug("session encrypted",
			zap.String("tls_version", cryptotls.VersionName(state.Version)),
			zap.String("server_name", state.ServerName),
		)
	}
	return c, nil
}
