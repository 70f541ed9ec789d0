// Package ses implements a Provider that sends mail through AWS SES v2.
package ses

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	sesv2 "github.com/aws/aws-sdk-go-v2/service/sesv2"
	"github.com/aws/aws-sdk-go-v2/service/sesv2/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"

	"github.com/shineum/pdf-mailer/internal/email"
	"github.com/shineum/pdf-mailer/internal/provider"
)

// Config holds the SES region, optional static credentials and the
// verified sender identity.
type Config struct {
	Region          string
	AccessKeyID     string
	SecretAccessKey string
	Sender          string
}

// SendEmailAPI is the subset of the SES v2 client the provider calls.
type SendEmailAPI interface {
	SendEmail(ctx context.Context, params *sesv2.SendEmailInput, optFns ...func(*sesv2.Options)) (*sesv2.SendEmailOutput, error)
}

// Error codes SES returns when the caller's credentials are not accepted.
var authErrorCodes = map[string]bool{
	"UnrecognizedClientException": true,
	"InvalidClientTokenId":        true,
	"InvalidSignatureException":   true,
	"SignatureDoesNotMatch":       true,
	"AccessDeniedException":       true,
	"ExpiredTokenException":       true,
}

// Provider sends drafts via SES.
type Provider struct {
	sender string
	client SendEmailAPI
	logger *zap.Logger
}

// New creates an SES provider. Without static keys the default AWS
// credential chain applies.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Provider, error) {
	opts := []func(*awsconfig.LoadOptions) error{awsconfig.WithRegion(cfg.Region)}
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return NewWithClient(cfg.Sender, sesv2.NewFromConfig(awsCfg), logger), nil
}

// NewWithClient creates a provider around an existing client.
func NewWithClient(sender string, client SendEmailAPI, logger *zap.Logger) *Provider {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Provider{sender: sender, client: client, logger: logger}
}

// Name returns the provider name.
func (p *Provider) Name() string {
	return "aws-ses"
}

// Send submits the draft once. Attachment drafts go out as raw MIME so the
// Content-ID parts survive; inline drafts use SES simple content.
func (p *Provider) Send(ctx context.Context, d *email.Draft) error {
	attempt := provider.NewAttempt(p.Name(), p.logger.With(zap.String("draft_id", d.ID)))

	input, err := p.buildInput(d)
	if err != nil {
		return attempt.Fail(err)
	}

	// Credentials are only checked by the call itself.
	attempt.Advance(provider.StateSending)
	out, err := p.client.SendEmail(ctx, input)
	if err != nil {
		var apiErr smithy.APIError
		if errors.As(err, &apiErr) && authErrorCodes[apiErr.ErrorCode()] {
			err = fmt.Errorf("%w: %w", provider.ErrAuthentication, err)
		}
		return attempt.Fail(err)
	}

	p.logger.Debug("SES accepted message", zap.String("ses_message_id", aws.ToString(out.MessageId)))
	attempt.Done()
	return nil
}

func (p *Provider) buildInput(d *email.Draft) (*sesv2.SendEmailInput, error) {
	input := &sesv2.SendEmailInput{
		FromEmailAddress: aws.String(p.sender),
		Destination:      &types.Destination{ToAddresses: d.To},
	}

	if len(d.Attachments()) > 0 {
		raw, err := email.RawMIME(d)
		if err != nil {
			return nil, fmt.Errorf("failed to build raw message: %w", err)
		}
		input.Content = &types.EmailContent{Raw: &types.RawMessage{Data: raw}}
		return input, nil
	}

	body := &types.Body{}
	if d.HTMLBody != "" {
		body.Html = utf8(d.HTMLBody)
	}
	if d.TextBody != "" {
		body.Text = utf8(d.TextBody)
	}
	input.Content = &types.EmailContent{
		Simple: &types.Message{Subject: utf8(d.Subject), Body: body},
	}
	return input, nil
}

func utf8(s string) *types.Content {
	return &types.Content{Data: aws.String(s), Charset: aws.String("UTF-8")}
}
