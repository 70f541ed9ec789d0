package config

import (
	"fmt"
	"strings"
)

// SenderType selects the delivery transport. The set is closed; every value
// has exactly one provider in cmd/pdf-mailer.
type SenderType string

const (
	SenderSMTPMicrosoft SenderType = "smtp-microsoft"
	SenderSMTPGmail     SenderType = "smtp-gmail"
	SenderSMTPYahoo     SenderType = "smtp-yahoo"
	SenderGraph         SenderType = "microsoft-graph"
	SenderSES           SenderType = "aws-ses"
	SenderStdout        SenderType = "stdout"
)

var senderAliases = map[string]SenderType{
	"smtp-microsoft":  SenderSMTPMicrosoft,
	"microsoft":       SenderSMTPMicrosoft,
	"smtp-gmail":      SenderSMTPGmail,
	"gmail":           SenderSMTPGmail,
	"smtp-yahoo":      SenderSMTPYahoo,
	"yahoo":           SenderSMTPYahoo,
	"microsoft-graph": SenderGraph,
	"microsoft_graph": SenderGraph,
	"graph":           SenderGraph,
	"aws-ses":         SenderSES,
	"ses":             SenderSES,
	"stdout":          SenderStdout,
}

// ParseSenderType maps a configured name or alias to its SenderType.
func ParseSenderType(s string) (SenderType, error) {
	t, ok := senderAliases[strings.ToLower(strings.TrimSpace(s))]
	if !ok {
		return "", fmt.Errorf("unknown sender type %q", s)
	}
	return t, nil
}

// IsSMTP reports whether the sender type delivers over an SMTP session.
func (t SenderType) IsSMTP() bool {
	switch t {
	case SenderSMTPMicrosoft, SenderSMTPGmail, SenderSMTPYahoo:
		return true
	}
	return false
}

// Label is the human-readable transport description shown in the UI.
func (t SenderType) Label() string {
	switch t {
	case SenderSMTPMicrosoft:
		return "Microsoft SMTP"
	case SenderSMTPGmail:
		return "Gmail SMTP"
	case SenderSMTPYahoo:
		return "Yahoo SMTP"
	case SenderGraph:
		return "Microsoft Graph API"
	case SenderSES:
		return "AWS SES"
	case SenderStdout:
		return "stdout (dry run)"
	}
	return string(t)
}
