package config

import (
	"fmt"
	"slices"
	"strings"
	"time"
)

// Validate runs presence checks and returns a map of issue name to message.
// An empty map means the configuration can send mail.
func (c *Config) Validate() map[string]string {
	issues := make(map[string]string)

	if c.SenderEmail == "" {
		issues["sender_email"] = "SENDER_EMAIL is required"
	}
	if len(c.Recipients()) == 0 {
		issues["recipient_email"] = "RECIPIENT_EMAIL is required"
	}

	t, err := ParseSenderType(string(c.SenderType))
	switch {
	case err != nil:
		issues["sender_type"] = fmt.Sprintf("invalid sender type %q", c.SenderType)
	case t == SenderGraph && !c.GraphConfigured():
		if c.MicrosoftTenantID == "" {
			issues["microsoft_tenant_id"] = "MICROSOFT_TENANT_ID is required for Microsoft Graph"
		}
		if c.MicrosoftClientID == "" {
			issues["microsoft_client_id"] = "MICROSOFT_CLIENT_ID is required for Microsoft Graph"
		}
		if c.MicrosoftClientSecret == "" {
			issues["microsoft_client_secret"] = "MICROSOFT_CLIENT_SECRET is required for Microsoft Graph"
		}
	case t == SenderSES:
		if c.SES.Region == "" {
			issues["ses_region"] = "SES_REGION is required for AWS SES"
		}
	case t.IsSMTP():
		if c.SenderPassword == "" {
			issues["sender_password"] = "SENDER_PASSWORD is required for SMTP"
		}
	}

	if len(c.Passwords) == 0 {
		issues["passwords"] = "at least one login credential is required"
	}
	if !slices.Contains(SizeChoices, c.Images.DefaultSize) {
		issues["images.default_size"] = fmt.Sprintf("default size %d is not one of %v", c.Images.DefaultSize, SizeChoices)
	}
	if c.Images.DefaultQuality < 10 || c.Images.DefaultQuality > 100 {
		issues["images.default_quality"] = "default quality must be between 10 and 100"
	}
	if f := c.Images.Format; f != "jpeg" && f != "png" {
		issues["images.format"] = fmt.Sprintf("unsupported image format %q", f)
	}
	if p := c.Subject.FridayPolicy; p != "today" && p != "next-week" {
		issues["subject.friday_policy"] = fmt.Sprintf("unknown friday policy %q", p)
	}
	if _, err := time.LoadLocation(c.Subject.Timezone); err != nil {
		issues["subject.timezone"] = fmt.Sprintf("unknown timezone %q", c.Subject.Timezone)
	}

	return issues
}

// IssueList flattens Validate's result into sorted "key: message" lines.
func IssueList(issues map[string]string) []string {
	out := make([]string, 0, len(issues))
	for k, v := range issues {
		out = append(out, k+": "+v)
	}
	slices.Sort(out)
	return out
}

// FormatIssues joins issues into a single line for logs and errors.
func FormatIssues(issues map[string]string) string {
	return strings.Join(IssueList(issues), "; ")
}
