// Package config provides layered configuration loading for pdf-mailer:
// defaults, then an optional TOML or YAML secrets file, then environment
// variables.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

// defaultMaxUploadBytes is 50 MB in bytes.
const defaultMaxUploadBytes = 50 * 1024 * 1024

// passwordEnvPrefix marks environment variables that add login credentials.
const passwordEnvPrefix = "PASSWORDS_"

// Duration is a time.Duration that decodes from strings such as "15m" in
// both TOML and YAML files.
type Duration time.Duration

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(v)
	return nil
}

// SizeChoices are the bounding boxes offered by the form.
var SizeChoices = []int{600, 800, 1024, 1280}

// Config holds the complete application configuration. The top-level keys
// mirror the flat secrets store; the nested sections are operational.
type Config struct {
	SenderEmail           string            `yaml:"sender_email" toml:"sender_email"`
	SenderPassword        string            `yaml:"sender_password" toml:"sender_password"`
	SenderType            SenderType        `yaml:"sender_type" toml:"sender_type"`
	RecipientEmail        string            `yaml:"recipient_email" toml:"recipient_email"`
	RecipientOptions      []string          `yaml:"recipient_options" toml:"recipient_options"`
	MicrosoftTenantID     string            `yaml:"microsoft_tenant_id" toml:"microsoft_tenant_id"`
	MicrosoftClientID     string            `yaml:"microsoft_client_id" toml:"microsoft_client_id"`
	MicrosoftClientSecret string            `yaml:"microsoft_client_secret" toml:"microsoft_client_secret"`
	UseMIMEAttachments    bool              `yaml:"use_mime_attachments" toml:"use_mime_attachments"`
	Passwords             map[string]string `yaml:"passwords" toml:"passwords"`

	Server   ServerConfig   `yaml:"server" toml:"server"`
	Images   ImageConfig    `yaml:"images" toml:"images"`
	Renderer RendererConfig `yaml:"renderer" toml:"renderer"`
	Subject  SubjectConfig  `yaml:"subject" toml:"subject"`
	Session  SessionConfig  `yaml:"session" toml:"session"`
	SMTP     SMTPConfig     `yaml:"smtp" toml:"smtp"`
	SES      SESConfig      `yaml:"ses" toml:"ses"`
	TLS      TLSConfig      `yaml:"tls" toml:"tls"`
	Logging  LoggingConfig  `yaml:"logging" toml:"logging"`
}

// ServerConfig holds HTTP server configuration.
type ServerConfig struct {
	Listen         string   `yaml:"listen" toml:"listen"`
	MaxUploadBytes int64    `yaml:"max_upload_bytes" toml:"max_upload_bytes"`
	DraftTTL       Duration `yaml:"draft_ttl" toml:"draft_ttl"`
	AllowedOrigins []string `yaml:"allowed_origins" toml:"allowed_origins"`
}

// ImageConfig holds the form defaults for page images.
type ImageConfig struct {
	DefaultSize    int    `yaml:"default_size" toml:"default_size"`
	DefaultQuality int    `yaml:"default_quality" toml:"default_quality"`
	Format         string `yaml:"format" toml:"format"`
}

// RendererConfig holds the Poppler invocation settings.
type RendererConfig struct {
	PdftoppmPath string `yaml:"pdftoppm_path" toml:"pdftoppm_path"`
	DPI          int    `yaml:"dpi" toml:"dpi"`
}

// SubjectConfig controls subject-line dates.
type SubjectConfig struct {
	FridayPolicy string `yaml:"friday_policy" toml:"friday_policy"`
	Timezone     string `yaml:"timezone" toml:"timezone"`
}

// SessionConfig holds login session settings.
type SessionConfig struct {
	Secret string   `yaml:"secret" toml:"secret"`
	TTL    Duration `yaml:"ttl" toml:"ttl"`
}

// SMTPConfig holds outbound SMTP client settings.
type SMTPConfig struct {
	Timeout    Duration `yaml:"timeout" toml:"timeout"`
	RequireTLS bool     `yaml:"require_tls" toml:"require_tls"`
}

// SESConfig holds AWS SES configuration.
type SESConfig struct {
	Region          string `yaml:"region" toml:"region"`
	AccessKeyID     string `yaml:"access_key_id" toml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key" toml:"secret_access_key"`
}

// TLSConfig holds TLS settings for the web server.
type TLSConfig struct {
	Enabled  bool   `yaml:"enabled" toml:"enabled"`
	CertFile string `yaml:"cert_file" toml:"cert_file"`
	KeyFile  string `yaml:"key_file" toml:"key_file"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level       string `yaml:"level" toml:"level"`
	Development bool   `yaml:"development" toml:"development"`
	File        string `yaml:"file" toml:"file"`
	MaxSizeMB   int    `yaml:"max_size_mb" toml:"max_size_mb"`
	MaxBackups  int    `yaml:"max_backups" toml:"max_backups"`
	MaxAgeDays  int    `yaml:"max_age_days" toml:"max_age_days"`
}

// Load loads configuration from environment variables with sensible defaults.
// A .env file in the working directory is read first when present.
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// LoadFromFile loads configuration from a TOML or YAML file as the base
// layer, then overrides with environment variables. Returns an error if the
// specified file path does not exist.
func LoadFromFile(path string) (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}
	cfg := &Config{}
	cfg.applyDefaults()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		err = toml.Unmarshal(data, cfg)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		return nil, fmt.Errorf("unsupported config file extension %q", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	// Environment variables always override file values
	if err := cfg.applyEnvVars(); err != nil {
		return nil, err
	}
	cfg.normalize()
	return cfg, nil
}

// Recipients returns the selectable recipients, default recipient first.
func (c *Config) Recipients() []string {
	out := make([]string, 0, len(c.RecipientOptions)+1)
	seen := make(map[string]bool)
	for _, r := range append([]string{c.RecipientEmail}, c.RecipientOptions...) {
		r = strings.TrimSpace(r)
		if r == "" || seen[r] {
			continue
		}
		seen[r] = true
		out = append(out, r)
	}
	return out
}

// GraphConfigured returns true if all Graph API credentials are set.
func (c *Config) GraphConfigured() bool {
	return c.MicrosoftTenantID != "" &&
		c.MicrosoftClientID != "" &&
		c.MicrosoftClientSecret != ""
}

func loadEnvFile() error {
	err := godotenv.Load()
	if err == nil || errors.Is(err, os.ErrNotExist) {
		return nil
	}
	return fmt.Errorf("failed to load .env file: %w", err)
}

// applyDefaults sets default values for all configuration fields.
func (c *Config) applyDefaults() {
	c.SenderType = SenderSMTPMicrosoft
	c.UseMIMEAttachments = true
	c.Passwords = map[string]string{}

	c.Server.Listen = ":8501"
	c.Server.MaxUploadBytes = defaultMaxUploadBytes
	c.Server.DraftTTL = Duration(15 * time.Minute)

	c.Images.DefaultSize = 600
	c.Images.DefaultQuality = 75
	c.Images.Format = "jpeg"

	c.Renderer.PdftoppmPath = "pdftoppm"
	c.Renderer.DPI = 150

	c.Subject.FridayPolicy = "today"
	c.Subject.Timezone = "Local"

	c.Session.TTL = Duration(12 * time.Hour)

	c.SMTP.Timeout = Duration(30 * time.Second)
	c.SMTP.RequireTLS = true

	c.Logging.Level = "info"
	c.Logging.MaxSizeMB = 100
	c.Logging.MaxBackups = 3
	c.Logging.MaxAgeDays = 28
}

// applyEnvVars overrides configuration with environment variable values.
// Only non-empty environment variables override existing values.
func (c *Config) applyEnvVars() error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	setString("SENDER_EMAIL", &c.SenderEmail)
	setString("SENDER_PASSWORD", &c.SenderPassword)
	if v := os.Getenv("SENDER_TYPE"); v != "" {
		c.SenderType = SenderType(v)
	}
	setString("RECIPIENT_EMAIL", &c.RecipientEmail)
	if v := os.Getenv("RECIPIENT_OPTIONS"); v != "" {
		opts, err := parseList(v)
		if err != nil {
			return fmt.Errorf("invalid RECIPIENT_OPTIONS: %w", err)
		}
		c.RecipientOptions = opts
	}
	setString("MICROSOFT_TENANT_ID", &c.MicrosoftTenantID)
	setString("MICROSOFT_CLIENT_ID", &c.MicrosoftClientID)
	setString("MICROSOFT_CLIENT_SECRET", &c.MicrosoftClientSecret)
	if err := envBool("USE_MIME_ATTACHMENTS", &c.UseMIMEAttachments); err != nil {
		return err
	}

	if c.Passwords == nil {
		c.Passwords = map[string]string{}
	}
	for _, kv := range os.Environ() {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || !strings.HasPrefix(key, passwordEnvPrefix) || value == "" {
			continue
		}
		user := strings.ToLower(strings.TrimPrefix(key, passwordEnvPrefix))
		if user != "" {
			c.Passwords[user] = value
		}
	}

	setString("HTTP_LISTEN", &c.Server.Listen)
	if v := os.Getenv("ALLOWED_ORIGINS"); v != "" {
		c.Server.AllowedOrigins = splitComma(v)
	}
	setString("IMAGE_FORMAT", &c.Images.Format)
	setString("PDFTOPPM_PATH", &c.Renderer.PdftoppmPath)
	setString("FRIDAY_POLICY", &c.Subject.FridayPolicy)
	setString("SUBJECT_TIMEZONE", &c.Subject.Timezone)
	setString("SESSION_SECRET", &c.Session.Secret)
	setString("SES_REGION", &c.SES.Region)
	setString("SES_ACCESS_KEY_ID", &c.SES.AccessKeyID)
	setString("SES_SECRET_ACCESS_KEY", &c.SES.SecretAccessKey)
	setString("TLS_CERT_FILE", &c.TLS.CertFile)
	setString("TLS_KEY_FILE", &c.TLS.KeyFile)
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	setString("LOG_FILE", &c.Logging.File)

	// Malformed typed values are errors.
	for _, err := range []error{
		envInt64("MAX_UPLOAD_BYTES", &c.Server.MaxUploadBytes),
		envDuration("DRAFT_TTL", &c.Server.DraftTTL),
		envInt("IMAGE_DEFAULT_SIZE", &c.Images.DefaultSize),
		envInt("IMAGE_DEFAULT_QUALITY", &c.Images.DefaultQuality),
		envInt("RENDER_DPI", &c.Renderer.DPI),
		envDuration("SESSION_TTL", &c.Session.TTL),
		envDuration("SMTP_TIMEOUT", &c.SMTP.Timeout),
		envBool("SMTP_REQUIRE_TLS", &c.SMTP.RequireTLS),
		envBool("TLS_ENABLED", &c.TLS.Enabled),
		envBool("LOG_DEVELOPMENT", &c.Logging.Development),
	} {
		if err != nil {
			return err
		}
	}

	return nil
}

func envInt64(key string, dst *int64) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envInt(key string, dst *int) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = n
	return nil
}

func envDuration(key string, dst *Duration) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = Duration(d)
	return nil
}

func envBool(key string, dst *bool) error {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fmt.Errorf("invalid %s: %w", key, err)
	}
	*dst = b
	return nil
}

// normalize canonicalises enum-like values. Unknown sender types are left
// untouched so Validate can report them.
func (c *Config) normalize() {
	if t, err := ParseSenderType(string(c.SenderType)); err == nil {
		c.SenderType = t
	}
	c.Images.Format = strings.ToLower(c.Images.Format)
	c.Subject.FridayPolicy = strings.ToLower(c.Subject.FridayPolicy)
}

// parseList accepts a JSON array or a comma-separated list.
func parseList(v string) ([]string, error) {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "[") {
		var out []string
		if err := json.Unmarshal([]byte(v), &out); err != nil {
			return nil, err
		}
		return out, nil
	}
	return splitComma(v), nil
}

func splitComma(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
