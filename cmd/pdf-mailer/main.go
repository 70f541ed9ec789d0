// Package main is the entry point for the pdf-mailer web service.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/shineum/pdf-mailer/internal/auth"
	"github.com/shineum/pdf-mailer/internal/config"
	"github.com/shineum/pdf-mailer/internal/draft"
	"github.com/shineum/pdf-mailer/internal/email"
	"github.com/shineum/pdf-mailer/internal/logger"
	"github.com/shineum/pdf-mailer/internal/monitoring"
	"github.com/shineum/pdf-mailer/internal/provider"
	"github.com/shineum/pdf-mailer/internal/provider/graph"
	"github.com/shineum/pdf-mailer/internal/provider/ses"
	"github.com/shineum/pdf-mailer/internal/provider/smtp"
	"github.com/shineum/pdf-mailer/internal/provider/stdout"
	"github.com/shineum/pdf-mailer/internal/raster"
	"github.com/shineum/pdf-mailer/internal/service"
	"github.com/shineum/pdf-mailer/internal/subject"
	apptls "github.com/shineum/pdf-mailer/internal/tls"
	"github.com/shineum/pdf-mailer/internal/web"
)

const shutdownTimeout = 10 * time.Second

func main() {
	configPath := flag.String("config", "", "path to a TOML or YAML configuration file (optional)")
	listen := flag.String("listen", "", "HTTP listen address, overrides server.listen")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
	if *listen != "" {
		cfg.Server.Listen = *listen
	}

	log, err := logger.New(logger.Config{
		Level:       cfg.Logging.Level,
		Development: cfg.Logging.Development,
		File:        cfg.Logging.File,
		MaxSizeMB:   cfg.Logging.MaxSizeMB,
		MaxBackups:  cfg.Logging.MaxBackups,
		MaxAgeDays:  cfg.Logging.MaxAgeDays,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = log.Sync() }()

	if err := run(cfg, log); err != nil {
		log.Error("pdf-mailer stopped with error", zap.Error(err))
		os.Exit(1)
	}
	log.Info("pdf-mailer stopped")
}

// loadConfig reads the file at path (TOML or YAML, env overrides) or the
// environment alone when path is empty.
func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFromFile(path)
	}
	return config.Load()
}

func run(cfg *config.Config, log *zap.Logger) error {
	issues := cfg.Validate()
	if len(issues) > 0 {
		log.Warn("configuration issues found, sending is disabled",
			zap.Int("count", len(issues)),
			zap.String("issues", config.FormatIssues(issues)),
		)
	}

	settings, err := service.SettingsFrom(cfg)
	if err != nil {
		return err
	}

	sender, err := selectProvider(cfg, log)
	if err != nil {
		return err
	}

	generator, err := subjectGenerator(cfg)
	if err != nil {
		return err
	}

	mode := email.ModeInline
	if cfg.UseMIMEAttachments {
		mode = email.ModeAttachments
	}

	renderer := raster.NewPoppler(cfg.Renderer.PdftoppmPath, cfg.Renderer.DPI, log.Named("raster"))
	if err := renderer.Available(); err != nil {
		log.Warn("renderer unavailable, conversions will fail", zap.Error(err))
	}

	drafts := draft.NewStore(time.Duration(cfg.Server.DraftTTL))
	metrics := monitoring.NewMetrics()
	health := monitoring.NewHealth(renderer, issues)

	authenticator := auth.NewAuthenticator(cfg.Passwords)
	if !authenticator.Enabled() {
		log.Warn("no login credentials configured, nobody can log in")
	}

	sessions, err := auth.NewSessions(cfg.Session.Secret, time.Duration(cfg.Session.TTL))
	if err != nil {
		return err
	}
	if cfg.Session.Secret == "" {
		log.Warn("session.secret not set, sessions end when the process restarts")
	}

	mailer := service.NewMailer(
		settings,
		renderer,
		generator,
		email.NewComposer(mode, ""),
		drafts,
		sender,
		metrics,
		log.Named("mailer"),
	)

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router, err := web.NewRouter(web.Options{
		Mailer:         mailer,
		Auth:           authenticator,
		Sessions:       sessions,
		Metrics:        metrics,
		Health:         health,
		Logger:         log.Named("http"),
		DefaultSize:    cfg.Images.DefaultSize,
		DefaultQuality: cfg.Images.DefaultQuality,
		TransportLabel: cfg.SenderType.Label(),
		AllowedOrigins: cfg.Server.AllowedOrigins,
		SecureCookies:  cfg.TLS.Enabled,
	})
	if err != nil {
		return fmt.Errorf("failed to build router: %w", err)
	}

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if cfg.TLS.Enabled {
		host, _, _ := net.SplitHostPort(cfg.Server.Listen)
		hosts := []string{"localhost", "127.0.0.1"}
		if host != "" {
			hosts = append([]string{host}, hosts...)
		}
		srv.TLSConfig, err = apptls.ServerConfig(cfg.TLS.CertFile, cfg.TLS.KeyFile, hosts...)
		if err != nil {
			return fmt.Errorf("failed to set up TLS: %w", err)
		}
	}

	log.Info("starting pdf-mailer",
		zap.String("listen", cfg.Server.Listen),
		zap.String("provider", sender.Name()),
		zap.String("mode", mode.String()),
		zap.Int("recipients", len(settings.Recipients)),
		zap.Bool("login_enabled", authenticator.Enabled()),
		zap.Bool("tls", cfg.TLS.Enabled),
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		var err error
		if srv.TLSConfig != nil {
			err = srv.ListenAndServeTLS("", "")
		} else {
			err = srv.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	group.Go(func() error {
		return mailer.SweepDrafts(groupCtx, time.Minute)
	})

	group.Go(func() error {
		<-groupCtx.Done()
		log.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	return group.Wait()
}

func subjectGenerator(cfg *config.Config) (*subject.Generator, error) {
	policy, err := subject.ParseFridayPolicy(cfg.Subject.FridayPolicy)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Subject.Timezone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", cfg.Subject.Timezone, err)
	}
	return subject.NewGenerator(policy, loc), nil
}

// selectProvider builds the transport for the configured sender type. A
// misconfigured transport still starts; Validate has already disabled
// sending and the form shows why.
func selectProvider(cfg *config.Config, log *zap.Logger) (provider.Provider, error) {
	plog := log.Named("provider")

	switch cfg.SenderType {
	case config.SenderSMTPMicrosoft, config.SenderSMTPGmail, config.SenderSMTPYahoo:
		endpoint := map[config.SenderType]smtp.Endpoint{
			config.SenderSMTPMicrosoft: smtp.Microsoft,
			config.SenderSMTPGmail:     smtp.Gmail,
			config.SenderSMTPYahoo:     smtp.Yahoo,
		}[cfg.SenderType]
		log.Info("using SMTP provider", zap.String("host", endpoint.Host), zap.Int("port", endpoint.Port))
		return smtp.New(string(cfg.SenderType), smtp.Config{
			Endpoint:   endpoint,
			Username:   cfg.SenderEmail,
			Password:   cfg.SenderPassword,
			Timeout:    time.Duration(cfg.SMTP.Timeout),
			RequireTLS: cfg.SMTP.RequireTLS,
		}, plog), nil

	case config.SenderGraph:
		if !cfg.GraphConfigured() {
			log.Warn("Microsoft Graph selected without tenant, client ID and client secret")
		}
		log.Info("using Microsoft Graph provider", zap.String("sender", cfg.SenderEmail))
		return graph.New(graph.Config{
			TenantID:     cfg.MicrosoftTenantID,
			ClientID:     cfg.MicrosoftClientID,
			ClientSecret: cfg.MicrosoftClientSecret,
			Sender:       cfg.SenderEmail,
		}, plog), nil

	case config.SenderSES:
		log.Info("using AWS SES provider", zap.String("region", cfg.SES.Region), zap.String("sender", cfg.SenderEmail))
		p, err := ses.New(context.Background(), ses.Config{
			Region:          cfg.SES.Region,
			AccessKeyID:     cfg.SES.AccessKeyID,
			SecretAccessKey: cfg.SES.SecretAccessKey,
			Sender:          cfg.SenderEmail,
		}, plog)
		if err != nil {
			return nil, fmt.Errorf("failed to create SES provider: %w", err)
		}
		return p, nil

	case config.SenderStdout:
		log.Info("using stdout provider")
		return stdout.New(plog), nil
	}

	// Validate reports the bad value; drafts go nowhere until it is fixed.
	log.Warn("unknown sender type, falling back to stdout", zap.String("sender_type", string(cfg.SenderType)))
	return stdout.New(plog), nil
}
