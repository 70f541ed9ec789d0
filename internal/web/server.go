// Package web serves the login page, the upload form, the preview and the
// send result, plus the health and metrics endpoints.
package web

import (
	"embed"
	"encoding/base64"
	"html/template"
	"io/fs"
	"net/http"
	"strings"
	"time"

	gincors "github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shineum/pdf-mailer/internal/auth"
	"github.com/shineum/pdf-mailer/internal/monitoring"
	"github.com/shineum/pdf-mailer/internal/service"
)

//go:embed templates/*.html static/*
var assets embed.FS

const title = "PDF to Email Converter"

// Options holds the router's dependencies.
type Options struct {
	Mailer   *service.Mailer
	Auth     *auth.Authenticator
	Sessions *auth.Sessions
	Metrics  *monitoring.Metrics
	Health   *monitoring.Health
	Logger   *zap.Logger

	// DefaultSize and DefaultQuality preselect the form controls.
	DefaultSize    int
	DefaultQuality int
	// TransportLabel names the transport on the form page.
	TransportLabel string
	AllowedOrigins []string
	// SecureCookies marks the session cookie Secure and enables HSTS.
	SecureCookies bool
}

type server struct {
	Options
}

// NewRouter builds the gin engine.
func NewRouter(opts Options) (*gin.Engine, error) {
	if opts.Logger == nil {
		opts.Logger = zap.NewNop()
	}
	if opts.DefaultSize == 0 {
		opts.DefaultSize = 800
	}
	if opts.DefaultQuality == 0 {
		opts.DefaultQuality = 85
	}
	registerValidators()

	tmpl, err := parseTemplates()
	if err != nil {
		return nil, err
	}
	static, err := fs.Sub(assets, "static")
	if err != nil {
		return nil, err
	}

	maxBody := opts.Mailer.Settings().MaxUploadBytes + multipartOverhead

	r := gin.New()
	r.MaxMultipartMemory = 8 << 20
	r.SetHTMLTemplate(tmpl)
	r.Use(recovery(opts.Logger))
	r.Use(requestLogger(opts.Logger, opts.Metrics))
	r.Use(securityHeaders(opts.SecureCookies))
	if len(opts.AllowedOrigins) > 0 {
		r.Use(gincors.New(corsConfig(opts.AllowedOrigins)))
	}

	s := &server{Options: opts}

	r.GET("/healthz", gin.WrapF(opts.Health.ReadyHandler()))
	r.GET("/healthz/live", gin.WrapF(opts.Health.LiveHandler()))
	r.GET("/metrics", gin.WrapH(opts.Metrics.HTTPHandler()))
	r.StaticFS("/static", http.FS(static))

	pages := r.Group("/", loadSession(opts.Sessions))
	pages.GET("/login", s.loginPage)
	pages.POST("/login", s.login)

	private := pages.Group("/", requireLogin())
	private.POST("/logout", s.logout)
	private.GET("/", s.index)
	private.GET("/subject", s.subject)
	private.POST("/convert", bodySizeLimit(maxBody), s.convert)
	private.POST("/send", s.send)

	return r, nil
}

func corsConfig(origins []string) gincors.Config {
	cfg := gincors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{http.MethodGet, http.MethodPost},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept"},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	for _, o := range origins {
		if o == "*" {
			cfg.AllowOrigins = nil
			cfg.AllowAllOrigins = true
			cfg.AllowCredentials = false
			break
		}
	}
	return cfg
}

func parseTemplates() (*template.Template, error) {
	return template.New("").Funcs(template.FuncMap{
		"join":    strings.Join,
		"bytes":   formatBytes,
		"dataURI": dataURI,
	}).ParseFS(assets, "templates/*.html")
}

// dataURI embeds data in an <img src>. The content type always comes from
// the image encoder, never from the request.
func dataURI(contentType string, data []byte) template.URL {
	return template.URL("data:" + contentType + ";base64," + base64.StdEncoding.EncodeToString(data))
}
