package web

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/shineum/pdf-mailer/internal/auth"
	"github.com/shineum/pdf-mailer/internal/monitoring"
)

const (
	sessionCookie = "pdf_mailer_session"
	sessionCtxKey = "session"

	// multipartOverhead covers the form fields and boundaries that travel
	// next to the uploaded file.
	multipartOverhead = 1 << 20
)

// requestLogger logs one line per request and records HTTP metrics under
// the matched route pattern.
func requestLogger(logger *zap.Logger, metrics *monitoring.Metrics) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)
		metrics.RecordHTTPRequest(c.Request.Method, route, strconv.Itoa(status), elapsed)

		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
			zap.Int("status", status),
			zap.Duration("elapsed", elapsed),
			zap.String("ip", c.ClientIP()),
		}
		if s := sessionOf(c); s.Authenticated {
			fields = append(fields, zap.String("user", s.Username))
		}
		switch {
		case status >= http.StatusInternalServerError:
			logger.Error("request", fields...)
		case status >= http.StatusBadRequest:
			logger.Warn("request", fields...)
		default:
			logger.Debug("request", fields...)
		}
	}
}

func recovery(logger *zap.Logger) gin.HandlerFunc {
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		logger.Error("panic recovered",
			zap.Any("error", recovered),
			zap.String("method", c.Request.Method),
			zap.String("path", c.Request.URL.Path),
		)
		c.AbortWithStatus(http.StatusInternalServerError)
	})
}

// securityHeaders sets the response hardening headers. Page images are
// data URIs and the stylesheet is inline, so both are allowed explicitly.
func securityHeaders(hsts bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")
		c.Header("Content-Security-Policy",
			"default-src 'self'; img-src 'self' data:; style-src 'self' 'unsafe-inline'; frame-ancestors 'none'")
		if hsts {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}
		c.Next()
	}
}

// bodySizeLimit rejects requests whose declared length exceeds maxBytes and
// caps the body reader for the rest.
func bodySizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			c.String(http.StatusRequestEntityTooLarge, "Request body exceeds maximum size of %d bytes", maxBytes)
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}

// loadSession reads the session cookie. An invalid or missing cookie
// leaves the anonymous session in place.
func loadSession(sessions *auth.Sessions) gin.HandlerFunc {
	return func(c *gin.Context) {
		s := auth.Anonymous
		if token, err := c.Cookie(sessionCookie); err == nil {
			if parsed, err := sessions.Parse(token); err == nil {
				s = parsed
			}
		}
		c.Set(sessionCtxKey, s)
		c.Request = c.Request.WithContext(auth.WithSession(c.Request.Context(), s))
		c.Next()
	}
}

// requireLogin sends anonymous page views to the login form and rejects
// everything else with 401.
func requireLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if sessionOf(c).Authenticated {
			c.Next()
			return
		}
		if c.Request.Method == http.MethodGet {
			c.Redirect(http.StatusSeeOther, "/login")
		} else {
			c.Status(http.StatusUnauthorized)
		}
		c.Abort()
	}
}

func sessionOf(c *gin.Context) auth.Session {
	if v, ok := c.Get(sessionCtxKey); ok {
		if s, ok := v.(auth.Session); ok {
			return s
		}
	}
	return auth.FromContext(c.Request.Context())
}

func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	return errors.As(err, &maxErr)
}
