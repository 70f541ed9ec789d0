// Package monitoring exposes Prometheus metrics and health endpoints.
package monitoring

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "pdf_mailer"

// Metrics holds the application's collectors. Each instance owns its
// registry so tests can build as many as they like.
type Metrics struct {
	registry *prometheus.Registry

	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	LoginAttempts *prometheus.CounterVec

	ConversionsTotal   *prometheus.CounterVec
	ConversionDuration prometheus.Histogram
	PagesRendered      prometheus.Counter

	EmailsSent      *prometheus.CounterVec
	SendDuration    *prometheus.HistogramVec
	AttachmentBytes prometheus.Histogram

	DraftsPending prometheus.Gauge
	DraftsExpired prometheus.Counter
}

// NewMetrics creates and registers all collectors, plus the Go runtime and
// process collectors.
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		HTTPRequestsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "Total number of HTTP requests",
			},
			[]string{"method", "route", "status_code"},
		),
		HTTPRequestDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "http_request_duration_seconds",
				Help:      "HTTP request duration in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		LoginAttempts: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "login_attempts_total",
				Help:      "Login attempts by result",
			},
			[]string{"result"},
		),

		ConversionsTotal: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "conversions_total",
				Help:      "PDF conversions by result",
			},
			[]string{"result"},
		),
		ConversionDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "conversion_duration_seconds",
				Help:      "Time to rasterize and encode one PDF",
				Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60},
			},
		),
		PagesRendered: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "pages_rendered_total",
				Help:      "Total number of PDF pages rendered",
			},
		),

		EmailsSent: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "emails_sent_total",
				Help:      "Send attempts by provider and result",
			},
			[]string{"provider", "result"},
		),
		SendDuration: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "send_duration_seconds",
				Help:      "Time spent in one send attempt",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"provider"},
		),
		AttachmentBytes: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "email_image_bytes",
				Help:      "Total image bytes carried by a sent email",
				Buckets:   prometheus.ExponentialBuckets(16<<10, 4, 8),
			},
		),

		DraftsPending: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "drafts_pending",
				Help:      "Previewed drafts waiting to be sent",
			},
		),
		DraftsExpired: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "drafts_expired_total",
				Help:      "Drafts dropped after their TTL",
			},
		),
	}
}

// Registry returns the registry backing these metrics.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// HTTPHandler serves the registry in the Prometheus exposition format.
func (m *Metrics) HTTPHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// RecordHTTPRequest records one served request.
func (m *Metrics) RecordHTTPRequest(method, route, statusCode string, duration time.Duration) {
	m.HTTPRequestsTotal.WithLabelValues(method, route, statusCode).Inc()
	m.HTTPRequestDuration.WithLabelValues(method, route).Observe(duration.Seconds())
}

// RecordLogin records a login attempt.
func (m *Metrics) RecordLogin(ok bool) {
	m.LoginAttempts.WithLabelValues(result(ok)).Inc()
}

// RecordConversion records a finished conversion. pages is zero on failure.
func (m *Metrics) RecordConversion(ok bool, pages int, duration time.Duration) {
	m.ConversionsTotal.WithLabelValues(result(ok)).Inc()
	if ok {
		m.ConversionDuration.Observe(duration.Seconds())
		m.PagesRendered.Add(float64(pages))
	}
}

// RecordSend records one send attempt through provider.
func (m *Metrics) RecordSend(provider string, ok bool, imageBytes int, duration time.Duration) {
	m.EmailsSent.WithLabelValues(provider, result(ok)).Inc()
	m.SendDuration.WithLabelValues(provider).Observe(duration.Seconds())
	if ok {
		m.AttachmentBytes.Observe(float64(imageBytes))
	}
}

// UpdateDraftsPending sets the pending-draft gauge.
func (m *Metrics) UpdateDraftsPending(count int) {
	m.DraftsPending.Set(float64(count))
}

// RecordDraftsExpired adds n expired drafts.
func (m *Metrics) RecordDraftsExpired(n int) {
	m.DraftsExpired.Add(float64(n))
}

func result(ok bool) string {
	if ok {
		return "success"
	}
	return "failure"
}
