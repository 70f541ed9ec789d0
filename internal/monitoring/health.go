package monitoring

import (
	"fmt"
	"net/http"

	"github.com/heptiolabs/healthcheck"
)

// maxGoroutines fails the liveness check when exceeded.
const maxGoroutines = 10000

// RendererCheck reports whether the PDF renderer can run.
type RendererCheck interface {
	Available() error
}

// Health serves liveness and readiness endpoints.
type Health struct {
	handler healthcheck.Handler
}

// NewHealth registers the checks. Readiness fails while the renderer is
// missing or configIssues is non-empty.
func NewHealth(renderer RendererCheck, configIssues map[string]string) *Health {
	h := healthcheck.NewHandler()
	h.AddLivenessCheck("goroutine-threshold", healthcheck.GoroutineCountCheck(maxGoroutines))
	h.AddReadinessCheck("renderer", renderer.Available)
	h.AddReadinessCheck("config", func() error {
		if len(configIssues) == 0 {
			return nil
		}
		return fmt.Errorf("%d configuration issue(s)", len(configIssues))
	})
	return &Health{handler: h}
}

// ReadyHandler serves the readiness result. Append ?full=1 for details.
func (h *Health) ReadyHandler() http.HandlerFunc {
	return h.handler.ReadyEndpoint
}

// LiveHandler serves the liveness result.
func (h *Health) LiveHandler() http.HandlerFunc {
	return h.handler.LiveEndpoint
}
