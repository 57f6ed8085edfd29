package api

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/okian/gridedge/pkg/metrics"
)

// ReadinessChecker reports whether the edge accepts readings.
type ReadinessChecker interface {
	Started() bool
}

// HealthHandler handles health check and metrics requests.
type HealthHandler struct {
	ready   ReadinessChecker
	metrics http.Handler
}

// NewHealthHandler creates a new health handler.
func NewHealthHandler(ready ReadinessChecker) *HealthHandler {
	return &HealthHandler{
		ready:   ready,
		metrics: promhttp.HandlerFor(metrics.GetRegistry(), promhttp.HandlerOpts{}),
	}
}

// HandleHealth handles GET /health. Producers gate sending on a 200.
func (h *HealthHandler) HandleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind("api.health", ErrMethodNotAllowed))
		return
	}
	if h.ready != nil && !h.ready.Started() {
		writeJSON(w, http.StatusServiceUnavailable, messageResponse{Status: "unavailable", Message: "pipeline not started"})
		return
	}
	writeJSON(w, http.StatusOK, messageResponse{Status: "healthy", Message: "edge is accepting readings"})
}

// HandleMetrics serves the Prometheus exposition from the custom registry.
func (h *HealthHandler) HandleMetrics(w http.ResponseWriter, r *http.Request) {
	h.metrics.ServeHTTP(w, r)
}
