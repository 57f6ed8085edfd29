package api

import (
	"net/http"

	service "github.com/okian/gridedge/internal/app"
)

// StatsProvider supplies the pipeline snapshot.
type StatsProvider interface {
	GetStats() service.Stats
}

// StatsHandler serves GET /stats.
type StatsHandler struct {
	provider StatsProvider
}

// NewStatsHandler creates a StatsHandler. A nil provider answers 503.
func NewStatsHandler(provider StatsProvider) *StatsHandler {
	return &StatsHandler{provider: provider}
}

// HandleStats writes the current service.Stats as JSON.
func (h *StatsHandler) HandleStats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind("api.stats", ErrMethodNotAllowed))
		return
	}
	if h.provider == nil {
		writeError(w, http.StatusServiceUnavailable, "stats_unavailable", nil)
		return
	}
	writeJSON(w, http.StatusOK, h.provider.GetStats())
}
