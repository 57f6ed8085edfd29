// Package api declares HTTP contracts and route registration helpers.
package api

import (
	"context"
	"encoding/json"
	"net/http"

	service "github.com/okian/gridedge/internal/app"
	"github.com/okian/gridedge/internal/domain/model"
)

// Dependencies required by HTTP handlers. Using an interface bundle keeps
// the handler layer loosely coupled to implementations in other packages.
type Dependencies interface {
	// Ingest runs one reading through the pipeline.
	Ingest(ctx context.Context, raw model.RawReading) (service.Outcome, error)

	// Started reports whether readings are accepted.
	Started() bool
}

// Simulator runs the in-process reading generator.
type Simulator interface {
	// Start launches the generator; it reports false if it was already running.
	Start(ctx context.Context) bool
	// Stop halts the generator and waits for it; it reports false if it was not running.
	Stop() bool
	Running() bool
}

// Server wires HTTP routes for the edge API.
type Server struct {
	healthHandler     *HealthHandler
	statsHandler      *StatsHandler
	ingestHandler     *IngestHandler
	simulationHandler *SimulationHandler
}

// NewServer creates a new API server with all handlers. sim may be nil, in
// which case the simulation routes answer 503.
func NewServer(deps Dependencies, statsProvider StatsProvider, sim Simulator) *Server {
	return &Server{
		healthHandler:     NewHealthHandler(deps),
		statsHandler:      NewStatsHandler(statsProvider),
		ingestHandler:     NewIngestHandler(deps),
		simulationHandler: NewSimulationHandler(sim),
	}
}

// Register attaches all HTTP routes to mux. ctx bounds background work
// started from a request, such as the simulation.
func (s *Server) Register(ctx context.Context, mux *http.ServeMux) {
	if ctx != nil {
		s.simulationHandler.ctx = ctx
	}

	mux.HandleFunc("/health", MetricsMiddleware(s.healthHandler.HandleHealth, "health"))
	mux.HandleFunc("/metrics", s.healthHandler.HandleMetrics)
	mux.HandleFunc("/stats", MetricsMiddleware(s.statsHandler.HandleStats, "stats"))
	mux.HandleFunc("/receive_data", MetricsMiddleware(s.ingestHandler.HandleReceive, "receive_data"))
	mux.HandleFunc("/readings", MetricsMiddleware(s.ingestHandler.HandleReceive, "readings"))
	mux.HandleFunc("/start_simulation", MetricsMiddleware(s.simulationHandler.HandleStart, "start_simulation"))
	mux.HandleFunc("/stop_simulation", MetricsMiddleware(s.simulationHandler.HandleStop, "stop_simulation"))
}

type messageResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
}

type errorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code string, err error) {
	msg := http.StatusText(status)
	if err != nil {
		msg = err.Error()
	}
	writeJSON(w, status, errorResponse{Status: "error", Code: code, Message: msg})
}
