package api

import (
	"context"
	"net/http"
)

// SimulationHandler starts and stops the in-process reading generator.
type SimulationHandler struct {
	sim Simulator
	ctx context.Context
}

// NewSimulationHandler creates a new simulation handler. sim may be nil.
func NewSimulationHandler(sim Simulator) *SimulationHandler {
	return &SimulationHandler{sim: sim, ctx: context.Background()}
}

// HandleStart handles GET|POST /start_simulation. Starting a running
// simulation succeeds without effect.
func (h *SimulationHandler) HandleStart(w http.ResponseWriter, r *http.Request) {
	const op = "api.start_simulation"
	if !h.allowed(w, r, op) {
		return
	}
	msg := "Started data simulation"
	if !h.sim.Start(h.ctx) {
		msg = "Simulation already running"
	}
	writeJSON(w, http.StatusOK, messageResponse{Status: "success", Message: msg})
}

// HandleStop handles GET|POST /stop_simulation.
func (h *SimulationHandler) HandleStop(w http.ResponseWriter, r *http.Request) {
	const op = "api.stop_simulation"
	if !h.allowed(w, r, op) {
		return
	}
	msg := "Stopped data simulation"
	if !h.sim.Stop() {
		msg = "Simulation not running"
	}
	writeJSON(w, http.StatusOK, messageResponse{Status: "success", Message: msg})
}

func (h *SimulationHandler) allowed(w http.ResponseWriter, r *http.Request, op string) bool {
	if r.Method != http.MethodGet && r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return false
	}
	if h.sim == nil {
		writeError(w, http.StatusServiceUnavailable, "unavailable", NewKind(op, ErrNoSimulation))
		return false
	}
	return true
}
