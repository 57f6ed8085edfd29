package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/okian/gridedge/internal/adapters/forwarder"
	service "github.com/okian/gridedge/internal/app"
	"github.com/okian/gridedge/internal/domain/model"
	"github.com/okian/gridedge/internal/domain/validation"
)

const maxBodyBytes = 1 << 20

// IngestDependencies defines what the ingest handler needs.
type IngestDependencies interface {
	Ingest(ctx context.Context, raw model.RawReading) (service.Outcome, error)
}

// IngestHandler handles reading submissions.
type IngestHandler struct {
	deps IngestDependencies
}

// NewIngestHandler creates a new ingest handler.
func NewIngestHandler(deps IngestDependencies) *IngestHandler {
	return &IngestHandler{deps: deps}
}

type ingestResponse struct {
	Status    string  `json:"status"`
	Message   string  `json:"message"`
	Flagged   bool    `json:"flagged"`
	Anomaly   bool    `json:"anomaly"`
	ZScore    float64 `json:"z_score"`
	Duplicate bool    `json:"duplicate"`
}

// HandleReceive handles POST /receive_data and POST /readings.
func (h *IngestHandler) HandleReceive(w http.ResponseWriter, r *http.Request) {
	const op = "api.receive_data"
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", NewKind(op, ErrMethodNotAllowed))
		return
	}

	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.UseNumber()
	var raw model.RawReading
	if err := dec.Decode(&raw); err != nil {
		writeError(w, http.StatusBadRequest, "malformed_reading", WrapKind(op, ErrBadRequest, err))
		return
	}
	if raw == nil {
		writeError(w, http.StatusBadRequest, "malformed_reading",
			WrapKind(op, ErrBadRequest, errors.New("body must be a JSON object")))
		return
	}

	out, err := h.deps.Ingest(r.Context(), raw)
	if err != nil {
		status, code, kind := classify(err)
		writeError(w, status, code, WrapKind(op, kind, err))
		return
	}

	msg := "Data processed and forwarded"
	if out.Duplicate {
		msg = "Duplicate reading ignored"
	}
	writeJSON(w, http.StatusOK, ingestResponse{
		Status:    "success",
		Message:   msg,
		Flagged:   out.Flagged,
		Anomaly:   out.Anomaly,
		ZScore:    out.ZScore,
		Duplicate: out.Duplicate,
	})
}

// classify maps pipeline errors to an HTTP status, a response code and an
// API kind.
func classify(err error) (int, string, error) {
	switch {
	case errors.Is(err, validation.ErrMalformedReading):
		return http.StatusBadRequest, "malformed_reading", ErrBadRequest
	case errors.Is(err, forwarder.ErrPermanentDelivery):
		return http.StatusBadGateway, "delivery_rejected", ErrDelivery
	case errors.Is(err, forwarder.ErrRetryBudgetExhausted):
		return http.StatusServiceUnavailable, "delivery_failed", ErrDelivery
	case errors.Is(err, forwarder.ErrBackpressure):
		return http.StatusTooManyRequests, "backpressure", ErrBackpressure
	case errors.Is(err, forwarder.ErrDeliveryAbandoned):
		return http.StatusGatewayTimeout, "delivery_abandoned", ErrDelivery
	case errors.Is(err, forwarder.ErrForwarderStopped), errors.Is(err, service.ErrNotStarted):
		return http.StatusServiceUnavailable, "unavailable", ErrUnavailable
	default:
		return http.StatusInternalServerError, "internal", ErrInternal
	}
}
