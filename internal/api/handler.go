package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/opensource-finance/dmnsim/internal/bus"
	"github.com/opensource-finance/dmnsim/internal/domain"
	"github.com/opensource-finance/dmnsim/internal/parser"
)

// Simulator is the decision service behind the API.
type Simulator interface {
	Parse(ctx context.Context, dmnXML string) ([]domain.Decision, error)
	Evaluate(ctx context.Context, dmnXML, decisionID string, variables map[string]any) (*domain.EvaluationResult, error)
}

// Handler holds dependencies for API handlers.
type Handler struct {
	sim      Simulator
	bus      domain.EventBus
	maxBytes int64
	version  string
}

// NewHandler creates a new API handler. bus may be nil.
func NewHandler(sim Simulator, eventBus domain.EventBus, maxBytes int64, version string) *Handler {
	return &Handler{
		sim:      sim,
		bus:      eventBus,
		maxBytes: maxBytes,
		version:  version,
	}
}

// ParseRequest is the request body for POST /api/dmn/parse.
type ParseRequest struct {
	DMNXml string `json:"dmnXml"`
}

// EvaluateRequest is the request body for POST /api/dmn/evaluate.
type EvaluateRequest struct {
	DMNXml     string         `json:"dmnXml"`
	DecisionID string         `json:"decisionId"`
	Variables  map[string]any `json:"variables,omitempty"`
}

// EvaluateResponse is the response for POST /api/dmn/evaluate.
type EvaluateResponse struct {
	*domain.EvaluationResult
	EvaluationID string `json:"evaluationId"`
	DurationMs   int64  `json:"durationMs"`
}

// Parse handles POST /api/dmn/parse requests.
func (h *Handler) Parse(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req ParseRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DMNXml == "" {
		writeError(w, http.StatusBadRequest, "dmnXml is required")
		return
	}

	decisions, err := h.sim.Parse(ctx, req.DMNXml)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	rules := 0
	for _, d := range decisions {
		rules += len(d.Rules)
	}
	h.publish(ctx, domain.TopicDocumentParsed, domain.DocumentParsedEvent{
		RequestID:     GetRequestID(ctx),
		DecisionCount: len(decisions),
		RuleCount:     rules,
		DurationMs:    time.Since(start).Milliseconds(),
	})

	writeJSON(w, http.StatusOK, domain.ParseResult{Decisions: decisions})
}

// Evaluate handles POST /api/dmn/evaluate requests.
func (h *Handler) Evaluate(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	ctx := r.Context()

	var req EvaluateRequest
	if !h.decode(w, r, &req) {
		return
	}
	if req.DMNXml == "" {
		writeError(w, http.StatusBadRequest, "dmnXml is required")
		return
	}
	if req.DecisionID == "" {
		writeError(w, http.StatusBadRequest, "decisionId is required")
		return
	}
	if req.Variables == nil {
		req.Variables = map[string]any{}
	}

	result, err := h.sim.Evaluate(ctx, req.DMNXml, req.DecisionID, req.Variables)
	if err != nil {
		h.writeServiceError(w, r, err)
		return
	}

	resp := EvaluateResponse{
		EvaluationResult: result,
		EvaluationID:     uuid.New().String(),
		DurationMs:       time.Since(start).Milliseconds(),
	}

	h.publish(ctx, domain.TopicDecisionEvaluated, domain.DecisionEvaluatedEvent{
		EvaluationID:       resp.EvaluationID,
		RequestID:          GetRequestID(ctx),
		DecisionID:         req.DecisionID,
		MatchedRuleIndexes: result.MatchedRuleIndexes,
		DurationMs:         resp.DurationMs,
	})

	writeJSON(w, http.StatusOK, resp)
}

// AllowedValues handles POST /api/dmn/allowed-values: it lexes one
// inputValues text the same way Parse does.
func (h *Handler) AllowedValues(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Text string `json:"text"`
	}
	if !h.decode(w, r, &req) {
		return
	}

	values, kind := parser.LexAllowedValues(req.Text)
	writeJSON(w, http.StatusOK, map[string]any{
		"allowedValues":     values,
		"allowedValuesKind": kind,
	})
}

// Health returns server health status.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	status := "healthy"

	if h.bus != nil {
		if err := h.bus.Ping(r.Context()); err != nil {
			status = "degraded"
		}
	}

	writeJSON(w, http.StatusOK, map[string]string{
		"status":  status,
		"version": h.version,
	})
}

// Ready returns whether the server is ready to accept traffic.
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{
		"ready": "true",
	})
}

// decode reads a JSON body of at most maxBytes into v. It writes the error
// response itself and reports whether decoding succeeded.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if h.maxBytes > 0 {
		r.Body = http.MaxBytesReader(w, r.Body, h.maxBytes)
	}

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "request body too large")
			return false
		}
		writeError(w, http.StatusBadRequest, "invalid JSON request body")
		return false
	}
	return true
}

func (h *Handler) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, domain.ErrMalformedDocument):
		status = http.StatusBadRequest
	case errors.Is(err, domain.ErrDecisionNotFound):
		status = http.StatusNotFound
	case errors.Is(err, domain.ErrEvaluation):
		status = http.StatusUnprocessableEntity
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed",
			"path", r.URL.Path,
			"request_id", GetRequestID(r.Context()),
			"error", err,
		)
		writeError(w, status, "internal server error")
		return
	}
	writeError(w, status, err.Error())
}

// publish sends event to the bus. Failures never fail the request.
func (h *Handler) publish(ctx context.Context, topic string, event any) {
	if h.bus == nil {
		return
	}
	if err := bus.PublishJSON(ctx, h.bus, topic, event); err != nil {
		slog.Warn("failed to publish event",
			"topic", topic,
			"request_id", GetRequestID(ctx),
			"error", err,
		)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
