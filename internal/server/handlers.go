package server

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/arclab/grover/internal/broadcast"
	"github.com/arclab/grover/internal/grover"
	"github.com/arclab/grover/internal/jsonextract"
	"github.com/arclab/grover/internal/llm"
	"github.com/arclab/grover/internal/normalize"
	"github.com/arclab/grover/internal/streaming"
)

// Handlers holds the HTTP handlers over the solver core.
type Handlers struct {
	solver     *grover.Service
	llm        *llm.Service
	hub        *broadcast.Hub
	aggregator *streaming.Aggregator
	logger     *slog.Logger
}

// NewHandlers creates the handler set.
func NewHandlers(solver *grover.Service, llmService *llm.Service, hub *broadcast.Hub, logger *slog.Logger) *Handlers {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Handlers{
		solver:     solver,
		llm:        llmService,
		hub:        hub,
		aggregator: streaming.New(logger),
		logger:     logger,
	}
}

// requestTimeout bounds ordinary API requests. The session event stream
// is exempt: attached observers hold the connection open for the life of
// the session.
const requestTimeout = 30 * time.Second

// Routes mounts the API routes on r.
func (h *Handlers) Routes(r chi.Router) {
	r.Group(func(g chi.Router) {
		g.Use(TimeoutMiddleware(requestTimeout))
		g.Post("/api/puzzle/grover/{taskId}", h.StartSolve)
		g.Post("/api/analyze/stream", h.StreamAnalyze)
		g.Get("/api/sessions/{sessionId}", h.SessionSnapshot)
		g.Post("/api/normalize", h.Normalize)
	})
	r.Get("/api/sessions/{sessionId}/events", h.SessionEvents)
}

type solveRequestBody struct {
	Provider           string  `json:"provider"`
	ModelKey           string  `json:"modelKey"`
	Temperature        float64 `json:"temperature,omitempty"`
	MaxIterations      int     `json:"maxIterations,omitempty"`
	PreviousResponseID string  `json:"previousResponseId,omitempty"`
}

// StartSolve kicks off a background solve and returns the session id.
func (h *Handlers) StartSolve(w http.ResponseWriter, r *http.Request) {
	taskID := chi.URLParam(r, "taskId")

	var body solveRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if body.Provider == "" || body.ModelKey == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "provider and modelKey are required")
		return
	}

	sessionID, err := h.solver.StartSolve(grover.SolveRequest{
		TaskID:             taskID,
		Provider:           body.Provider,
		ModelKey:           body.ModelKey,
		Temperature:        body.Temperature,
		MaxIterations:      body.MaxIterations,
		PreviousResponseID: body.PreviousResponseID,
	})
	if err != nil {
		var notFound *grover.ErrTaskNotFound
		if errors.As(err, &notFound) {
			writeError(w, http.StatusNotFound, "task_not_found", err.Error())
			return
		}
		h.logger.Error("failed to start solve", slog.String("task_id", taskID), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal", "failed to start solve")
		return
	}

	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": sessionID})
}

// SessionSnapshot returns the latest merged progress payload for a
// session, for observers that reconnect mid-run.
func (h *Handlers) SessionSnapshot(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")
	snapshot := h.hub.Snapshot(sessionID)
	if snapshot == nil {
		writeError(w, http.StatusNotFound, "session_not_found", "session "+sessionID+" not found")
		return
	}
	writeJSON(w, http.StatusOK, snapshot)
}

type normalizeRequestBody struct {
	Provider         string          `json:"provider"`
	ModelKey         string          `json:"modelKey"`
	Response         json.RawMessage `json:"response"`
	CaptureReasoning bool            `json:"captureReasoning,omitempty"`
}

// Normalize converts a raw provider response into the canonical record.
func (h *Handlers) Normalize(w http.ResponseWriter, r *http.Request) {
	var body normalizeRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if body.Provider == "" || len(body.Response) == 0 {
		writeError(w, http.StatusBadRequest, "bad_request", "provider and response are required")
		return
	}

	result, err := h.llm.Normalize(body.Provider, body.ModelKey, body.Response, body.CaptureReasoning)
	if err != nil {
		var malformed *normalize.MalformedResponseError
		if errors.As(err, &malformed) {
			writeError(w, http.StatusUnprocessableEntity, "malformed_response", err.Error())
			return
		}
		var extraction *jsonextract.ExtractionError
		if errors.As(err, &extraction) {
			writeError(w, http.StatusUnprocessableEntity, "json_extraction", err.Error())
			return
		}
		h.logger.Error("normalization failed", slog.String("provider", body.Provider), slog.Any("error", err))
		writeError(w, http.StatusInternalServerError, "internal", "normalization failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError emits the machine-readable error envelope. Never a stack
// trace.
func writeError(w http.ResponseWriter, status int, kind, message string) {
	writeJSON(w, status, map[string]any{
		"error": map[string]string{
			"kind":    kind,
			"message": message,
		},
	})
}
