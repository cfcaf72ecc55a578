package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/arclab/grover/internal/llm"
	"github.com/arclab/grover/internal/streaming"
)

type streamRequestBody struct {
	Provider           string  `json:"provider"`
	ModelKey           string  `json:"modelKey"`
	Prompt             string  `json:"prompt"`
	SystemPrompt       string  `json:"systemPrompt,omitempty"`
	Temperature        float64 `json:"temperature,omitempty"`
	PreviousResponseID string  `json:"previousResponseId,omitempty"`
}

// StreamAnalyze starts a streaming provider call in the background and
// returns the session id. Progress flows through the hub: attach via
// the session events route or poll the snapshot.
func (h *Handlers) StreamAnalyze(w http.ResponseWriter, r *http.Request) {
	var body streamRequestBody
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "bad_request", "invalid request body")
		return
	}
	if body.Provider == "" || body.ModelKey == "" || body.Prompt == "" {
		writeError(w, http.StatusBadRequest, "bad_request", "provider, modelKey and prompt are required")
		return
	}

	sessionID := uuid.NewString()

	go func() {
		defer h.hub.Complete(sessionID)

		req := llm.Request{
			Provider:           body.Provider,
			ModelKey:           body.ModelKey,
			SystemPrompt:       body.SystemPrompt,
			Prompt:             body.Prompt,
			Temperature:        body.Temperature,
			PreviousResponseID: body.PreviousResponseID,
			SessionID:          sessionID,
		}
		source := func(ctx context.Context, onEvent func(streaming.Event)) error {
			return h.llm.AnalyzeStream(ctx, req, onEvent)
		}

		state, err := streaming.Pump(context.Background(), h.aggregator, sessionID, h.hub, source)
		if err != nil {
			h.logger.Error("stream failed",
				slog.String("session_id", sessionID),
				slog.String("provider", body.Provider),
				slog.Any("error", err))
			h.hub.Broadcast(sessionID, map[string]any{
				"kind":          string(streaming.KindStatus),
				"streamStatus":  "failed",
				"streamMessage": err.Error(),
			})
			return
		}
		h.logger.Debug("stream complete",
			slog.String("session_id", sessionID),
			slog.String("response_id", state.ResponseID),
			slog.Int("text_len", len(state.Text)))
	}()

	writeJSON(w, http.StatusAccepted, map[string]string{"sessionId": sessionID})
}

// SessionEvents attaches to a session as a server-sent event stream:
// the current snapshot first, then every payload broadcast while the
// subscriber is connected.
func (h *Handlers) SessionEvents(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionId")

	flusher, ok := w.(http.Flusher)
	if !ok {
		writeError(w, http.StatusInternalServerError, "internal", "streaming unsupported")
		return
	}

	// Subscribe before reading the snapshot so nothing broadcast in
	// between is lost; a payload landing in that window arrives twice,
	// which snapshot merging tolerates.
	ch, cancel := h.hub.Subscribe(sessionID)
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	send := func(v any) bool {
		b, err := json.Marshal(v)
		if err != nil {
			return false
		}
		fmt.Fprintf(w, "data: %s\n\n", b)
		flusher.Flush()
		return true
	}

	if snapshot := h.hub.Snapshot(sessionID); snapshot != nil {
		if !send(snapshot) {
			return
		}
	}

	for {
		select {
		case <-r.Context().Done():
			return
		case payload, open := <-ch:
			if !open {
				return
			}
			if !send(payload) {
				return
			}
		}
	}
}
