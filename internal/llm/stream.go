package llm

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/arclab/grover/internal/streaming"
)

// AnalyzeStream performs one provider call in streaming mode, decoding
// the SSE wire into raw events and handing each to onEvent in arrival
// order. The call is bounded by the per-model timeout; there is no retry,
// since replaying a partially consumed stream would duplicate deltas.
func (s *Service) AnalyzeStream(ctx context.Context, req Request, onEvent func(streaming.Event)) error {
	cfg := s.registry.GetConfig(req.Provider)
	if cfg == nil {
		return fmt.Errorf("unknown provider %q", req.Provider)
	}

	transformer := s.registry.GetTransformer(req.Provider)
	opts := s.registry.RequestOptions(req.Provider, req.ModelKey)

	callURL, body, err := s.buildCall(cfg, req)
	if err != nil {
		return err
	}
	transformer.TransformRequest(body, req.ModelKey)
	body["stream"] = true

	payload, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request body: %w", err)
	}

	callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(callCtx, http.MethodPost, callURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "text/event-stream")
	for k, v := range s.registry.AuthHeaders(cfg.Name, s.keys(cfg)) {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	if httpResp.StatusCode != http.StatusOK {
		raw, readErr := io.ReadAll(httpResp.Body)
		if readErr != nil {
			return fmt.Errorf("failed to read error response: %w", readErr)
		}
		return transformer.ExtractError(httpResp.StatusCode, raw)
	}

	return readEventStream(httpResp.Body, onEvent)
}

// readEventStream decodes SSE frames: an optional "event:" line naming
// the type, "data:" lines carrying the payload, and a blank line ending
// the frame. Frames without an event line take their type from the
// payload's "type" field. The "[DONE]" sentinel ends the stream.
func readEventStream(body io.Reader, onEvent func(streaming.Event)) error {
	scanner := bufio.NewScanner(body)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 1024*1024)

	var eventType string
	var data strings.Builder

	dispatch := func() {
		defer func() {
			eventType = ""
			data.Reset()
		}()
		if data.Len() == 0 {
			return
		}
		raw := data.String()
		if raw == "[DONE]" {
			return
		}
		ev := streaming.Event{Type: eventType, Data: json.RawMessage(raw)}
		if ev.Type == "" {
			var typed struct {
				Type string `json:"type"`
			}
			if err := json.Unmarshal(ev.Data, &typed); err == nil {
				ev.Type = typed.Type
			}
		}
		onEvent(ev)
	}

	for scanner.Scan() {
		line := scanner.Text()

		if line == "" {
			dispatch()
			continue
		}
		if after, ok := strings.CutPrefix(line, "event: "); ok {
			eventType = after
			continue
		}
		if after, ok := strings.CutPrefix(line, "data: "); ok {
			data.WriteString(after)
		}
	}
	// A final frame without a trailing blank line still counts.
	dispatch()

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("stream read error: %w", err)
	}
	return nil
}
