// Package streaming rebuilds coherent snapshots from a provider's
// incremental streaming events.
//
// The aggregator is a stateful, ordered reduction: events must be handed
// to HandleEvent strictly in arrival order against the same State. Each
// content channel (text, JSON, reasoning, reasoning summary, refusal,
// annotations) accumulates independently so one stream can carry all of
// them without cross-contamination.
package streaming

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Channel identifies which content stream a chunk belongs to.
type Channel string

const (
	ChannelText             Channel = "text"
	ChannelJSON             Channel = "json"
	ChannelReasoning        Channel = "reasoning"
	ChannelReasoningSummary Channel = "reasoning_summary"
	ChannelRefusal          Channel = "refusal"
	ChannelAnnotation       Channel = "annotation"
)

// Annotation carries the positional metadata needed to re-anchor a
// citation to its text span downstream. Annotations are accumulated in
// arrival order and never deduplicated.
type Annotation struct {
	Type            string          `json:"type"`
	AnnotationIndex int             `json:"annotationIndex"`
	ContentIndex    int             `json:"contentIndex"`
	OutputIndex     int             `json:"outputIndex"`
	ItemID          string          `json:"itemId"`
	Payload         json.RawMessage `json:"payload,omitempty"`
}

// State is the per-invocation accumulator. Exactly one writer (the event
// dispatch loop) mutates it; readers only see completed snapshots.
type State struct {
	Text             string
	JSONBuffer       string
	ParsedJSON       map[string]any
	Reasoning        string
	ReasoningSummary string
	Refusal          string
	Annotations      []Annotation
	ResponseID       string
	Model            string
}

// Snapshot freezes the current accumulator into an immutable copy.
func (s *State) Snapshot() State {
	out := *s
	out.Annotations = append([]Annotation(nil), s.Annotations...)
	if s.ParsedJSON != nil {
		parsed := make(map[string]any, len(s.ParsedJSON))
		for k, v := range s.ParsedJSON {
			parsed[k] = v
		}
		out.ParsedJSON = parsed
	}
	return out
}

// ChunkKind distinguishes content chunks from lifecycle status events.
type ChunkKind string

const (
	KindChunk  ChunkKind = "chunk"
	KindStatus ChunkKind = "status"
)

// Chunk is one normalized emission: either a content delta on a channel
// or a coarse lifecycle status change.
type Chunk struct {
	Kind       ChunkKind
	Channel    Channel
	Delta      string
	Annotation *Annotation
	Status     string
	Message    string
}

// Emit receives normalized chunk and status events as they are produced.
type Emit func(Chunk)

// Event is one raw provider streaming event.
type Event struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// knownNamespace prefixes are silently ignored when the specific event
// type is unrecognized, for forward compatibility with new event types.
const knownNamespace = "response."

// Aggregator reduces provider events into State. It never fails a stream:
// malformed events degrade to empty deltas and unknown events are at most
// logged.
type Aggregator struct {
	logger *slog.Logger
}

// New creates an aggregator. A nil logger disables diagnostics.
func New(logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Aggregator{logger: logger}
}

type deltaPayload struct {
	Delta string `json:"delta"`
	Text  string `json:"text"`
}

// delta decodes the incremental payload, degrading to "" on malformed or
// missing fields so one bad event cannot abort a healthy stream.
func (a *Aggregator) delta(data json.RawMessage) string {
	var p deltaPayload
	if err := json.Unmarshal(data, &p); err != nil {
		return ""
	}
	return p.Delta
}

type donePayload struct {
	Text string `json:"text"`
}

// done decodes an authoritative final value, or "" when absent.
func (a *Aggregator) done(data json.RawMessage) (string, bool) {
	var p donePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return "", false
	}
	return p.Text, p.Text != ""
}

type lifecyclePayload struct {
	Response struct {
		ID    string `json:"id"`
		Model string `json:"model"`
		Error *struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		} `json:"error"`
	} `json:"response"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// HandleEvent applies one provider event to state and emits at most one
// chunk, or one status event for lifecycle transitions. It must be called
// in arrival order and never returns an error.
func (a *Aggregator) HandleEvent(ev Event, state *State, emit Emit) {
	switch ev.Type {
	case "response.created", "response.in_progress":
		var p lifecyclePayload
		if err := json.Unmarshal(ev.Data, &p); err == nil {
			if p.Response.ID != "" {
				state.ResponseID = p.Response.ID
			}
			if p.Response.Model != "" {
				state.Model = p.Response.Model
			}
		}
		status := "created"
		if ev.Type == "response.in_progress" {
			status = "in_progress"
		}
		emit(Chunk{Kind: KindStatus, Status: status})

	case "response.completed":
		emit(Chunk{Kind: KindStatus, Status: "completed"})

	case "response.failed", "error":
		emit(Chunk{Kind: KindStatus, Status: "failed", Message: a.failureMessage(ev.Data)})

	case "response.output_text.delta":
		d := a.delta(ev.Data)
		state.Text += d
		if d != "" {
			emit(Chunk{Kind: KindChunk, Channel: ChannelText, Delta: d})
		}

	case "response.output_text.done":
		if final, ok := a.done(ev.Data); ok {
			// Done events carry the authoritative value and may overwrite.
			state.Text = final
			emit(Chunk{Kind: KindChunk, Channel: ChannelText, Delta: ""})
		}

	case "response.output_json.delta":
		d := a.delta(ev.Data)
		state.JSONBuffer += d
		if d != "" {
			emit(Chunk{Kind: KindChunk, Channel: ChannelJSON, Delta: d})
		}

	case "response.output_json.done":
		if final, ok := a.done(ev.Data); ok {
			state.JSONBuffer = final
		}
		var parsed map[string]any
		if err := json.Unmarshal([]byte(state.JSONBuffer), &parsed); err == nil {
			state.ParsedJSON = parsed
		}
		emit(Chunk{Kind: KindChunk, Channel: ChannelJSON, Delta: ""})

	case "response.reasoning.delta", "response.reasoning_text.delta":
		d := a.delta(ev.Data)
		state.Reasoning += d
		if d != "" {
			emit(Chunk{Kind: KindChunk, Channel: ChannelReasoning, Delta: d})
		}

	case "response.reasoning.done", "response.reasoning_text.done":
		if final, ok := a.done(ev.Data); ok {
			state.Reasoning = final
			emit(Chunk{Kind: KindChunk, Channel: ChannelReasoning, Delta: ""})
		}

	case "response.reasoning_summary.delta", "response.reasoning_summary_text.delta":
		d := a.delta(ev.Data)
		state.ReasoningSummary += d
		if d != "" {
			emit(Chunk{Kind: KindChunk, Channel: ChannelReasoningSummary, Delta: d})
		}

	case "response.reasoning_summary.done", "response.reasoning_summary_text.done":
		if final, ok := a.done(ev.Data); ok {
			state.ReasoningSummary = final
			emit(Chunk{Kind: KindChunk, Channel: ChannelReasoningSummary, Delta: ""})
		}

	case "response.refusal.delta":
		d := a.delta(ev.Data)
		state.Refusal += d
		if d != "" {
			emit(Chunk{Kind: KindChunk, Channel: ChannelRefusal, Delta: d})
		}

	case "response.refusal.done":
		if final, ok := a.done(ev.Data); ok {
			state.Refusal = final
			emit(Chunk{Kind: KindChunk, Channel: ChannelRefusal, Delta: ""})
		}

	case "response.output_text.annotation.added":
		ann := a.annotation(ev.Data)
		state.Annotations = append(state.Annotations, ann)
		emit(Chunk{Kind: KindChunk, Channel: ChannelAnnotation, Annotation: &ann})

	default:
		if strings.HasPrefix(ev.Type, knownNamespace) {
			// Unrecognized but in-namespace: skip silently so new provider
			// event types do not break existing streams.
			return
		}
		a.logger.Warn("unrecognized stream event type", slog.String("type", ev.Type))
	}
}

type annotationPayload struct {
	AnnotationIndex int             `json:"annotation_index"`
	ContentIndex    int             `json:"content_index"`
	OutputIndex     int             `json:"output_index"`
	ItemID          string          `json:"item_id"`
	Annotation      json.RawMessage `json:"annotation"`
}

func (a *Aggregator) annotation(data json.RawMessage) Annotation {
	var p annotationPayload
	// Decode errors leave zero positions; the annotation is still recorded.
	_ = json.Unmarshal(data, &p)

	ann := Annotation{
		AnnotationIndex: p.AnnotationIndex,
		ContentIndex:    p.ContentIndex,
		OutputIndex:     p.OutputIndex,
		ItemID:          p.ItemID,
		Payload:         p.Annotation,
	}
	var typed struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(p.Annotation, &typed); err == nil {
		ann.Type = typed.Type
	}
	return ann
}

const genericFailure = "stream failed"

// failureMessage extracts a human-readable message from a terminal error
// event, preferring the nested error object.
func (a *Aggregator) failureMessage(data json.RawMessage) string {
	var p lifecyclePayload
	if err := json.Unmarshal(data, &p); err != nil {
		return genericFailure
	}
	if p.Response.Error != nil && p.Response.Error.Message != "" {
		return p.Response.Error.Message
	}
	if p.Error != nil && p.Error.Message != "" {
		return p.Error.Message
	}
	return genericFailure
}
