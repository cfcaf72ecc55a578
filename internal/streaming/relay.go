package streaming

import (
	"context"

	"github.com/arclab/grover/internal/broadcast"
)

// Broadcaster publishes stream progress to session subscribers.
type Broadcaster interface {
	Broadcast(sessionID string, payload broadcast.Payload)
}

// Source produces the raw events of one streaming invocation, calling
// onEvent for each in arrival order, and returns once the stream ends.
type Source func(ctx context.Context, onEvent func(Event)) error

// BroadcastEmitter adapts a session hub into an Emit. Content chunks and
// status transitions land under distinct keys so they merge into the
// session snapshot without clobbering other producers.
func BroadcastEmitter(b Broadcaster, sessionID string) Emit {
	return func(c Chunk) {
		switch c.Kind {
		case KindChunk:
			payload := broadcast.Payload{
				"kind":    string(KindChunk),
				"channel": string(c.Channel),
				"delta":   c.Delta,
			}
			if c.Annotation != nil {
				payload["annotation"] = *c.Annotation
			}
			b.Broadcast(sessionID, payload)
		case KindStatus:
			payload := broadcast.Payload{
				"kind":         string(KindStatus),
				"streamStatus": c.Status,
			}
			if c.Message != "" {
				payload["streamMessage"] = c.Message
			}
			b.Broadcast(sessionID, payload)
		}
	}
}

// Pump drains a source through the aggregator, broadcasting every
// emission to the hub session, and returns the accumulated state. The
// state is valid even on error: it holds whatever arrived before the
// stream broke.
func Pump(ctx context.Context, agg *Aggregator, sessionID string, b Broadcaster, source Source) (*State, error) {
	state := &State{}
	emit := BroadcastEmitter(b, sessionID)
	err := source(ctx, func(ev Event) {
		agg.HandleEvent(ev, state, emit)
	})
	return state, err
}
