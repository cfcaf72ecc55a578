// Package storage defines the persistence contracts for completed solves
// and conversation thread state.
package storage

import (
	"context"
	"encoding/json"
	"time"
)

// Explanation is a durable record of one completed solve, keyed by task
// id and model. Payload carries the normalized response fields;
// IterationHistory is the solver's round-by-round record.
type Explanation struct {
	TaskID           string          `json:"taskId"`
	ModelKey         string          `json:"modelKey"`
	Provider         string          `json:"provider"`
	SessionID        string          `json:"sessionId"`
	Payload          json.RawMessage `json:"payload"`
	IterationHistory json.RawMessage `json:"iterationHistory"`
	BestProgram      string          `json:"bestProgram"`
	BestScore        float64         `json:"bestScore"`
	Confidence       int             `json:"confidence"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// ExplanationStore persists completed solves. A repeated save for the
// same task and model overwrites the earlier record.
type ExplanationStore interface {
	SaveExplanation(ctx context.Context, exp *Explanation) error
	// GetExplanation returns (nil, nil) when no record exists.
	GetExplanation(ctx context.Context, taskID, modelKey string) (*Explanation, error)
}

// ThreadStateStore maps a thread key to the latest provider-native
// response id, so a restarted process can resume conversation chaining.
type ThreadStateStore interface {
	SetThreadState(ctx context.Context, threadKey, responseID string) error
	// GetThreadState returns "" when no state exists for the key.
	GetThreadState(ctx context.Context, threadKey string) (string, error)
}
