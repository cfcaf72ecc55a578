package grover

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/arclab/grover/internal/arc"
	"github.com/arclab/grover/internal/broadcast"
	"github.com/arclab/grover/internal/storage"
)

// PuzzleSource loads tasks by id. Implemented by arc.Loader.
type PuzzleSource interface {
	LoadPuzzle(taskID string) (*arc.Task, error)
}

// SolveRequest starts one solve.
type SolveRequest struct {
	TaskID             string  `json:"taskId"`
	Provider           string  `json:"provider"`
	ModelKey           string  `json:"modelKey"`
	Temperature        float64 `json:"temperature,omitempty"`
	MaxIterations      int     `json:"maxIterations,omitempty"`
	PreviousResponseID string  `json:"previousResponseId,omitempty"`
}

// ErrTaskNotFound reports an unknown task id.
type ErrTaskNotFound struct {
	TaskID string
}

func (e *ErrTaskNotFound) Error() string {
	return fmt.Sprintf("task %s not found", e.TaskID)
}

// Service runs solves in the background and persists completed ones. All
// progress after StartSolve returns is observed through the hub.
type Service struct {
	loop    *Loop
	puzzles PuzzleSource
	hub     *broadcast.Hub
	store   storage.ExplanationStore
	threads storage.ThreadStateStore
	logger  *slog.Logger
}

// NewService assembles a solve service. store and threads may be nil, in
// which case completed solves are not persisted.
func NewService(loop *Loop, puzzles PuzzleSource, hub *broadcast.Hub, store storage.ExplanationStore, threads storage.ThreadStateStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Service{
		loop:    loop,
		puzzles: puzzles,
		hub:     hub,
		store:   store,
		threads: threads,
		logger:  logger,
	}
}

// StartSolve validates the task, then returns a fresh session id while
// the loop proceeds in the background.
func (s *Service) StartSolve(req SolveRequest) (string, error) {
	task, err := s.puzzles.LoadPuzzle(req.TaskID)
	if err != nil {
		return "", fmt.Errorf("failed to load task %s: %w", req.TaskID, err)
	}
	if task == nil {
		return "", &ErrTaskNotFound{TaskID: req.TaskID}
	}

	sessionID := uuid.NewString()
	go s.solve(context.Background(), task, req, sessionID)
	return sessionID, nil
}

func (s *Service) solve(ctx context.Context, task *arc.Task, req SolveRequest, sessionID string) {
	defer s.hub.Complete(sessionID)

	previousResponseID := req.PreviousResponseID
	if previousResponseID == "" && s.threads != nil {
		threadKey := req.TaskID + ":" + req.ModelKey
		if resumed, err := s.threads.GetThreadState(ctx, threadKey); err != nil {
			s.logger.Warn("failed to load thread state", slog.String("thread_key", threadKey), slog.Any("error", err))
		} else {
			previousResponseID = resumed
		}
	}

	result, err := s.loop.Run(ctx, task, Params{
		TaskID:             req.TaskID,
		Provider:           req.Provider,
		ModelKey:           req.ModelKey,
		Temperature:        req.Temperature,
		MaxIterations:      req.MaxIterations,
		PreviousResponseID: previousResponseID,
		SessionID:          sessionID,
	})
	if err != nil {
		s.logger.Error("solve failed",
			slog.String("session_id", sessionID),
			slog.String("task_id", req.TaskID),
			slog.Any("error", err),
		)
		return
	}

	s.persist(ctx, req, sessionID, result)
}

func (s *Service) persist(ctx context.Context, req SolveRequest, sessionID string, result *Result) {
	if s.threads != nil {
		if id := lastResponseID(result.Iterations); id != "" {
			threadKey := req.TaskID + ":" + req.ModelKey
			if err := s.threads.SetThreadState(ctx, threadKey, id); err != nil {
				s.logger.Warn("failed to save thread state", slog.String("thread_key", threadKey), slog.Any("error", err))
			}
		}
	}

	if s.store == nil {
		return
	}

	payload, err := json.Marshal(map[string]any{
		"bestScore":  result.BestScore,
		"confidence": result.Confidence,
		"hints":      result.Hints,
	})
	if err != nil {
		s.logger.Error("failed to marshal solve payload", slog.Any("error", err))
		return
	}
	history, err := json.Marshal(result.Iterations)
	if err != nil {
		s.logger.Error("failed to marshal iteration history", slog.Any("error", err))
		return
	}

	exp := &storage.Explanation{
		TaskID:           req.TaskID,
		ModelKey:         req.ModelKey,
		Provider:         req.Provider,
		SessionID:        sessionID,
		Payload:          payload,
		IterationHistory: history,
		BestProgram:      result.BestProgram,
		BestScore:        result.BestScore,
		Confidence:       result.Confidence,
	}
	if err := s.store.SaveExplanation(ctx, exp); err != nil {
		s.logger.Error("failed to persist explanation",
			slog.String("session_id", sessionID),
			slog.String("task_id", req.TaskID),
			slog.Any("error", err),
		)
	}
}

func lastResponseID(iterations []Iteration) string {
	for i := len(iterations) - 1; i >= 0; i-- {
		if iterations[i].ResponseID != "" {
			return iterations[i].ResponseID
		}
	}
	return ""
}
