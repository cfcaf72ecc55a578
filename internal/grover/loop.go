package grover

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"

	"github.com/arclab/grover/internal/arc"
	"github.com/arclab/grover/internal/broadcast"
	"github.com/arclab/grover/internal/llm"
	"github.com/arclab/grover/internal/metrics"
	"github.com/arclab/grover/internal/sandbox"
	"github.com/arclab/grover/internal/tokens"
)

// Phase names the solver's state machine states. Transitions only move
// forward within a round; the repeat edge goes from PhaseIteration back
// to PhaseIterationStart, or to PhaseCompleted on early stop.
type Phase string

const (
	PhaseInitializing   Phase = "initializing"
	PhaseIterationStart Phase = "iteration_start"
	PhaseCodeGeneration Phase = "code_generation"
	PhaseExecution      Phase = "execution"
	PhaseIteration      Phase = "iteration"
	PhaseCompleted      Phase = "completed"
	PhaseFailed         Phase = "failed"
)

// DefaultMaxIterations bounds a solve when the caller does not.
const DefaultMaxIterations = 5

// Analyzer invokes the underlying provider. Implemented by llm.Service.
type Analyzer interface {
	Analyze(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Executor runs candidate programs out of process. Implemented by
// sandbox.Client.
type Executor interface {
	Run(ctx context.Context, programs []string, trainingInputs []arc.Grid) (*sandbox.ExecutionResponse, error)
}

// Broadcaster delivers progress events. Implemented by broadcast.Hub.
type Broadcaster interface {
	Broadcast(sessionID string, payload broadcast.Payload)
}

// Iteration records one round of the loop. ExecutionResults is sorted by
// score descending; a zero-candidate round is still recorded, with an
// empty result list.
type Iteration struct {
	Index            int            `json:"index"`
	Candidates       int            `json:"candidates"`
	ExecutionResults []GradedResult `json:"executionResults"`
	BestScore        float64        `json:"bestScore"`
	ResponseID       string         `json:"responseId,omitempty"`
}

// Result is the packaged outcome of a completed solve.
type Result struct {
	Iterations  []Iteration `json:"iterations"`
	BestProgram string      `json:"bestProgram"`
	BestScore   float64     `json:"bestScore"`
	Confidence  int         `json:"confidence"`
	Hints       []string    `json:"hints"`
}

// Params configures one solve invocation.
type Params struct {
	TaskID             string
	Provider           string
	ModelKey           string
	Temperature        float64
	MaxIterations      int
	PreviousResponseID string
	SessionID          string
}

// Loop is the iterative solver. One Loop value is safe for concurrent
// solves; all per-invocation state lives on the stack of Run.
type Loop struct {
	analyzer  Analyzer
	executor  Executor
	hub       Broadcaster
	estimator *tokens.Estimator
	logger    *slog.Logger
}

// NewLoop assembles a solver loop over its collaborators.
func NewLoop(analyzer Analyzer, executor Executor, hub Broadcaster, logger *slog.Logger) *Loop {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Loop{
		analyzer:  analyzer,
		executor:  executor,
		hub:       hub,
		estimator: tokens.NewEstimator(),
		logger:    logger,
	}
}

// Run executes the full multi-round solve. A provider call failure fails
// the whole solve; a round with zero extracted candidates is a soft
// continue with unchanged context. Cancellation is honored at the top of
// each round; a call already in flight is bounded by its own per-call
// timeout.
func (l *Loop) Run(ctx context.Context, task *arc.Task, params Params) (*Result, error) {
	maxIter := params.MaxIterations
	if maxIter <= 0 {
		maxIter = DefaultMaxIterations
	}

	l.emit(params.SessionID, PhaseInitializing, 0, maxIter, 0,
		fmt.Sprintf("starting solve for task %s with %s/%s", params.TaskID, params.Provider, params.ModelKey))

	trainingInputs := make([]arc.Grid, len(task.Train))
	expected := make([]arc.Grid, len(task.Train))
	for i, pair := range task.Train {
		trainingInputs[i] = pair.Input
		expected[i] = pair.Output
	}

	solverContext := buildInitialContext(task)
	previousResponseID := params.PreviousResponseID

	var (
		history     []Iteration
		bestProgram string
		bestScore   float64
	)

	for iter := 1; iter <= maxIter; iter++ {
		if err := ctx.Err(); err != nil {
			l.emitFailed(params.SessionID, iter, maxIter, "solve cancelled")
			return nil, err
		}

		progress := float64(iter-1) / float64(maxIter)
		l.emit(params.SessionID, PhaseIterationStart, iter, maxIter, progress,
			fmt.Sprintf("iteration %d of %d", iter, maxIter))

		prompt := solverContext + iterationSuffix(iter)
		l.logger.Debug("round prompt built",
			slog.String("session_id", params.SessionID),
			slog.Int("iteration", iter),
			slog.Int("estimated_tokens", l.estimator.Count(params.ModelKey, prompt)),
		)

		l.emit(params.SessionID, PhaseCodeGeneration, iter, maxIter, progress,
			"generating candidate programs")

		resp, err := l.analyzer.Analyze(ctx, llm.Request{
			Provider:           params.Provider,
			ModelKey:           params.ModelKey,
			SystemPrompt:       systemPrompt,
			Prompt:             prompt,
			Temperature:        params.Temperature,
			PreviousResponseID: previousResponseID,
			SessionID:          params.SessionID,
		})
		if err != nil {
			l.emitFailed(params.SessionID, iter, maxIter, fmt.Sprintf("provider call failed: %v", err))
			metrics.SolveIterationsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("iteration %d provider call: %w", iter, err)
		}
		previousResponseID = resp.ResponseID

		programs := ExtractPrograms(resp.Text)
		if len(programs) == 0 {
			l.logger.Warn("no candidate programs extracted",
				slog.String("session_id", params.SessionID),
				slog.Int("iteration", iter),
			)
			l.emit(params.SessionID, PhaseIteration, iter, maxIter, float64(iter)/float64(maxIter),
				"no candidate programs in response; continuing")
			history = append(history, Iteration{Index: iter, ResponseID: resp.ResponseID})
			metrics.SolveIterationsTotal.WithLabelValues("empty").Inc()
			continue
		}

		l.emit(params.SessionID, PhaseExecution, iter, maxIter, progress,
			fmt.Sprintf("executing %d candidate programs", len(programs)))

		execResp, err := l.executor.Run(ctx, programs, trainingInputs)
		if err != nil {
			l.emitFailed(params.SessionID, iter, maxIter, fmt.Sprintf("sandbox execution failed: %v", err))
			metrics.SolveIterationsTotal.WithLabelValues("failed").Inc()
			return nil, fmt.Errorf("iteration %d sandbox execution: %w", iter, err)
		}

		graded := Grade(programs, execResp.Results, expected)
		roundBest := 0.0
		if len(graded) > 0 {
			roundBest = graded[0].Score
		}
		if roundBest > bestScore {
			bestScore = roundBest
			bestProgram = graded[0].Code
		}

		history = append(history, Iteration{
			Index:            iter,
			Candidates:       len(programs),
			ExecutionResults: graded,
			BestScore:        roundBest,
			ResponseID:       resp.ResponseID,
		})
		metrics.SolveIterationsTotal.WithLabelValues("graded").Inc()

		l.emit(params.SessionID, PhaseIteration, iter, maxIter, float64(iter)/float64(maxIter),
			fmt.Sprintf("iteration %d best score %.1f/10 (overall best %.1f)", iter, roundBest, bestScore))

		if bestScore >= maxScore {
			l.logger.Info("perfect score, stopping early",
				slog.String("session_id", params.SessionID),
				slog.Int("iteration", iter),
			)
			break
		}

		solverContext = AmplifyContext(solverContext, iter, graded)
	}

	metrics.SolveBestScore.Observe(bestScore)

	result := &Result{
		Iterations:  history,
		BestProgram: bestProgram,
		BestScore:   bestScore,
		Confidence:  int(math.Round(bestScore / maxScore * 100)),
		Hints: []string{
			fmt.Sprintf("final score %.1f/10", bestScore),
			fmt.Sprintf("completed %d iterations", len(history)),
		},
	}

	l.emit(params.SessionID, PhaseCompleted, len(history), maxIter, 1,
		fmt.Sprintf("solve complete: best score %.1f/10, confidence %d%%", bestScore, result.Confidence))
	return result, nil
}

// emit pushes a progress event to the hub. Best-effort: a panicking hub
// must never abort a solve.
func (l *Loop) emit(sessionID string, phase Phase, iteration, maxIter int, progress float64, message string) {
	if l.hub == nil || sessionID == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("progress broadcast failed",
				slog.String("session_id", sessionID),
				slog.Any("panic", r),
			)
		}
	}()
	l.hub.Broadcast(sessionID, broadcast.Payload{
		"phase":         string(phase),
		"iteration":     iteration,
		"maxIterations": maxIter,
		"progress":      progress,
		"message":       message,
	})
}

func (l *Loop) emitFailed(sessionID string, iteration, maxIter int, message string) {
	if l.hub == nil || sessionID == "" {
		return
	}
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("failure broadcast failed", slog.Any("panic", r))
		}
	}()
	l.hub.Broadcast(sessionID, broadcast.Payload{
		"phase":         string(PhaseFailed),
		"status":        "error",
		"iteration":     iteration,
		"maxIterations": maxIter,
		"message":       message,
	})
}

const systemPrompt = "You are solving an ARC puzzle. Respond with one or more Python " +
	"functions, each in its own fenced code block, with the exact signature " +
	"def transform(grid). Each function takes the input grid (a list of lists " +
	"of integers) and returns the transformed output grid."

func buildInitialContext(task *arc.Task) string {
	var b strings.Builder
	b.WriteString("# Training examples\n")
	for i, pair := range task.Train {
		fmt.Fprintf(&b, "\nExample %d:\ninput: %v\noutput: %v\n", i+1, [][]int(pair.Input), [][]int(pair.Output))
	}
	b.WriteString("\nStudy the transformation from each input to its output and write " +
		"Python functions that reproduce it.\n")
	return b.String()
}

func iterationSuffix(iteration int) string {
	if iteration == 1 {
		return "\n\n## Iteration 1\nPropose several distinct candidate transform functions.\n"
	}
	return fmt.Sprintf("\n\n## Iteration %d\nUsing the scored results above, propose improved "+
		"candidate transform functions. Build on the best performers and avoid the failed approaches.\n", iteration)
}
