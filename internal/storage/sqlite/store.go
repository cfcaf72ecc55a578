// Package sqlite is the SQLite implementation of the storage contracts.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"

	"github.com/arclab/grover/internal/storage"
)

// Store implements ExplanationStore and ThreadStateStore over one SQLite
// database.
type Store struct {
	db *sql.DB
}

var (
	_ storage.ExplanationStore = (*Store)(nil)
	_ storage.ThreadStateStore = (*Store)(nil)
)

// New opens (or creates) the database at dbPath and initializes the
// schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA synchronous=NORMAL;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}

	store := &Store{db: db}
	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *Store) initSchema() error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS explanations (
			task_id TEXT NOT NULL,
			model_key TEXT NOT NULL,
			provider TEXT NOT NULL,
			session_id TEXT,
			payload TEXT,
			iteration_history TEXT,
			best_program TEXT,
			best_score REAL NOT NULL DEFAULT 0,
			confidence INTEGER NOT NULL DEFAULT 0,
			created_at TIMESTAMP NOT NULL,
			updated_at TIMESTAMP NOT NULL,
			PRIMARY KEY (task_id, model_key)
		)`,
		`CREATE TABLE IF NOT EXISTS thread_state (
			thread_key TEXT PRIMARY KEY,
			response_id TEXT NOT NULL,
			updated_at TIMESTAMP NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_explanations_provider ON explanations(provider)`,
		`CREATE INDEX IF NOT EXISTS idx_thread_state_updated ON thread_state(updated_at)`,
	}

	for _, stmt := range statements {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("failed to execute schema statement: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) SaveExplanation(ctx context.Context, exp *storage.Explanation) error {
	now := time.Now()
	if exp.CreatedAt.IsZero() {
		exp.CreatedAt = now
	}
	exp.UpdatedAt = now

	query := `INSERT INTO explanations
	          (task_id, model_key, provider, session_id, payload, iteration_history,
	           best_program, best_score, confidence, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	          ON CONFLICT(task_id, model_key) DO UPDATE SET
	            provider = excluded.provider,
	            session_id = excluded.session_id,
	            payload = excluded.payload,
	            iteration_history = excluded.iteration_history,
	            best_program = excluded.best_program,
	            best_score = excluded.best_score,
	            confidence = excluded.confidence,
	            updated_at = excluded.updated_at`

	_, err := s.db.ExecContext(ctx, query,
		exp.TaskID, exp.ModelKey, exp.Provider, exp.SessionID,
		string(exp.Payload), string(exp.IterationHistory),
		exp.BestProgram, exp.BestScore, exp.Confidence,
		exp.CreatedAt, exp.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to save explanation: %w", err)
	}
	return nil
}

func (s *Store) GetExplanation(ctx context.Context, taskID, modelKey string) (*storage.Explanation, error) {
	query := `SELECT task_id, model_key, provider, session_id, payload, iteration_history,
	                 best_program, best_score, confidence, created_at, updated_at
	          FROM explanations WHERE task_id = ? AND model_key = ?`

	var exp storage.Explanation
	var payload, history string

	err := s.db.QueryRowContext(ctx, query, taskID, modelKey).Scan(
		&exp.TaskID, &exp.ModelKey, &exp.Provider, &exp.SessionID,
		&payload, &history,
		&exp.BestProgram, &exp.BestScore, &exp.Confidence,
		&exp.CreatedAt, &exp.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get explanation: %w", err)
	}

	if payload != "" {
		exp.Payload = []byte(payload)
	}
	if history != "" {
		exp.IterationHistory = []byte(history)
	}
	return &exp, nil
}

func (s *Store) SetThreadState(ctx context.Context, threadKey, responseID string) error {
	query := `INSERT INTO thread_state (thread_key, response_id, updated_at)
	          VALUES (?, ?, ?)
	          ON CONFLICT(thread_key) DO UPDATE SET
	            response_id = excluded.response_id,
	            updated_at = excluded.updated_at`

	if _, err := s.db.ExecContext(ctx, query, threadKey, responseID, time.Now()); err != nil {
		return fmt.Errorf("failed to set thread state: %w", err)
	}
	return nil
}

func (s *Store) GetThreadState(ctx context.Context, threadKey string) (string, error) {
	var responseID string
	err := s.db.QueryRowContext(ctx, `SELECT response_id FROM thread_state WHERE thread_key = ?`, threadKey).Scan(&responseID)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to get thread state: %w", err)
	}
	return responseID, nil
}
