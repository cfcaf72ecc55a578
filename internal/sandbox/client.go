// Package sandbox is the HTTP client for the external code-execution
// service. Candidate programs are never executed in-process; the service
// runs them isolated and time-bounded, reporting per-program failures in
// the result rather than failing the batch.
package sandbox

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/arclab/grover/internal/arc"
)

const defaultTimeout = 60 * time.Second

// ExecutionResult is the outcome for one candidate program across all
// training inputs. Error is set instead of Outputs when that program
// failed; other programs in the batch are unaffected.
type ExecutionResult struct {
	ProgramIndex int        `json:"programIndex"`
	Outputs      []arc.Grid `json:"outputs"`
	Error        string     `json:"error,omitempty"`
}

// ExecutionResponse is the sandbox reply for one batch.
type ExecutionResponse struct {
	Results []ExecutionResult `json:"results"`
}

type executionRequest struct {
	Programs       []string   `json:"programs"`
	TrainingInputs []arc.Grid `json:"trainingInputs"`
}

// ClientOption configures the client.
type ClientOption func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the per-batch request timeout.
func WithTimeout(timeout time.Duration) ClientOption {
	return func(c *Client) {
		c.timeout = timeout
	}
}

// Client talks to the sandbox service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
}

// NewClient creates a sandbox client for the given base URL.
func NewClient(baseURL string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL:    strings.TrimSuffix(baseURL, "/"),
		httpClient: http.DefaultClient,
		timeout:    defaultTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Run executes all programs against every training input and returns the
// per-program results.
func (c *Client) Run(ctx context.Context, programs []string, trainingInputs []arc.Grid) (*ExecutionResponse, error) {
	body, err := json.Marshal(executionRequest{Programs: programs, TrainingInputs: trainingInputs})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal execution request: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/execute", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("sandbox request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read sandbox response: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("sandbox error (status %d): %s", resp.StatusCode, string(respBody))
	}

	var result ExecutionResponse
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("failed to unmarshal sandbox response: %w", err)
	}
	return &result, nil
}
