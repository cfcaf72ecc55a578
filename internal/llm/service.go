// Package llm is the underlying provider invocation service: it shapes a
// prompt into each vendor's wire format, applies auth and retry policy
// from the provider registry, and hands raw responses to the normalizer.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/arclab/grover/internal/metrics"
	"github.com/arclab/grover/internal/normalize"
	"github.com/arclab/grover/internal/providers"
	"github.com/arclab/grover/internal/resilience"
)

// Request describes one provider call.
type Request struct {
	Provider     string
	ModelKey     string
	SystemPrompt string
	Prompt       string
	Temperature  float64

	// PreviousResponseID threads conversation state: when set, the
	// provider retains prior turns server-side instead of the prompt
	// re-carrying them. This is a protocol feature, not an optimization
	// to drop.
	PreviousResponseID string

	// SessionID correlates log lines with a broadcast session.
	SessionID string
}

// Response is the raw outcome of one provider call. Text is the
// provider's textual payload before any JSON extraction; ResponseID is
// the provider-native identifier used for conversation chaining.
type Response struct {
	Provider   string
	Model      string
	Text       string
	ResponseID string
	TokenUsage normalize.TokenUsage
	Raw        json.RawMessage
}

// KeyResolver resolves the API key for a provider.
type KeyResolver func(cfg *providers.Config) string

// EnvKeyResolver reads keys from the environment variable each provider
// config declares.
func EnvKeyResolver(cfg *providers.Config) string {
	return os.Getenv(cfg.APIKeyEnv)
}

// ServiceOption configures the service.
type ServiceOption func(*Service)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(httpClient *http.Client) ServiceOption {
	return func(s *Service) {
		s.httpClient = httpClient
	}
}

// WithKeyResolver overrides API key resolution.
func WithKeyResolver(resolver KeyResolver) ServiceOption {
	return func(s *Service) {
		s.keys = resolver
	}
}

// WithBaseURL overrides one provider's base URL (tests, proxies).
func WithBaseURL(provider, baseURL string) ServiceOption {
	return func(s *Service) {
		s.baseURLs[provider] = baseURL
	}
}

// Service invokes providers over raw HTTP.
type Service struct {
	registry   *providers.Registry
	httpClient *http.Client
	keys       KeyResolver
	baseURLs   map[string]string
	logger     *slog.Logger
}

// NewService creates a provider invocation service.
func NewService(registry *providers.Registry, logger *slog.Logger, opts ...ServiceOption) *Service {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &Service{
		registry:   registry,
		httpClient: http.DefaultClient,
		keys:       EnvKeyResolver,
		baseURLs:   make(map[string]string),
		logger:     logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Analyze performs one provider call and returns the raw response. The
// per-model timeout and the provider's retry predicate come from the
// registry; retries use exponential backoff with jitter.
func (s *Service) Analyze(ctx context.Context, req Request) (*Response, error) {
	cfg := s.registry.GetConfig(req.Provider)
	if cfg == nil {
		return nil, fmt.Errorf("unknown provider %q", req.Provider)
	}

	transformer := s.registry.GetTransformer(req.Provider)
	opts := s.registry.RequestOptions(req.Provider, req.ModelKey)

	callURL, body, err := s.buildCall(cfg, req)
	if err != nil {
		return nil, err
	}
	transformer.TransformRequest(body, req.ModelKey)

	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request body: %w", err)
	}

	var raw []byte
	attempt := 0
	start := time.Now()
	err = resilience.Do(ctx,
		resilience.RetryConfig{MaxRetries: opts.MaxRetries, BaseDelay: opts.BaseDelay},
		transformer.ShouldRetry,
		func(ctx context.Context) error {
			if attempt > 0 {
				metrics.ProviderRetriesTotal.WithLabelValues(req.Provider).Inc()
			}
			attempt++

			callCtx, cancel := context.WithTimeout(ctx, opts.Timeout)
			defer cancel()

			var callErr error
			raw, callErr = s.doCall(callCtx, cfg, transformer, callURL, payload)
			return callErr
		},
	)
	if err != nil {
		return nil, err
	}
	metrics.ProviderCallLatency.WithLabelValues(req.Provider, req.ModelKey).Observe(time.Since(start).Seconds())

	resp, err := decodeResponse(cfg.Name, req.ModelKey, raw)
	if err != nil {
		return nil, err
	}
	metrics.RecordTokenUsage(req.Provider, req.ModelKey, resp.TokenUsage.Input, resp.TokenUsage.Output, resp.TokenUsage.Reasoning)

	s.logger.Debug("provider call complete",
		slog.String("provider", req.Provider),
		slog.String("model", req.ModelKey),
		slog.String("session_id", req.SessionID),
		slog.String("response_id", resp.ResponseID),
		slog.Int("input_tokens", resp.TokenUsage.Input),
		slog.Int("output_tokens", resp.TokenUsage.Output),
	)
	return resp, nil
}

// Normalize converts a raw response from the named provider into the
// canonical record, dispatching on the provider's response shape.
func (s *Service) Normalize(provider, modelKey string, raw json.RawMessage, captureReasoning bool) (*normalize.NormalizedResponse, error) {
	opts := normalize.Options{CaptureReasoning: captureReasoning, ModelKey: modelKey, Provider: provider}
	switch provider {
	case "openai":
		return normalize.ResponsesAPI(raw, opts)
	case "anthropic":
		return normalize.ToolUse(raw, opts)
	case "deepseek":
		return normalize.ReasoningChat(raw, opts)
	default:
		return normalize.ChatCompletion(raw, opts)
	}
}

func (s *Service) baseURL(cfg *providers.Config) string {
	if override, ok := s.baseURLs[cfg.Name]; ok {
		return override
	}
	return cfg.BaseURL
}

// buildCall shapes the endpoint URL and request body for one vendor.
func (s *Service) buildCall(cfg *providers.Config, req Request) (string, map[string]any, error) {
	base := s.baseURL(cfg)

	switch cfg.Name {
	case "openai":
		body := map[string]any{
			"model": req.ModelKey,
			"input": req.Prompt,
		}
		if req.SystemPrompt != "" {
			body["instructions"] = req.SystemPrompt
		}
		if req.Temperature > 0 {
			body["temperature"] = req.Temperature
		}
		if req.PreviousResponseID != "" {
			body["previous_response_id"] = req.PreviousResponseID
		}
		return base + "/responses", body, nil

	case "anthropic":
		body := map[string]any{
			"model": req.ModelKey,
			"messages": []map[string]any{
				{"role": "user", "content": req.Prompt},
			},
		}
		if req.SystemPrompt != "" {
			body["system"] = req.SystemPrompt
		}
		if req.Temperature > 0 {
			body["temperature"] = req.Temperature
		}
		return base + "/messages", body, nil

	case "gemini":
		apiKey := s.keys(cfg)
		endpoint := fmt.Sprintf("%s/models/%s:generateContent?key=%s", base, req.ModelKey, url.QueryEscape(apiKey))
		parts := []map[string]any{{"text": req.Prompt}}
		body := map[string]any{
			"contents": []map[string]any{{"parts": parts}},
		}
		if req.SystemPrompt != "" {
			body["systemInstruction"] = map[string]any{"parts": []map[string]any{{"text": req.SystemPrompt}}}
		}
		if req.Temperature > 0 {
			body["temperature"] = req.Temperature
		}
		return endpoint, body, nil

	default:
		// xai, deepseek, openrouter speak the OpenAI chat-completion dialect.
		messages := make([]map[string]any, 0, 2)
		if req.SystemPrompt != "" {
			messages = append(messages, map[string]any{"role": "system", "content": req.SystemPrompt})
		}
		messages = append(messages, map[string]any{"role": "user", "content": req.Prompt})
		body := map[string]any{
			"model":    req.ModelKey,
			"messages": messages,
		}
		if req.Temperature > 0 {
			body["temperature"] = req.Temperature
		}
		return base + "/chat/completions", body, nil
	}
}

func (s *Service) doCall(ctx context.Context, cfg *providers.Config, transformer providers.Transformer, callURL string, payload []byte) ([]byte, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, callURL, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range s.registry.AuthHeaders(cfg.Name, s.keys(cfg)) {
		httpReq.Header.Set(k, v)
	}

	httpResp, err := s.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer httpResp.Body.Close()

	raw, err := io.ReadAll(httpResp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	if httpResp.StatusCode != http.StatusOK {
		return nil, transformer.ExtractError(httpResp.StatusCode, raw)
	}
	return raw, nil
}
