package providers

import (
	"testing"
	"time"
)

func TestRegistry_GetConfig(t *testing.T) {
	r := NewRegistry()

	for _, name := range []string{"openai", "anthropic", "xai", "gemini", "deepseek", "openrouter"} {
		cfg := r.GetConfig(name)
		if cfg == nil {
			t.Fatalf("GetConfig(%q) = nil", name)
		}
		if cfg.Name != name {
			t.Errorf("GetConfig(%q).Name = %q", name, cfg.Name)
		}
		if cfg.BaseURL == "" {
			t.Errorf("GetConfig(%q).BaseURL is empty", name)
		}
	}

	if cfg := r.GetConfig("mystery"); cfg != nil {
		t.Errorf("GetConfig(unknown) = %+v, want nil", cfg)
	}
}

func TestRegistry_GetTransformer_Total(t *testing.T) {
	r := NewRegistry()

	// Unknown providers must fall back to the identity transformer.
	tr := r.GetTransformer("mystery")
	if tr.TransformRequest == nil || tr.TransformResponse == nil || tr.ExtractError == nil || tr.ShouldRetry == nil {
		t.Fatal("Default transformer has nil capability funcs")
	}
	if tr.ShouldRetry(&APIError{StatusCode: 500}) {
		t.Error("Default transformer must never retry")
	}

	body := map[string]any{"model": "x"}
	tr.TransformRequest(body, "x")
	if len(body) != 1 {
		t.Error("Default TransformRequest must not modify the body")
	}
}

func TestRegistry_SupportsFeature(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		provider string
		feature  string
		want     bool
	}{
		{"openai", FeatureStreaming, true},
		{"openai", FeatureBatch, true},
		{"anthropic", FeatureBatch, false},
		{"gemini", FeatureVision, true},
		{"gemini", FeatureStructuredOutput, false},
		{"mystery", FeatureStreaming, false},
		{"openai", "teleportation", false},
	}

	for _, tt := range tests {
		if got := r.SupportsFeature(tt.provider, tt.feature); got != tt.want {
			t.Errorf("SupportsFeature(%q, %q) = %v, want %v", tt.provider, tt.feature, got, tt.want)
		}
	}
}

func TestRegistry_AuthHeaders(t *testing.T) {
	r := NewRegistry()

	bearer := r.AuthHeaders("openai", "sk-test")
	if bearer["Authorization"] != "Bearer sk-test" {
		t.Errorf("openai headers = %v", bearer)
	}

	anthropic := r.AuthHeaders("anthropic", "sk-ant")
	if anthropic["x-api-key"] != "sk-ant" {
		t.Errorf("anthropic headers = %v", anthropic)
	}
	if anthropic["anthropic-version"] == "" {
		t.Error("anthropic headers missing version header")
	}
	if _, ok := anthropic["Authorization"]; ok {
		t.Error("anthropic must not use Authorization")
	}

	// Query-auth providers get an empty map; the key goes in the URL.
	if gemini := r.AuthHeaders("gemini", "key"); len(gemini) != 0 {
		t.Errorf("gemini headers = %v, want empty", gemini)
	}

	if unknown := r.AuthHeaders("mystery", "key"); len(unknown) != 0 {
		t.Errorf("unknown provider headers = %v, want empty", unknown)
	}
}

func TestRegistry_RequestOptions_TimeoutOverrides(t *testing.T) {
	r := NewRegistry()

	tests := []struct {
		provider string
		model    string
		want     time.Duration
	}{
		{"openai", "gpt-4.1-mini", 2 * time.Minute},
		{"openai", "o3-2025-04-16", 5 * time.Minute},
		{"openai", "gpt-5", 5 * time.Minute},
		{"xai", "grok-3-mini-fast", 3 * time.Minute},
		{"xai", "grok-4", 5 * time.Minute},
		{"deepseek", "deepseek-reasoner", 4 * time.Minute},
		{"deepseek", "deepseek-chat", 2 * time.Minute},
		{"gemini", "gemini-2.5-pro", 5 * time.Minute},
	}

	for _, tt := range tests {
		opts := r.RequestOptions(tt.provider, tt.model)
		if opts.Timeout != tt.want {
			t.Errorf("RequestOptions(%q, %q).Timeout = %v, want %v", tt.provider, tt.model, opts.Timeout, tt.want)
		}
	}
}

func TestRegistry_RequestOptions_PolicyBase(t *testing.T) {
	r := NewRegistry()

	opts := r.RequestOptions("anthropic", "claude-sonnet-4")
	if opts.MaxRetries != 3 {
		t.Errorf("MaxRetries = %d, want 3", opts.MaxRetries)
	}
	if opts.BaseDelay != 2*time.Second {
		t.Errorf("BaseDelay = %v, want 2s", opts.BaseDelay)
	}
}

func TestShouldRetry_Heterogeneity(t *testing.T) {
	r := NewRegistry()

	// OpenAI keys off the error type.
	openai := r.GetTransformer("openai")
	if !openai.ShouldRetry(&APIError{Type: "rate_limit_error"}) {
		t.Error("openai should retry rate_limit_error type")
	}
	if openai.ShouldRetry(&APIError{Type: "invalid_request_error", StatusCode: 400}) {
		t.Error("openai should not retry invalid_request_error")
	}

	// Anthropic keys off its own type strings.
	anthropic := r.GetTransformer("anthropic")
	if !anthropic.ShouldRetry(&APIError{Type: "overloaded_error"}) {
		t.Error("anthropic should retry overloaded_error")
	}
	if anthropic.ShouldRetry(&APIError{StatusCode: 529}) {
		t.Error("anthropic retries on type, not bare status")
	}

	// Gemini keys off the numeric code.
	gemini := r.GetTransformer("gemini")
	if !gemini.ShouldRetry(&APIError{Code: "503"}) {
		t.Error("gemini should retry code 503")
	}
	if gemini.ShouldRetry(&APIError{Code: "400"}) {
		t.Error("gemini should not retry code 400")
	}

	// xai and deepseek key off the HTTP status.
	xai := r.GetTransformer("xai")
	if !xai.ShouldRetry(&APIError{StatusCode: 429}) {
		t.Error("xai should retry status 429")
	}
	if xai.ShouldRetry(&APIError{StatusCode: 401}) {
		t.Error("xai should not retry status 401")
	}

	// Non-API errors are never retried by any predicate.
	for _, name := range []string{"openai", "anthropic", "gemini", "xai", "deepseek", "openrouter"} {
		if r.GetTransformer(name).ShouldRetry(errTest) {
			t.Errorf("%s retried a non-API error", name)
		}
	}
}

var errTest = &testError{}

type testError struct{}

func (*testError) Error() string { return "test error" }

func TestExtractError_Envelope(t *testing.T) {
	tr := NewRegistry().GetTransformer("openai")

	body := []byte(`{"error":{"type":"server_error","code":"internal","message":"boom"}}`)
	apiErr := tr.ExtractError(500, body)
	if apiErr.Type != "server_error" || apiErr.Code != "internal" || apiErr.Message != "boom" {
		t.Errorf("ExtractError() = %+v", apiErr)
	}
	if apiErr.StatusCode != 500 {
		t.Errorf("StatusCode = %d, want 500", apiErr.StatusCode)
	}

	// Undecodable bodies keep the raw text as the message.
	raw := tr.ExtractError(502, []byte("bad gateway"))
	if raw.Message != "bad gateway" {
		t.Errorf("raw message = %q", raw.Message)
	}
}

func TestExtractError_Gemini(t *testing.T) {
	tr := NewRegistry().GetTransformer("gemini")

	body := []byte(`{"error":{"code":429,"status":"RESOURCE_EXHAUSTED","message":"quota"}}`)
	apiErr := tr.ExtractError(429, body)
	if apiErr.Code != "429" || apiErr.Type != "RESOURCE_EXHAUSTED" {
		t.Errorf("ExtractError() = %+v", apiErr)
	}
}

func TestTransformRequest_ProviderQuirks(t *testing.T) {
	r := NewRegistry()

	// OpenAI reasoning models drop sampling parameters.
	body := map[string]any{"model": "o3", "temperature": 0.2, "top_p": 0.9}
	r.GetTransformer("openai").TransformRequest(body, "o3")
	if _, ok := body["temperature"]; ok {
		t.Error("temperature not stripped for reasoning model")
	}

	// Anthropic injects max_tokens when absent.
	body = map[string]any{"model": "claude-sonnet-4"}
	r.GetTransformer("anthropic").TransformRequest(body, "claude-sonnet-4")
	if _, ok := body["max_tokens"]; !ok {
		t.Error("anthropic max_tokens not injected")
	}

	// Gemini relocates temperature under generationConfig.
	body = map[string]any{"temperature": 0.5}
	r.GetTransformer("gemini").TransformRequest(body, "gemini-2.0-flash")
	genCfg, _ := body["generationConfig"].(map[string]any)
	if genCfg == nil || genCfg["temperature"] != 0.5 {
		t.Errorf("gemini generationConfig = %v", body)
	}
}
