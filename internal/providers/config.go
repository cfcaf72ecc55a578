// Package providers holds per-vendor capability and policy data plus the
// request/response transformer dispatch table.
package providers

import "time"

// AuthMethod describes how a provider expects its API key.
type AuthMethod string

const (
	// AuthBearer sends the key as "Authorization: Bearer <key>".
	AuthBearer AuthMethod = "bearer"
	// AuthHeader sends the key in a provider-specific header pair.
	AuthHeader AuthMethod = "header"
	// AuthQuery means the key travels as a URL parameter; headers stay empty.
	AuthQuery AuthMethod = "query"
)

// Feature flags a provider may support.
const (
	FeatureStreaming        = "streaming"
	FeatureBatch            = "batch"
	FeatureFunctionCalling  = "function_calling"
	FeatureVision           = "vision"
	FeatureStructuredOutput = "structured_output"
)

// RateLimits bounds outbound request volume per provider.
type RateLimits struct {
	RequestsPerMinute  int
	ConcurrentRequests int
	MaxTokens          int // 0 means no declared cap
}

// ErrorPolicy controls retry behavior for one provider.
type ErrorPolicy struct {
	RetryableCodes []int
	MaxRetries     int
	BaseDelay      time.Duration
}

// Config is the immutable per-vendor record. Exactly one exists per
// provider name; the table is read-only after process start.
type Config struct {
	Name      string
	BaseURL   string
	APIKeyEnv string
	Auth      AuthMethod
	Features  map[string]bool
	Limits    RateLimits
	Errors    ErrorPolicy
}

var configs = map[string]Config{
	"openai": {
		Name:      "openai",
		BaseURL:   "https://api.openai.com/v1",
		APIKeyEnv: "OPENAI_API_KEY",
		Auth:      AuthBearer,
		Features: map[string]bool{
			FeatureStreaming:        true,
			FeatureBatch:            true,
			FeatureFunctionCalling:  true,
			FeatureVision:           true,
			FeatureStructuredOutput: true,
		},
		Limits: RateLimits{RequestsPerMinute: 500, ConcurrentRequests: 50},
		Errors: ErrorPolicy{
			RetryableCodes: []int{429, 500, 502, 503},
			MaxRetries:     3,
			BaseDelay:      time.Second,
		},
	},
	"anthropic": {
		Name:      "anthropic",
		BaseURL:   "https://api.anthropic.com/v1",
		APIKeyEnv: "ANTHROPIC_API_KEY",
		Auth:      AuthHeader,
		Features: map[string]bool{
			FeatureStreaming:        true,
			FeatureFunctionCalling:  true,
			FeatureVision:           true,
			FeatureStructuredOutput: true,
		},
		Limits: RateLimits{RequestsPerMinute: 300, ConcurrentRequests: 25, MaxTokens: 64000},
		Errors: ErrorPolicy{
			RetryableCodes: []int{429, 500, 529},
			MaxRetries:     3,
			BaseDelay:      2 * time.Second,
		},
	},
	"xai": {
		Name:      "xai",
		BaseURL:   "https://api.x.ai/v1",
		APIKeyEnv: "XAI_API_KEY",
		Auth:      AuthBearer,
		Features: map[string]bool{
			FeatureStreaming:        true,
			FeatureFunctionCalling:  true,
			FeatureStructuredOutput: true,
		},
		Limits: RateLimits{RequestsPerMinute: 180, ConcurrentRequests: 20},
		Errors: ErrorPolicy{
			RetryableCodes: []int{429, 500, 502, 503},
			MaxRetries:     2,
			BaseDelay:      time.Second,
		},
	},
	"gemini": {
		Name:      "gemini",
		BaseURL:   "https://generativelanguage.googleapis.com/v1beta",
		APIKeyEnv: "GEMINI_API_KEY",
		Auth:      AuthQuery,
		Features: map[string]bool{
			FeatureStreaming:       true,
			FeatureFunctionCalling: true,
			FeatureVision:          true,
		},
		Limits: RateLimits{RequestsPerMinute: 360, ConcurrentRequests: 30},
		Errors: ErrorPolicy{
			RetryableCodes: []int{429, 500, 503},
			MaxRetries:     3,
			BaseDelay:      time.Second,
		},
	},
	"deepseek": {
		Name:      "deepseek",
		BaseURL:   "https://api.deepseek.com/v1",
		APIKeyEnv: "DEEPSEEK_API_KEY",
		Auth:      AuthBearer,
		Features: map[string]bool{
			FeatureStreaming:        true,
			FeatureFunctionCalling:  true,
			FeatureStructuredOutput: true,
		},
		Limits: RateLimits{RequestsPerMinute: 120, ConcurrentRequests: 15},
		Errors: ErrorPolicy{
			RetryableCodes: []int{429, 500, 503},
			MaxRetries:     2,
			BaseDelay:      2 * time.Second,
		},
	},
	"openrouter": {
		Name:      "openrouter",
		BaseURL:   "https://openrouter.ai/api/v1",
		APIKeyEnv: "OPENROUTER_API_KEY",
		Auth:      AuthBearer,
		Features: map[string]bool{
			FeatureStreaming:        true,
			FeatureFunctionCalling:  true,
			FeatureStructuredOutput: true,
		},
		Limits: RateLimits{RequestsPerMinute: 200, ConcurrentRequests: 20},
		Errors: ErrorPolicy{
			RetryableCodes: []int{408, 429, 500, 502, 503},
			MaxRetries:     3,
			BaseDelay:      time.Second,
		},
	},
}
