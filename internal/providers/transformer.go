package providers

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// APIError is a provider error decoded into the fields retry predicates
// key off of. Different vendors populate different fields; ShouldRetry
// implementations inspect only the fields their vendor uses.
type APIError struct {
	Provider   string
	StatusCode int
	Type       string
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API error (status %d, type %q, code %q): %s", e.Provider, e.StatusCode, e.Type, e.Code, e.Message)
}

// Transformer is the per-provider capability set: request shaping,
// response shaping, error extraction, and the retry predicate. Every
// provider name maps to exactly one entry; unknown names fall back to the
// Default identity transformer.
type Transformer struct {
	// TransformRequest adjusts a provider-bound request body in place.
	TransformRequest func(body map[string]any, modelKey string)
	// TransformResponse post-processes a decoded provider response.
	TransformResponse func(raw map[string]any) map[string]any
	// ExtractError decodes an error body into an APIError.
	ExtractError func(statusCode int, body []byte) *APIError
	// ShouldRetry reports whether the error warrants another attempt.
	ShouldRetry func(err error) bool
}

func identityRequest(map[string]any, string) {}

func identityResponse(raw map[string]any) map[string]any { return raw }

// Default is the identity, non-retrying transformer.
var Default = Transformer{
	TransformRequest:  identityRequest,
	TransformResponse: identityResponse,
	ExtractError: func(statusCode int, body []byte) *APIError {
		return &APIError{StatusCode: statusCode, Message: string(body)}
	},
	ShouldRetry: func(error) bool { return false },
}

// openaiError is the {"error": {...}} envelope shared by several vendors.
type openaiError struct {
	Error struct {
		Type    string `json:"type"`
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func extractEnvelopeError(provider string) func(int, []byte) *APIError {
	return func(statusCode int, body []byte) *APIError {
		apiErr := &APIError{Provider: provider, StatusCode: statusCode, Message: string(body)}
		var env openaiError
		if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
			apiErr.Type = env.Error.Type
			apiErr.Code = env.Error.Code
			apiErr.Message = env.Error.Message
		}
		return apiErr
	}
}

// geminiError uses a numeric code plus status string under "error".
type geminiError struct {
	Error struct {
		Code    int    `json:"code"`
		Status  string `json:"status"`
		Message string `json:"message"`
	} `json:"error"`
}

func extractGeminiError(statusCode int, body []byte) *APIError {
	apiErr := &APIError{Provider: "gemini", StatusCode: statusCode, Message: string(body)}
	var env geminiError
	if err := json.Unmarshal(body, &env); err == nil && env.Error.Message != "" {
		apiErr.Code = fmt.Sprintf("%d", env.Error.Code)
		apiErr.Type = env.Error.Status
		apiErr.Message = env.Error.Message
	}
	return apiErr
}

// statusRetry retries purely on HTTP status against the provider's
// declared retryable codes.
func statusRetry(provider string) func(error) bool {
	return func(err error) bool {
		var apiErr *APIError
		if !errors.As(err, &apiErr) {
			return false
		}
		cfg, ok := configs[provider]
		if !ok {
			return false
		}
		for _, code := range cfg.Errors.RetryableCodes {
			if apiErr.StatusCode == code {
				return true
			}
		}
		return false
	}
}

// transformers keys provider name to its capability set. Each vendor's
// retry predicate keys off a different field; this heterogeneity is
// intentional and must not be collapsed into one generic check.
var transformers = map[string]Transformer{
	"openai": {
		TransformRequest: func(body map[string]any, modelKey string) {
			// Reasoning-tier models reject sampling parameters.
			if isReasoningModel(modelKey) {
				delete(body, "temperature")
				delete(body, "top_p")
			}
		},
		TransformResponse: identityResponse,
		ExtractError:      extractEnvelopeError("openai"),
		// OpenAI signals transience through the error type.
		ShouldRetry: func(err error) bool {
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				return false
			}
			switch apiErr.Type {
			case "rate_limit_error", "server_error", "overloaded_error":
				return true
			}
			return apiErr.StatusCode == http.StatusTooManyRequests
		},
	},
	"anthropic": {
		TransformRequest: func(body map[string]any, modelKey string) {
			// Anthropic requires an explicit max_tokens on every request.
			if _, ok := body["max_tokens"]; !ok {
				body["max_tokens"] = configs["anthropic"].Limits.MaxTokens
			}
		},
		TransformResponse: identityResponse,
		ExtractError:      extractEnvelopeError("anthropic"),
		// Anthropic names its transient failures by error type string.
		ShouldRetry: func(err error) bool {
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				return false
			}
			switch apiErr.Type {
			case "overloaded_error", "api_error", "rate_limit_error":
				return true
			}
			return false
		},
	},
	"xai": {
		TransformRequest:  identityRequest,
		TransformResponse: identityResponse,
		ExtractError:      extractEnvelopeError("xai"),
		ShouldRetry:       statusRetry("xai"),
	},
	"gemini": {
		TransformRequest: func(body map[string]any, modelKey string) {
			// Gemini carries sampling knobs under generationConfig.
			genCfg, _ := body["generationConfig"].(map[string]any)
			if genCfg == nil {
				genCfg = map[string]any{}
			}
			if temp, ok := body["temperature"]; ok {
				genCfg["temperature"] = temp
				delete(body, "temperature")
			}
			if len(genCfg) > 0 {
				body["generationConfig"] = genCfg
			}
		},
		TransformResponse: identityResponse,
		ExtractError:      extractGeminiError,
		// Gemini reports transience through the numeric error code.
		ShouldRetry: func(err error) bool {
			var apiErr *APIError
			if !errors.As(err, &apiErr) {
				return false
			}
			switch apiErr.Code {
			case "429", "500", "503":
				return true
			}
			return false
		},
	},
	"deepseek": {
		TransformRequest:  identityRequest,
		TransformResponse: identityResponse,
		ExtractError:      extractEnvelopeError("deepseek"),
		ShouldRetry:       statusRetry("deepseek"),
	},
	"openrouter": {
		TransformRequest: func(body map[string]any, modelKey string) {
			// OpenRouter routes on the fully-qualified model slug.
			body["model"] = modelKey
		},
		TransformResponse: identityResponse,
		ExtractError:      extractEnvelopeError("openrouter"),
		ShouldRetry:       statusRetry("openrouter"),
	},
}
