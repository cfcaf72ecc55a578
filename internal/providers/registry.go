package providers

import (
	"strings"
	"time"
)

// RequestOptions are the per-call policy values resolved for one
// provider + model pair.
type RequestOptions struct {
	Timeout    time.Duration
	MaxRetries int
	BaseDelay  time.Duration
}

// Registry resolves provider capability and policy data. It is stateless;
// the underlying tables are read-only after process start.
type Registry struct{}

// NewRegistry creates a provider registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// GetConfig returns the config for a provider, or nil if unknown.
func (r *Registry) GetConfig(provider string) *Config {
	cfg, ok := configs[provider]
	if !ok {
		return nil
	}
	return &cfg
}

// Names returns the known provider identifiers.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(configs))
	for name := range configs {
		names = append(names, name)
	}
	return names
}

// GetTransformer returns the transformer for a provider. Unknown providers
// get the Default identity transformer; lookup is total.
func (r *Registry) GetTransformer(provider string) Transformer {
	if t, ok := transformers[provider]; ok {
		return t
	}
	return Default
}

// SupportsFeature reports whether a provider declares a feature. Unknown
// providers and unknown features are false, never an error.
func (r *Registry) SupportsFeature(provider, feature string) bool {
	cfg, ok := configs[provider]
	if !ok {
		return false
	}
	return cfg.Features[feature]
}

// AuthHeaders builds the auth header map for a provider. Query-auth
// providers get an empty map: the caller must append the key as a URL
// parameter instead.
func (r *Registry) AuthHeaders(provider, apiKey string) map[string]string {
	cfg, ok := configs[provider]
	if !ok {
		return map[string]string{}
	}

	switch cfg.Auth {
	case AuthBearer:
		return map[string]string{"Authorization": "Bearer " + apiKey}
	case AuthHeader:
		// Anthropic is the one header-auth provider; it uses a versioned
		// custom header pair rather than Authorization.
		return map[string]string{
			"x-api-key":         apiKey,
			"anthropic-version": "2023-06-01",
		}
	default:
		return map[string]string{}
	}
}

const defaultTimeout = 2 * time.Minute

// RequestOptions resolves timeout and retry policy for one call. Base
// values come from the provider's error policy; the timeout is overridden
// per model family because reasoning models routinely exceed the default.
func (r *Registry) RequestOptions(provider, modelKey string) RequestOptions {
	opts := RequestOptions{
		Timeout:    defaultTimeout,
		MaxRetries: 2,
		BaseDelay:  time.Second,
	}

	if cfg, ok := configs[provider]; ok {
		opts.MaxRetries = cfg.Errors.MaxRetries
		opts.BaseDelay = cfg.Errors.BaseDelay
	}

	opts.Timeout = modelTimeout(provider, modelKey)
	return opts
}

// modelTimeout is the per-model override table. Reasoning tiers get long
// timeouts; this is a hard requirement, not a tuning nicety.
func modelTimeout(provider, modelKey string) time.Duration {
	key := strings.ToLower(modelKey)

	switch {
	case strings.Contains(key, "deepseek-reasoner"):
		return 4 * time.Minute
	case provider == "xai" && strings.Contains(key, "fast"):
		return 3 * time.Minute
	case isReasoningModel(key):
		return 5 * time.Minute
	default:
		return defaultTimeout
	}
}

// isReasoningModel matches top-tier reasoning model families across vendors.
func isReasoningModel(modelKey string) bool {
	key := strings.ToLower(modelKey)
	prefixes := []string{"o1", "o3", "o4", "gpt-5"}
	for _, p := range prefixes {
		if strings.HasPrefix(key, p) {
			return true
		}
	}
	for _, s := range []string{"reasoner", "thinking", "grok-4", "gemini-2.5-pro"} {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}
