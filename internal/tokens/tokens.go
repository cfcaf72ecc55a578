// Package tokens estimates prompt sizes before provider calls.
//
// OpenAI-family models get exact counts via tiktoken; everything else
// falls back to a character-ratio estimator. The solver loop uses these
// estimates to log and report prompt growth across iterations.
package tokens

import (
	"strings"
	"sync"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator produces token counts for arbitrary models.
type Estimator struct {
	// charsPerToken is the fallback ratio for models without a tokenizer.
	charsPerToken float64

	cacheMu    sync.RWMutex
	codecCache map[tokenizer.Encoding]tokenizer.Codec
}

// NewEstimator creates an estimator with the default 4 chars/token
// fallback ratio.
func NewEstimator() *Estimator {
	return &Estimator{
		charsPerToken: 4.0,
		codecCache:    make(map[tokenizer.Encoding]tokenizer.Codec),
	}
}

// Count returns the token count of text for the given model. It never
// fails: models without an exact tokenizer are estimated.
func (e *Estimator) Count(model, text string) int {
	if text == "" {
		return 0
	}
	if codec, ok := e.codec(model); ok {
		if ids, _, err := codec.Encode(text); err == nil {
			return len(ids)
		}
	}
	return e.estimate(text)
}

func (e *Estimator) estimate(text string) int {
	n := int(float64(len(text)) / e.charsPerToken)
	if n < 1 {
		n = 1
	}
	return n
}

// codec resolves a tiktoken codec for OpenAI-family models.
func (e *Estimator) codec(model string) (tokenizer.Codec, bool) {
	encoding, ok := modelEncoding(model)
	if !ok {
		return nil, false
	}

	e.cacheMu.RLock()
	if cached, ok := e.codecCache[encoding]; ok {
		e.cacheMu.RUnlock()
		return cached, true
	}
	e.cacheMu.RUnlock()

	codec, err := tokenizer.Get(encoding)
	if err != nil {
		return nil, false
	}

	e.cacheMu.Lock()
	e.codecCache[encoding] = codec
	e.cacheMu.Unlock()
	return codec, true
}

// modelEncoding maps OpenAI model families to their encodings. Non-OpenAI
// models return false and use the estimator.
func modelEncoding(model string) (tokenizer.Encoding, bool) {
	m := strings.ToLower(model)
	switch {
	case strings.HasPrefix(m, "gpt-5"),
		strings.HasPrefix(m, "gpt-4.1"),
		strings.HasPrefix(m, "gpt-4o"),
		strings.HasPrefix(m, "o1"),
		strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "o4"):
		return tokenizer.O200kBase, true
	case strings.HasPrefix(m, "gpt-4"), strings.HasPrefix(m, "gpt-3.5"):
		return tokenizer.Cl100kBase, true
	default:
		return "", false
	}
}
