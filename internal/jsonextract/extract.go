// Package jsonextract recovers JSON payloads from free-form model text.
//
// Model output rarely arrives as clean JSON: it gets wrapped in markdown
// fences, prefixed with prose, or truncated. Extraction runs an ordered
// list of independent strategies and stops at the first success; only the
// final strategy's failure produces the terminal error.
package jsonextract

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

var (
	// Regexes use \x60 for backticks because Go raw strings cannot contain them.
	fencedBlockRegex = regexp.MustCompile("(?s)\x60\x60\x60(?:json)?\\s*(\\{.*?\\})\\s*\x60\x60\x60")
	bareObjectRegex  = regexp.MustCompile(`(?s)\{.*\}`)
)

// ExtractionError reports that no strategy located valid JSON in the text.
// It carries the head and tail of the offending text for diagnosis.
type ExtractionError struct {
	Head string
	Tail string
	Err  error
}

func (e *ExtractionError) Error() string {
	return fmt.Sprintf("no valid JSON object found in model text (head: %q, tail: %q): %v", e.Head, e.Tail, e.Err)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

func newExtractionError(text string, err error) *ExtractionError {
	head := text
	if len(head) > 200 {
		head = head[:200]
	}
	tail := text
	if len(tail) > 200 {
		tail = tail[len(tail)-200:]
	}
	return &ExtractionError{Head: head, Tail: tail, Err: err}
}

// strategy attempts to locate and parse one JSON object in text.
type strategy func(text string) (map[string]any, bool)

// Extract locates a JSON object in text using layered strategies:
// direct parse, fenced code block, bare-brace regex, and brace counting
// with string-escape awareness. It returns an *ExtractionError when all
// strategies are exhausted.
func Extract(text string) (map[string]any, error) {
	trimmed := strings.TrimSpace(text)
	if trimmed == "" {
		return nil, newExtractionError(text, fmt.Errorf("empty text"))
	}

	strategies := []strategy{
		directParse,
		fencedBlockParse,
		bareObjectParse,
		braceCountParse,
	}

	for _, s := range strategies {
		if obj, ok := s(trimmed); ok && obj != nil {
			return obj, nil
		}
	}

	// Re-run the last strategy for its concrete parse error.
	var lastErr error
	if candidate := braceCandidate(trimmed); candidate != "" {
		lastErr = json.Unmarshal([]byte(candidate), &map[string]any{})
	} else {
		lastErr = fmt.Errorf("no opening brace found")
	}

	return nil, newExtractionError(text, lastErr)
}

func directParse(text string) (map[string]any, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(text), &obj); err != nil {
		return nil, false
	}
	return obj, obj != nil
}

func fencedBlockParse(text string) (map[string]any, bool) {
	matches := fencedBlockRegex.FindStringSubmatch(text)
	if len(matches) < 2 {
		return nil, false
	}
	return directParse(matches[1])
}

func bareObjectParse(text string) (map[string]any, bool) {
	match := bareObjectRegex.FindString(text)
	if match == "" {
		return nil, false
	}
	return directParse(match)
}

// braceCountParse scans from the first opening brace, tracking nesting
// depth while skipping braces inside JSON strings (including escaped
// quotes), and parses the balanced span.
func braceCountParse(text string) (map[string]any, bool) {
	candidate := braceCandidate(text)
	if candidate == "" {
		return nil, false
	}
	return directParse(candidate)
}

func braceCandidate(text string) string {
	start := strings.Index(text, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return text[start : i+1]
				}
			}
		}
	}

	return ""
}

// ReasoningPreamble returns prose preceding the first JSON delimiter when
// that prefix is long enough to plausibly be reasoning rather than noise.
// The delimiter must occur after position 20 so a leading brace or short
// label does not count as a preamble.
func ReasoningPreamble(text string) (string, bool) {
	idx := strings.IndexAny(text, "{[")
	if idx <= 20 {
		return "", false
	}
	prefix := strings.TrimSpace(text[:idx])
	if len(prefix) <= 50 {
		return "", false
	}
	return prefix, true
}
