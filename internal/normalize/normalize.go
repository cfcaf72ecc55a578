// Package normalize converts raw provider response shapes into one
// canonical record. All functions are pure: they consume decoded JSON and
// produce a fresh NormalizedResponse, never touching the network.
package normalize

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/arclab/grover/internal/jsonextract"
)

// TokenUsage is the provider-agnostic token accounting triple.
type TokenUsage struct {
	Input     int `json:"input"`
	Output    int `json:"output"`
	Reasoning int `json:"reasoning"`
}

// NormalizedResponse is the canonical result of one provider call. It is
// produced fresh per call and never mutated after creation.
type NormalizedResponse struct {
	Result           map[string]any `json:"result"`
	TokenUsage       TokenUsage     `json:"tokenUsage"`
	ReasoningLog     string         `json:"reasoningLog,omitempty"`
	ReasoningItems   []any          `json:"reasoningItems,omitempty"`
	Status           string         `json:"status,omitempty"`
	Incomplete       bool           `json:"incomplete"`
	IncompleteReason string         `json:"incompleteReason,omitempty"`
	ResponseID       string         `json:"responseId,omitempty"`
}

// Options identify the call being normalized and whether reasoning should
// be captured.
type Options struct {
	CaptureReasoning bool
	ModelKey         string
	Provider         string
}

// MalformedResponseError reports that a provider response carried no
// usable textual payload.
type MalformedResponseError struct {
	Provider string
	Model    string
	Detail   string
}

func (e *MalformedResponseError) Error() string {
	return fmt.Sprintf("malformed response from %s (model %s): %s", e.Provider, e.Model, e.Detail)
}

func malformed(opts Options, detail string) *MalformedResponseError {
	return &MalformedResponseError{Provider: opts.Provider, Model: opts.ModelKey, Detail: detail}
}

// usage tolerates both OpenAI-style and Anthropic-style field names.
// Pointer fields keep an explicit zero distinct from an absent field, so
// the alternate name only fills in when the primary is truly missing.
type usage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	InputTokens      *int `json:"input_tokens"`
	OutputTokens     *int `json:"output_tokens"`
	ReasoningTokens  *int `json:"reasoning_tokens"`
}

func coalesce(primary, alternate *int) int {
	if primary != nil {
		return *primary
	}
	if alternate != nil {
		return *alternate
	}
	return 0
}

// tokenUsage extracts the usage triple. Missing usage yields all zeros,
// never an error.
func tokenUsage(u *usage) TokenUsage {
	if u == nil {
		return TokenUsage{}
	}
	tu := TokenUsage{
		Input:  coalesce(u.PromptTokens, u.InputTokens),
		Output: coalesce(u.CompletionTokens, u.OutputTokens),
	}
	if u.ReasoningTokens != nil {
		tu.Reasoning = *u.ReasoningTokens
	}
	return tu
}

const stopReason = "stop"

type chatMessage struct {
	Content          string `json:"content"`
	ReasoningContent string `json:"reasoning_content"`
}

type chatChoice struct {
	Message      chatMessage `json:"message"`
	FinishReason string      `json:"finish_reason"`
}

type chatResponse struct {
	ID      string       `json:"id"`
	Choices []chatChoice `json:"choices"`
	Usage   *usage       `json:"usage"`
}

// ChatCompletion normalizes the choice-based chat-completion shape used by
// OpenAI-compatible vendors (xai, openrouter, and OpenAI chat itself).
func ChatCompletion(raw json.RawMessage, opts Options) (*NormalizedResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, malformed(opts, fmt.Sprintf("undecodable body: %v", err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, malformed(opts, "no message content in choices")
	}

	choice := resp.Choices[0]
	result, err := jsonextract.Extract(choice.Message.Content)
	if err != nil {
		return nil, err
	}

	out := &NormalizedResponse{
		Result:     result,
		TokenUsage: tokenUsage(resp.Usage),
		Status:     choice.FinishReason,
		ResponseID: resp.ID,
	}
	if choice.FinishReason != stopReason {
		out.Incomplete = true
		out.IncompleteReason = choice.FinishReason
	}
	if opts.CaptureReasoning {
		out.ReasoningLog, out.ReasoningItems = reasoningFromResult(result, choice.Message.Content)
	}
	return out, nil
}

type responsesOutputItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type reasoningSummaryItem struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type responsesResponse struct {
	ID         string                `json:"id"`
	OutputText string                `json:"output_text"`
	Output     []responsesOutputItem `json:"output"`
	Reasoning  *struct {
		Summary []reasoningSummaryItem `json:"summary"`
	} `json:"reasoning"`
	Usage *usage `json:"usage"`
}

// ResponsesAPI normalizes the OpenAI Responses API shape. This shape has
// no native finish reason: status is unconditionally "completed" and the
// response is never marked incomplete.
func ResponsesAPI(raw json.RawMessage, opts Options) (*NormalizedResponse, error) {
	var resp responsesResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, malformed(opts, fmt.Sprintf("undecodable body: %v", err))
	}

	text := resp.OutputText
	if text == "" {
		for _, item := range resp.Output {
			if item.Type == "text" && item.Text != "" {
				text = item.Text
				break
			}
		}
	}
	if text == "" {
		return nil, malformed(opts, "no output_text and no text output block")
	}

	result, err := jsonextract.Extract(text)
	if err != nil {
		return nil, err
	}

	out := &NormalizedResponse{
		Result:     result,
		TokenUsage: tokenUsage(resp.Usage),
		Status:     "completed",
		Incomplete: false,
		ResponseID: resp.ID,
	}

	// Reasoning comes from the dedicated summary field, not inline text.
	if opts.CaptureReasoning && resp.Reasoning != nil && len(resp.Reasoning.Summary) > 0 {
		parts := make([]string, 0, len(resp.Reasoning.Summary))
		for _, item := range resp.Reasoning.Summary {
			if item.Text != "" {
				parts = append(parts, item.Text)
			}
		}
		out.ReasoningLog = strings.Join(parts, "\n\n")
		for _, p := range parts {
			out.ReasoningItems = append(out.ReasoningItems, p)
		}
	}

	return out, nil
}

// ReasoningChat normalizes the DeepSeek-style reasoning chat shape. The
// content field is tried as direct JSON before tolerant extraction, and
// reasoning comes only from the separate reasoning_content field.
func ReasoningChat(raw json.RawMessage, opts Options) (*NormalizedResponse, error) {
	var resp chatResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, malformed(opts, fmt.Sprintf("undecodable body: %v", err))
	}
	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		return nil, malformed(opts, "no message content in choices")
	}

	choice := resp.Choices[0]

	var result map[string]any
	if err := json.Unmarshal([]byte(choice.Message.Content), &result); err != nil || result == nil {
		extracted, extractErr := jsonextract.Extract(choice.Message.Content)
		if extractErr != nil {
			return nil, extractErr
		}
		result = extracted
	}

	out := &NormalizedResponse{
		Result:     result,
		TokenUsage: tokenUsage(resp.Usage),
		Status:     choice.FinishReason,
		ResponseID: resp.ID,
	}
	if choice.FinishReason != stopReason {
		out.Incomplete = true
		out.IncompleteReason = choice.FinishReason
	}
	if opts.CaptureReasoning && choice.Message.ReasoningContent != "" {
		out.ReasoningLog = choice.Message.ReasoningContent
	}
	return out, nil
}

const endTurn = "end_turn"

// reasoningPrefixMin is the plausibility threshold for treating text
// before the first brace as reasoning rather than noise.
const reasoningPrefixMin = 50

type anthropicContentBlock struct {
	Type  string          `json:"type"`
	Text  string          `json:"text"`
	Name  string          `json:"name"`
	Input json.RawMessage `json:"input"`
}

type anthropicResponse struct {
	ID         string                  `json:"id"`
	Content    []anthropicContentBlock `json:"content"`
	StopReason string                  `json:"stop_reason"`
	Usage      *usage                  `json:"usage"`
}

// ToolUse normalizes the Anthropic tool-use shape. A tool_use block's
// structured input is the result directly; otherwise the first text block
// goes through tolerant extraction with a heuristic reasoning prefix.
// Completion is judged solely by the turn-stop signal.
func ToolUse(raw json.RawMessage, opts Options) (*NormalizedResponse, error) {
	var resp anthropicResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, malformed(opts, fmt.Sprintf("undecodable body: %v", err))
	}
	if len(resp.Content) == 0 {
		return nil, malformed(opts, "empty content blocks")
	}

	out := &NormalizedResponse{
		TokenUsage: tokenUsage(resp.Usage),
		Status:     resp.StopReason,
		ResponseID: resp.ID,
	}
	if resp.StopReason != endTurn {
		out.Incomplete = true
		out.IncompleteReason = resp.StopReason
	}

	for _, block := range resp.Content {
		if block.Type != "tool_use" || len(block.Input) == 0 {
			continue
		}
		var result map[string]any
		if err := json.Unmarshal(block.Input, &result); err != nil {
			return nil, malformed(opts, fmt.Sprintf("tool_use input is not an object: %v", err))
		}
		out.Result = result
		if opts.CaptureReasoning {
			out.ReasoningLog, out.ReasoningItems = reasoningFromResult(result, "")
		}
		return out, nil
	}

	// No tool-use block: fall back to the first text block.
	var text string
	for _, block := range resp.Content {
		if block.Type == "text" && block.Text != "" {
			text = block.Text
			break
		}
	}
	if text == "" {
		return nil, malformed(opts, "no tool_use block and no text block")
	}

	result, err := jsonextract.Extract(text)
	if err != nil {
		return nil, err
	}
	out.Result = result

	if opts.CaptureReasoning {
		if idx := strings.Index(text, "{"); idx > 0 {
			prefix := strings.TrimSpace(text[:idx])
			if len(prefix) > reasoningPrefixMin {
				out.ReasoningLog = prefix
			}
		}
		if out.ReasoningLog == "" {
			out.ReasoningLog, out.ReasoningItems = reasoningFromResult(result, text)
		}
	}

	return out, nil
}

// reasoningFromResult is the shared reasoning-item extraction: a
// reasoningItems array on the parsed result wins, then a reasoning field
// (stringified), then a preamble heuristic over the raw text.
func reasoningFromResult(result map[string]any, rawText string) (string, []any) {
	if items, ok := result["reasoningItems"].([]any); ok && len(items) > 0 {
		return "", items
	}

	if reasoning, ok := result["reasoning"]; ok && reasoning != nil {
		switch v := reasoning.(type) {
		case string:
			if v != "" {
				return v, nil
			}
		default:
			if data, err := json.Marshal(v); err == nil {
				return string(data), nil
			}
		}
	}

	if rawText != "" {
		if prefix, ok := jsonextract.ReasoningPreamble(rawText); ok {
			return prefix, nil
		}
	}

	return "", nil
}
