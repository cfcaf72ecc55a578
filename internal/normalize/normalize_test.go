package normalize

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"

	"github.com/arclab/grover/internal/jsonextract"
)

var testOpts = Options{CaptureReasoning: true, ModelKey: "test-model", Provider: "test"}

func TestChatCompletion(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "chatcmpl-1",
		"choices": [{"message": {"content": "{\"predictedOutput\":[[1]]}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 10, "completion_tokens": 5}
	}`)

	resp, err := ChatCompletion(raw, testOpts)
	if err != nil {
		t.Fatalf("ChatCompletion() error = %v", err)
	}

	want := TokenUsage{Input: 10, Output: 5, Reasoning: 0}
	if resp.TokenUsage != want {
		t.Errorf("TokenUsage = %+v, want %+v", resp.TokenUsage, want)
	}
	if resp.Incomplete {
		t.Error("Incomplete = true, want false")
	}
	if resp.ResponseID != "chatcmpl-1" {
		t.Errorf("ResponseID = %q", resp.ResponseID)
	}
	predicted, ok := resp.Result["predictedOutput"].([]any)
	if !ok || len(predicted) != 1 {
		t.Errorf("Result = %v", resp.Result)
	}
}

func TestChatCompletion_Incomplete(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{"message": {"content": "{\"a\":1}"}, "finish_reason": "length"}]
	}`)

	resp, err := ChatCompletion(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Incomplete {
		t.Error("Incomplete = false, want true for finish_reason length")
	}
	if resp.IncompleteReason != "length" {
		t.Errorf("IncompleteReason = %q, want %q", resp.IncompleteReason, "length")
	}
}

func TestChatCompletion_Malformed(t *testing.T) {
	raw := json.RawMessage(`{"choices": [{"message": {"content": ""}}]}`)

	_, err := ChatCompletion(raw, testOpts)
	var malformedErr *MalformedResponseError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("error = %v, want MalformedResponseError", err)
	}
	if malformedErr.Provider != "test" || malformedErr.Model != "test-model" {
		t.Errorf("error identity = %s/%s", malformedErr.Provider, malformedErr.Model)
	}
}

func TestChatCompletion_MissingUsageDefaultsToZero(t *testing.T) {
	raw := json.RawMessage(`{"choices": [{"message": {"content": "{\"a\":1}"}, "finish_reason": "stop"}]}`)

	resp, err := ChatCompletion(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if resp.TokenUsage != (TokenUsage{}) {
		t.Errorf("TokenUsage = %+v, want all zeros", resp.TokenUsage)
	}
}

func TestChatCompletion_ExplicitZeroUsageWins(t *testing.T) {
	// A present prompt_tokens of 0 must not fall through to the
	// alternate field name; only a truly absent field does.
	raw := json.RawMessage(`{
		"choices": [{"message": {"content": "{\"a\":1}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 0, "input_tokens": 7, "completion_tokens": 0, "output_tokens": 9}
	}`)

	resp, err := ChatCompletion(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	want := TokenUsage{Input: 0, Output: 0, Reasoning: 0}
	if resp.TokenUsage != want {
		t.Errorf("TokenUsage = %+v, want %+v", resp.TokenUsage, want)
	}
}

func TestChatCompletion_AlternateUsageNames(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{"message": {"content": "{\"a\":1}"}, "finish_reason": "stop"}],
		"usage": {"input_tokens": 7, "output_tokens": 9}
	}`)

	resp, err := ChatCompletion(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	want := TokenUsage{Input: 7, Output: 9, Reasoning: 0}
	if resp.TokenUsage != want {
		t.Errorf("TokenUsage = %+v, want %+v", resp.TokenUsage, want)
	}
}

func TestChatCompletion_Idempotent(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{"message": {"content": "{\"a\":1}"}, "finish_reason": "stop"}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2}
	}`)

	first, err := ChatCompletion(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	second, err := ChatCompletion(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Errorf("repeated normalization diverged:\n%+v\n%+v", first, second)
	}
}

func TestResponsesAPI(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "resp_1",
		"output_text": "{\"predictedOutput\":[[3]]}",
		"reasoning": {"summary": [{"type": "summary_text", "text": "step one"}, {"type": "summary_text", "text": "step two"}]},
		"usage": {"input_tokens": 7, "output_tokens": 4, "reasoning_tokens": 11}
	}`)

	resp, err := ResponsesAPI(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Status != "completed" || resp.Incomplete {
		t.Errorf("Status = %q, Incomplete = %v; the responses shape has no finish reason", resp.Status, resp.Incomplete)
	}
	if resp.ReasoningLog != "step one\n\nstep two" {
		t.Errorf("ReasoningLog = %q", resp.ReasoningLog)
	}
	want := TokenUsage{Input: 7, Output: 4, Reasoning: 11}
	if resp.TokenUsage != want {
		t.Errorf("TokenUsage = %+v, want %+v", resp.TokenUsage, want)
	}
}

func TestResponsesAPI_FirstTextBlock(t *testing.T) {
	raw := json.RawMessage(`{
		"output": [
			{"type": "reasoning"},
			{"type": "text", "text": "{\"a\": 9}"}
		]
	}`)

	resp, err := ResponsesAPI(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result["a"] != float64(9) {
		t.Errorf("Result = %v", resp.Result)
	}
}

func TestResponsesAPI_NoText(t *testing.T) {
	raw := json.RawMessage(`{"output": [{"type": "reasoning"}]}`)

	_, err := ResponsesAPI(raw, testOpts)
	var malformedErr *MalformedResponseError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("error = %v, want MalformedResponseError", err)
	}
}

func TestReasoningChat_DirectJSONFirst(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{
			"message": {
				"content": "{\"predictedOutput\":[[5]]}",
				"reasoning_content": "chain of thought here"
			},
			"finish_reason": "stop"
		}]
	}`)

	resp, err := ReasoningChat(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if resp.ReasoningLog != "chain of thought here" {
		t.Errorf("ReasoningLog = %q; reasoning must come from reasoning_content only", resp.ReasoningLog)
	}
	if _, ok := resp.Result["predictedOutput"]; !ok {
		t.Errorf("Result = %v", resp.Result)
	}
}

func TestReasoningChat_FallsBackToTolerantExtraction(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{
			"message": {"content": "The answer is: {\"a\": 2} as shown."},
			"finish_reason": "stop"
		}]
	}`)

	resp, err := ReasoningChat(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Result["a"] != float64(2) {
		t.Errorf("Result = %v", resp.Result)
	}
}

func TestToolUse(t *testing.T) {
	raw := json.RawMessage(`{
		"id": "msg_1",
		"content": [
			{"type": "text", "text": "Calling the tool now."},
			{"type": "tool_use", "name": "submit_answer", "input": {"predictedOutput": [[7]]}}
		],
		"stop_reason": "end_turn",
		"usage": {"input_tokens": 20, "output_tokens": 9}
	}`)

	resp, err := ToolUse(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Incomplete {
		t.Error("Incomplete = true for end_turn")
	}
	if _, ok := resp.Result["predictedOutput"]; !ok {
		t.Errorf("Result = %v; tool_use input must be the result directly", resp.Result)
	}
	want := TokenUsage{Input: 20, Output: 9}
	if resp.TokenUsage != want {
		t.Errorf("TokenUsage = %+v, want %+v", resp.TokenUsage, want)
	}
}

func TestToolUse_TextFallbackWithReasoningPrefix(t *testing.T) {
	text := "I studied all three training pairs and concluded the rule rotates the grid. {\"predictedOutput\":[[0]]}"
	body := map[string]any{
		"content":     []map[string]any{{"type": "text", "text": text}},
		"stop_reason": "end_turn",
	}
	raw, _ := json.Marshal(body)

	resp, err := ToolUse(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if resp.Incomplete {
		t.Error("Incomplete = true for end_turn")
	}
	predicted, ok := resp.Result["predictedOutput"].([]any)
	if !ok || len(predicted) != 1 {
		t.Errorf("Result = %v", resp.Result)
	}
	if resp.ReasoningLog == "" {
		t.Error("ReasoningLog empty, want the pre-JSON prefix")
	}
}

func TestToolUse_MaxTokensIncomplete(t *testing.T) {
	raw := json.RawMessage(`{
		"content": [{"type": "text", "text": "{\"a\":1}"}],
		"stop_reason": "max_tokens"
	}`)

	resp, err := ToolUse(raw, testOpts)
	if err != nil {
		t.Fatal(err)
	}
	if !resp.Incomplete || resp.IncompleteReason != "max_tokens" {
		t.Errorf("Incomplete = %v, reason = %q", resp.Incomplete, resp.IncompleteReason)
	}
}

func TestToolUse_Empty(t *testing.T) {
	_, err := ToolUse(json.RawMessage(`{"content": [], "stop_reason": "end_turn"}`), testOpts)
	var malformedErr *MalformedResponseError
	if !errors.As(err, &malformedErr) {
		t.Fatalf("error = %v, want MalformedResponseError", err)
	}
}

func TestChatCompletion_ExtractionErrorSurfaced(t *testing.T) {
	raw := json.RawMessage(`{
		"choices": [{"message": {"content": "just prose, not a single object anywhere in this response"}, "finish_reason": "stop"}]
	}`)

	_, err := ChatCompletion(raw, testOpts)
	var extErr *jsonextract.ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("error = %v, want ExtractionError", err)
	}
}

func TestReasoningFromResult(t *testing.T) {
	items := []any{"a", "b"}
	log, got := reasoningFromResult(map[string]any{"reasoningItems": items}, "")
	if log != "" || len(got) != 2 {
		t.Errorf("reasoningItems array not used verbatim: %q %v", log, got)
	}

	log, got = reasoningFromResult(map[string]any{"reasoning": "because"}, "")
	if log != "because" || got != nil {
		t.Errorf("string reasoning = %q %v", log, got)
	}

	log, _ = reasoningFromResult(map[string]any{"reasoning": map[string]any{"step": 1}}, "")
	if log == "" {
		t.Error("object reasoning should be stringified")
	}
}
