package llm

import (
	"encoding/json"
	"fmt"

	"github.com/arclab/grover/internal/normalize"
)

// wireUsage tolerates both OpenAI-style and Anthropic-style field names.
// Pointer fields keep an explicit zero distinct from an absent field, so
// the alternate name only fills in when the primary is truly missing.
type wireUsage struct {
	PromptTokens     *int `json:"prompt_tokens"`
	CompletionTokens *int `json:"completion_tokens"`
	InputTokens      *int `json:"input_tokens"`
	OutputTokens     *int `json:"output_tokens"`
	ReasoningTokens  *int `json:"reasoning_tokens"`
}

func firstPresent(primary, alternate *int) int {
	if primary != nil {
		return *primary
	}
	if alternate != nil {
		return *alternate
	}
	return 0
}

func (u *wireUsage) triple() normalize.TokenUsage {
	if u == nil {
		return normalize.TokenUsage{}
	}
	tu := normalize.TokenUsage{
		Input:  firstPresent(u.PromptTokens, u.InputTokens),
		Output: firstPresent(u.CompletionTokens, u.OutputTokens),
	}
	if u.ReasoningTokens != nil {
		tu.Reasoning = *u.ReasoningTokens
	}
	return tu
}

// decodeResponse pulls the textual payload, response id, and token usage
// out of a raw provider body without interpreting the text.
func decodeResponse(provider, model string, raw []byte) (*Response, error) {
	resp := &Response{Provider: provider, Model: model, Raw: raw}

	switch provider {
	case "openai":
		var body struct {
			ID         string `json:"id"`
			OutputText string `json:"output_text"`
			Output     []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"output"`
			Usage *wireUsage `json:"usage"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", provider, err)
		}
		resp.ResponseID = body.ID
		resp.TokenUsage = body.Usage.triple()
		resp.Text = body.OutputText
		if resp.Text == "" {
			for _, item := range body.Output {
				if item.Type == "text" && item.Text != "" {
					resp.Text = item.Text
					break
				}
			}
		}

	case "anthropic":
		var body struct {
			ID      string `json:"id"`
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
			Usage *wireUsage `json:"usage"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", provider, err)
		}
		resp.ResponseID = body.ID
		resp.TokenUsage = body.Usage.triple()
		for _, block := range body.Content {
			if block.Type == "text" && block.Text != "" {
				resp.Text = block.Text
				break
			}
		}

	case "gemini":
		var body struct {
			Candidates []struct {
				Content struct {
					Parts []struct {
						Text string `json:"text"`
					} `json:"parts"`
				} `json:"content"`
			} `json:"candidates"`
			UsageMetadata *struct {
				PromptTokenCount     int `json:"promptTokenCount"`
				CandidatesTokenCount int `json:"candidatesTokenCount"`
				ThoughtsTokenCount   int `json:"thoughtsTokenCount"`
			} `json:"usageMetadata"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", provider, err)
		}
		for _, cand := range body.Candidates {
			for _, part := range cand.Content.Parts {
				if part.Text != "" {
					resp.Text += part.Text
				}
			}
			break
		}
		if body.UsageMetadata != nil {
			resp.TokenUsage = normalize.TokenUsage{
				Input:     body.UsageMetadata.PromptTokenCount,
				Output:    body.UsageMetadata.CandidatesTokenCount,
				Reasoning: body.UsageMetadata.ThoughtsTokenCount,
			}
		}

	default:
		var body struct {
			ID      string `json:"id"`
			Choices []struct {
				Message struct {
					Content string `json:"content"`
				} `json:"message"`
			} `json:"choices"`
			Usage *wireUsage `json:"usage"`
		}
		if err := json.Unmarshal(raw, &body); err != nil {
			return nil, fmt.Errorf("failed to decode %s response: %w", provider, err)
		}
		resp.ResponseID = body.ID
		resp.TokenUsage = body.Usage.triple()
		if len(body.Choices) > 0 {
			resp.Text = body.Choices[0].Message.Content
		}
	}

	if resp.Text == "" {
		return nil, &normalize.MalformedResponseError{Provider: provider, Model: model, Detail: "no textual payload in response"}
	}
	return resp, nil
}
