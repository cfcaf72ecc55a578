package jsonextract

import (
	"errors"
	"strings"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name    string
		text    string
		wantKey string
		wantVal any
	}{
		{
			name:    "direct parse",
			text:    `{"answer": 42}`,
			wantKey: "answer",
			wantVal: float64(42),
		},
		{
			name:    "fenced json block",
			text:    "Here is the result:\n```json\n{\"answer\": 1}\n```\nDone.",
			wantKey: "answer",
			wantVal: float64(1),
		},
		{
			name:    "fenced block without tag",
			text:    "```\n{\"answer\": 2}\n```",
			wantKey: "answer",
			wantVal: float64(2),
		},
		{
			name:    "object embedded in prose",
			text:    `The transformation doubles every cell, so {"answer": 3} is my final output.`,
			wantKey: "answer",
			wantVal: float64(3),
		},
		{
			name:    "nested object with braces in strings",
			text:    `reasoning first... {"note": "uses { and } inside", "inner": {"answer": 4}} trailing prose }`,
			wantKey: "note",
			wantVal: "uses { and } inside",
		},
		{
			name:    "escaped quote inside string",
			text:    `prefix {"key": "a \"quoted\" } brace", "answer": 5}`,
			wantKey: "answer",
			wantVal: float64(5),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			obj, err := Extract(tt.text)
			if err != nil {
				t.Fatalf("Extract() error = %v", err)
			}
			if got := obj[tt.wantKey]; got != tt.wantVal {
				t.Errorf("obj[%q] = %v, want %v", tt.wantKey, got, tt.wantVal)
			}
		})
	}
}

func TestExtract_Idempotent(t *testing.T) {
	text := "```json\n{\"predictedOutput\": [[1, 2]]}\n```"
	first, err := Extract(text)
	if err != nil {
		t.Fatal(err)
	}
	second, err := Extract(text)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != len(second) {
		t.Errorf("repeated extraction diverged: %v vs %v", first, second)
	}
}

func TestExtract_NoJSON(t *testing.T) {
	longText := strings.Repeat("no json here at all. ", 30)

	_, err := Extract(longText)
	if err == nil {
		t.Fatal("Extract() error = nil, want ExtractionError")
	}

	var extErr *ExtractionError
	if !errors.As(err, &extErr) {
		t.Fatalf("error type = %T, want *ExtractionError", err)
	}
	if len(extErr.Head) != 200 {
		t.Errorf("Head length = %d, want 200", len(extErr.Head))
	}
	if len(extErr.Tail) != 200 {
		t.Errorf("Tail length = %d, want 200", len(extErr.Tail))
	}
}

func TestExtract_Empty(t *testing.T) {
	if _, err := Extract("   "); err == nil {
		t.Fatal("Extract() error = nil, want error for blank text")
	}
}

func TestReasoningPreamble(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		want   string
		wantOK bool
	}{
		{
			name:   "long prose before object",
			text:   "I examined the training pairs and noticed every cell doubles in value. {\"predictedOutput\":[[2]]}",
			want:   "I examined the training pairs and noticed every cell doubles in value.",
			wantOK: true,
		},
		{
			name:   "delimiter too early",
			text:   `{"predictedOutput":[[2]]}`,
			wantOK: false,
		},
		{
			name:   "prefix too short",
			text:   "the answer is as follows {\"a\":1}",
			wantOK: false,
		},
		{
			name:   "no delimiter",
			text:   strings.Repeat("prose ", 20),
			wantOK: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ReasoningPreamble(tt.text)
			if ok != tt.wantOK {
				t.Fatalf("ReasoningPreamble() ok = %v, want %v", ok, tt.wantOK)
			}
			if tt.wantOK && got != tt.want {
				t.Errorf("ReasoningPreamble() = %q, want %q", got, tt.want)
			}
		})
	}
}
