package grover

import (
	"strings"
	"testing"
)

func TestExtractPrograms(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []string
	}{
		{
			name: "tagged python fence",
			text: "Here is my solution:\n```python\ndef transform(grid):\n    return grid\n```\nDone.",
			want: []string{"def transform(grid):\n    return grid"},
		},
		{
			name: "py tag",
			text: "```py\ndef transform(grid):\n    return [[2]]\n```",
			want: []string{"def transform(grid):\n    return [[2]]"},
		},
		{
			name: "multiple tagged fences",
			text: "```python\ndef transform(grid):\n    return grid\n```\nor alternatively\n```python\ndef transform(grid):\n    return grid[::-1]\n```",
			want: []string{
				"def transform(grid):\n    return grid",
				"def transform(grid):\n    return grid[::-1]",
			},
		},
		{
			name: "duplicate bodies kept once",
			text: "```python\ndef transform(grid):\n    return grid\n```\n```python\ndef transform(grid):\n    return grid\n```",
			want: []string{"def transform(grid):\n    return grid"},
		},
		{
			name: "untagged fence with signature",
			text: "```\ndef transform(grid):\n    return [[0]]\n```",
			want: []string{"def transform(grid):\n    return [[0]]"},
		},
		{
			name: "untagged fence without signature ignored",
			text: "```\nprint('hello')\n```",
			want: nil,
		},
		{
			name: "bare function in prose",
			text: "My approach:\n\ndef transform(grid):\n    result = grid\n    return result\n\nThat should work.",
			want: []string{"def transform(grid):\n    result = grid\n    return result"},
		},
		{
			name: "no code at all",
			text: "I am not sure how to solve this puzzle.",
			want: nil,
		},
		{
			name: "tagged fence wins over bare function",
			text: "def transform(grid):\n    return None\n\n```python\ndef transform(grid):\n    return grid\n```",
			want: []string{"def transform(grid):\n    return grid"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ExtractPrograms(tt.text)
			if len(got) != len(tt.want) {
				t.Fatalf("got %d programs, want %d: %q", len(got), len(tt.want), got)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("program %d = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}

func TestExtractProgramsBareBlockStopsAtProse(t *testing.T) {
	text := "def transform(grid):\n    return grid\nThis line is prose and not part of the function."
	got := ExtractPrograms(text)
	if len(got) != 1 {
		t.Fatalf("got %d programs, want 1", len(got))
	}
	if strings.Contains(got[0], "prose") {
		t.Errorf("bare block captured trailing prose: %q", got[0])
	}
}
