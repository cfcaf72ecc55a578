package grover

import (
	"fmt"
	"sort"
	"strings"

	"github.com/arclab/grover/internal/arc"
	"github.com/arclab/grover/internal/sandbox"
)

// maxScore is a perfect training-set match on the 0-10 scale.
const maxScore = 10.0

// GradedResult is one candidate program with its training-set score.
type GradedResult struct {
	ProgramIndex int        `json:"programIndex"`
	Code         string     `json:"code"`
	Score        float64    `json:"score"`
	Outputs      []arc.Grid `json:"outputs,omitempty"`
	Error        string     `json:"error,omitempty"`
}

// Grade scores each sandbox result as the fraction of training outputs it
// reproduced exactly, scaled to 0-10, and returns the results sorted by
// score descending. The sort is stable, so equal scores keep their
// original program order. A program whose execution failed scores 0.
func Grade(programs []string, results []sandbox.ExecutionResult, expected []arc.Grid) []GradedResult {
	graded := make([]GradedResult, 0, len(results))
	for _, res := range results {
		g := GradedResult{
			ProgramIndex: res.ProgramIndex,
			Outputs:      res.Outputs,
			Error:        res.Error,
		}
		if res.ProgramIndex >= 0 && res.ProgramIndex < len(programs) {
			g.Code = programs[res.ProgramIndex]
		}
		if res.Error == "" && len(expected) > 0 {
			matched := 0
			for i, want := range expected {
				if i < len(res.Outputs) && res.Outputs[i].Equal(want) {
					matched++
				}
			}
			g.Score = float64(matched) / float64(len(expected)) * maxScore
		}
		graded = append(graded, g)
	}

	sort.SliceStable(graded, func(i, j int) bool {
		return graded[i].Score > graded[j].Score
	})
	return graded
}

// AmplifyContext appends the round's strongest and weakest candidates to
// the accumulated context: the top 3 as patterns to build on, the bottom
// 2 as explicit negative examples to avoid. Returns the new context.
func AmplifyContext(context string, iteration int, graded []GradedResult) string {
	if len(graded) == 0 {
		return context
	}

	var b strings.Builder
	b.WriteString(context)
	fmt.Fprintf(&b, "\n\n## Iteration %d results\n", iteration)

	top := graded
	if len(top) > 3 {
		top = top[:3]
	}
	b.WriteString("\n### Best performers (build on these)\n")
	for _, g := range top {
		fmt.Fprintf(&b, "\nScore %.1f/10:\n```python\n%s\n```\n", g.Score, g.Code)
	}

	if len(graded) > len(top) {
		bottom := graded[len(graded)-2:]
		if len(graded)-len(top) < 2 {
			bottom = graded[len(top):]
		}
		b.WriteString("\n### Failed approaches (avoid these)\n")
		for _, g := range bottom {
			reason := g.Error
			if reason == "" {
				reason = "incorrect output"
			}
			fmt.Fprintf(&b, "\nScore %.1f/10 (%s):\n```python\n%s\n```\n", g.Score, reason, g.Code)
		}
	}

	return b.String()
}
