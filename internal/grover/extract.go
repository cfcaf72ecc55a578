package grover

import (
	"regexp"
	"strings"
)

// transformSignature is the function every candidate must define. The
// sandbox calls transform(grid) on each training input.
const transformSignature = "def transform"

var (
	taggedFenceRe   = regexp.MustCompile("(?s)```(?:python|py)\\s*\n(.*?)```")
	untaggedFenceRe = regexp.MustCompile("(?s)```\\s*\n(.*?)```")
	bareFunctionRe  = regexp.MustCompile(`(?m)^def transform\s*\(.*`)
)

// ExtractPrograms pulls candidate programs out of free-form model text.
// Strategies are layered: fenced blocks tagged as Python, then untagged
// fenced blocks whose first line carries the transform signature, then a
// bare function block with no fence at all. Identical bodies are kept
// once. An empty result is a valid outcome, not an error.
func ExtractPrograms(text string) []string {
	var candidates []string

	for _, m := range taggedFenceRe.FindAllStringSubmatch(text, -1) {
		candidates = append(candidates, m[1])
	}

	if len(candidates) == 0 {
		for _, m := range untaggedFenceRe.FindAllStringSubmatch(text, -1) {
			body := m[1]
			firstLine, _, _ := strings.Cut(strings.TrimLeft(body, "\n"), "\n")
			if strings.Contains(firstLine, transformSignature) {
				candidates = append(candidates, body)
			}
		}
	}

	if len(candidates) == 0 {
		if block := bareFunctionBlock(text); block != "" {
			candidates = append(candidates, block)
		}
	}

	return dedupe(candidates)
}

// bareFunctionBlock captures a transform definition written directly into
// prose: from the signature line through the last following line that is
// still indented (or blank).
func bareFunctionBlock(text string) string {
	loc := bareFunctionRe.FindStringIndex(text)
	if loc == nil {
		return ""
	}

	lines := strings.Split(text[loc[0]:], "\n")
	end := 1
	for i := 1; i < len(lines); i++ {
		line := lines[i]
		if strings.TrimSpace(line) == "" {
			continue
		}
		if line[0] != ' ' && line[0] != '\t' {
			break
		}
		end = i + 1
	}
	return strings.Join(lines[:end], "\n")
}

func dedupe(programs []string) []string {
	if len(programs) < 2 {
		return trimAll(programs)
	}
	seen := make(map[string]bool, len(programs))
	out := make([]string, 0, len(programs))
	for _, p := range programs {
		p = strings.TrimSpace(p)
		if p == "" || seen[p] {
			continue
		}
		seen[p] = true
		out = append(out, p)
	}
	return out
}

func trimAll(programs []string) []string {
	out := programs[:0]
	for _, p := range programs {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
