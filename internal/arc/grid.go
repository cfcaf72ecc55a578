// Package arc defines ARC-AGI puzzle types and the puzzle file loader.
package arc

// Grid is a 2D array of small integers representing a puzzle input or output.
type Grid [][]int

// Equal reports whether two grids have identical dimensions and cells.
func (g Grid) Equal(other Grid) bool {
	if len(g) != len(other) {
		return false
	}
	for i := range g {
		if len(g[i]) != len(other[i]) {
			return false
		}
		for j := range g[i] {
			if g[i][j] != other[i][j] {
				return false
			}
		}
	}
	return true
}

// Pair is one input/output example. Output may be nil for test pairs
// whose solution is withheld.
type Pair struct {
	Input  Grid `json:"input"`
	Output Grid `json:"output,omitempty"`
}

// Task is a full ARC puzzle: training examples plus test inputs.
type Task struct {
	ID    string `json:"id,omitempty"`
	Train []Pair `json:"train"`
	Test  []Pair `json:"test"`
}
