package fit

import (
	"fmt"
	"math"

	randomforest "github.com/malaschitz/randomForest"

	"aicluster/internal/forest"
)

// RandomForest fits with github.com/malaschitz/randomForest and converts its
// branches into array trees.
type RandomForest struct{}

// NewRandomForest returns the default fitter.
func NewRandomForest() *RandomForest {
	return &RandomForest{}
}

func (RandomForest) Fit(x [][]float64, y []int, classes int, p Params) (*Ensemble, error) {
	if len(x) == 0 {
		return nil, fmt.Errorf("fit: no samples")
	}
	if len(x) != len(y) {
		return nil, fmt.Errorf("fit: %d samples but %d labels", len(x), len(y))
	}
	for i, label := range y {
		if label < 0 || label >= classes {
			return nil, fmt.Errorf("fit: label %d of sample %d outside 0..%d", label, i, classes-1)
		}
	}

	// The library counts the root as depth 1.
	rf := &randomforest.Forest{MaxDepth: p.MaxDepth + 1}
	rf.Data = randomforest.ForestData{X: x, Class: y}
	rf.Train(p.NumTrees)

	trees := make([]*forest.Tree, 0, len(rf.Trees))
	for i := range rf.Trees {
		t := convertBranch(&rf.Trees[i].Root, classes)
		pruned, err := Prune(t, p.MaxDepth)
		if err != nil {
			return nil, fmt.Errorf("fit tree %d: %w", i, err)
		}
		if err := pruned.Validate(classes); err != nil {
			return nil, fmt.Errorf("fit tree %d: %w", i, err)
		}
		trees = append(trees, pruned)
	}

	return NewEnsemble(trees), nil
}

// convertBranch lays a library tree out in pre-order. The library sends
// x > v to Branch1, so Branch0 becomes the left child with threshold
// nextafter(v, +Inf): x < nextafter(v) holds exactly when x <= v.
func convertBranch(root *randomforest.Branch, classes int) *forest.Tree {
	t := &forest.Tree{}

	var walk func(b *randomforest.Branch) int
	walk = func(b *randomforest.Branch) int {
		id := len(t.Nodes)
		t.Nodes = append(t.Nodes, forest.Node{})
		if b.IsLeaf || b.Branch0 == nil || b.Branch1 == nil {
			t.Nodes[id] = forest.NewLeaf(leafValue(b.LeafValue, b.Size, classes))
			return id
		}
		left := walk(b.Branch0)
		right := walk(b.Branch1)
		t.Nodes[id] = forest.NewSplit(b.Attribute, math.Nextafter(b.Value, math.Inf(1)), left, right)
		return id
	}
	walk(root)
	return t
}

// leafValue turns the class fractions of a leaf holding size samples into
// per-class sample counts padded to classes entries, so folded subtrees sum
// to the samples below them. An empty leaf votes uniformly.
func leafValue(v []float64, size, classes int) []float64 {
	out := make([]float64, classes)
	copy(out, v)
	scale := 1.0
	if size > 0 {
		scale = float64(size)
	}
	sum := 0.0
	for i, w := range out {
		if w < 0 || math.IsNaN(w) {
			out[i] = 0
			continue
		}
		out[i] = w * scale
		sum += out[i]
	}
	if sum == 0 {
		for i := range out {
			out[i] = 1
		}
	}
	return out
}
