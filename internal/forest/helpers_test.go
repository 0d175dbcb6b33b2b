package forest

import "math/rand"

// stump is the two-class single split on feature 0 at 0.5.
func stump() *Tree {
	return &Tree{Nodes: []Node{
		NewSplit(0, 0.5, 1, 2),
		NewLeaf([]float64{10, 0}),
		NewLeaf([]float64{0, 10}),
	}}
}

// randomTree grows a tree in pre-order with leaves no deeper than maxDepth.
func randomTree(rng *rand.Rand, maxDepth, fields, classes int) *Tree {
	t := &Tree{}
	var grow func(depth int) int
	grow = func(depth int) int {
		id := len(t.Nodes)
		t.Nodes = append(t.Nodes, Node{})
		if depth == maxDepth || (depth > 0 && rng.Float64() < 0.25) {
			value := make([]float64, classes)
			for i := range value {
				value[i] = float64(rng.Intn(4))
			}
			value[rng.Intn(classes)]++
			t.Nodes[id] = NewLeaf(value)
			return id
		}
		feature := rng.Intn(fields)
		threshold := rng.Float64()
		left := grow(depth + 1)
		right := grow(depth + 1)
		t.Nodes[id] = NewSplit(feature, threshold, left, right)
		return id
	}
	grow(0)
	return t
}

func randomVector(rng *rand.Rand, fields int) []float64 {
	x := make([]float64, fields)
	for i := range x {
		x[i] = rng.Float64()
	}
	return x
}

func randomForest(rng *rand.Rand, trees, maxDepth int, fields, groups []string) *Forest {
	f := &Forest{Groups: groups, Fields: fields}
	for i := 0; i < trees; i++ {
		f.Trees = append(f.Trees, randomTree(rng, maxDepth, len(fields), len(groups)))
	}
	return f
}
