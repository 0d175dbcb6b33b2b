package fit

import (
	"fmt"

	"aicluster/internal/forest"
)

// Fitter grows an ensemble of trees from labelled vectors. Labels are class
// indexes in 0..classes-1.
type Fitter interface {
	Fit(x [][]float64, y []int, classes int, p Params) (*Ensemble, error)
}

// Ensemble is what a Fitter returns: the converted trees that are persisted
// and scored.
type Ensemble struct {
	Trees []*forest.Tree
}

func NewEnsemble(trees []*forest.Tree) *Ensemble {
	return &Ensemble{Trees: trees}
}

func (e *Ensemble) asForest(fields int) *forest.Forest {
	return &forest.Forest{Trees: e.Trees, Fields: make([]string, fields)}
}

// Predict returns the class with the highest soft vote of the trees for x;
// the lowest class wins ties.
func (e *Ensemble) Predict(x []float64) (int, error) {
	score, err := e.asForest(len(x)).Score(x)
	if err != nil {
		return -1, err
	}
	return argmax(score), nil
}

// Accuracy is the fraction of xs whose prediction equals the label in y.
func (e *Ensemble) Accuracy(xs [][]float64, y []int) (float64, error) {
	if len(xs) == 0 {
		return 0, nil
	}
	scores, err := e.asForest(len(xs[0])).ScoreAll(xs)
	if err != nil {
		return 0, err
	}
	hits := 0
	for i, score := range scores {
		if argmax(score) == y[i] {
			hits++
		}
	}
	return float64(hits) / float64(len(xs)), nil
}

func argmax(v []float64) int {
	best := 0
	for i, x := range v {
		if x > v[best] {
			best = i
		}
	}
	return best
}

// Prune folds every split at maxDepth into a leaf holding the summed leaf
// values of its subtree. Nodes are renumbered in pre-order.
func Prune(t *forest.Tree, maxDepth int) (*forest.Tree, error) {
	out := &forest.Tree{Nodes: make([]forest.Node, 0, len(t.Nodes))}

	var copyNode func(id, depth int) (int, error)
	copyNode = func(id, depth int) (int, error) {
		node := t.Nodes[id]
		newID := len(out.Nodes)
		out.Nodes = append(out.Nodes, forest.Node{})

		if node.IsLeaf() {
			out.Nodes[newID] = forest.NewLeaf(node.Value)
			return newID, nil
		}
		if depth >= maxDepth {
			total, err := t.TotalScores(id)
			if err != nil {
				return 0, err
			}
			out.Nodes[newID] = forest.NewLeaf(total)
			return newID, nil
		}

		left, err := copyNode(node.Left, depth+1)
		if err != nil {
			return 0, err
		}
		right, err := copyNode(node.Right, depth+1)
		if err != nil {
			return 0, err
		}
		out.Nodes[newID] = forest.NewSplit(node.Feature, node.Threshold, left, right)
		return newID, nil
	}

	if len(t.Nodes) == 0 {
		return nil, fmt.Errorf("prune: %w: empty tree", forest.ErrInvalidNode)
	}
	if _, err := copyNode(0, 0); err != nil {
		return nil, err
	}
	return out, nil
}
