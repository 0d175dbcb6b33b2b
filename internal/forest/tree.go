// Package forest evaluates, introspects and persists ensembles of binary
// decision trees that classify samples into named groups.
//
// Trees are stored as flat node arrays addressed by index with the root at
// index 0. A Forest couples an ordered list of such trees with the group
// labels (class ids) and the field ordering used to build input vectors.
// Forests are read-only once built; every operation in this package leaves
// its inputs untouched.
package forest

import (
	"fmt"
	"math"
)

// Leaf is the child id stored in both children of a terminal node.
const Leaf = -1

// Node is either a split node (Feature, Threshold, Left, Right) or a leaf
// (Value, both children set to Leaf).
type Node struct {
	Feature   int
	Threshold float64
	Left      int
	Right     int
	Value     []float64 // per-class weights, leaves only
}

// IsLeaf reports whether the node is terminal.
func (n Node) IsLeaf() bool {
	return n.Left == Leaf && n.Right == Leaf
}

// NewSplit returns a split node.
func NewSplit(feature int, threshold float64, left, right int) Node {
	return Node{Feature: feature, Threshold: threshold, Left: left, Right: right}
}

// NewLeaf returns a leaf node holding value.
func NewLeaf(value []float64) Node {
	return Node{Feature: Leaf, Left: Leaf, Right: Leaf, Value: value}
}

// Tree is an array-indexed binary tree.
type Tree struct {
	Nodes []Node
}

// Size returns the number of nodes.
func (t *Tree) Size() int {
	return len(t.Nodes)
}

// Validate checks the structural invariants of the tree: children are valid
// ids, every node except the root has exactly one parent, every node is
// reachable from the root and leaves carry a non-negative, non-zero value.
// When classes is positive the leaf values must have exactly that length.
func (t *Tree) Validate(classes int) error {
	if t == nil || len(t.Nodes) == 0 {
		return fmt.Errorf("%w: empty tree", ErrInvalidNode)
	}

	n := len(t.Nodes)
	parents := make([]int, n)
	for id, node := range t.Nodes {
		if node.IsLeaf() {
			if err := validateLeafValue(id, node.Value, classes); err != nil {
				return err
			}
			continue
		}
		if node.Left == Leaf || node.Right == Leaf {
			return fmt.Errorf("%w: node %d has a single child", ErrInvalidNode, id)
		}
		if node.Left < 0 || node.Left >= n || node.Right < 0 || node.Right >= n {
			return fmt.Errorf("%w: node %d references children (%d, %d) outside 0..%d",
				ErrInvalidNode, id, node.Left, node.Right, n-1)
		}
		if node.Feature < 0 {
			return fmt.Errorf("%w: split node %d has feature %d", ErrInvalidNode, id, node.Feature)
		}
		parents[node.Left]++
		parents[node.Right]++
	}

	if parents[0] != 0 {
		return fmt.Errorf("%w: root is referenced as a child", ErrInvalidNode)
	}
	for id := 1; id < n; id++ {
		if parents[id] != 1 {
			return fmt.Errorf("%w: node %d has %d parents", ErrInvalidNode, id, parents[id])
		}
	}

	// With single parents everywhere, anything unreachable sits on a cycle.
	visited := 0
	stack := []int{0}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		visited++
		if node := t.Nodes[id]; !node.IsLeaf() {
			stack = append(stack, node.Right, node.Left)
		}
	}
	if visited != n {
		return fmt.Errorf("%w: %d of %d nodes unreachable from root", ErrInvalidNode, n-visited, n)
	}
	return nil
}

func validateLeafValue(id int, value []float64, classes int) error {
	if len(value) == 0 {
		return fmt.Errorf("%w: leaf %d has no value", ErrInvalidNode, id)
	}
	if classes > 0 && len(value) != classes {
		return fmt.Errorf("%w: leaf %d has %d values, want %d", ErrInvalidNode, id, len(value), classes)
	}
	sum := 0.0
	for _, v := range value {
		if v < 0 || math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: leaf %d has value %v", ErrInvalidNode, id, value)
		}
		sum += v
	}
	if sum == 0 {
		return fmt.Errorf("%w: leaf %d", ErrDegenerateLeaf, id)
	}
	return nil
}

// Depth returns the length of the longest root-to-leaf path. A single leaf
// has depth 0.
func (t *Tree) Depth() int {
	type item struct{ id, depth int }
	maxDepth := 0
	stack := []item{{0, 0}}
	for len(stack) > 0 {
		it := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := t.Nodes[it.id]
		if node.IsLeaf() {
			if it.depth > maxDepth {
				maxDepth = it.depth
			}
			continue
		}
		stack = append(stack, item{node.Left, it.depth + 1}, item{node.Right, it.depth + 1})
	}
	return maxDepth
}

// TotalScores sums the leaf values of the subtree rooted at nodeID.
func (t *Tree) TotalScores(nodeID int) ([]float64, error) {
	if nodeID == Leaf || nodeID < 0 || nodeID >= len(t.Nodes) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidNode, nodeID)
	}

	var total []float64
	stack := []int{nodeID}
	for len(stack) > 0 {
		id := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		node := t.Nodes[id]
		if !node.IsLeaf() {
			stack = append(stack, node.Right, node.Left)
			continue
		}
		if len(node.Value) > len(total) {
			grown := make([]float64, len(node.Value))
			copy(grown, total)
			total = grown
		}
		for i, v := range node.Value {
			total[i] += v
		}
	}
	return total, nil
}

// Forest is an ordered ensemble of trees sharing a group and field ordering.
// Groups[i] is the label of class id i; Fields[j] names vector slot j.
type Forest struct {
	Trees  []*Tree
	Groups []string
	Fields []string
}

// NewForest validates every tree against the group and field lists and
// returns the assembled forest.
func NewForest(trees []*Tree, groups, fields []string) (*Forest, error) {
	for i, t := range trees {
		if err := t.Validate(len(groups)); err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		for id, node := range t.Nodes {
			if !node.IsLeaf() && node.Feature >= len(fields) {
				return nil, fmt.Errorf("tree %d node %d: %w: feature %d of %d fields",
					i, id, ErrFieldMismatch, node.Feature, len(fields))
			}
		}
	}
	return &Forest{Trees: trees, Groups: groups, Fields: fields}, nil
}

// Classes returns the number of groups.
func (f *Forest) Classes() int {
	return len(f.Groups)
}

// Len returns the number of trees.
func (f *Forest) Len() int {
	return len(f.Trees)
}
