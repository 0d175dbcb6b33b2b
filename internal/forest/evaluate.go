package forest

import "fmt"

// Evaluate descends from nodeID to a leaf, going left while
// x[feature] < threshold, and returns the leaf value unchanged. The returned
// slice aliases the tree and must not be modified.
func (t *Tree) Evaluate(nodeID int, x []float64) ([]float64, error) {
	if nodeID == Leaf || nodeID < 0 || nodeID >= len(t.Nodes) {
		return nil, fmt.Errorf("evaluate: %w: %d", ErrInvalidNode, nodeID)
	}

	id := nodeID
	// A proper tree reaches a leaf in fewer steps than it has nodes.
	for steps := 0; steps <= len(t.Nodes); steps++ {
		node := t.Nodes[id]
		if node.IsLeaf() {
			return node.Value, nil
		}
		if node.Feature < 0 || node.Feature >= len(x) {
			return nil, fmt.Errorf("evaluate node %d: %w: feature %d of vector length %d",
				id, ErrFieldMismatch, node.Feature, len(x))
		}
		next := node.Right
		if x[node.Feature] < node.Threshold {
			next = node.Left
		}
		if next < 0 || next >= len(t.Nodes) {
			return nil, fmt.Errorf("evaluate node %d: %w: child %d", id, ErrInvalidNode, next)
		}
		id = next
	}
	return nil, fmt.Errorf("evaluate: %w: cycle below node %d", ErrInvalidNode, nodeID)
}
