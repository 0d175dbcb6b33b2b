package forest

import "fmt"

// Record is the portable form of one node. Split records carry Feature,
// Threshold and both Children; leaf records carry Value.
type Record struct {
	ID        int       `json:"id"`
	X         int       `json:"x"`
	Y         int       `json:"y"`
	Children  []int     `json:"children"`
	Feature   *int      `json:"feature"`
	Threshold *float64  `json:"threshold"`
	Leaf      bool      `json:"leaf"`
	Value     []float64 `json:"value,omitempty"`
}

// PortableTree is a tree as a list of records sorted by id.
type PortableTree []Record

// PortableForest holds one portable tree per ensemble member, in order.
type PortableForest []PortableTree

// Serialize lays out every tree of f.
func Serialize(f *Forest) (PortableForest, error) {
	if len(f.Trees) == 0 {
		return nil, ErrEmptyEnsemble
	}
	pf := make(PortableForest, len(f.Trees))
	for i, t := range f.Trees {
		pt, err := Layout(t)
		if err != nil {
			return nil, fmt.Errorf("serialize tree %d: %w", i, err)
		}
		pf[i] = pt
	}
	return pf, nil
}

// Deserialize rebuilds an evaluable tree from its records. Ids must cover
// 0..N-1 exactly once, in any order.
func Deserialize(pt PortableTree) (*Tree, error) {
	if len(pt) == 0 {
		return nil, fmt.Errorf("%w: no records", ErrMalformedRecord)
	}

	nodes := make([]Node, len(pt))
	filled := make([]bool, len(pt))
	for i, r := range pt {
		if r.ID < 0 || r.ID >= len(pt) {
			return nil, fmt.Errorf("%w: record %d has id %d outside 0..%d", ErrMalformedRecord, i, r.ID, len(pt)-1)
		}
		if filled[r.ID] {
			return nil, fmt.Errorf("%w: duplicate id %d", ErrMalformedRecord, r.ID)
		}
		node, err := r.node(len(pt))
		if err != nil {
			return nil, err
		}
		nodes[r.ID] = node
		filled[r.ID] = true
	}

	t := &Tree{Nodes: nodes}
	if err := t.Validate(0); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedRecord, err)
	}
	return t, nil
}

func (r Record) node(n int) (Node, error) {
	if r.Leaf {
		if len(r.Value) == 0 {
			return Node{}, fmt.Errorf("%w: leaf %d has no value", ErrMalformedRecord, r.ID)
		}
		return NewLeaf(append([]float64(nil), r.Value...)), nil
	}

	if r.Feature == nil || r.Threshold == nil || len(r.Children) != 2 {
		return Node{}, fmt.Errorf("%w: split %d needs feature, threshold and two children", ErrMalformedRecord, r.ID)
	}
	left, right := r.Children[0], r.Children[1]
	if left < 0 || left >= n || right < 0 || right >= n {
		return Node{}, fmt.Errorf("%w: split %d has children (%d, %d) outside 0..%d",
			ErrMalformedRecord, r.ID, left, right, n-1)
	}
	return NewSplit(*r.Feature, *r.Threshold, left, right), nil
}

// DeserializeForest rehydrates every tree of pf and assembles a forest over
// fields and groups.
func DeserializeForest(pf PortableForest, fields, groups []string) (*Forest, error) {
	if len(pf) == 0 {
		return nil, ErrEmptyEnsemble
	}
	trees := make([]*Tree, len(pf))
	for i, pt := range pf {
		t, err := Deserialize(pt)
		if err != nil {
			return nil, fmt.Errorf("tree %d: %w", i, err)
		}
		trees[i] = t
	}
	return NewForest(trees, groups, fields)
}
