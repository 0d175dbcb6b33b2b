package forest

import (
	"fmt"
	"sort"
)

// Layout encodes t as a portable tree with drawing coordinates. y is the
// depth of a node. Within a level every child of a split node takes the next
// horizontal slot, starting again from zero on each level; split children
// carry their slot into the next level while leaf children are emitted
// immediately. Records are returned sorted by id.
func Layout(t *Tree) (PortableTree, error) {
	if err := t.Validate(0); err != nil {
		return nil, fmt.Errorf("layout: %w", err)
	}

	records := make(PortableTree, 0, len(t.Nodes))
	if t.Nodes[0].IsLeaf() {
		records = append(records, newRecord(t, 0, 0, 0))
		return records, nil
	}

	type slot struct{ id, x int }
	level := []slot{{0, 0}}
	for depth := 0; len(level) > 0; depth++ {
		var next []slot
		x := 0
		for _, s := range level {
			records = append(records, newRecord(t, s.id, s.x, depth))
			node := t.Nodes[s.id]
			for _, child := range [2]int{node.Left, node.Right} {
				if t.Nodes[child].IsLeaf() {
					records = append(records, newRecord(t, child, x, depth+1))
				} else {
					next = append(next, slot{child, x})
				}
				x++
			}
		}
		level = next
	}

	sort.Slice(records, func(i, j int) bool { return records[i].ID < records[j].ID })
	return records, nil
}

func newRecord(t *Tree, id, x, y int) Record {
	node := t.Nodes[id]
	r := Record{
		ID:       id,
		X:        x,
		Y:        y,
		Children: []int{node.Left, node.Right},
	}
	if node.IsLeaf() {
		r.Leaf = true
		r.Value = append([]float64(nil), node.Value...)
		return r
	}
	feature, threshold := node.Feature, node.Threshold
	r.Feature = &feature
	r.Threshold = &threshold
	return r
}
