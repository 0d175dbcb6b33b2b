package forest

import (
	"fmt"
	"slices"
	"sort"
)

// Weights maps a field name to the share of trees that split on it.
type Weights map[string]float64

// FieldWeight is one entry of a ranked Weights.
type FieldWeight struct {
	Field  string  `json:"field"`
	Weight float64 `json:"weight"`
}

// Ranked returns the weights sorted by weight descending, then by field name.
func (w Weights) Ranked() []FieldWeight {
	ranked := make([]FieldWeight, 0, len(w))
	for field, weight := range w {
		ranked = append(ranked, FieldWeight{Field: field, Weight: weight})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Weight != ranked[j].Weight {
			return ranked[i].Weight > ranked[j].Weight
		}
		return ranked[i].Field < ranked[j].Field
	})
	return ranked
}

// Profiler tallies split usage over independently fitted forests that share
// a field list and ensemble size. Each tree counts a field at most once.
type Profiler struct {
	fields  []string
	trees   int
	forests int
	counts  []int
}

// NewProfiler returns a profiler for forests built over fields.
func NewProfiler(fields []string) *Profiler {
	return &Profiler{
		fields: fields,
		trees:  -1,
		counts: make([]int, len(fields)),
	}
}

// Add tallies the split fields of every tree in f.
func (p *Profiler) Add(f *Forest) error {
	if len(f.Trees) == 0 {
		return ErrEmptyEnsemble
	}
	if !slices.Equal(f.Fields, p.fields) {
		return fmt.Errorf("profile: %w: forest fields %v, want %v", ErrFieldMismatch, f.Fields, p.fields)
	}
	if p.trees >= 0 && len(f.Trees) != p.trees {
		return fmt.Errorf("profile: forest has %d trees, want %d", len(f.Trees), p.trees)
	}

	seen := make([]bool, len(p.fields))
	for i, t := range f.Trees {
		clear(seen)
		for id, node := range t.Nodes {
			if node.IsLeaf() {
				continue
			}
			if node.Feature < 0 || node.Feature >= len(p.fields) {
				return fmt.Errorf("profile tree %d node %d: %w: feature %d", i, id, ErrFieldMismatch, node.Feature)
			}
			seen[node.Feature] = true
		}
		for feature, ok := range seen {
			if ok {
				p.counts[feature]++
			}
		}
	}
	p.trees = len(f.Trees)
	p.forests++
	return nil
}

// Forests returns how many forests have been added.
func (p *Profiler) Forests() int {
	return p.forests
}

// Weights normalises the tallies by iterations times the ensemble size.
// The caller is responsible for passing the number of fitting iterations the
// tallies were gathered over.
func (p *Profiler) Weights(iterations int) (Weights, error) {
	if p.forests == 0 {
		return nil, ErrEmptyEnsemble
	}
	if iterations < 1 {
		return nil, fmt.Errorf("profile: iterations must be positive, got %d", iterations)
	}

	norm := float64(iterations * p.trees)
	w := make(Weights)
	for feature, count := range p.counts {
		if count > 0 {
			w[p.fields[feature]] = float64(count) / norm
		}
	}
	return w, nil
}

// Profile tallies forests and normalises by their number.
func Profile(forests []*Forest) (Weights, error) {
	if len(forests) == 0 {
		return nil, ErrEmptyEnsemble
	}
	p := NewProfiler(forests[0].Fields)
	for i, f := range forests {
		if err := p.Add(f); err != nil {
			return nil, fmt.Errorf("forest %d: %w", i, err)
		}
	}
	return p.Weights(p.Forests())
}
