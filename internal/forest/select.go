package forest

import "fmt"

// Sample is a labelled input vector. Label is the index of the true group.
type Sample struct {
	Vector []float64
	Label  int
}

// Selection is the outcome of SelectBest.
type Selection struct {
	Index    int
	Tree     *Tree
	Accuracy float64
}

// TreeAccuracy is the fraction of samples t decides unambiguously and
// correctly. Tied decisions never count as a success.
func TreeAccuracy(t *Tree, samples []Sample) (float64, error) {
	if len(samples) == 0 {
		return 0, nil
	}
	success := 0
	for i, s := range samples {
		decision, err := Resolve(t, s.Vector)
		if err != nil {
			return 0, fmt.Errorf("sample %d: %w", i, err)
		}
		if s.Label < 0 || s.Label >= len(decision) {
			return 0, fmt.Errorf("sample %d: %w: label %d of %d classes", i, ErrFieldMismatch, s.Label, len(decision))
		}
		if decision[s.Label] == 1 {
			success++
		}
	}
	return float64(success) / float64(len(samples)), nil
}

// SelectBest returns the tree of f with the highest accuracy on samples. The
// earliest tree wins ties. When no tree decides a single sample correctly
// ErrNoQualifyingTree is returned and nothing is selected.
func SelectBest(f *Forest, samples []Sample) (Selection, error) {
	if len(f.Trees) == 0 {
		return Selection{}, ErrEmptyEnsemble
	}
	if len(samples) == 0 {
		return Selection{}, fmt.Errorf("select: %w: no samples", ErrNoQualifyingTree)
	}

	best := Selection{Index: -1}
	for i, t := range f.Trees {
		acc, err := TreeAccuracy(t, samples)
		if err != nil {
			return Selection{}, fmt.Errorf("select tree %d: %w", i, err)
		}
		if acc > best.Accuracy {
			best = Selection{Index: i, Tree: t, Accuracy: acc}
		}
	}
	if best.Index < 0 {
		return Selection{}, fmt.Errorf("select: %w: all %d trees score 0", ErrNoQualifyingTree, len(f.Trees))
	}
	return best, nil
}
