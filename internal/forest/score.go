package forest

import (
	"fmt"

	"gonum.org/v1/gonum/floats"
)

// Score averages the normalised leaf distributions of every tree for x
// (soft voting). The result has one entry per group and sums to one.
func (f *Forest) Score(x []float64) ([]float64, error) {
	if len(f.Trees) == 0 {
		return nil, ErrEmptyEnsemble
	}
	if len(x) != len(f.Fields) {
		return nil, fmt.Errorf("score: %w: vector length %d, %d fields", ErrFieldMismatch, len(x), len(f.Fields))
	}

	var score []float64
	for i, t := range f.Trees {
		value, err := t.Evaluate(0, x)
		if err != nil {
			return nil, fmt.Errorf("score tree %d: %w", i, err)
		}
		sum := floats.Sum(value)
		if sum == 0 {
			return nil, fmt.Errorf("score tree %d: %w", i, ErrDegenerateLeaf)
		}
		if score == nil {
			score = make([]float64, len(value))
		} else if len(value) != len(score) {
			return nil, fmt.Errorf("score tree %d: %w: %d classes, want %d",
				i, ErrInvalidNode, len(value), len(score))
		}
		floats.AddScaled(score, 1/sum, value)
	}
	floats.Scale(1/float64(len(f.Trees)), score)
	return score, nil
}

// ScoreAll scores every vector of xs. It stops at the first failure.
func (f *Forest) ScoreAll(xs [][]float64) ([][]float64, error) {
	scores := make([][]float64, len(xs))
	for i, x := range xs {
		s, err := f.Score(x)
		if err != nil {
			return nil, fmt.Errorf("sample %d: %w", i, err)
		}
		scores[i] = s
	}
	return scores, nil
}
