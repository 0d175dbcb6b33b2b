package forest

import (
	"fmt"
	"sort"
)

// Resolve turns the leaf distribution t reaches for x into a decision
// vector: every class sharing the maximum leaf value receives 1/k where k is
// the size of that tie set, all other classes receive 0.
func Resolve(t *Tree, x []float64) ([]float64, error) {
	value, err := t.Evaluate(0, x)
	if err != nil {
		return nil, err
	}
	if len(value) == 0 {
		return nil, fmt.Errorf("resolve: %w: empty leaf value", ErrInvalidNode)
	}

	order := make([]int, len(value))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return value[order[a]] > value[order[b]]
	})

	maxValue := value[order[0]]
	tie := 1
	for tie < len(order) && value[order[tie]] == maxValue {
		tie++
	}

	decision := make([]float64, len(value))
	w := 1 / float64(tie)
	for _, class := range order[:tie] {
		decision[class] = w
	}
	return decision, nil
}
