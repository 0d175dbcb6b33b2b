package forest

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTree_Evaluate(t *testing.T) {
	tree := stump()

	tests := []struct {
		name string
		x    []float64
		want []float64
	}{
		{name: "left", x: []float64{0.2}, want: []float64{10, 0}},
		{name: "threshold goes right", x: []float64{0.5}, want: []float64{0, 10}},
		{name: "right", x: []float64{0.9}, want: []float64{0, 10}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tree.Evaluate(0, tt.x)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestTree_EvaluateFromInnerNode(t *testing.T) {
	got, err := stump().Evaluate(2, []float64{0})
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 10}, got)
}

func TestTree_EvaluateErrors(t *testing.T) {
	tree := stump()

	_, err := tree.Evaluate(Leaf, []float64{0.2})
	assert.ErrorIs(t, err, ErrInvalidNode)

	_, err = tree.Evaluate(3, []float64{0.2})
	assert.ErrorIs(t, err, ErrInvalidNode)

	_, err = tree.Evaluate(0, nil)
	assert.ErrorIs(t, err, ErrFieldMismatch)

	cyclic := &Tree{Nodes: []Node{NewSplit(0, 1, 0, 0)}}
	_, err = cyclic.Evaluate(0, []float64{0})
	assert.ErrorIs(t, err, ErrInvalidNode)
}

func TestTree_EvaluateIgnoresUnusedMissing(t *testing.T) {
	got, err := stump().Evaluate(0, []float64{0.1, math.NaN()})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 0}, got)
}

func TestTree_EvaluateDeepTrees(t *testing.T) {
	rng := rand.New(rand.NewSource(3))
	for i := 0; i < 20; i++ {
		tree := randomTree(rng, 10, 5, 2)
		value, err := tree.Evaluate(0, randomVector(rng, 5))
		require.NoError(t, err)
		assert.Len(t, value, 2)
	}
}
