package forest

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTreeAccuracy(t *testing.T) {
	samples := []Sample{
		{Vector: []float64{0.1}, Label: 0},
		{Vector: []float64{0.9}, Label: 1},
		{Vector: []float64{0.7}, Label: 0},
		{Vector: []float64{0.3}, Label: 0},
	}
	acc, err := TreeAccuracy(stump(), samples)
	require.NoError(t, err)
	assert.Equal(t, 0.75, acc)

	// A tied decision never counts, even when it includes the truth.
	acc, err = TreeAccuracy(leafTree(5, 5), samples)
	require.NoError(t, err)
	assert.Equal(t, 0.0, acc)

	_, err = TreeAccuracy(stump(), []Sample{{Vector: []float64{0.1}, Label: 2}})
	assert.ErrorIs(t, err, ErrFieldMismatch)
}

func TestSelectBest(t *testing.T) {
	f := &Forest{
		Trees: []*Tree{
			leafTree(5, 5),
			leafTree(1, 0),
			stump(),
			stump(),
		},
		Groups: []string{"a", "b"},
		Fields: []string{"x"},
	}
	samples := []Sample{
		{Vector: []float64{0.1}, Label: 0},
		{Vector: []float64{0.9}, Label: 1},
	}

	sel, err := SelectBest(f, samples)
	require.NoError(t, err)
	assert.Equal(t, 2, sel.Index)
	assert.Same(t, f.Trees[2], sel.Tree)
	assert.Equal(t, 1.0, sel.Accuracy)
}

func TestSelectBest_Errors(t *testing.T) {
	samples := []Sample{{Vector: []float64{0.1}, Label: 1}}

	_, err := SelectBest(&Forest{}, samples)
	assert.ErrorIs(t, err, ErrEmptyEnsemble)

	f := &Forest{Trees: []*Tree{stump(), leafTree(5, 5)}, Groups: []string{"a", "b"}, Fields: []string{"x"}}
	_, err = SelectBest(f, samples)
	assert.ErrorIs(t, err, ErrNoQualifyingTree)

	_, err = SelectBest(f, nil)
	assert.ErrorIs(t, err, ErrNoQualifyingTree)
}

func TestSelectBest_IsArgmax(t *testing.T) {
	rng := rand.New(rand.NewSource(13))
	fields := []string{"a", "b", "c"}
	groups := []string{"g0", "g1"}

	for i := 0; i < 30; i++ {
		f := randomForest(rng, 2+rng.Intn(10), 1+rng.Intn(5), fields, groups)
		samples := make([]Sample, 40)
		for j := range samples {
			samples[j] = Sample{Vector: randomVector(rng, len(fields)), Label: rng.Intn(len(groups))}
		}

		accuracies := make([]float64, len(f.Trees))
		for j, tree := range f.Trees {
			acc, err := TreeAccuracy(tree, samples)
			require.NoError(t, err)
			accuracies[j] = acc
		}

		sel, err := SelectBest(f, samples)
		if errors.Is(err, ErrNoQualifyingTree) {
			for _, acc := range accuracies {
				assert.Zero(t, acc)
			}
			continue
		}
		require.NoError(t, err)

		for j, acc := range accuracies {
			assert.LessOrEqual(t, acc, sel.Accuracy)
			if j < sel.Index {
				assert.Less(t, acc, sel.Accuracy, "earlier tree %d ties the selection", j)
			}
		}
		assert.Equal(t, accuracies[sel.Index], sel.Accuracy)
	}
}
