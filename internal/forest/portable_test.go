package forest

import (
	"encoding/json"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func intPtr(v int) *int           { return &v }
func floatPtr(v float64) *float64 { return &v }

func TestLayout(t *testing.T) {
	tree := &Tree{Nodes: []Node{
		NewSplit(0, 0.5, 1, 4),
		NewSplit(1, 0.25, 2, 3),
		NewLeaf([]float64{3, 1}),
		NewLeaf([]float64{0, 2}),
		NewLeaf([]float64{1, 1}),
	}}

	pt, err := Layout(tree)
	require.NoError(t, err)
	require.Len(t, pt, 5)

	coords := make([][3]int, len(pt))
	for i, r := range pt {
		coords[i] = [3]int{r.ID, r.X, r.Y}
	}
	assert.Equal(t, [][3]int{
		{0, 0, 0},
		{1, 0, 1},
		{2, 0, 2},
		{3, 1, 2},
		{4, 1, 1},
	}, coords)

	assert.False(t, pt[0].Leaf)
	assert.Equal(t, []int{1, 4}, pt[0].Children)
	assert.Equal(t, 0, *pt[0].Feature)
	assert.Equal(t, 0.5, *pt[0].Threshold)

	assert.True(t, pt[2].Leaf)
	assert.Equal(t, []float64{3, 1}, pt[2].Value)
	assert.Equal(t, []int{Leaf, Leaf}, pt[2].Children)
	assert.Nil(t, pt[2].Feature)
	assert.Nil(t, pt[2].Threshold)
}

func TestLayout_SingleLeaf(t *testing.T) {
	pt, err := Layout(leafTree(1, 2))
	require.NoError(t, err)
	require.Len(t, pt, 1)
	assert.Equal(t, 0, pt[0].X)
	assert.Equal(t, 0, pt[0].Y)
	assert.True(t, pt[0].Leaf)
}

func TestLayout_DoesNotShareLeafValues(t *testing.T) {
	tree := stump()
	pt, err := Layout(tree)
	require.NoError(t, err)
	pt[1].Value[0] = 99
	assert.Equal(t, 10.0, tree.Nodes[1].Value[0])
}

func TestLayout_RecordsSortedByID(t *testing.T) {
	rng := rand.New(rand.NewSource(17))
	for i := 0; i < 20; i++ {
		tree := randomTree(rng, 8, 3, 2)
		pt, err := Layout(tree)
		require.NoError(t, err)
		require.Len(t, pt, len(tree.Nodes))
		for id, r := range pt {
			assert.Equal(t, id, r.ID)
		}
	}
}

func TestRoundTrip_RandomTrees(t *testing.T) {
	rng := rand.New(rand.NewSource(23))
	const fields = 6

	for depth := 1; depth <= 10; depth++ {
		for i := 0; i < 5; i++ {
			tree := randomTree(rng, depth, fields, 3)

			pt, err := Layout(tree)
			require.NoError(t, err)

			// Go through JSON as a persisted model would.
			data, err := json.Marshal(pt)
			require.NoError(t, err)
			var decoded PortableTree
			require.NoError(t, json.Unmarshal(data, &decoded))

			back, err := Deserialize(decoded)
			require.NoError(t, err)

			for j := 0; j < 25; j++ {
				x := randomVector(rng, fields)
				want, err := tree.Evaluate(0, x)
				require.NoError(t, err)
				got, err := back.Evaluate(0, x)
				require.NoError(t, err)
				assert.Equal(t, want, got)
			}
		}
	}
}

func TestSerializeForest(t *testing.T) {
	rng := rand.New(rand.NewSource(29))
	fields := []string{"a", "b", "c"}
	groups := []string{"x", "y"}
	f := randomForest(rng, 5, 4, fields, groups)

	pf, err := Serialize(f)
	require.NoError(t, err)
	require.Len(t, pf, 5)

	back, err := DeserializeForest(pf, fields, groups)
	require.NoError(t, err)
	for i := 0; i < 20; i++ {
		x := randomVector(rng, len(fields))
		want, err := f.Score(x)
		require.NoError(t, err)
		got, err := back.Score(x)
		require.NoError(t, err)
		assert.InDeltaSlice(t, want, got, 1e-12)
	}

	_, err = Serialize(&Forest{})
	assert.ErrorIs(t, err, ErrEmptyEnsemble)
	_, err = DeserializeForest(nil, fields, groups)
	assert.ErrorIs(t, err, ErrEmptyEnsemble)
}

func TestDeserialize_Malformed(t *testing.T) {
	split := func(id int, children ...int) Record {
		return Record{ID: id, Children: children, Feature: intPtr(0), Threshold: floatPtr(0.5)}
	}
	leaf := func(id int, value ...float64) Record {
		return Record{ID: id, Leaf: true, Children: []int{Leaf, Leaf}, Value: value}
	}

	tests := []struct {
		name string
		pt   PortableTree
	}{
		{name: "empty", pt: nil},
		{name: "leaf without value", pt: PortableTree{leaf(0)}},
		{name: "split without feature", pt: PortableTree{{ID: 0, Children: []int{1, 2}, Threshold: floatPtr(1)}, leaf(1, 1), leaf(2, 1)}},
		{name: "split without threshold", pt: PortableTree{{ID: 0, Children: []int{1, 2}, Feature: intPtr(0)}, leaf(1, 1), leaf(2, 1)}},
		{name: "one child", pt: PortableTree{split(0, 1), leaf(1, 1)}},
		{name: "child out of range", pt: PortableTree{split(0, 1, 3), leaf(1, 1), leaf(2, 1)}},
		{name: "id gap", pt: PortableTree{split(0, 1, 3), leaf(1, 1), leaf(3, 1)}},
		{name: "duplicate id", pt: PortableTree{split(0, 1, 2), leaf(1, 1), leaf(1, 1)}},
		{name: "shared child", pt: PortableTree{split(0, 1, 1), leaf(1, 1), leaf(2, 1)}},
		{name: "zero leaf", pt: PortableTree{split(0, 1, 2), leaf(1, 0, 0), leaf(2, 1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Deserialize(tt.pt)
			assert.ErrorIs(t, err, ErrMalformedRecord)
		})
	}
}

func TestDeserialize_AnyRecordOrder(t *testing.T) {
	pt, err := Layout(stump())
	require.NoError(t, err)
	pt[0], pt[2] = pt[2], pt[0]

	tree, err := Deserialize(pt)
	require.NoError(t, err)
	got, err := tree.Evaluate(0, []float64{0.2})
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 0}, got)
}

func TestRecord_JSON(t *testing.T) {
	pt, err := Layout(stump())
	require.NoError(t, err)

	data, err := json.Marshal(pt[0])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":0,"x":0,"y":0,"children":[1,2],"feature":0,"threshold":0.5,"leaf":false}`, string(data))

	data, err = json.Marshal(pt[1])
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":1,"x":0,"y":1,"children":[-1,-1],"feature":null,"threshold":null,"leaf":true,"value":[10,0]}`, string(data))
}
