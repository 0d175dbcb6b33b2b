package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"aicluster/internal/analysis"
	"aicluster/internal/fit"
	"aicluster/internal/forest"
	"aicluster/internal/server"
	"aicluster/internal/storage"
	"aicluster/internal/table"
)

const trainingCSV = `ID,a,b,c,OUT
s1,1,10,3,low
s2,2,11,4,low
s3,8,12,3,high
s4,9,13,5,high
`

type stumpFitter struct{}

func (stumpFitter) Fit(x [][]float64, y []int, classes int, p fit.Params) (*fit.Ensemble, error) {
	trees := make([]*forest.Tree, p.NumTrees)
	for i := range trees {
		trees[i] = &forest.Tree{Nodes: []forest.Node{
			forest.NewSplit(0, 5, 1, 2),
			forest.NewLeaf([]float64{1, 0}),
			forest.NewLeaf([]float64{0, 1}),
		}}
	}
	return fit.NewEnsemble(trees), nil
}

func newTestServer(t *testing.T) (*httptest.Server, *storage.Store) {
	t.Helper()
	store, err := storage.New(t.TempDir())
	require.NoError(t, err)

	srv := server.New(store, analysis.NewRunner(fit.NewTrainer(stumpFitter{}, nil)), nil, server.Config{
		UploadDir: t.TempDir(),
		Defaults:  fit.Params{NumTrees: 2, MaxDepth: 3, Iterations: 1},
	})
	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(func() {
		ts.Close()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		srv.Shutdown(ctx)
		store.Close()
	})
	return ts, store
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestClient_SubmitWaitPredict(t *testing.T) {
	ts, _ := newTestServer(t)
	c := New(ts.URL, 5*time.Second)
	ctx := context.Background()

	key, err := c.Submit(ctx, Submission{
		TrainingFile: writeFile(t, "train.csv", trainingCSV),
		NumTrees:     4,
		Depth:        3,
	})
	require.NoError(t, err)
	require.NotEmpty(t, key)

	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	artifact, err := c.Wait(waitCtx, key, 10*time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, key, artifact.Key)
	assert.Equal(t, 4, artifact.Condition.NumTrees)
	assert.Len(t, artifact.Prediction, 4)

	predictions, err := c.Predict(ctx, key, []table.Row{
		{ID: "x", Values: map[string]float64{"a": 9, "b": 1, "c": 1}},
	})
	require.NoError(t, err)
	require.Len(t, predictions, 1)
	assert.Equal(t, "x", predictions[0].ID)
	assert.Equal(t, "high", predictions[0].Prediction)
}

func TestClient_RetrieveStates(t *testing.T) {
	ts, store := newTestServer(t)
	c := New(ts.URL, 5*time.Second)
	ctx := context.Background()

	_, err := c.Retrieve(ctx, "missing")
	assert.True(t, errors.Is(err, ErrNotFound), "got %v", err)

	key, err := store.Reserve()
	require.NoError(t, err)
	_, err = c.Retrieve(ctx, key)
	assert.ErrorIs(t, err, ErrProcessing)

	_, err = c.Predict(ctx, key, []table.Row{{ID: "x", Values: map[string]float64{"a": 1}}})
	assert.ErrorIs(t, err, ErrProcessing)

	require.NoError(t, store.Fail(key, errors.New("boom")))
	_, err = c.Retrieve(ctx, key)
	assert.ErrorIs(t, err, ErrAnalysisFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestClient_WaitHonoursContext(t *testing.T) {
	ts, store := newTestServer(t)
	c := New(ts.URL, 5*time.Second)

	key, err := store.Reserve()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = c.Wait(ctx, key, 10*time.Millisecond)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestClient_SubmitErrors(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message":"invalid upload"}`))
	}))
	defer ts.Close()
	c := New(ts.URL, time.Second)

	_, err := c.Submit(context.Background(), Submission{})
	assert.Error(t, err)

	_, err = c.Submit(context.Background(), Submission{TrainingFile: writeFile(t, "t.csv", trainingCSV)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid upload")
}
