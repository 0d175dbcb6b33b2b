package fit

import (
	"sync"
	"time"

	"aicluster/internal/forest"
)

// MockMetrics implements MetricsInterface for testing
type MockMetrics struct {
	mu             sync.Mutex
	fits           int
	failures       int
	durations      int
	accuracies     []float64
	bestAccuracies []float64
}

func (m *MockMetrics) FitsInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fits++
}

func (m *MockMetrics) FitFailuresInc() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures++
}

func (m *MockMetrics) FitDuration(time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.durations++
}

func (m *MockMetrics) ForestAccuracy(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.accuracies = append(m.accuracies, v)
}

func (m *MockMetrics) BestTreeAccuracy(v float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bestAccuracies = append(m.bestAccuracies, v)
}

// fakeFitter returns the same trees on every call.
type fakeFitter struct {
	mu    sync.Mutex
	calls int
	trees func() []*forest.Tree
	err   error
}

func (f *fakeFitter) Fit(x [][]float64, y []int, classes int, p Params) (*Ensemble, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return NewEnsemble(f.trees()), nil
}

func splitTree(feature int, threshold float64, left, right []float64) *forest.Tree {
	return &forest.Tree{Nodes: []forest.Node{
		forest.NewSplit(feature, threshold, 1, 2),
		forest.NewLeaf(left),
		forest.NewLeaf(right),
	}}
}
