package fit

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"aicluster/internal/forest"
	"aicluster/internal/table"
)

// MetricsInterface receives training statistics.
type MetricsInterface interface {
	FitsInc()
	FitFailuresInc()
	FitDuration(d time.Duration)
	ForestAccuracy(v float64)
	BestTreeAccuracy(v float64)
}

type noopMetrics struct{}

func (noopMetrics) FitsInc()                  {}
func (noopMetrics) FitFailuresInc()           {}
func (noopMetrics) FitDuration(time.Duration) {}
func (noopMetrics) ForestAccuracy(float64)    {}
func (noopMetrics) BestTreeAccuracy(float64)  {}

// Result is the reduction of every fitting iteration.
type Result struct {
	Forest           *forest.Forest
	BestTree         *forest.Tree
	BestTreeIndex    int
	BestTreeAccuracy float64
	Accuracy         float64
	Weights          forest.Weights
	Iterations       int
}

// Trainer runs repeated fits and keeps the best forest and tree.
type Trainer struct {
	fitter  Fitter
	metrics MetricsInterface
}

// NewTrainer returns a trainer. metrics may be nil.
func NewTrainer(fitter Fitter, metrics MetricsInterface) *Trainer {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Trainer{fitter: fitter, metrics: metrics}
}

type iteration struct {
	forest    *forest.Forest
	accuracy  float64
	selection forest.Selection
	qualified bool
	err       error
}

// Groups returns the distinct labels of rows in order of first appearance.
func Groups(rows []table.Row) []string {
	seen := make(map[string]struct{})
	var groups []string
	for _, row := range rows {
		if _, ok := seen[row.Label]; ok {
			continue
		}
		seen[row.Label] = struct{}{}
		groups = append(groups, row.Label)
	}
	return groups
}

// Train fits p.Iterations independent forests over rows and reduces them in
// iteration order: the forest with the strictly highest hard accuracy, the
// tree with the strictly highest decision accuracy and the split usage
// weights over all forests.
func (t *Trainer) Train(ctx context.Context, rows []table.Row, fields []string, p Params) (*Result, error) {
	p = p.Normalize()

	if err := table.RequireLabels(rows); err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("train: %w: no fields", forest.ErrFieldMismatch)
	}

	groups := Groups(rows)
	index := make(map[string]int, len(groups))
	for i, g := range groups {
		index[g] = i
	}

	xs, err := table.Matrix(rows, fields)
	if err != nil {
		return nil, err
	}
	y := make([]int, len(rows))
	samples := make([]forest.Sample, len(rows))
	for i, row := range rows {
		y[i] = index[row.Label]
		samples[i] = forest.Sample{Vector: xs[i], Label: y[i]}
	}

	log.Info().
		Int("samples", len(rows)).
		Int("fields", len(fields)).
		Int("groups", len(groups)).
		Int("trees", p.NumTrees).
		Int("depth", p.MaxDepth).
		Int("iterations", p.Iterations).
		Msg("Training forest")

	results := make([]iteration, p.Iterations)
	jobs := make(chan int)
	var wg sync.WaitGroup
	for w := 0; w < p.Workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				if err := ctx.Err(); err != nil {
					results[i].err = err
					continue
				}
				results[i] = t.fitOnce(xs, y, samples, groups, fields, p)
				if results[i].err == nil {
					log.Debug().
						Int("iteration", i).
						Float64("accuracy", results[i].accuracy).
						Float64("best_tree_accuracy", results[i].selection.Accuracy).
						Msg("Fitting iteration complete")
				}
			}
		}()
	}
	for i := 0; i < p.Iterations; i++ {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	res := &Result{Iterations: p.Iterations, BestTreeIndex: -1}
	profiler := forest.NewProfiler(fields)
	for i, it := range results {
		if it.err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, it.err)
		}
		if res.Forest == nil || it.accuracy > res.Accuracy {
			res.Forest = it.forest
			res.Accuracy = it.accuracy
		}
		if it.qualified && it.selection.Accuracy > res.BestTreeAccuracy {
			res.BestTree = it.selection.Tree
			res.BestTreeIndex = it.selection.Index
			res.BestTreeAccuracy = it.selection.Accuracy
		}
		if err := profiler.Add(it.forest); err != nil {
			return nil, fmt.Errorf("iteration %d: %w", i, err)
		}
	}
	if res.BestTree == nil {
		return nil, fmt.Errorf("train: %w", forest.ErrNoQualifyingTree)
	}

	res.Weights, err = profiler.Weights(p.Iterations)
	if err != nil {
		return nil, err
	}

	log.Info().
		Float64("accuracy", res.Accuracy).
		Float64("best_tree_accuracy", res.BestTreeAccuracy).
		Int("weighted_fields", len(res.Weights)).
		Msg("Training complete")
	return res, nil
}

func (t *Trainer) fitOnce(xs [][]float64, y []int, samples []forest.Sample, groups, fields []string, p Params) iteration {
	start := time.Now()
	ensemble, err := t.fitter.Fit(xs, y, len(groups), p)
	t.metrics.FitDuration(time.Since(start))
	if err != nil {
		t.metrics.FitFailuresInc()
		return iteration{err: fmt.Errorf("fit: %w", err)}
	}
	t.metrics.FitsInc()

	f, err := forest.NewForest(ensemble.Trees, groups, fields)
	if err != nil {
		t.metrics.FitFailuresInc()
		return iteration{err: err}
	}

	acc, err := ensemble.Accuracy(xs, y)
	if err != nil {
		return iteration{err: err}
	}
	t.metrics.ForestAccuracy(acc)

	it := iteration{forest: f, accuracy: acc}
	sel, err := forest.SelectBest(f, samples)
	switch {
	case err == nil:
		it.selection = sel
		it.qualified = true
		t.metrics.BestTreeAccuracy(sel.Accuracy)
	case errors.Is(err, forest.ErrNoQualifyingTree):
	default:
		it.err = err
	}
	return it
}
