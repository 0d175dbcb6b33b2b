// Package fit grows decision forests through an external fitting library and
// reduces repeated fitting iterations into a single result.
package fit

import "aicluster/internal/common"

// Params controls one training run.
type Params struct {
	NumTrees   int
	MaxDepth   int
	Iterations int
	Workers    int
}

// Normalize clamps every parameter into its supported range.
func (p Params) Normalize() Params {
	p.NumTrees = clamp(p.NumTrees, common.MinNumTrees, common.MaxNumTrees)
	p.MaxDepth = clamp(p.MaxDepth, common.MinMaxDepth, common.MaxMaxDepth)
	p.Iterations = clamp(p.Iterations, common.MinIterations, common.MaxIterations)
	p.Workers = clamp(p.Workers, common.MinWorkers, common.MaxWorkers)
	return p
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
