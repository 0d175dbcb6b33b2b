package metrics

import "time"

// MetricsWrapper adapts Metrics to the narrow interfaces of the trainer and
// the HTTP service.
type MetricsWrapper struct {
	m *Metrics
}

func NewWrapper(m *Metrics) *MetricsWrapper {
	return &MetricsWrapper{m: m}
}

// Training

func (w *MetricsWrapper) FitsInc()                    { w.m.FitsTotal.Inc() }
func (w *MetricsWrapper) FitFailuresInc()             { w.m.FitFailures.Inc() }
func (w *MetricsWrapper) FitDuration(d time.Duration) { w.m.FitDuration.Observe(d.Seconds()) }
func (w *MetricsWrapper) ForestAccuracy(v float64)    { w.m.ForestAccuracy.Observe(v) }
func (w *MetricsWrapper) BestTreeAccuracy(v float64)  { w.m.BestTreeAccuracy.Observe(v) }

// Service

func (w *MetricsWrapper) AnalysesInc()                      { w.m.AnalysesTotal.Inc() }
func (w *MetricsWrapper) AnalysisFailuresInc()              { w.m.AnalysisFailures.Inc() }
func (w *MetricsWrapper) AnalysesExpired(n int)             { w.m.AnalysesExpired.Add(float64(n)) }
func (w *MetricsWrapper) ActiveAnalyses(delta float64)      { w.m.ActiveAnalyses.Add(delta) }
func (w *MetricsWrapper) PredictionsInc()                   { w.m.PredictionsTotal.Inc() }
func (w *MetricsWrapper) PredictionFailuresInc()            { w.m.PredictionFailure.Inc() }
func (w *MetricsWrapper) PredictionLatency(d time.Duration) { w.m.PredictionLatency.Observe(d.Seconds()) }
