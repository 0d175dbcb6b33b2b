// Package metrics provides Prometheus metrics collection for forest training,
// prediction and the analysis service. The collectors are exposed via the
// service's /metrics endpoint.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics of the service.
type Metrics struct {
	// Training metrics
	FitsTotal        prometheus.Counter   // Total number of completed fits
	FitFailures      prometheus.Counter   // Total number of failed fits
	FitDuration      prometheus.Histogram // Duration of a single fit
	ForestAccuracy   prometheus.Histogram // Hard accuracy of each fitted forest
	BestTreeAccuracy prometheus.Histogram // Decision accuracy of each selected tree

	// Prediction metrics
	PredictionsTotal  prometheus.Counter   // Total number of prediction requests served
	PredictionFailure prometheus.Counter   // Total number of failed prediction requests
	PredictionLatency prometheus.Histogram // Latency of prediction requests

	// Analysis metrics
	AnalysesTotal    prometheus.Counter // Total number of submitted analyses
	AnalysisFailures prometheus.Counter // Total number of failed analyses
	AnalysesExpired  prometheus.Counter // Total number of expired analysis records
	ActiveAnalyses   prometheus.Gauge   // Analyses currently running
}

var accuracyBuckets = []float64{0.1, 0.2, 0.3, 0.4, 0.5, 0.6, 0.7, 0.8, 0.9, 0.95, 1}

// New creates and registers all Prometheus metrics using the default registry.
func New() *Metrics {
	return NewWithRegistry(prometheus.DefaultRegisterer)
}

// NewWithRegistry creates metrics with a custom registry (useful for testing).
func NewWithRegistry(registerer prometheus.Registerer) *Metrics {
	factory := promauto.With(registerer)
	return &Metrics{
		FitsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "fits_total",
			Help: "Total number of completed forest fits",
		}),
		FitFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "fit_failures_total",
			Help: "Total number of failed forest fits",
		}),
		FitDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "fit_duration_seconds",
			Help:    "Duration of a single forest fit in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ForestAccuracy: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "forest_accuracy",
			Help:    "Training accuracy of fitted forests",
			Buckets: accuracyBuckets,
		}),
		BestTreeAccuracy: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "best_tree_accuracy",
			Help:    "Decision accuracy of the selected best tree",
			Buckets: accuracyBuckets,
		}),
		PredictionsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "predictions_total",
			Help: "Total number of prediction requests served",
		}),
		PredictionFailure: factory.NewCounter(prometheus.CounterOpts{
			Name: "prediction_failures_total",
			Help: "Total number of failed prediction requests",
		}),
		PredictionLatency: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "prediction_latency_seconds",
			Help:    "Prediction request latency in seconds",
			Buckets: prometheus.DefBuckets,
		}),
		AnalysesTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "analyses_total",
			Help: "Total number of submitted analyses",
		}),
		AnalysisFailures: factory.NewCounter(prometheus.CounterOpts{
			Name: "analysis_failures_total",
			Help: "Total number of failed analyses",
		}),
		AnalysesExpired: factory.NewCounter(prometheus.CounterOpts{
			Name: "analyses_expired_total",
			Help: "Total number of expired analysis records",
		}),
		ActiveAnalyses: factory.NewGauge(prometheus.GaugeOpts{
			Name: "active_analyses",
			Help: "Number of analyses currently running",
		}),
	}
}
