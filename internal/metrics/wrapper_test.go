package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func newTestMetrics() *Metrics {
	return NewWithRegistry(prometheus.NewRegistry())
}

func sampleCount(t *testing.T, h prometheus.Histogram) uint64 {
	t.Helper()
	m := &dto.Metric{}
	if err := h.Write(m); err != nil {
		t.Fatalf("failed to read histogram: %v", err)
	}
	return m.GetHistogram().GetSampleCount()
}

func TestNewWrapper(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	if wrapper == nil {
		t.Fatal("NewWrapper returned nil")
	}
	if wrapper.m != metrics {
		t.Error("Wrapper does not contain correct metrics instance")
	}
}

func TestNewWithRegistry_RegistersCollectors(t *testing.T) {
	registry := prometheus.NewRegistry()
	NewWithRegistry(registry)

	count, err := testutil.GatherAndCount(registry)
	if err != nil {
		t.Fatalf("gather failed: %v", err)
	}
	if count != 12 {
		t.Errorf("Expected 12 registered metrics, got %d", count)
	}
}

func TestMetricsWrapper_CounterOperations(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	if v := testutil.ToFloat64(metrics.FitsTotal); v != 0 {
		t.Errorf("Expected initial counter value 0, got %f", v)
	}

	wrapper.FitsInc()
	wrapper.FitsInc()
	if v := testutil.ToFloat64(metrics.FitsTotal); v != 2 {
		t.Errorf("Expected counter value 2, got %f", v)
	}
}

func TestMetricsWrapper_GaugeOperations(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.ActiveAnalyses(3)
	wrapper.ActiveAnalyses(1)
	wrapper.ActiveAnalyses(-2)

	if v := testutil.ToFloat64(metrics.ActiveAnalyses); v != 2 {
		t.Errorf("Expected gauge value 2, got %f", v)
	}
}

func TestMetricsWrapper_HistogramOperations(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.FitDuration(500 * time.Millisecond)
	wrapper.FitDuration(250 * time.Millisecond)
	if n := sampleCount(t, metrics.FitDuration); n != 2 {
		t.Errorf("Expected 2 fit duration observations, got %d", n)
	}

	wrapper.ForestAccuracy(0.9)
	wrapper.BestTreeAccuracy(0.8)
	wrapper.BestTreeAccuracy(0.7)
	if n := sampleCount(t, metrics.ForestAccuracy); n != 1 {
		t.Errorf("Expected 1 forest accuracy observation, got %d", n)
	}
	if n := sampleCount(t, metrics.BestTreeAccuracy); n != 2 {
		t.Errorf("Expected 2 best tree observations, got %d", n)
	}

	wrapper.PredictionLatency(10 * time.Millisecond)
	if n := sampleCount(t, metrics.PredictionLatency); n != 1 {
		t.Errorf("Expected 1 latency observation, got %d", n)
	}
}

func TestMetricsWrapper_ServiceCounters(t *testing.T) {
	metrics := newTestMetrics()
	wrapper := NewWrapper(metrics)

	wrapper.AnalysesInc()
	wrapper.AnalysesInc()
	wrapper.AnalysisFailuresInc()
	wrapper.AnalysesExpired(3)
	wrapper.PredictionsInc()
	wrapper.PredictionFailuresInc()
	wrapper.FitFailuresInc()

	checks := []struct {
		name string
		c    prometheus.Counter
		want float64
	}{
		{"analyses", metrics.AnalysesTotal, 2},
		{"analysis failures", metrics.AnalysisFailures, 1},
		{"expired", metrics.AnalysesExpired, 3},
		{"predictions", metrics.PredictionsTotal, 1},
		{"prediction failures", metrics.PredictionFailure, 1},
		{"fit failures", metrics.FitFailures, 1},
	}
	for _, c := range checks {
		if v := testutil.ToFloat64(c.c); v != c.want {
			t.Errorf("%s: expected %f, got %f", c.name, c.want, v)
		}
	}
}
