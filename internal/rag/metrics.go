package rag

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// controllerMetrics holds the Hierarchical Controller's Prometheus
// instrumentation: one counter observation per level per request
// (accepted or rejected), a fallback counter, and a latency histogram
// for the whole cascade.
type controllerMetrics struct {
	levelOutcomes  *prometheus.CounterVec
	fallbackTotal  prometheus.Counter
	cascadeLatency prometheus.Histogram
}

var (
	metricsOnce   sync.Once
	sharedMetrics *controllerMetrics
)

// sharedControllerMetrics returns a process-wide singleton, since
// promauto registers against the default registry and a second
// registration of the same metric name panics. Every NewController
// call shares one set of counters/histogram.
func sharedControllerMetrics() *controllerMetrics {
	metricsOnce.Do(func() {
		sharedMetrics = newControllerMetrics()
	})
	return sharedMetrics
}

func newControllerMetrics() *controllerMetrics {
	return &controllerMetrics{
		levelOutcomes: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: "podwise",
			Subsystem: "rag",
			Name:      "level_outcomes_total",
			Help:      "Total number of cascade levels run, by level and outcome",
		}, []string{"level", "outcome"}), // outcome: accepted, rejected

		fallbackTotal: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: "podwise",
			Subsystem: "rag",
			Name:      "fallback_total",
			Help:      "Total number of requests that exhausted the cascade and used the terminal fallback",
		}),

		cascadeLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: "podwise",
			Subsystem: "rag",
			Name:      "cascade_duration_seconds",
			Help:      "End-to-end latency of the hierarchical retrieval cascade",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}

func (m *controllerMetrics) observeLevel(level, outcome string) {
	if m == nil {
		return
	}
	m.levelOutcomes.WithLabelValues(level, outcome).Inc()
}

func (m *controllerMetrics) observeFallback() {
	if m == nil {
		return
	}
	m.fallbackTotal.Inc()
}

func (m *controllerMetrics) observeLatency(seconds float64) {
	if m == nil {
		return
	}
	m.cascadeLatency.Observe(seconds)
}
