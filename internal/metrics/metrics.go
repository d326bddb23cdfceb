package metrics

import (
	"github.com/medkg/backend/pkg/resolver"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// ResolverMetrics is a resolver.Tracer that exports cascade events as
// Prometheus metrics.
type ResolverMetrics struct {
	// attemptsTotal counts strategy runs.
	// Labels: category, method, accepted (true, false)
	attemptsTotal *prometheus.CounterVec

	// attemptSeconds measures graph store round trips per strategy.
	// Labels: category, method
	attemptSeconds *prometheus.HistogramVec

	// errorsTotal counts failed strategies.
	// Labels: category, method, class (dependency, timeout, security_block)
	errorsTotal *prometheus.CounterVec

	// embeddingFailuresTotal counts embeddings that could not be produced.
	// Labels: category
	embeddingFailuresTotal *prometheus.CounterVec

	// outcomesTotal counts finished resolutions.
	// Labels: category, method (empty when unresolved), outcome (resolved, unresolved)
	outcomesTotal *prometheus.CounterVec
}

// NewResolverMetrics registers the resolver metrics with reg. A nil reg
// registers with the default registerer.
func NewResolverMetrics(reg prometheus.Registerer) *ResolverMetrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)

	return &ResolverMetrics{
		attemptsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medkg",
			Subsystem: "resolver",
			Name:      "strategy_attempts_total",
			Help:      "Strategy runs by category, method and whether the best record was accepted",
		}, []string{"category", "method", "accepted"}),

		attemptSeconds: f.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "medkg",
			Subsystem: "resolver",
			Name:      "strategy_duration_seconds",
			Help:      "Graph store latency per strategy",
			Buckets:   []float64{0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2, 4, 8},
		}, []string{"category", "method"}),

		errorsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medkg",
			Subsystem: "resolver",
			Name:      "strategy_errors_total",
			Help:      "Failed strategies by category, method and error class",
		}, []string{"category", "method", "class"}),

		embeddingFailuresTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medkg",
			Subsystem: "resolver",
			Name:      "embedding_failures_total",
			Help:      "Query embeddings that failed or came back empty",
		}, []string{"category"}),

		outcomesTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "medkg",
			Subsystem: "resolver",
			Name:      "resolutions_total",
			Help:      "Finished resolutions by category, winning method and outcome",
		}, []string{"category", "method", "outcome"}),
	}
}

func (m *ResolverMetrics) Record(ev resolver.TraceEvent) {
	if m == nil {
		return
	}
	category := string(ev.Category)
	method := string(ev.Method)

	switch ev.Kind {
	case resolver.TraceEventStrategyAttempt:
		accepted := "false"
		if ev.Accepted {
			accepted = "true"
		}
		m.attemptsTotal.WithLabelValues(category, method, accepted).Inc()
		m.attemptSeconds.WithLabelValues(category, method).Observe(float64(ev.DurationMs) / 1000)
	case resolver.TraceEventStrategyError:
		m.errorsTotal.WithLabelValues(category, method, string(ev.ErrorClass)).Inc()
	case resolver.TraceEventEmbeddingFailure:
		m.embeddingFailuresTotal.WithLabelValues(category).Inc()
	case resolver.TraceEventResolved:
		m.outcomesTotal.WithLabelValues(category, method, "resolved").Inc()
	case resolver.TraceEventUnresolved:
		m.outcomesTotal.WithLabelValues(category, "", "unresolved").Inc()
	}
}
