package stitch

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics instruments composites. A nil *Metrics records nothing.
type Metrics struct {
	pushes     *prometheus.CounterVec
	recomputes *prometheus.CounterVec
	duration   *prometheus.HistogramVec
}

// NewMetrics registers the composite collectors on reg. A nil reg creates
// unregistered collectors, which is convenient in tests.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		// pushes counts accepted model changes propagated to sub-simulations
		pushes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stitch_model_push_total",
			Help: "Composite model changes pushed to sub-simulations",
		}, []string{"variant"}),

		recomputes: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "stitch_jtjdiag_recompute_total",
			Help: "Sensitivity diagonal recomputations",
		}, []string{"variant"}),

		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "stitch_operation_duration_seconds",
			Help:    "Composite operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10), // 0.1ms to ~26s
		}, []string{"variant", "op"}),
	}
}

// Pushes returns the push counter for a variant.
func (m *Metrics) Pushes(kind Kind) prometheus.Counter {
	return m.pushes.WithLabelValues(kind.String())
}

// Recomputes returns the sensitivity-diagonal recompute counter for a variant.
func (m *Metrics) Recomputes(kind Kind) prometheus.Counter {
	return m.recomputes.WithLabelValues(kind.String())
}

func (m *Metrics) observePush(kind Kind) {
	if m == nil {
		return
	}
	m.Pushes(kind).Inc()
}

func (m *Metrics) observeRecompute(kind Kind) {
	if m == nil {
		return
	}
	m.Recomputes(kind).Inc()
}

// timer starts timing op; call the result when the operation ends.
func (m *Metrics) timer(kind Kind, op string) func() {
	if m == nil {
		return func() {}
	}
	start := time.Now()
	return func() {
		m.duration.WithLabelValues(kind.String(), op).Observe(time.Since(start).Seconds())
	}
}
