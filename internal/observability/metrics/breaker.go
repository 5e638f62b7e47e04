package metrics

import "github.com/prometheus/client_golang/prometheus"

// BreakerMetrics tracks circuit breaker state per guarded operation:
// 0 closed, 1 half-open, 2 open.
type BreakerMetrics struct {
	service     string
	state       *prometheus.GaugeVec
	transitions *prometheus.CounterVec
}

func NewBreakerMetrics(registry prometheus.Registerer, service string) *BreakerMetrics {
	state := prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_state",
			Help:      "Circuit breaker state by operation (0 closed, 1 half-open, 2 open).",
		},
		[]string{"service", "operation"},
	)
	transitions := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "resilience",
			Name:      "breaker_transitions_total",
			Help:      "Total circuit breaker transitions by target state.",
		},
		[]string{"service", "operation", "to"},
	)
	registry.MustRegister(state, transitions)

	return &BreakerMetrics{service: service, state: state, transitions: transitions}
}

// OnStateChange matches resilience.Config.OnStateChange.
func (m *BreakerMetrics) OnStateChange(operation, _, to string) {
	m.state.WithLabelValues(m.service, operation).Set(stateValue(to))
	m.transitions.WithLabelValues(m.service, operation, to).Inc()
}

func stateValue(state string) float64 {
	switch state {
	case "open":
		return 2
	case "half-open":
		return 1
	default:
		return 0
	}
}
