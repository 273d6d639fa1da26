package metrics

import "github.com/prometheus/client_golang/prometheus"

// BookingMetrics exposes counters/histograms for the booking lifecycle engine.
type BookingMetrics struct {
	transitionsTotal  *prometheus.CounterVec
	holdAcquireTotal  *prometheus.CounterVec
	sweepExpiredTotal prometheus.Counter
	cacheTotal        *prometheus.CounterVec
	transitionLatency *prometheus.HistogramVec
}

func NewBookingMetrics(reg prometheus.Registerer) *BookingMetrics {
	m := &BookingMetrics{
		transitionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "lifecycle",
			Name:      "transitions_total",
			Help:      "Booking state machine transitions by event and outcome",
		}, []string{"event", "outcome"}),
		holdAcquireTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "holds",
			Name:      "acquire_total",
			Help:      "Hold acquisition attempts by outcome",
		}, []string{"outcome"}),
		sweepExpiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "holds",
			Name:      "swept_expired_total",
			Help:      "Holds marked expired by the background sweep",
		}),
		cacheTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "booking",
			Subsystem: "availability",
			Name:      "cache_total",
			Help:      "Availability cache lookups by result",
		}, []string{"result"}),
		transitionLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "booking",
			Subsystem: "lifecycle",
			Name:      "transition_latency_seconds",
			Help:      "Latency of booking state transitions",
			Buckets:   prometheus.DefBuckets,
		}, []string{"event"}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(
		m.transitionsTotal,
		m.holdAcquireTotal,
		m.sweepExpiredTotal,
		m.cacheTotal,
		m.transitionLatency,
	)
	return m
}

func (m *BookingMetrics) ObserveTransition(event, outcome string) {
	if m == nil {
		return
	}
	m.transitionsTotal.WithLabelValues(event, outcome).Inc()
}

func (m *BookingMetrics) ObserveHoldAcquire(outcome string) {
	if m == nil {
		return
	}
	m.holdAcquireTotal.WithLabelValues(outcome).Inc()
}

func (m *BookingMetrics) AddSweptExpired(count int) {
	if m == nil || count <= 0 {
		return
	}
	m.sweepExpiredTotal.Add(float64(count))
}

func (m *BookingMetrics) ObserveCache(result string) {
	if m == nil {
		return
	}
	m.cacheTotal.WithLabelValues(result).Inc()
}

func (m *BookingMetrics) ObserveTransitionLatency(event string, seconds float64) {
	if m == nil {
		return
	}
	m.transitionLatency.WithLabelValues(event).Observe(seconds)
}
