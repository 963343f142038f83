// Package metrics exposes daemon counters to Prometheus.
// A nil *Metrics is valid and records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "sitemon"

// Metrics holds the daemon's collectors.
type Metrics struct {
	navigations     *prometheus.CounterVec
	grants          *prometheus.CounterVec
	codeFailures    prometheus.Counter
	attempts        prometheus.Counter
	sweeps          *prometheus.CounterVec
	schedulerErrors prometheus.Counter
	requests        *prometheus.CounterVec
	pending         prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		navigations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "navigations_total",
			Help:      "Top-level navigations seen by the gate, by outcome.",
		}, []string{"outcome"}),
		grants: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "grants_total",
			Help:      "Access grants issued, by kind.",
		}, []string{"kind"}),
		codeFailures: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emergency_code_failures_total",
			Help:      "Emergency override attempts with a wrong code.",
		}),
		attempts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "access_attempts_total",
			Help:      "Blocked access attempts recorded.",
		}),
		sweeps: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "expiry_sweeps_total",
			Help:      "Expiry callbacks handled, by result.",
		}, []string{"result"}),
		schedulerErrors: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "scheduler_errors_total",
			Help:      "Failed expiry timer registrations.",
		}),
		requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "requests_total",
			Help:      "Dispatched requests, by action and result.",
		}, []string{"action", "result"}),
		pending: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "pending_navigations",
			Help:      "Redirect hops waiting for their destination.",
		}),
	}

	if reg != nil {
		reg.MustRegister(
			m.navigations,
			m.grants,
			m.codeFailures,
			m.attempts,
			m.sweeps,
			m.schedulerErrors,
			m.requests,
			m.pending,
		)
	}
	return m
}

// Navigation counts a gate outcome ("allow", "cooldown", "no-permission", "redirect-hop", "ignored").
func (m *Metrics) Navigation(outcome string) {
	if m == nil {
		return
	}
	m.navigations.WithLabelValues(outcome).Inc()
}

// Grant counts an issued grant ("justified" or "emergency").
func (m *Metrics) Grant(kind string) {
	if m == nil {
		return
	}
	m.grants.WithLabelValues(kind).Inc()
}

func (m *Metrics) EmergencyCodeFailure() {
	if m == nil {
		return
	}
	m.codeFailures.Inc()
}

func (m *Metrics) AccessAttempt() {
	if m == nil {
		return
	}
	m.attempts.Inc()
}

// Sweep counts an expiry callback ("redirected", "superseded", "error").
func (m *Metrics) Sweep(result string) {
	if m == nil {
		return
	}
	m.sweeps.WithLabelValues(result).Inc()
}

func (m *Metrics) SchedulerError() {
	if m == nil {
		return
	}
	m.schedulerErrors.Inc()
}

// Request counts a dispatched request.
func (m *Metrics) Request(action, result string) {
	if m == nil {
		return
	}
	m.requests.WithLabelValues(action, result).Inc()
}

// SetPending records the size of the pending-navigation map.
func (m *Metrics) SetPending(n int) {
	if m == nil {
		return
	}
	m.pending.Set(float64(n))
}
