package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics provides observability for the gateway.
type Metrics struct {
	Registrations prometheus.Counter

	// Authentication attempts by method ("template", "possession") and
	// outcome ("granted", "denied", "error").
	AuthAttempts *prometheus.CounterVec

	SessionsOpened  prometheus.Counter
	SessionsActive  prometheus.Gauge
	SessionsSwept   prometheus.Counter
	LedgerAppends   *prometheus.CounterVec
	ErasureRequests prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		Registrations: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biogate_registrations_total",
			Help: "Total number of users registered",
		}),
		AuthAttempts: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "biogate_auth_attempts_total",
			Help: "Authentication attempts by method and outcome",
		}, []string{"method", "outcome"}),
		SessionsOpened: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biogate_possession_sessions_opened_total",
			Help: "Possession sessions opened",
		}),
		SessionsActive: promauto.NewGauge(prometheus.GaugeOpts{
			Name: "biogate_possession_sessions_active",
			Help: "Possession sessions currently awaiting a proof",
		}),
		SessionsSwept: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biogate_possession_sessions_swept_total",
			Help: "Expired possession sessions removed by the sweeper",
		}),
		LedgerAppends: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "biogate_ledger_appends_total",
			Help: "Ledger appends by record kind (consent, access)",
		}, []string{"kind"}),
		ErasureRequests: promauto.NewCounter(prometheus.CounterOpts{
			Name: "biogate_erasure_requests_total",
			Help: "Erasure requests processed",
		}),
	}
}

// IncrementRegistrations records a completed registration.
func (m *Metrics) IncrementRegistrations() {
	if m != nil {
		m.Registrations.Inc()
	}
}

// IncrementAuthAttempt records one authentication attempt.
func (m *Metrics) IncrementAuthAttempt(method, outcome string) {
	if m != nil {
		m.AuthAttempts.WithLabelValues(method, outcome).Inc()
	}
}

// IncrementSessionsOpened records an opened possession session.
func (m *Metrics) IncrementSessionsOpened() {
	if m != nil {
		m.SessionsOpened.Inc()
	}
}

// AddActiveSessions moves the active-session gauge by delta.
func (m *Metrics) AddActiveSessions(delta int) {
	if m != nil {
		m.SessionsActive.Add(float64(delta))
	}
}

// AddSessionsSwept records sessions removed by a sweep pass.
func (m *Metrics) AddSessionsSwept(n int) {
	if m != nil && n > 0 {
		m.SessionsSwept.Add(float64(n))
		m.SessionsActive.Sub(float64(n))
	}
}

// IncrementLedgerAppend records one ledger append.
func (m *Metrics) IncrementLedgerAppend(kind string) {
	if m != nil {
		m.LedgerAppends.WithLabelValues(kind).Inc()
	}
}

// IncrementErasures records a processed erasure request.
func (m *Metrics) IncrementErasures() {
	if m != nil {
		m.ErasureRequests.Inc()
	}
}
