// Package metrics exposes kiosk counters to Prometheus.
package metrics

import (
	"net/http"

	"kiosk_system/internal/domain"
	"kiosk_system/internal/session"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the kiosk collectors
type Metrics struct {
	registry    *prometheus.Registry
	transitions *prometheus.CounterVec
	cartClears  prometheus.Counter
	payments    *prometheus.CounterVec
	sessions    prometheus.GaugeFunc
}

// New registers the collectors on a fresh registry. liveSessions may be nil.
func New(liveSessions func() int) *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Name:      "session_transitions_total",
			Help:      "Session state machine transitions.",
		}, []string{"from", "to"}),
		cartClears: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "kiosk",
			Name:      "cart_clears_total",
			Help:      "Non-empty carts dropped because the presence signal changed.",
		}),
		payments: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "kiosk",
			Name:      "payment_outcomes_total",
			Help:      "Payment handshake phase outcomes.",
		}, []string{"phase", "status"}),
	}
	m.registry.MustRegister(m.transitions, m.cartClears, m.payments)
	if liveSessions != nil {
		m.sessions = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Namespace: "kiosk",
			Name:      "sessions_live",
			Help:      "Sessions held in memory.",
		}, func() float64 { return float64(liveSessions()) })
		m.registry.MustRegister(m.sessions)
	}
	return m
}

// ObserveTransition matches session.Config.OnTransition
func (m *Metrics) ObserveTransition(_ string, t session.Transition) {
	m.transitions.WithLabelValues(t.From.String(), t.To.String()).Inc()
	if t.CartCleared {
		m.cartClears.Inc()
	}
}

// ObservePayment matches payment.OutcomeFunc
func (m *Metrics) ObservePayment(phase string, status domain.TransactionStatus) {
	m.payments.WithLabelValues(phase, string(status)).Inc()
}

// Registry returns the underlying registry
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

// Handler serves the registry in the Prometheus text format
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
