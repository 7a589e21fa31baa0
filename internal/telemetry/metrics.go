package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics groups the reconciliation counters. A nil *Metrics is valid and
// records nothing.
type Metrics struct {
	Transitions   *prometheus.CounterVec
	Notifications *prometheus.CounterVec
	GatewayCalls  *prometheus.HistogramVec
	SweepOrders   *prometheus.CounterVec
}

func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devmarket",
			Name:      "order_transitions_total",
			Help:      "Order status transitions applied, by target status and source.",
		}, []string{"to", "source"}),
		Notifications: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devmarket",
			Name:      "payment_notifications_total",
			Help:      "Provider notifications received, by outcome.",
		}, []string{"outcome"}),
		GatewayCalls: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "devmarket",
			Name:      "gateway_call_seconds",
			Help:      "Latency of payment gateway calls.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "result"}),
		SweepOrders: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "devmarket",
			Name:      "reconcile_sweep_orders_total",
			Help:      "Orders visited by the reconciliation sweep, by result.",
		}, []string{"result"}),
	}
	reg.MustRegister(m.Transitions, m.Notifications, m.GatewayCalls, m.SweepOrders)
	return m
}

func (m *Metrics) Transition(to, source string) {
	if m == nil {
		return
	}
	m.Transitions.WithLabelValues(to, source).Inc()
}

func (m *Metrics) Notification(outcome string) {
	if m == nil {
		return
	}
	m.Notifications.WithLabelValues(outcome).Inc()
}

func (m *Metrics) GatewayCall(operation, result string, seconds float64) {
	if m == nil {
		return
	}
	m.GatewayCalls.WithLabelValues(operation, result).Observe(seconds)
}

func (m *Metrics) Swept(result string) {
	if m == nil {
		return
	}
	m.SweepOrders.WithLabelValues(result).Inc()
}
