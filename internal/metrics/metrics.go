// Package metrics exposes Prometheus instruments for the door controller.
// All methods are safe to call on a nil *Metrics, which records nothing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sweeney/garage-door/internal/logic"
)

const metricPrefix = "garage_door_"

// Metrics bundles the controller's instruments.
type Metrics struct {
	StatusChanges   *prometheus.CounterVec
	CurrentStatus   *prometheus.GaugeVec
	RelayPulses     prometheus.Counter
	Requests        *prometheus.CounterVec
	WatchdogExpired prometheus.Counter
	NotifyDropped   *prometheus.CounterVec
}

// New constructs the instruments and registers them with reg.
// Pass prometheus.DefaultRegisterer to expose them on the default handler.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		StatusChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "status_changes_total",
				Help: "Door status changes by new status",
			},
			[]string{"status"},
		),
		CurrentStatus: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: metricPrefix + "status",
				Help: "1 for the current door status, 0 otherwise",
			},
			[]string{"status"},
		),
		RelayPulses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "relay_pulses_total",
			Help: "Relay pulses issued",
		}),
		Requests: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "requests_total",
				Help: "Open/close requests by action and planned pulse count",
			},
			[]string{"action", "pulses"},
		),
		WatchdogExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Name: metricPrefix + "watchdog_expired_total",
			Help: "Transit watchdog expiries that changed status",
		}),
		NotifyDropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: metricPrefix + "notifications_dropped_total",
				Help: "Status notifications dropped by sink",
			},
			[]string{"sink"},
		),
	}
	reg.MustRegister(
		m.StatusChanges,
		m.CurrentStatus,
		m.RelayPulses,
		m.Requests,
		m.WatchdogExpired,
		m.NotifyDropped,
	)
	return m
}

// StatusChanged records a transition to s.
func (m *Metrics) StatusChanged(s logic.Status) {
	if m == nil {
		return
	}
	m.StatusChanges.WithLabelValues(string(s)).Inc()
	for _, v := range logic.Statuses {
		value := 0.0
		if v == s {
			value = 1
		}
		m.CurrentStatus.WithLabelValues(string(v)).Set(value)
	}
}

// Pulse records one relay pulse.
func (m *Metrics) Pulse() {
	if m == nil {
		return
	}
	m.RelayPulses.Inc()
}

// Request records a decided actuation plan.
func (m *Metrics) Request(p logic.Plan) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(string(p.Action), pulseLabel(p.Pulses)).Inc()
}

// Expired records a watchdog expiry that changed status.
func (m *Metrics) Expired() {
	if m == nil {
		return
	}
	m.WatchdogExpired.Inc()
}

// Dropped records a notification a sink could not deliver.
func (m *Metrics) Dropped(sink string) {
	if m == nil {
		return
	}
	m.NotifyDropped.WithLabelValues(sink).Inc()
}

func pulseLabel(n int) string {
	switch n {
	case 0:
		return "0"
	case 1:
		return "1"
	case 2:
		return "2"
	default:
		return "other"
	}
}
