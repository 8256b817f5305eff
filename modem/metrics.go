package modem

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics counts what the modem sees and does. A nil *Metrics records
// nothing.
type Metrics struct {
	lines         *prometheus.CounterVec
	notifications prometheus.Counter
	calls         *prometheus.CounterVec
	ringing       prometheus.Gauge
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		lines: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cidmodem_lines_total",
				Help: "Modem lines read, by classification.",
			},
			[]string{"kind"},
		),
		notifications: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "cidmodem_notifications_total",
			Help: "Completed caller ID frames delivered to the handler.",
		}),
		calls: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "cidmodem_calls_total",
				Help: "Outbound calls, by outcome.",
			},
			[]string{"outcome"},
		),
		ringing: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "cidmodem_ringing",
			Help: "1 while a call or caller ID frame is in progress.",
		}),
	}
	reg.MustRegister(m.lines, m.notifications, m.calls, m.ringing)
	return m
}

func (m *Metrics) line(kind string) {
	if m == nil {
		return
	}
	m.lines.WithLabelValues(kind).Inc()
}

func (m *Metrics) notified() {
	if m == nil {
		return
	}
	m.notifications.Inc()
}

func (m *Metrics) call(outcome string) {
	if m == nil {
		return
	}
	m.calls.WithLabelValues(outcome).Inc()
}

func (m *Metrics) state(s State) {
	if m == nil {
		return
	}
	if s == StateRinging {
		m.ringing.Set(1)
	} else {
		m.ringing.Set(0)
	}
}
