package relay

import (
	"github.com/prometheus/client_golang/prometheus"
)

// MetricsCollector records relay activity
type MetricsCollector interface {
	SessionOpened(role Role)
	SessionClosed(role Role)
	RoleAssigned(from, to Role)
	RecordCommand(command string, success bool)
	RecordStateUpdate()
	RecordStatePush(delivered bool)
}

// NoOpMetricsCollector is used when metrics aren't needed
type NoOpMetricsCollector struct{}

func (NoOpMetricsCollector) SessionOpened(role Role)                    {}
func (NoOpMetricsCollector) SessionClosed(role Role)                    {}
func (NoOpMetricsCollector) RoleAssigned(from, to Role)                 {}
func (NoOpMetricsCollector) RecordCommand(command string, success bool) {}
func (NoOpMetricsCollector) RecordStateUpdate()                         {}
func (NoOpMetricsCollector) RecordStatePush(delivered bool)             {}

// PrometheusMetrics implements MetricsCollector using Prometheus
type PrometheusMetrics struct {
	sessions     *prometheus.GaugeVec
	commands     *prometheus.CounterVec
	stateUpdates prometheus.Counter
	statePushes  *prometheus.CounterVec
}

// NewPrometheusMetrics creates the relay collectors and registers them on reg
func NewPrometheusMetrics(reg prometheus.Registerer) (*PrometheusMetrics, error) {
	m := &PrometheusMetrics{
		sessions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "relay_sessions_active",
			Help: "Open client sessions by role.",
		}, []string{"role"}),
		commands: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_commands_total",
			Help: "Client commands handled, by command and result.",
		}, []string{"command", "result"}),
		stateUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "relay_state_updates_total",
			Help: "Game states accepted from players.",
		}),
		statePushes: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "relay_state_pushes_total",
			Help: "Game states offered to spectators, by result.",
		}, []string{"result"}),
	}

	for _, c := range []prometheus.Collector{m.sessions, m.commands, m.stateUpdates, m.statePushes} {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (m *PrometheusMetrics) SessionOpened(role Role) {
	m.sessions.WithLabelValues(role.String()).Inc()
}

func (m *PrometheusMetrics) SessionClosed(role Role) {
	m.sessions.WithLabelValues(role.String()).Dec()
}

func (m *PrometheusMetrics) RoleAssigned(from, to Role) {
	m.sessions.WithLabelValues(from.String()).Dec()
	m.sessions.WithLabelValues(to.String()).Inc()
}

func (m *PrometheusMetrics) RecordCommand(command string, success bool) {
	result := "ok"
	if !success {
		result = "error"
	}
	m.commands.WithLabelValues(command, result).Inc()
}

func (m *PrometheusMetrics) RecordStateUpdate() {
	m.stateUpdates.Inc()
}

func (m *PrometheusMetrics) RecordStatePush(delivered bool) {
	result := "queued"
	if !delivered {
		result = "dropped"
	}
	m.statePushes.WithLabelValues(result).Inc()
}
