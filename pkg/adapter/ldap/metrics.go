package ldap

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/adapter"
	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/metrics"
)

// Metrics tracks LDAP listeners. One instance is shared by the LDAP and
// LDAPS listeners; series carry a listener label.
//
// Methods handle a nil receiver.
type Metrics struct {
	// Connections counts connection lifecycle events.
	// Labels: listener=[LDAP, LDAPS], event=[accepted, closed, force_closed]
	Connections *prometheus.CounterVec

	// ActiveConnections is the number of open connections.
	// Labels: listener
	ActiveConnections *prometheus.GaugeVec

	// Requests counts decoded requests by operation.
	// Labels: listener, operation=[bind, unbind, extended, abandon, other]
	Requests *prometheus.CounterVec

	// ProtocolErrors counts connections dropped for malformed or oversized
	// messages.
	// Labels: listener, reason=[malformed, too_large]
	ProtocolErrors *prometheus.CounterVec
}

// NewMetrics returns metrics on the process registry, or nil when metrics
// are disabled.
func NewMetrics() *Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewMetricsWith(metrics.GetRegistry())
}

// NewMetricsWith registers the listener metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Connections: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_connections_total",
				Help: "Client connection events by listener",
			},
			[]string{"listener", "event"},
		),
		ActiveConnections: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ldapauth_connections_active",
				Help: "Open client connections by listener",
			},
			[]string{"listener"},
		),
		Requests: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_requests_total",
				Help: "Decoded LDAP requests by listener and operation",
			},
			[]string{"listener", "operation"},
		),
		ProtocolErrors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_protocol_errors_total",
				Help: "Connections dropped for protocol violations",
			},
			[]string{"listener", "reason"},
		),
	}
}

func (m *Metrics) recordRequest(listener, operation string) {
	if m == nil {
		return
	}
	m.Requests.WithLabelValues(listener, operation).Inc()
}

func (m *Metrics) recordProtocolError(listener, reason string) {
	if m == nil {
		return
	}
	m.ProtocolErrors.WithLabelValues(listener, reason).Inc()
}

// recorder binds Metrics to one listener for adapter.BaseAdapter.
type recorder struct {
	m        *Metrics
	listener string
}

var _ adapter.MetricsRecorder = recorder{}

func (r recorder) RecordConnectionAccepted() {
	r.m.Connections.WithLabelValues(r.listener, "accepted").Inc()
}

func (r recorder) RecordConnectionClosed() {
	r.m.Connections.WithLabelValues(r.listener, "closed").Inc()
}

func (r recorder) RecordConnectionForceClosed() {
	r.m.Connections.WithLabelValues(r.listener, "force_closed").Inc()
}

func (r recorder) SetActiveConnections(count int32) {
	r.m.ActiveConnections.WithLabelValues(r.listener).Set(float64(count))
}
