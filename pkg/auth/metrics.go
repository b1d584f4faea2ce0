package auth

import (
	"time"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/metrics"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// BindMetrics tracks bind processing.
//
// Methods handle a nil receiver, so a nil *BindMetrics is a no-op when
// metrics are disabled.
type BindMetrics struct {
	// Binds counts completed bind round trips.
	// Labels: mechanism, result (RFC 4511 result name)
	Binds *prometheus.CounterVec

	// BindDuration tracks the time spent in one round trip.
	// Labels: mechanism
	BindDuration *prometheus.HistogramVec

	// InProgress is the number of connections in the middle of a
	// multi-stage bind.
	InProgress prometheus.Gauge

	// SecurityLayers counts negotiated SASL layers.
	// Labels: mechanism, qop
	SecurityLayers *prometheus.CounterVec
}

// NewBindMetrics returns metrics registered on the process registry, or nil
// when metrics are disabled.
func NewBindMetrics() *BindMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewBindMetricsWith(metrics.GetRegistry())
}

// NewBindMetricsWith registers the bind metrics on reg.
func NewBindMetricsWith(reg prometheus.Registerer) *BindMetrics {
	return &BindMetrics{
		Binds: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_bind_total",
				Help: "Total bind round trips by mechanism and result",
			},
			[]string{"mechanism", "result"},
		),
		BindDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name: "ldapauth_bind_duration_milliseconds",
				Help: "Duration of one bind round trip in milliseconds",
				Buckets: []float64{
					0.1, // in-memory checks
					0.5,
					1,
					5,
					10,
					50, // bcrypt / pbkdf2
					100,
					500, // pass-through
					1000,
					5000,
				},
			},
			[]string{"mechanism"},
		),
		InProgress: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "ldapauth_bind_in_progress",
				Help: "Connections with a multi-stage bind in progress",
			},
		),
		SecurityLayers: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_security_layers_total",
				Help: "Total SASL security layers negotiated by mechanism and qop",
			},
			[]string{"mechanism", "qop"},
		),
	}
}

// RecordBind records one completed round trip.
func (m *BindMetrics) RecordBind(mechanism string, code ResultCode, duration time.Duration) {
	if m == nil {
		return
	}
	m.Binds.WithLabelValues(mechanism, code.String()).Inc()
	m.BindDuration.WithLabelValues(mechanism).Observe(float64(duration.Microseconds()) / 1000.0)
}

// BindStarted records a connection entering a multi-stage bind.
func (m *BindMetrics) BindStarted() {
	if m == nil {
		return
	}
	m.InProgress.Inc()
}

// BindFinished records a connection leaving a multi-stage bind.
func (m *BindMetrics) BindFinished() {
	if m == nil {
		return
	}
	m.InProgress.Dec()
}

// RecordSecurityLayer records a negotiated layer.
func (m *BindMetrics) RecordSecurityLayer(mechanism, qop string) {
	if m == nil {
		return
	}
	m.SecurityLayers.WithLabelValues(mechanism, qop).Inc()
}
