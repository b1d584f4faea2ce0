package passthrough

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/metrics"
)

// Verification outcomes.
const (
	outcomeMatch    = "match"
	outcomeMismatch = "mismatch"
	outcomeError    = "error"
)

// Metrics tracks pass-through authentication.
//
// Methods handle a nil receiver, so a nil *Metrics is a no-op when metrics
// are disabled.
type Metrics struct {
	// Verifications counts PasswordMatches calls.
	// Labels: policy=[unmapped, mapped-bind, mapped-search], outcome=[match, mismatch, error]
	Verifications *prometheus.CounterVec

	// RemoteDuration tracks remote bind and search round trips.
	// Labels: op=[bind, search]
	RemoteDuration *prometheus.HistogramVec

	// CacheLookups counts password cache lookups.
	// Labels: result=[hit, miss, expired]
	CacheLookups *prometheus.CounterVec

	// ServerAvailable is 1 while a server is usable.
	// Labels: server, purpose=[bind, search]
	ServerAvailable *prometheus.GaugeVec

	// Failovers counts servers marked unavailable.
	// Labels: server, purpose
	Failovers *prometheus.CounterVec
}

// NewMetrics returns metrics on the process registry, or nil when metrics
// are disabled.
func NewMetrics() *Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewMetricsWith(metrics.GetRegistry())
}

// NewMetricsWith registers the pass-through metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Verifications: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_passthrough_verifications_total",
				Help: "Pass-through password verifications by mapping policy and outcome",
			},
			[]string{"policy", "outcome"},
		),
		RemoteDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ldapauth_passthrough_remote_duration_milliseconds",
				Help:    "Duration of remote pass-through operations in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 3000},
			},
			[]string{"op"},
		),
		CacheLookups: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_passthrough_cache_lookups_total",
				Help: "Cached password lookups by result",
			},
			[]string{"result"},
		),
		ServerAvailable: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ldapauth_passthrough_server_available",
				Help: "Whether a remote server is currently usable (1) or not (0)",
			},
			[]string{"server", "purpose"},
		),
		Failovers: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_passthrough_server_failures_total",
				Help: "Times a remote server was marked unavailable",
			},
			[]string{"server", "purpose"},
		),
	}
}

func (m *Metrics) RecordVerification(policy, outcome string) {
	if m == nil {
		return
	}
	m.Verifications.WithLabelValues(policy, outcome).Inc()
}

func (m *Metrics) RecordRemote(op string, d time.Duration) {
	if m == nil {
		return
	}
	m.RemoteDuration.WithLabelValues(op).Observe(float64(d.Microseconds()) / 1000.0)
}

func (m *Metrics) RecordCacheLookup(result string) {
	if m == nil {
		return
	}
	m.CacheLookups.WithLabelValues(result).Inc()
}

func (m *Metrics) SetAvailable(server, purpose string, up bool) {
	if m == nil {
		return
	}
	v := 0.0
	if up {
		v = 1
	}
	m.ServerAvailable.WithLabelValues(server, purpose).Set(v)
	if !up {
		m.Failovers.WithLabelValues(server, purpose).Inc()
	}
}
