package security

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/metrics"
)

const (
	dirInbound  = "inbound"
	dirOutbound = "outbound"
)

const (
	reasonFraming      = "framing"
	reasonUnwrap       = "unwrap"
	reasonWrap         = "wrap"
	reasonWriteTimeout = "write_timeout"
)

// Metrics tracks connection security providers.
//
// Methods handle a nil receiver, so a nil *Metrics is a no-op when metrics
// are disabled.
type Metrics struct {
	// Providers is the number of installed providers.
	// Labels: provider=[null, sasl, tls]
	Providers *prometheus.GaugeVec

	// FrameBytes tracks wrapped SASL frame sizes.
	// Labels: direction=[inbound, outbound]
	FrameBytes *prometheus.HistogramVec

	// Errors counts failures that terminate a connection.
	// Labels: provider, reason=[framing, unwrap, wrap, write_timeout]
	Errors *prometheus.CounterVec

	// Handshakes counts TLS handshakes.
	// Labels: result=[success, failure]
	Handshakes *prometheus.CounterVec

	HandshakeDuration prometheus.Histogram
}

// NewMetrics returns metrics on the process registry, or nil when metrics
// are disabled.
func NewMetrics() *Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewMetricsWith(metrics.GetRegistry())
}

// NewMetricsWith registers the provider metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		Providers: promauto.With(reg).NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "ldapauth_channel_providers",
				Help: "Installed connection security providers by kind",
			},
			[]string{"provider"},
		),
		FrameBytes: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ldapauth_channel_frame_bytes",
				Help:    "Size of wrapped SASL frames in bytes",
				Buckets: prometheus.ExponentialBuckets(64, 4, 8), // 64B .. 1MB
			},
			[]string{"direction"},
		),
		Errors: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_channel_errors_total",
				Help: "Connection-terminating channel errors by provider and reason",
			},
			[]string{"provider", "reason"},
		),
		Handshakes: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_tls_handshakes_total",
				Help: "TLS handshakes by result",
			},
			[]string{"result"},
		),
		HandshakeDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ldapauth_tls_handshake_duration_milliseconds",
				Help:    "Duration of TLS handshakes in milliseconds",
				Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 1000, 5000},
			},
		),
	}
}

func (m *Metrics) ProviderInstalled(provider string) {
	if m == nil {
		return
	}
	m.Providers.WithLabelValues(provider).Inc()
}

func (m *Metrics) ProviderRemoved(provider string) {
	if m == nil {
		return
	}
	m.Providers.WithLabelValues(provider).Dec()
}

func (m *Metrics) RecordFrame(direction string, size int) {
	if m == nil {
		return
	}
	m.FrameBytes.WithLabelValues(direction).Observe(float64(size))
}

func (m *Metrics) RecordError(provider, reason string) {
	if m == nil {
		return
	}
	m.Errors.WithLabelValues(provider, reason).Inc()
}

func (m *Metrics) RecordHandshake(ok bool, d time.Duration) {
	if m == nil {
		return
	}
	result := "failure"
	if ok {
		result = "success"
	}
	m.Handshakes.WithLabelValues(result).Inc()
	m.HandshakeDuration.Observe(float64(d.Microseconds()) / 1000.0)
}
