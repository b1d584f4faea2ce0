package gssapi

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/OpenIdentityPlatform/OpenDJ-sub029/pkg/metrics"
)

// Failure reasons recorded by Metrics.RecordAuthFailure.
const (
	reasonCredential  = "credential_problem"
	reasonContext     = "context_problem"
	reasonNegotiation = "negotiation_failure"
	reasonAuthzID     = "authzid_mismatch"
	reasonMapping     = "identity_mapping"
)

// Metrics tracks GSSAPI context establishment.
//
// Methods handle a nil receiver, so a nil *Metrics is a no-op when metrics
// are disabled.
type Metrics struct {
	// ContextCreations counts accepted or rejected AP-REQs.
	// Labels: result=[success, failure]
	ContextCreations *prometheus.CounterVec

	// AuthFailures counts failed binds by reason.
	// Labels: reason=[credential_problem, context_problem,
	//                  negotiation_failure, authzid_mismatch, identity_mapping]
	AuthFailures *prometheus.CounterVec

	// Layers counts negotiated security layers.
	// Labels: layer=[none, integrity, privacy]
	Layers *prometheus.CounterVec

	// RequestDuration tracks stage processing time.
	// Labels: stage=[accept, negotiate]
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics returns metrics on the process registry, or nil when metrics
// are disabled.
func NewMetrics() *Metrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewMetricsWith(metrics.GetRegistry())
}

// NewMetricsWith registers the GSSAPI metrics on reg.
func NewMetricsWith(reg prometheus.Registerer) *Metrics {
	return &Metrics{
		ContextCreations: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_gss_context_creations_total",
				Help: "Total GSS context creation attempts by result",
			},
			[]string{"result"},
		),
		AuthFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_gss_auth_failures_total",
				Help: "Total GSSAPI bind failures by reason",
			},
			[]string{"reason"},
		),
		Layers: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "ldapauth_gss_security_layers_total",
				Help: "Total GSSAPI security layers negotiated",
			},
			[]string{"layer"},
		),
		RequestDuration: promauto.With(reg).NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ldapauth_gss_request_duration_seconds",
				Help:    "GSSAPI bind stage processing duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"stage"},
		),
	}
}

func (m *Metrics) RecordContextCreation(success bool) {
	if m == nil {
		return
	}
	if success {
		m.ContextCreations.WithLabelValues("success").Inc()
	} else {
		m.ContextCreations.WithLabelValues("failure").Inc()
	}
}

func (m *Metrics) RecordAuthFailure(reason string) {
	if m == nil {
		return
	}
	m.AuthFailures.WithLabelValues(reason).Inc()
}

// RecordLayer records the layer chosen by a client.
func (m *Metrics) RecordLayer(bit byte) {
	if m == nil {
		return
	}
	m.Layers.WithLabelValues(layerName(bit)).Inc()
}

func (m *Metrics) RecordDuration(stage string, d time.Duration) {
	if m == nil {
		return
	}
	m.RequestDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func layerName(bit byte) string {
	switch bit {
	case layerNone:
		return "none"
	case layerIntegrity:
		return "integrity"
	case layerConfidentiality:
		return "privacy"
	default:
		return "unknown"
	}
}
