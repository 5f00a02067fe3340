package prometheus

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/marmos91/dittoauth/pkg/metrics"
)

// negotiationMetrics is the Prometheus implementation of metrics.NegotiationMetrics.
type negotiationMetrics struct {
	acceptTotal      *prometheus.CounterVec
	acceptDuration   prometheus.Histogram
	disposalFailures *prometheus.CounterVec
	decodeTotal      *prometheus.CounterVec
	keytabReloads    *prometheus.CounterVec
	keytabEntries    prometheus.Gauge
}

// NewNegotiationMetrics creates a Prometheus-backed NegotiationMetrics on
// the process-wide registry.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewNegotiationMetrics() metrics.NegotiationMetrics {
	if !metrics.IsEnabled() {
		return nil
	}
	return NewNegotiationMetricsWith(metrics.GetRegistry())
}

// NewNegotiationMetricsWith registers the collectors on reg.
func NewNegotiationMetricsWith(reg prometheus.Registerer) metrics.NegotiationMetrics {
	return &negotiationMetrics{
		acceptTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoauth_session_setup_total",
				Help: "Total number of session-setup accept calls by outcome",
			},
			[]string{"outcome"},
		),
		acceptDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dittoauth_session_setup_duration_milliseconds",
				Help: "Duration of session-setup accept calls in milliseconds",
				Buckets: []float64{
					0.5, // keytab hit, no crypto
					1,
					5, // typical AES ticket decrypt
					10,
					50,
					100,
					500, // slow keytab storage
				},
			},
		),
		disposalFailures: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoauth_gss_disposal_failures_total",
				Help: "Total number of failed credential or context releases",
			},
			[]string{"resource"},
		),
		decodeTotal: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoauth_spnego_decode_total",
				Help: "Total number of decoded NegTokenInit blobs by result",
			},
			[]string{"result"},
		),
		keytabReloads: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dittoauth_keytab_reloads_total",
				Help: "Total number of keytab reload attempts by status",
			},
			[]string{"status"},
		),
		keytabEntries: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dittoauth_keytab_entries",
				Help: "Number of keys in the active keytab",
			},
		),
	}
}

func (m *negotiationMetrics) RecordAccept(outcome string, duration time.Duration) {
	m.acceptTotal.WithLabelValues(outcome).Inc()
	m.acceptDuration.Observe(float64(duration.Microseconds()) / 1000)
}

func (m *negotiationMetrics) RecordDisposalFailure(resource string) {
	m.disposalFailures.WithLabelValues(resource).Inc()
}

func (m *negotiationMetrics) RecordDecode(result string) {
	m.decodeTotal.WithLabelValues(result).Inc()
}

func (m *negotiationMetrics) RecordKeytabReload(success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.keytabReloads.WithLabelValues(status).Inc()
}

func (m *negotiationMetrics) SetKeytabEntries(n int) {
	m.keytabEntries.Set(float64(n))
}
