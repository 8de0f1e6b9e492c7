package usecase

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/example/exam-proctor/internal/classifier"
	"github.com/example/exam-proctor/internal/verifier"
)

// Metrics tracks monitoring and verification activity for Prometheus.
type Metrics struct {
	monitorRequests *prometheus.CounterVec
	violations      *prometheus.CounterVec
	verifications   *prometheus.CounterVec
}

// NewMetrics registers the proctoring counters on the given registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		monitorRequests: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proctor",
			Name:      "monitor_requests_total",
			Help:      "Monitoring calls processed, by resulting status.",
		}, []string{"status"}),
		violations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proctor",
			Name:      "violations_total",
			Help:      "Violations recorded, by severity.",
		}, []string{"severity"}),
		verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "proctor",
			Name:      "verifications_total",
			Help:      "Identity verification calls, by outcome.",
		}, []string{"status"}),
	}
}

// MonitorProcessed counts one monitoring call with its resulting status.
func (m *Metrics) MonitorProcessed(status string) {
	if m == nil {
		return
	}
	m.monitorRequests.WithLabelValues(status).Inc()
}

// ViolationRecorded counts one persisted violation.
func (m *Metrics) ViolationRecorded(severity classifier.Severity) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(string(severity)).Inc()
}

// VerificationCompleted counts one verification call.
func (m *Metrics) VerificationCompleted(status verifier.Status) {
	if m == nil {
		return
	}
	m.verifications.WithLabelValues(string(status)).Inc()
}
