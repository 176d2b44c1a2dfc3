package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the application.
type Metrics struct {
	MortgagesRegistered prometheus.Counter
	MortgagesDischarged prometheus.Counter
	DocumentsUploaded   prometheus.Counter
	DocumentsVerified   prometheus.Counter
	IntegrityChecks     *prometheus.CounterVec
	NotificationsSent   prometheus.Counter
	ChannelDeliveries   *prometheus.CounterVec
	AnchorFailures      prometheus.Counter
}

// New creates and registers all Prometheus metrics.
func New() *Metrics {
	return &Metrics{
		MortgagesRegistered: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cadastra_mortgages_registered_total",
			Help: "Total number of mortgages registered",
		}),
		MortgagesDischarged: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cadastra_mortgages_discharged_total",
			Help: "Total number of mortgages discharged",
		}),
		DocumentsUploaded: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cadastra_documents_uploaded_total",
			Help: "Total number of documents uploaded",
		}),
		DocumentsVerified: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cadastra_documents_verified_total",
			Help: "Total number of documents marked verified by a reviewer",
		}),
		IntegrityChecks: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cadastra_integrity_checks_total",
			Help: "Content hash verifications by result (valid/invalid)",
		}, []string{"result"}),
		NotificationsSent: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cadastra_notifications_dispatched_total",
			Help: "Total number of notification rows created by dispatch",
		}),
		ChannelDeliveries: promauto.NewCounterVec(prometheus.CounterOpts{
			Name: "cadastra_channel_deliveries_total",
			Help: "Per-channel delivery attempts by outcome (sent/skipped/failed)",
		}, []string{"channel", "outcome"}),
		AnchorFailures: promauto.NewCounter(prometheus.CounterOpts{
			Name: "cadastra_ledger_anchor_failures_total",
			Help: "Ledger anchor calls that failed or timed out (non-fatal)",
		}),
	}
}

// IncMortgagesRegistered records a completed mortgage registration.
func (m *Metrics) IncMortgagesRegistered() {
	if m == nil {
		return
	}
	m.MortgagesRegistered.Inc()
}

// IncMortgagesDischarged records a completed discharge.
func (m *Metrics) IncMortgagesDischarged() {
	if m == nil {
		return
	}
	m.MortgagesDischarged.Inc()
}

// IncDocumentsUploaded records a completed document upload.
func (m *Metrics) IncDocumentsUploaded() {
	if m == nil {
		return
	}
	m.DocumentsUploaded.Inc()
}

// IncDocumentsVerified records a reviewer verification.
func (m *Metrics) IncDocumentsVerified() {
	if m == nil {
		return
	}
	m.DocumentsVerified.Inc()
}

// IncNotificationsSent records a persisted dispatch.
func (m *Metrics) IncNotificationsSent() {
	if m == nil {
		return
	}
	m.NotificationsSent.Inc()
}

// IncAnchorFailures records a failed or timed-out ledger anchor call.
func (m *Metrics) IncAnchorFailures() {
	if m == nil {
		return
	}
	m.AnchorFailures.Inc()
}

// IncIntegrityCheck records an integrity verification outcome.
func (m *Metrics) IncIntegrityCheck(valid bool) {
	if m == nil {
		return
	}
	result := "valid"
	if !valid {
		result = "invalid"
	}
	m.IntegrityChecks.WithLabelValues(result).Inc()
}

// IncChannelDelivery records a per-channel dispatch outcome.
func (m *Metrics) IncChannelDelivery(channel, outcome string) {
	if m == nil {
		return
	}
	m.ChannelDeliveries.WithLabelValues(channel, outcome).Inc()
}
