// Package metrics holds the Prometheus collectors exported by the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Outcome labels for ledger operations.
const (
	OutcomeCommitted         = "committed"
	OutcomeAlreadyProcessed  = "already_processed"
	OutcomeRejected          = "rejected"
	OutcomeInsufficientFunds = "insufficient_funds"
	OutcomeCommitFailed      = "commit_failed"
)

// Ledger records ledger engine activity. A nil *Ledger is a no-op.
type Ledger struct {
	operations *prometheus.CounterVec
	duration   *prometheus.HistogramVec
	moved      *prometheus.CounterVec
}

// NewLedger registers the ledger collectors on reg.
func NewLedger(reg prometheus.Registerer) *Ledger {
	factory := promauto.With(reg)
	return &Ledger{
		operations: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletledger",
			Name:      "operations_total",
			Help:      "Ledger operations by kind and outcome.",
		}, []string{"operation", "outcome"}),
		duration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "walletledger",
			Name:      "operation_duration_seconds",
			Help:      "Time spent in ledger operations, including the unit of work.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation"}),
		moved: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "walletledger",
			Name:      "amount_minor_units_total",
			Help:      "Committed money movement in minor units.",
		}, []string{"operation"}),
	}
}

// Observe counts one finished operation.
func (m *Ledger) Observe(operation, outcome string, started time.Time) {
	if m == nil {
		return
	}
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.duration.WithLabelValues(operation).Observe(time.Since(started).Seconds())
}

// Moved adds committed minor units for an operation.
func (m *Ledger) Moved(operation string, minorUnits int64) {
	if m == nil || minorUnits <= 0 {
		return
	}
	m.moved.WithLabelValues(operation).Add(float64(minorUnits))
}

// Operations exposes the counter vector for tests and dashboards.
func (m *Ledger) Operations() *prometheus.CounterVec {
	return m.operations
}
