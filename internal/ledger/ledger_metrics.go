package ledger

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// LedgerOpsTotal counts ledger operations by type.
	LedgerOpsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "riftpay",
			Name:      "ledger_operations_total",
			Help:      "Total ledger operations by type.",
		},
		[]string{"type"},
	)

	// LedgerOpDuration observes operation latency by type.
	LedgerOpDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "riftpay",
			Name:      "ledger_operation_duration_seconds",
			Help:      "Ledger operation duration in seconds.",
			Buckets:   []float64{0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1.0},
		},
		[]string{"type"},
	)

	// LedgerBalanceAvailable tracks the sum of all available balances.
	LedgerBalanceAvailable = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riftpay",
			Name:      "ledger_balance_available_total",
			Help:      "Sum of all user available balances.",
		},
	)

	// LedgerBalancePending tracks the sum of all pending balances.
	LedgerBalancePending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "riftpay",
			Name:      "ledger_balance_pending_total",
			Help:      "Sum of all user pending balances.",
		},
	)
)

func init() {
	prometheus.MustRegister(
		LedgerOpsTotal,
		LedgerOpDuration,
		LedgerBalanceAvailable,
		LedgerBalancePending,
	)
}

// observeOp records one ledger operation; call as `defer observeOp(type)()`.
func observeOp(opType string) func() {
	start := time.Now()
	return func() {
		LedgerOpsTotal.WithLabelValues(opType).Inc()
		LedgerOpDuration.WithLabelValues(opType).Observe(time.Since(start).Seconds())
	}
}
