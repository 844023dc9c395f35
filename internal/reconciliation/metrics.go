package reconciliation

import "github.com/prometheus/client_golang/prometheus"

var (
	reconcileWalletMismatches = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riftpay",
		Subsystem: "reconciliation",
		Name:      "wallet_mismatches",
		Help:      "Number of wallet balance mismatches found in last reconciliation run.",
	})

	reconcileStaleReleases = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "riftpay",
		Subsystem: "reconciliation",
		Name:      "stale_releases",
		Help:      "Number of release records stuck in creating found in last run.",
	})

	reconcileDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "riftpay",
		Subsystem: "reconciliation",
		Name:      "run_duration_seconds",
		Help:      "Duration of reconciliation runs in seconds.",
		Buckets:   []float64{0.1, 0.5, 1, 2.5, 5, 10, 30, 60},
	})

	reconcileErrors = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "riftpay",
		Subsystem: "reconciliation",
		Name:      "errors_total",
		Help:      "Total reconciliation check errors.",
	})
)

func init() {
	prometheus.MustRegister(
		reconcileWalletMismatches,
		reconcileStaleReleases,
		reconcileDuration,
		reconcileErrors,
	)
}
