package payout

import (
	"time"

	"github.com/riftworks/riftpay/internal/metrics"
)

func observeResult(result string) {
	metrics.PayoutsTotal.WithLabelValues(result).Inc()
}

func observeDuration(d time.Duration) {
	metrics.PayoutDuration.Observe(d.Seconds())
}
