package dispute

import "github.com/riftworks/riftpay/internal/metrics"

func observeOpened() {
	metrics.DisputesTotal.WithLabelValues("opened").Inc()
}

func observeResolved(outcome string) {
	metrics.DisputesTotal.WithLabelValues("resolved_" + outcome).Inc()
}
