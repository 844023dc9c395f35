package rift

import "github.com/riftworks/riftpay/internal/metrics"

func observeTransition(to string) {
	metrics.TransitionsTotal.WithLabelValues(to).Inc()
}

func observeRejected() {
	metrics.TransitionsRejectedTotal.Inc()
}

func observeRelease(unit, outcome string) {
	metrics.ReleasesTotal.WithLabelValues(unit, outcome).Inc()
}

func observeSweepRun() {
	metrics.SweepRunsTotal.Inc()
}

func observeSweepReleased(unit string) {
	metrics.SweepReleasedTotal.WithLabelValues(unit).Inc()
}
