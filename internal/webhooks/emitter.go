package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/riftworks/riftpay/internal/metrics"
	"github.com/riftworks/riftpay/internal/timeline"
)

func observeDelivery(result string) {
	metrics.WebhookDeliveriesTotal.WithLabelValues(result).Inc()
}

// Sink adapts the dispatcher to the timeline fan-out. Dispatch runs in
// its own goroutine with its own deadline so a slow subscriber never
// backs up timeline recording.
type Sink struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewSink creates a timeline sink backed by a dispatcher.
func NewSink(d *Dispatcher, logger *slog.Logger) *Sink {
	return &Sink{d: d, logger: logger}
}

// Deliver implements timeline.Sink.
func (s *Sink) Deliver(e *timeline.Event) {
	if s == nil || s.d == nil {
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := s.d.Dispatch(ctx, e); err != nil {
			s.logger.Warn("webhook dispatch failed",
				"riftId", e.RiftID, "action", e.Action, "error", err)
		}
	}()
}
