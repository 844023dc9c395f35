package payout

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riftworks/riftpay/internal/rift"
)

// ReleaseSender adapts a Processor to the rift release path. Unlike
// withdrawals, a missing destination is not an error here: the seller's
// proceeds simply stay in their platform wallet.
type ReleaseSender struct {
	processor Processor
	currency  string
	timeout   time.Duration
	logger    *slog.Logger
}

// NewReleaseSender creates a release payout adapter.
func NewReleaseSender(processor Processor, currency string, timeout time.Duration) *ReleaseSender {
	if currency == "" {
		currency = "USD"
	}
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &ReleaseSender{
		processor: processor,
		currency:  currency,
		timeout:   timeout,
		logger:    slog.Default(),
	}
}

// WithLogger sets the logger.
func (rs *ReleaseSender) WithLogger(l *slog.Logger) *ReleaseSender {
	rs.logger = l
	return rs
}

func (rs *ReleaseSender) SendRelease(ctx context.Context, sellerID, amount, reference string) (string, rift.PayoutOutcome, error) {
	callCtx, cancel := context.WithTimeout(ctx, rs.timeout)
	defer cancel()

	start := time.Now()
	transferID, err := rs.processor.CreatePayout(callCtx, sellerID, amount, rs.currency, reference)
	observeDuration(time.Since(start))

	switch {
	case err == nil:
		observeResult("completed")
		return transferID, rift.PayoutSent, nil
	case errors.Is(err, ErrNoDestination):
		observeResult("no_destination")
		return "", rift.PayoutNoDestination, nil
	case errors.Is(err, context.DeadlineExceeded):
		observeResult("indeterminate")
		return "", rift.PayoutIndeterminate, err
	default:
		observeResult("failed")
		return "", rift.PayoutFailure, err
	}
}
