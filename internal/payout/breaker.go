package payout

import (
	"context"
	"errors"
	"time"

	"github.com/riftworks/riftpay/internal/circuitbreaker"
)

// ErrProviderUnavailable is returned when the circuit to the payout
// provider is open. The withdrawal hold stays in place; the transfer is
// retried by the reconciliation pass once the provider recovers.
var ErrProviderUnavailable = errors.New("payout: provider temporarily unavailable")

const breakerKey = "payout_provider"

// BreakerProcessor wraps a Processor with a circuit breaker so a
// degraded provider fails fast instead of stacking up 30s timeouts.
type BreakerProcessor struct {
	inner   Processor
	breaker *circuitbreaker.Breaker
}

// NewBreakerProcessor wraps a processor. The circuit opens after five
// consecutive provider failures and probes again after 30 seconds.
func NewBreakerProcessor(inner Processor) *BreakerProcessor {
	return &BreakerProcessor{
		inner:   inner,
		breaker: circuitbreaker.New(5, 30*time.Second),
	}
}

func (p *BreakerProcessor) CreatePayout(ctx context.Context, userID, amount, currency, reference string) (string, error) {
	if !p.breaker.Allow(breakerKey) {
		return "", ErrProviderUnavailable
	}

	transferID, err := p.inner.CreatePayout(ctx, userID, amount, currency, reference)
	if err != nil {
		p.breaker.RecordFailure(breakerKey)
		return "", err
	}

	p.breaker.RecordSuccess(breakerKey)
	return transferID, nil
}

func (p *BreakerProcessor) FindTransfer(ctx context.Context, reference string) (string, bool, error) {
	if !p.breaker.Allow(breakerKey) {
		return "", false, ErrProviderUnavailable
	}

	transferID, found, err := p.inner.FindTransfer(ctx, reference)
	if err != nil {
		p.breaker.RecordFailure(breakerKey)
		return "", false, err
	}

	p.breaker.RecordSuccess(breakerKey)
	return transferID, found, nil
}
