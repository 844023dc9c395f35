package payout

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v81"
	"github.com/stripe/stripe-go/v81/transfer"

	"github.com/riftworks/riftpay/internal/money"
)

// DestinationResolver maps a platform user to their provider account.
// An empty destination means the user has not connected one.
type DestinationResolver interface {
	Destination(ctx context.Context, userID string) (string, error)
}

// StripeProcessor sends transfers to connected Stripe accounts. The
// reference doubles as the Stripe idempotency key and transfer group, so
// retries and reconciliation lookups both key off it.
type StripeProcessor struct {
	destinations DestinationResolver
}

// NewStripeProcessor creates a Stripe-backed processor. The API key is
// set once on the global Stripe client.
func NewStripeProcessor(apiKey string, destinations DestinationResolver) *StripeProcessor {
	stripe.Key = apiKey
	return &StripeProcessor{destinations: destinations}
}

func (sp *StripeProcessor) CreatePayout(ctx context.Context, userID, amount, currency, reference string) (string, error) {
	dest, err := sp.destinations.Destination(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("failed to resolve destination: %w", err)
	}
	if dest == "" {
		return "", ErrNoDestination
	}

	cents, ok := money.Parse(amount)
	if !ok {
		return "", fmt.Errorf("%w: invalid amount %q", ErrValidation, amount)
	}

	params := &stripe.TransferParams{
		Amount:        stripe.Int64(cents.Int64()),
		Currency:      stripe.String(strings.ToLower(currency)),
		Destination:   stripe.String(dest),
		TransferGroup: stripe.String(reference),
	}
	params.Context = ctx
	params.SetIdempotencyKey(reference)

	tr, err := transfer.New(params)
	if err != nil {
		return "", err
	}
	return tr.ID, nil
}

func (sp *StripeProcessor) FindTransfer(ctx context.Context, reference string) (string, bool, error) {
	params := &stripe.TransferListParams{TransferGroup: stripe.String(reference)}
	params.Context = ctx
	params.Limit = stripe.Int64(1)

	it := transfer.List(params)
	for it.Next() {
		return it.Transfer().ID, true, nil
	}
	if err := it.Err(); err != nil {
		return "", false, err
	}
	return "", false, nil
}
