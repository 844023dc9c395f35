// Package fees computes platform fees for escrow transactions.
//
// Buyer and seller rates are expressed in basis points and applied to the
// item subtotal. Each derived value is rounded half-up to the minor unit
// exactly once; derived values are never recomputed from each other.
package fees

import (
	"errors"
	"math/big"

	"github.com/riftworks/riftpay/internal/money"
)

var (
	ErrNegativeSubtotal = errors.New("fees: subtotal must not be negative")
	ErrInvalidAmount    = errors.New("fees: invalid amount")
)

// Default platform rates in basis points.
const (
	DefaultBuyerBps  = 300 // 3% charged on top of the subtotal
	DefaultSellerBps = 500 // 5% taken out of the subtotal
)

// Quote holds the fee breakdown for one amount, all values formatted to
// the currency's minor-unit precision.
type Quote struct {
	Subtotal   string `json:"subtotal"`
	BuyerFee   string `json:"buyerFee"`
	SellerFee  string `json:"sellerFee"`
	SellerNet  string `json:"sellerNet"`
	BuyerTotal string `json:"buyerTotal"`
}

// Calculator computes fee quotes for a fixed rate pair.
type Calculator struct {
	BuyerBps  int64
	SellerBps int64
}

// NewCalculator creates a calculator with the given basis-point rates.
func NewCalculator(buyerBps, sellerBps int64) *Calculator {
	return &Calculator{BuyerBps: buyerBps, SellerBps: sellerBps}
}

// Quote computes the fee breakdown for a subtotal string (e.g. "100.00").
// Negative subtotals are a caller contract violation and rejected before
// any calculation.
func (c *Calculator) Quote(subtotal string) (*Quote, error) {
	amount, ok := money.Parse(subtotal)
	if !ok {
		return nil, ErrInvalidAmount
	}
	return c.QuoteAmount(amount)
}

// QuoteAmount computes the fee breakdown for a smallest-unit amount.
func (c *Calculator) QuoteAmount(amount *big.Int) (*Quote, error) {
	if amount == nil || amount.Sign() < 0 {
		return nil, ErrNegativeSubtotal
	}

	buyerFee := money.ApplyRate(amount, c.BuyerBps)
	sellerFee := money.ApplyRate(amount, c.SellerBps)
	sellerNet := new(big.Int).Sub(amount, sellerFee)
	buyerTotal := new(big.Int).Add(amount, buyerFee)

	return &Quote{
		Subtotal:   money.Format(amount),
		BuyerFee:   money.Format(buyerFee),
		SellerFee:  money.Format(sellerFee),
		SellerNet:  money.Format(sellerNet),
		BuyerTotal: money.Format(buyerTotal),
	}, nil
}
