// Package money provides shared currency parsing and formatting utilities.
//
// Supported currencies use 2 decimal places. All amounts are stored as
// big.Int in the smallest unit (1.00 = 100 cents).
package money

import (
	"math/big"
	"strings"
)

const Decimals = 2

// Tolerance is the maximum rounding drift allowed when comparing amounts
// that should be equal (one minor unit).
var Tolerance = big.NewInt(1)

// Parse converts a decimal string (e.g. "1.50") to its smallest-unit
// big.Int representation (150). Returns (nil, false) on invalid input.
//
// Rules:
//   - Empty string returns (0, true)
//   - Signed amounts are rejected, including a leading "+"
//   - Multiple decimal points are rejected
//   - More than 2 decimal places is rejected; shorter fractions are
//     padded, never truncated
func Parse(s string) (*big.Int, bool) {
	if s == "" {
		return big.NewInt(0), true
	}

	parts := strings.Split(s, ".")
	if len(parts) > 2 {
		return nil, false
	}
	whole := parts[0]
	frac := ""
	if len(parts) > 1 {
		frac = parts[1]
	}
	if whole == "" && frac == "" {
		return nil, false
	}
	if whole == "" {
		whole = "0"
	}

	// Sub-cent precision would silently shave value, so it is an error.
	if len(frac) > Decimals {
		return nil, false
	}
	for len(frac) < Decimals {
		frac += "0"
	}

	combined := whole + frac
	for _, c := range combined {
		if c < '0' || c > '9' {
			return nil, false
		}
	}
	result, ok := new(big.Int).SetString(combined, 10)
	return result, ok
}

// Format converts a smallest-unit big.Int to a human-readable decimal
// string with exactly 2 decimal places (e.g. "1.50").
func Format(amount *big.Int) string {
	if amount == nil {
		return "0.00"
	}
	neg := amount.Sign() < 0
	abs := new(big.Int).Abs(amount)
	s := abs.String()
	for len(s) < Decimals+1 {
		s = "0" + s
	}
	decimal := len(s) - Decimals
	result := s[:decimal] + "." + s[decimal:]
	if neg {
		result = "-" + result
	}
	return result
}

// ApplyRate multiplies an amount by a basis-point rate and rounds half-up
// to the minor unit. 300 bps on 10000 cents yields 300 cents.
func ApplyRate(amount *big.Int, bps int64) *big.Int {
	if amount == nil || amount.Sign() == 0 || bps == 0 {
		return big.NewInt(0)
	}
	product := new(big.Int).Mul(amount, big.NewInt(bps))
	// Half-up: add half the divisor before truncating.
	product.Add(product, big.NewInt(5000))
	return product.Div(product, big.NewInt(10000))
}

// Sum adds a list of amounts.
func Sum(amounts ...*big.Int) *big.Int {
	total := big.NewInt(0)
	for _, a := range amounts {
		if a != nil {
			total.Add(total, a)
		}
	}
	return total
}

// WithinTolerance reports whether two amounts differ by at most one
// minor unit.
func WithinTolerance(a, b *big.Int) bool {
	diff := new(big.Int).Sub(a, b)
	return diff.Abs(diff).Cmp(Tolerance) <= 0
}

// IsValid reports whether s parses as a positive amount.
func IsValid(s string) bool {
	v, ok := Parse(s)
	return ok && v.Sign() > 0
}
