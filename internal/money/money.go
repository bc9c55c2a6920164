// Package money represents stablecoin amounts as integer minor units. The
// settlement token carries six decimals; user-facing decimal strings are
// parsed exactly and arithmetic never touches floating point.
package money

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/shopspring/decimal"
)

// Decimals is the minor-unit scale of the settlement stablecoin.
const Decimals = 6

var (
	ErrNegative     = errors.New("money: amount must not be negative")
	ErrTooPrecise   = errors.New("money: more fractional digits than the token supports")
	ErrOutOfRange   = errors.New("money: amount does not fit in 64 bits")
	ErrMalformed    = errors.New("money: malformed decimal string")
	errFeeExceeds   = errors.New("money: fee exceeds pot")
	errEmptyPayment = errors.New("money: zero amount")
)

// Amount is a non-negative stablecoin amount in minor units.
type Amount int64

// Parse converts a user-facing decimal string ("1", "2.4", "0.600000") into
// minor units. Inputs with more than Decimals fractional digits are rejected
// rather than rounded.
func Parse(s string) (Amount, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrMalformed, s)
	}
	if d.IsNegative() {
		return 0, ErrNegative
	}
	if -d.Exponent() > Decimals {
		return 0, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}
	scaled := d.Shift(Decimals)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("%w: %q", ErrTooPrecise, s)
	}
	if !scaled.BigInt().IsInt64() {
		return 0, fmt.Errorf("%w: %q", ErrOutOfRange, s)
	}
	return Amount(scaled.BigInt().Int64()), nil
}

// MustParse is Parse for compile-time constants; it panics on error.
func MustParse(s string) Amount {
	a, err := Parse(s)
	if err != nil {
		panic(err)
	}
	return a
}

// String renders the amount with the full six-digit fraction, e.g.
// "2.400000".
func (a Amount) String() string {
	return decimal.New(int64(a), -Decimals).StringFixed(Decimals)
}

// BigInt returns the minor-unit value for on-chain calldata.
func (a Amount) BigInt() *big.Int {
	return big.NewInt(int64(a))
}

// FromBigInt converts an on-chain minor-unit value, rejecting values that do
// not fit.
func FromBigInt(v *big.Int) (Amount, error) {
	if v == nil || v.Sign() < 0 {
		return 0, ErrNegative
	}
	if !v.IsInt64() {
		return 0, ErrOutOfRange
	}
	return Amount(v.Int64()), nil
}

// Pot sums deposit amounts, guarding against overflow.
func Pot(deposits ...Amount) (Amount, error) {
	var total Amount
	for _, d := range deposits {
		if d < 0 {
			return 0, ErrNegative
		}
		total += d
		if total < 0 {
			return 0, ErrOutOfRange
		}
	}
	return total, nil
}

// NetPayout returns pot minus the flat fee. The flat-fee schedule means no
// rounding can occur here.
func NetPayout(pot, fee Amount) (Amount, error) {
	if pot <= 0 {
		return 0, errEmptyPayment
	}
	if fee < 0 {
		return 0, ErrNegative
	}
	if fee > pot {
		return 0, errFeeExceeds
	}
	return pot - fee, nil
}

// ApplyFeePercent deducts a basis-point fee, truncating toward zero. Kept for
// a future percentage schedule; the shipped configuration uses NetPayout.
func ApplyFeePercent(pot Amount, basisPoints int64) (Amount, error) {
	if pot < 0 || basisPoints < 0 {
		return 0, ErrNegative
	}
	if basisPoints > 10_000 {
		return 0, errFeeExceeds
	}
	fee := Amount(int64(pot) * basisPoints / 10_000)
	return pot - fee, nil
}
