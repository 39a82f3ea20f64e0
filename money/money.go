// Package money holds the fixed-point types used for every price, fee and
// payout in the marketplace.
//
// Amounts are integer minor units (cents). Percentages are basis points. A
// percentage is applied to an amount exactly once and the result is rounded
// half away from zero to a whole minor unit.
package money

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Scale is the number of decimal places of a minor unit.
const Scale = 2

// Amount is a monetary value in minor units.
type Amount int64

// ParseAmount reads a decimal string such as "12.34" into minor units.
// More precision than a minor unit is rejected.
func ParseAmount(s string) (Amount, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parsing amount %q: %w", s, err)
	}

	minor := d.Shift(Scale)
	if !minor.Equal(minor.Truncate(0)) {
		return 0, fmt.Errorf("amount %q has more than %d decimals", s, Scale)
	}

	return Amount(minor.IntPart()), nil
}

// Mul returns the amount multiplied by a quantity.
func (a Amount) Mul(qty int) Amount {
	return a * Amount(qty)
}

// Decimal returns the amount in major units.
func (a Amount) Decimal() decimal.Decimal {
	return decimal.New(int64(a), -Scale)
}

// String formats the amount in major units with two decimals.
func (a Amount) String() string {
	return a.Decimal().StringFixed(Scale)
}

// Sum adds amounts.
func Sum(as ...Amount) Amount {
	var tot Amount
	for _, a := range as {
		tot += a
	}
	return tot
}

// Min returns the smaller amount.
func Min(a, b Amount) Amount {
	if a < b {
		return a
	}
	return b
}

// BasisPoints per whole (100%).
const BasisPoints = 10000

// Rate is a percentage expressed in basis points: 290 is 2.90%.
type Rate int64

var ErrInvalidRate = errors.New("rate must be a non negative percentage with at most two decimals")

// ParseRate reads a percentage such as "2.9" or "12".
func ParseRate(s string) (Rate, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("parsing rate %q: %w", s, err)
	}
	return RateFromDecimal(d)
}

// RateFromDecimal converts a percentage to basis points.
func RateFromDecimal(d decimal.Decimal) (Rate, error) {
	if d.IsNegative() {
		return 0, ErrInvalidRate
	}

	bp := d.Shift(2)
	if !bp.Equal(bp.Truncate(0)) {
		return 0, ErrInvalidRate
	}

	return Rate(bp.IntPart()), nil
}

// Percent returns the rate as a percentage.
func (r Rate) Percent() decimal.Decimal {
	return decimal.New(int64(r), -2)
}

func (r Rate) String() string {
	return r.Percent().String()
}

// Of applies the rate to an amount, rounding half away from zero.
func (r Rate) Of(a Amount) Amount {
	v := decimal.NewFromInt(int64(a)).
		Mul(decimal.NewFromInt(int64(r))).
		Div(decimal.NewFromInt(BasisPoints)).
		Round(0)

	return Amount(v.IntPart())
}

// MarshalJSON renders the rate as a percentage string, "2.9".
func (r Rate) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.String())
}

// UnmarshalJSON accepts a percentage as either a JSON string or number.
func (r *Rate) UnmarshalJSON(b []byte) error {
	var d decimal.Decimal
	if err := d.UnmarshalJSON(b); err != nil {
		return fmt.Errorf("decoding rate: %w", err)
	}

	v, err := RateFromDecimal(d)
	if err != nil {
		return err
	}

	*r = v
	return nil
}
