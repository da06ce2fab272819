package negotiation

import (
	"fmt"

	dealroom_errors "dealroom/pkg/errors"

	"github.com/shopspring/decimal"
)

// Places is the fixed-point precision of every amount.
const Places = 2

var one = decimal.NewFromInt(1)

// Policy holds the fractions that bound offers around the base price.
type Policy struct {
	Limit     decimal.Decimal
	HardFloor decimal.Decimal
}

// ParsePolicy reads both fractions from their decimal string form.
func ParsePolicy(limit, hardFloor string) (Policy, error) {
	l, err := decimal.NewFromString(limit)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: limit %q: %v", dealroom_errors.ErrInvalidInput, limit, err)
	}
	f, err := decimal.NewFromString(hardFloor)
	if err != nil {
		return Policy{}, fmt.Errorf("%w: hard floor %q: %v", dealroom_errors.ErrInvalidInput, hardFloor, err)
	}
	p := Policy{Limit: l, HardFloor: f}
	return p, p.Validate()
}

// Validate requires limit in (0,1) and hard floor in [0,1).
func (p Policy) Validate() error {
	if !p.Limit.IsPositive() || p.Limit.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: limit must be in (0,1), got %s", dealroom_errors.ErrInvalidInput, p.Limit)
	}
	if p.HardFloor.IsNegative() || p.HardFloor.GreaterThanOrEqual(one) {
		return fmt.Errorf("%w: hard floor must be in [0,1), got %s", dealroom_errors.ErrInvalidInput, p.HardFloor)
	}
	return nil
}

// Bounds is the inclusive range an offer amount must fall in.
type Bounds struct {
	Min decimal.Decimal
	Max decimal.Decimal
}

// Round applies half-even rounding to two places.
func Round(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(Places)
}

// ComputeBounds derives min and max around base. The percentage floor is
// raised to the hard floor when the latter is higher.
func ComputeBounds(base decimal.Decimal, p Policy) (Bounds, error) {
	if err := p.Validate(); err != nil {
		return Bounds{}, err
	}
	base = Round(base)
	if !base.IsPositive() {
		return Bounds{}, fmt.Errorf("%w: base price must be positive, got %s", dealroom_errors.ErrInvalidInput, base)
	}
	pctFloor := base.Mul(one.Sub(p.Limit))
	hardFloor := base.Mul(p.HardFloor)
	return Bounds{
		Min: Round(decimal.Max(pctFloor, hardFloor)),
		Max: Round(base.Mul(one.Add(p.Limit))),
	}, nil
}

// Contains reports whether amount, after rounding, lies in [Min, Max].
func (b Bounds) Contains(amount decimal.Decimal) bool {
	a := Round(amount)
	return a.GreaterThanOrEqual(b.Min) && a.LessThanOrEqual(b.Max)
}
