// Package money computes order totals with exact decimal arithmetic and renders
// amounts for serialization.
package money

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

var (
	// ErrNegativeQuantity is returned when a line carries a quantity below zero.
	ErrNegativeQuantity = errors.New("quantity must not be negative")
	// ErrNegativePrice is returned when a line carries a unit price below zero.
	ErrNegativePrice = errors.New("unit price must not be negative")
	// ErrTooPrecise is returned for amounts with more than MaxScale fractional digits.
	ErrTooPrecise = fmt.Errorf("amount must have at most %d decimal places", MaxScale)
	// ErrTooLarge is returned for amounts with more than MaxIntegerDigits integer digits.
	ErrTooLarge = fmt.Errorf("amount must have at most %d integer digits", MaxIntegerDigits)
)

// The orders table stores amounts as NUMERIC(38, 10); anything outside these
// bounds would be rounded or rejected by the database.
const (
	MaxScale         = 10
	MaxIntegerDigits = 28
)

var upperBound = decimal.New(1, MaxIntegerDigits)

// CheckStorable reports whether v can be persisted without losing precision.
func CheckStorable(v decimal.Decimal) error {
	if !v.Equal(v.Truncate(MaxScale)) {
		return ErrTooPrecise
	}
	if v.Abs().GreaterThanOrEqual(upperBound) {
		return ErrTooLarge
	}
	return nil
}

// Line is a single priced quantity.
type Line struct {
	Quantity  int64
	UnitPrice decimal.Decimal
}

// ComputeTotal returns sum(quantity * unit price) without any floating point step.
// Every line amount and the total must pass CheckStorable.
func ComputeTotal(lines []Line) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, line := range lines {
		if line.Quantity < 0 {
			return decimal.Zero, ErrNegativeQuantity
		}
		if line.UnitPrice.IsNegative() {
			return decimal.Zero, ErrNegativePrice
		}
		amount := line.UnitPrice.Mul(decimal.NewFromInt(line.Quantity))
		if err := CheckStorable(amount); err != nil {
			return decimal.Zero, err
		}
		total = total.Add(amount)
	}
	if err := CheckStorable(total); err != nil {
		return decimal.Zero, err
	}
	return total, nil
}

// Canonicalize renders an integral amount without a fractional part and any
// other amount with its full precision.
func Canonicalize(value decimal.Decimal) json.Number {
	if value.Equal(value.Truncate(0)) {
		return json.Number(value.Truncate(0).String())
	}
	return json.Number(value.String())
}

// CanonicalizeValue walks maps and slices and replaces every decimal with its
// canonical number. Other values are returned untouched.
func CanonicalizeValue(v any) any {
	switch val := v.(type) {
	case decimal.Decimal:
		return Canonicalize(val)
	case *decimal.Decimal:
		if val == nil {
			return nil
		}
		return Canonicalize(*val)
	case decimal.NullDecimal:
		if !val.Valid {
			return nil
		}
		return Canonicalize(val.Decimal)
	case map[string]any:
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = CanonicalizeValue(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CanonicalizeValue(item)
		}
		return out
	case []map[string]any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = CanonicalizeValue(item)
		}
		return out
	default:
		return v
	}
}
