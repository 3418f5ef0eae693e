// Package money centralises the monetary arithmetic policy: fixed-point
// decimals, 2-decimal rounding for amounts and totals, 4-decimal rounding for
// intermediate discount/tax computation, half away from zero.
package money

import "github.com/shopspring/decimal"

// Tolerance is the rounding slack accepted when comparing monetary amounts.
var Tolerance = decimal.RequireFromString("0.01")

// PartialEpsilon guards the partial-payment flag against rounding noise.
var PartialEpsilon = decimal.RequireFromString("0.005")

var hundred = decimal.NewFromInt(100)

// Round2 rounds an amount or total to 2 decimal places.
func Round2(d decimal.Decimal) decimal.Decimal {
	return d.Round(2)
}

// Round4 rounds an intermediate discount or tax value to 4 decimal places.
func Round4(d decimal.Decimal) decimal.Decimal {
	return d.Round(4)
}

// Percent returns base × pct/100 at 4-decimal precision.
func Percent(base, pct decimal.Decimal) decimal.Decimal {
	return Round4(base.Mul(pct).Div(hundred))
}

// WithinTolerance reports whether a and b differ by at most Tolerance.
func WithinTolerance(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(Tolerance)
}

// ExceedsWithTolerance reports whether amount is greater than limit even after
// granting the rounding tolerance.
func ExceedsWithTolerance(amount, limit decimal.Decimal) bool {
	return amount.GreaterThan(limit.Add(Tolerance))
}

// IsPositive reports whether d is strictly greater than zero.
func IsPositive(d decimal.Decimal) bool {
	return d.GreaterThan(decimal.Zero)
}

// Min returns the smaller of a and b.
func Min(a, b decimal.Decimal) decimal.Decimal {
	if a.LessThan(b) {
		return a
	}
	return b
}
