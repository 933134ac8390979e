// Package money centralises monetary rounding and display formatting.
package money

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/shopspring/decimal"
)

// Precision is the currency precision applied to all stored amounts.
const Precision = 2

var hundred = decimal.NewFromInt(100)

// Round applies round-half-up at currency precision. It is applied exactly
// once at the end of each computation, never on intermediates.
func Round(d decimal.Decimal) decimal.Decimal {
	// decimal.Round rounds half away from zero, which equals half-up for the
	// non-negative amounts this system produces.
	return d.Round(Precision)
}

// Percent returns amount × pct / 100, unrounded.
func Percent(amount, pct decimal.Decimal) decimal.Decimal {
	return amount.Mul(pct).Div(hundred)
}

// ExtractInclusiveTax returns the tax contained in a tax-inclusive amount:
// amount × rate / (100 + rate), unrounded.
func ExtractInclusiveTax(amount, rate decimal.Decimal) decimal.Decimal {
	if rate.IsZero() {
		return decimal.Zero
	}
	return amount.Mul(rate).Div(hundred.Add(rate))
}

var printer = message.NewPrinter(language.English)

// Format renders an amount with thousands separators for statements and logs.
func Format(d decimal.Decimal) string {
	f, _ := Round(d).Float64()
	return printer.Sprintf("%.2f", f)
}
