// Package tax computes per-line tax amounts and document totals under mixed
// inclusive/exclusive tax rules.
package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/finance/money"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// LineInput carries the raw pricing fields of one document line.
type LineInput struct {
	Quantity        decimal.Decimal
	UnitPrice       decimal.Decimal
	DiscountPercent decimal.Decimal
	// DiscountAmount, when non-zero, takes precedence over DiscountPercent.
	DiscountAmount decimal.Decimal
	TaxPercent     decimal.Decimal
	TaxInclusive   bool
}

// LineResult carries the derived amounts, rounded to currency precision.
type LineResult struct {
	NetAmount      decimal.Decimal
	DiscountAmount decimal.Decimal
	TaxAmount      decimal.Decimal
	LineTotal      decimal.Decimal
}

var hundred = decimal.NewFromInt(100)

// ComputeLine derives net, tax and total for one line. Discount is applied
// before tax; an explicit discount amount wins over a percentage. For
// tax-inclusive lines the tax is extracted from the net rather than added.
// Rounding happens once, on the final figures.
func ComputeLine(in LineInput) (LineResult, error) {
	if err := validateLineInput(in); err != nil {
		return LineResult{}, err
	}

	gross := in.Quantity.Mul(in.UnitPrice)

	discount := in.DiscountAmount
	if discount.IsZero() && !in.DiscountPercent.IsZero() {
		discount = money.Percent(gross, in.DiscountPercent)
	}

	net := gross.Sub(discount)
	if net.IsNegative() {
		net = decimal.Zero
	}

	var taxAmount, lineTotal decimal.Decimal
	if in.TaxInclusive {
		taxAmount = money.ExtractInclusiveTax(net, in.TaxPercent)
		lineTotal = net
		net = net.Sub(taxAmount)
	} else {
		taxAmount = money.Percent(net, in.TaxPercent)
		lineTotal = net.Add(taxAmount)
	}

	return LineResult{
		NetAmount:      money.Round(net),
		DiscountAmount: money.Round(discount),
		TaxAmount:      money.Round(taxAmount),
		LineTotal:      money.Round(lineTotal),
	}, nil
}

func validateLineInput(in LineInput) error {
	if in.Quantity.IsNegative() {
		return fmt.Errorf("%w: quantity must not be negative", shared.ErrInvalidLineInput)
	}
	if in.UnitPrice.IsNegative() {
		return fmt.Errorf("%w: unit price must not be negative", shared.ErrInvalidLineInput)
	}
	if in.DiscountPercent.IsNegative() || in.DiscountAmount.IsNegative() {
		return fmt.Errorf("%w: discount must not be negative", shared.ErrInvalidLineInput)
	}
	if in.TaxPercent.IsNegative() || in.TaxPercent.GreaterThan(hundred) {
		return fmt.Errorf("%w: tax percent must be within [0,100]", shared.ErrInvalidLineInput)
	}
	return nil
}
