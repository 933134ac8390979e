package tax

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/shared"
)

// Totals carries the document-level sums.
type Totals struct {
	Subtotal    decimal.Decimal
	TaxTotal    decimal.Decimal
	TotalAmount decimal.Decimal
}

// tolerancePerLine bounds the accumulated rounding drift: one smallest
// currency denomination per line.
var tolerancePerLine = decimal.NewFromFloat(0.01)

// Aggregate folds computed lines into subtotal, tax total and grand total.
// An empty slice is a valid draft document and yields zero totals. A drift
// between the grand total and subtotal+tax beyond tolerance means the
// calculator itself misbehaved and is reported, never silently corrected.
func Aggregate(lines []LineResult) (Totals, error) {
	t := Totals{
		Subtotal:    decimal.Zero,
		TaxTotal:    decimal.Zero,
		TotalAmount: decimal.Zero,
	}
	for _, line := range lines {
		t.Subtotal = t.Subtotal.Add(line.NetAmount)
		t.TaxTotal = t.TaxTotal.Add(line.TaxAmount)
		t.TotalAmount = t.TotalAmount.Add(line.LineTotal)
	}

	if len(lines) > 0 {
		drift := t.TotalAmount.Sub(t.Subtotal.Add(t.TaxTotal)).Abs()
		tolerance := tolerancePerLine.Mul(decimal.NewFromInt(int64(len(lines))))
		if drift.GreaterThan(tolerance) {
			return Totals{}, fmt.Errorf("%w: drift %s exceeds tolerance %s over %d lines",
				shared.ErrRoundingOverflow, drift.String(), tolerance.String(), len(lines))
		}
	}
	return t, nil
}
