// Package numbering issues human-readable document numbers, unique per
// company, document kind and year.
package numbering

import (
	"fmt"
	"strings"
	"time"
)

// Kind identifies the document family a sequence belongs to.
type Kind string

const (
	KindQuotation     Kind = "QT"
	KindInvoice       Kind = "INV"
	KindProforma      Kind = "PF"
	KindCreditNote    Kind = "CN"
	KindPurchaseOrder Kind = "LPO"
)

// format describes how a kind renders its numbers.
type format struct {
	yearScoped    bool
	width         int
	companyPrefix bool
}

var formats = map[Kind]format{
	KindQuotation:     {yearScoped: true, width: 4},
	KindInvoice:       {yearScoped: true, width: 4},
	KindProforma:      {yearScoped: true, width: 4},
	KindCreditNote:    {width: 6},
	KindPurchaseOrder: {yearScoped: true, width: 4, companyPrefix: true},
}

// Valid reports whether the kind has a registered format.
func (k Kind) Valid() bool {
	_, ok := formats[k]
	return ok
}

// SequenceYear returns the year bucket a number issued at t belongs to.
// Kinds without year scoping share a single bucket.
func (k Kind) SequenceYear(t time.Time) int {
	if formats[k].yearScoped {
		return t.Year()
	}
	return 0
}

// Render produces the final document number for a sequence value.
// Year-scoped kinds render as PREFIX-YYYY-0007; the credit note kind uses a
// fixed-width run-on form (CN000123); purchase orders carry the company's
// initials in front (ACM/LPO-2025-0001).
func (k Kind) Render(companyInitials string, year int, seq int64) string {
	f := formats[k]
	prefix := string(k)
	if f.companyPrefix && companyInitials != "" {
		prefix = companyInitials + "/" + prefix
	}
	if !f.yearScoped {
		return fmt.Sprintf("%s%0*d", prefix, f.width, seq)
	}
	return fmt.Sprintf("%s-%d-%0*d", prefix, year, f.width, seq)
}

// renderFallback produces a client-generated number that cannot collide with
// an authoritative one: the sequence slot carries a T-prefixed timestamp.
func (k Kind) renderFallback(companyInitials string, now time.Time) string {
	f := formats[k]
	prefix := string(k)
	if f.companyPrefix && companyInitials != "" {
		prefix = companyInitials + "/" + prefix
	}
	stamp := fmt.Sprintf("T%d", now.UnixMilli())
	if !f.yearScoped {
		return prefix + stamp
	}
	return fmt.Sprintf("%s-%d-%s", prefix, now.Year(), stamp)
}

// IsFallback reports whether a number was issued by the client-side fallback.
func IsFallback(number string) bool {
	idx := strings.LastIndexByte(number, '-')
	tail := number
	if idx >= 0 {
		tail = number[idx+1:]
	}
	return strings.Contains(tail, "T")
}

// CompanyInitials derives a short prefix from a company name: the first
// letter of up to three words, upper-cased.
func CompanyInitials(name string) string {
	var b strings.Builder
	for i, word := range strings.Fields(name) {
		if i == 3 {
			break
		}
		b.WriteString(strings.ToUpper(word[:1]))
	}
	return b.String()
}
