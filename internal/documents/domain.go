// Package documents implements the business-document workflow: quotations,
// invoices, proforma invoices, credit notes and purchase orders, each owning
// an ordered set of priced lines with derived totals.
package documents

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/numbering"
)

// Kind enumerates the document families.
type Kind string

const (
	KindQuotation     Kind = "QUOTATION"
	KindInvoice       Kind = "INVOICE"
	KindProforma      Kind = "PROFORMA"
	KindCreditNote    Kind = "CREDIT_NOTE"
	KindPurchaseOrder Kind = "PURCHASE_ORDER"
)

var numberingKinds = map[Kind]numbering.Kind{
	KindQuotation:     numbering.KindQuotation,
	KindInvoice:       numbering.KindInvoice,
	KindProforma:      numbering.KindProforma,
	KindCreditNote:    numbering.KindCreditNote,
	KindPurchaseOrder: numbering.KindPurchaseOrder,
}

// Valid reports whether the kind is known.
func (k Kind) Valid() bool {
	_, ok := numberingKinds[k]
	return ok
}

// NumberingKind maps the document kind to its sequence family.
func (k Kind) NumberingKind() numbering.Kind {
	return numberingKinds[k]
}

// Status is the document state machine. Only draft documents are editable;
// paid and cancelled are terminal.
type Status string

const (
	StatusDraft     Status = "DRAFT"
	StatusSent      Status = "SENT"
	StatusPartial   Status = "PARTIAL"
	StatusPaid      Status = "PAID"
	StatusCancelled Status = "CANCELLED"
)

// CanTransition reports whether moving from s to next is allowed. Partial and
// paid are reached through allocations, never set directly by callers.
func (s Status) CanTransition(next Status) bool {
	switch s {
	case StatusDraft:
		return next == StatusSent || next == StatusCancelled
	case StatusSent:
		return next == StatusPartial || next == StatusPaid || next == StatusCancelled
	case StatusPartial:
		return next == StatusPaid
	default:
		// Paid and cancelled never regress.
		return false
	}
}

// Document owns its lines; deleting the document deletes the lines. The
// subtotal, tax and total fields are derived from the lines and never
// authored independently.
type Document struct {
	ID             int64           `json:"id" db:"id"`
	DocNumber      string          `json:"doc_number" db:"doc_number"`
	NumberFallback bool            `json:"number_fallback" db:"number_fallback"`
	Kind           Kind            `json:"kind" db:"kind"`
	CompanyID      int64           `json:"company_id" db:"company_id"`
	CustomerID     int64           `json:"customer_id" db:"customer_id"`
	IssueDate      time.Time       `json:"issue_date" db:"issue_date"`
	ValidUntil     *time.Time      `json:"valid_until,omitempty" db:"valid_until"`
	Status         Status          `json:"status" db:"status"`
	Currency       string          `json:"currency" db:"currency"`
	Subtotal       decimal.Decimal `json:"subtotal" db:"subtotal"`
	TaxAmount      decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	TotalAmount    decimal.Decimal `json:"total_amount" db:"total_amount"`
	PaidAmount     decimal.Decimal `json:"paid_amount" db:"paid_amount"`
	BalanceDue     decimal.Decimal `json:"balance_due" db:"balance_due"`
	Notes          *string         `json:"notes,omitempty" db:"notes"`
	CreatedBy      int64           `json:"created_by" db:"created_by"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
	Lines          []Line          `json:"lines,omitempty" db:"-"`
}

// Line is one priced, taxed, discounted item on a document.
type Line struct {
	ID              int64           `json:"id" db:"id"`
	DocumentID      int64           `json:"document_id" db:"document_id"`
	Description     string          `json:"description" db:"description"`
	Quantity        decimal.Decimal `json:"quantity" db:"quantity"`
	UnitPrice       decimal.Decimal `json:"unit_price" db:"unit_price"`
	DiscountPercent decimal.Decimal `json:"discount_percent" db:"discount_percent"`
	DiscountAmount  decimal.Decimal `json:"discount_amount" db:"discount_amount"`
	TaxPercent      decimal.Decimal `json:"tax_percent" db:"tax_percent"`
	TaxInclusive    bool            `json:"tax_inclusive" db:"tax_inclusive"`
	NetAmount       decimal.Decimal `json:"net_amount" db:"net_amount"`
	TaxAmount       decimal.Decimal `json:"tax_amount" db:"tax_amount"`
	LineTotal       decimal.Decimal `json:"line_total" db:"line_total"`
	LineOrder       int             `json:"line_order" db:"line_order"`
}
