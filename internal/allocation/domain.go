// Package allocation applies customer payments and credit notes against
// invoices. Every application runs in a single transaction holding row locks
// on the source and the invoice, so balances never go negative and an invoice
// can never be over-allocated.
package allocation

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/documents"
)

// SourceKind identifies what funds an allocation.
type SourceKind string

const (
	SourcePayment    SourceKind = "PAYMENT"
	SourceCreditNote SourceKind = "CREDIT_NOTE"
)

// Valid reports whether the source kind is known.
func (k SourceKind) Valid() bool {
	return k == SourcePayment || k == SourceCreditNote
}

// Payment is money received from a customer, allocatable across invoices
// until its amount is exhausted.
type Payment struct {
	ID         int64           `json:"id" db:"id"`
	CompanyID  int64           `json:"company_id" db:"company_id"`
	CustomerID int64           `json:"customer_id" db:"customer_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	Applied    decimal.Decimal `json:"applied" db:"-"`
	Currency   string          `json:"currency" db:"currency"`
	Method     string          `json:"method" db:"method"`
	Reference  *string         `json:"reference,omitempty" db:"reference"`
	ReceivedAt time.Time       `json:"received_at" db:"received_at"`
	CreatedBy  int64           `json:"created_by" db:"created_by"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// Remaining is the unapplied portion of the payment.
func (p Payment) Remaining() decimal.Decimal {
	return p.Amount.Sub(p.Applied)
}

// Allocation links a source to an invoice for an amount. One row exists per
// (source, invoice) pair; re-applying the same pair increments the amount.
type Allocation struct {
	ID         int64           `json:"id" db:"id"`
	SourceKind SourceKind      `json:"source_kind" db:"source_kind"`
	SourceID   int64           `json:"source_id" db:"source_id"`
	InvoiceID  int64           `json:"invoice_id" db:"invoice_id"`
	Amount     decimal.Decimal `json:"amount" db:"amount"`
	CreatedBy  int64           `json:"created_by" db:"created_by"`
	CreatedAt  time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at" db:"updated_at"`
}

// ApplyResult reports the state after a successful application.
type ApplyResult struct {
	Allocation      Allocation       `json:"allocation"`
	InvoiceStatus   documents.Status `json:"invoice_status"`
	InvoiceBalance  decimal.Decimal  `json:"invoice_balance"`
	SourceRemaining decimal.Decimal  `json:"source_remaining"`
}
