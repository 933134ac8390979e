// Package statements produces customer statements and receivable aging from
// the documents and allocations ledgers. Results are cached in Redis with a
// short TTL since both reports tolerate slight staleness.
package statements

import (
	"time"

	"github.com/shopspring/decimal"
)

// OutstandingInvoice is an unpaid or partially paid invoice with its due
// date derived from the customer's payment terms.
type OutstandingInvoice struct {
	ID         int64           `json:"id"`
	DocNumber  string          `json:"doc_number"`
	CustomerID int64           `json:"customer_id"`
	IssueDate  time.Time       `json:"issue_date"`
	DueDate    time.Time       `json:"due_date"`
	Total      decimal.Decimal `json:"total"`
	BalanceDue decimal.Decimal `json:"balance_due"`
}

// AgingReport groups outstanding balances by days overdue.
type AgingReport struct {
	AsOf      time.Time       `json:"as_of"`
	Current   decimal.Decimal `json:"current"`
	Days30    decimal.Decimal `json:"days_30"`
	Days60    decimal.Decimal `json:"days_60"`
	Days90    decimal.Decimal `json:"days_90"`
	Days120   decimal.Decimal `json:"days_120_plus"`
	Total     decimal.Decimal `json:"total"`
	CompanyID int64           `json:"company_id"`
}

// EntryKind tags a statement row.
type EntryKind string

const (
	EntryInvoice    EntryKind = "INVOICE"
	EntryPayment    EntryKind = "PAYMENT"
	EntryCreditNote EntryKind = "CREDIT_NOTE"
)

// Entry is one chronological row on a customer statement. Invoices debit the
// customer account, payments and credit notes credit it.
type Entry struct {
	Date      time.Time       `json:"date"`
	Kind      EntryKind       `json:"kind"`
	Reference string          `json:"reference"`
	Debit     decimal.Decimal `json:"debit"`
	Credit    decimal.Decimal `json:"credit"`
	Balance   decimal.Decimal `json:"balance"`
}

// Statement is the full activity view for one customer.
type Statement struct {
	CompanyID    int64           `json:"company_id"`
	CustomerID   int64           `json:"customer_id"`
	CustomerName string          `json:"customer_name"`
	From         time.Time       `json:"from"`
	To           time.Time       `json:"to"`
	Entries      []Entry         `json:"entries"`
	Closing      decimal.Decimal `json:"closing_balance"`
}
