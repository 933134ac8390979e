package statements

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// Repository defines the ledger reads behind statements and aging.
type Repository interface {
	ListOutstanding(ctx context.Context, companyID int64) ([]OutstandingInvoice, error)
	ListStatementRows(ctx context.Context, companyID, customerID int64, from, to time.Time) ([]Entry, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) ListOutstanding(ctx context.Context, companyID int64) ([]OutstandingInvoice, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT d.id, d.doc_number, d.customer_id, d.issue_date,
			d.issue_date + make_interval(days => COALESCE(c.payment_terms_days, 30)),
			d.total_amount, d.balance_due
		FROM documents d
		JOIN customers c ON c.id = d.customer_id
		WHERE d.company_id = $1 AND d.kind = 'INVOICE'
			AND d.status IN ('SENT', 'PARTIAL')
			AND d.balance_due > 0
		ORDER BY d.issue_date`, companyID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var invoices []OutstandingInvoice
	for rows.Next() {
		var inv OutstandingInvoice
		if err := rows.Scan(&inv.ID, &inv.DocNumber, &inv.CustomerID, &inv.IssueDate,
			&inv.DueDate, &inv.Total, &inv.BalanceDue); err != nil {
			return nil, err
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

// ListStatementRows returns the customer's invoices, payments and applied
// credit notes in one chronological stream. The running balance is filled in
// by the service.
func (r *repository) ListStatementRows(ctx context.Context, companyID, customerID int64, from, to time.Time) ([]Entry, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT issue_date AS at, 'INVOICE' AS kind, doc_number AS reference, total_amount AS debit, 0 AS credit
		FROM documents
		WHERE company_id = $1 AND customer_id = $2 AND kind = 'INVOICE'
			AND status NOT IN ('DRAFT', 'CANCELLED')
			AND issue_date BETWEEN $3 AND $4
		UNION ALL
		SELECT received_at, 'PAYMENT', COALESCE(reference, 'payment #' || id), 0, amount
		FROM payments
		WHERE company_id = $1 AND customer_id = $2 AND received_at BETWEEN $3 AND $4
		UNION ALL
		SELECT issue_date, 'CREDIT_NOTE', doc_number, 0, total_amount
		FROM documents
		WHERE company_id = $1 AND customer_id = $2 AND kind = 'CREDIT_NOTE'
			AND status NOT IN ('DRAFT', 'CANCELLED')
			AND issue_date BETWEEN $3 AND $4
		ORDER BY at, kind`, companyID, customerID, from, to)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		var e Entry
		var debit, credit decimal.Decimal
		if err := rows.Scan(&e.Date, &e.Kind, &e.Reference, &debit, &credit); err != nil {
			return nil, err
		}
		e.Debit = debit
		e.Credit = credit
		entries = append(entries, e)
	}
	return entries, rows.Err()
}
