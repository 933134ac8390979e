package allocation

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/documents"
	"github.com/quillbooks/quillbooks/internal/platform/db"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// Repository defines data access for payments and allocations.
type Repository interface {
	Apply(ctx context.Context, companyID int64, kind SourceKind, sourceID, invoiceID int64, amount decimal.Decimal, actorID int64) (*ApplyResult, error)
	CreatePayment(ctx context.Context, p Payment) (*Payment, error)
	GetPayment(ctx context.Context, companyID, id int64) (*Payment, error)
	ListByInvoice(ctx context.Context, invoiceID int64) ([]Allocation, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

// Apply runs the full application cycle in one transaction. Lock order is
// source first, invoice second, held until commit. Validation happens under
// the locks: missing rows, then the amount, then the source balance, then the
// invoice balance.
func (r *repository) Apply(ctx context.Context, companyID int64, kind SourceKind, sourceID, invoiceID int64, amount decimal.Decimal, actorID int64) (*ApplyResult, error) {
	var result ApplyResult
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		remaining, err := lockSource(ctx, tx, companyID, kind, sourceID)
		if err != nil {
			return err
		}

		var invoiceStatus documents.Status
		var balanceDue decimal.Decimal
		err = tx.QueryRow(ctx, `
			SELECT status, balance_due FROM documents
			WHERE id = $1 AND company_id = $2 AND kind = 'INVOICE'
			FOR UPDATE`, invoiceID, companyID).Scan(&invoiceStatus, &balanceDue)
		if errors.Is(err, pgx.ErrNoRows) {
			return fmt.Errorf("invoice %d: %w", invoiceID, shared.ErrNotFound)
		}
		if err != nil {
			return err
		}

		if amount.LessThanOrEqual(decimal.Zero) {
			return shared.ErrInvalidAmount
		}
		if remaining.LessThan(amount) {
			return shared.ErrInsufficientSourceBalance
		}
		if balanceDue.LessThan(amount) {
			return shared.ErrExceedsInvoiceBalance
		}
		if invoiceStatus != documents.StatusSent && invoiceStatus != documents.StatusPartial {
			return fmt.Errorf("%w: invoice is %s", shared.ErrInvalidStatus, invoiceStatus)
		}

		alloc := Allocation{
			SourceKind: kind,
			SourceID:   sourceID,
			InvoiceID:  invoiceID,
			Amount:     amount,
			CreatedBy:  actorID,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO allocations (source_kind, source_id, invoice_id, amount, created_by, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, NOW(), NOW())
			ON CONFLICT (source_kind, source_id, invoice_id)
			DO UPDATE SET amount = allocations.amount + EXCLUDED.amount, updated_at = NOW()
			RETURNING id, amount, created_at, updated_at`,
			kind, sourceID, invoiceID, amount, actorID,
		).Scan(&alloc.ID, &alloc.Amount, &alloc.CreatedAt, &alloc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("upsert allocation: %w", err)
		}

		tag, err := tx.Exec(ctx, `
			UPDATE documents
			SET paid_amount = paid_amount + $3,
				balance_due = balance_due - $3,
				status = CASE WHEN balance_due - $3 <= 0 THEN 'PAID' ELSE 'PARTIAL' END,
				updated_at = NOW()
			WHERE id = $1 AND company_id = $2 AND balance_due >= $3`,
			invoiceID, companyID, amount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrConcurrentUpdateConflict
		}

		newBalance := balanceDue.Sub(amount)
		status := documents.StatusPartial
		if newBalance.IsZero() {
			status = documents.StatusPaid
		}
		result = ApplyResult{
			Allocation:      alloc,
			InvoiceStatus:   status,
			InvoiceBalance:  newBalance,
			SourceRemaining: remaining.Sub(amount),
		}
		return nil
	})
	if err != nil {
		return nil, mapConflict(err)
	}
	return &result, nil
}

// lockSource takes the row lock on the funding side and returns its
// unapplied balance. Credit notes are documents; payments have their own
// table. Either way the applied total comes from the allocations ledger.
func lockSource(ctx context.Context, tx pgx.Tx, companyID int64, kind SourceKind, sourceID int64) (decimal.Decimal, error) {
	var total decimal.Decimal
	var err error
	switch kind {
	case SourcePayment:
		err = tx.QueryRow(ctx, `
			SELECT amount FROM payments
			WHERE id = $1 AND company_id = $2
			FOR UPDATE`, sourceID, companyID).Scan(&total)
	case SourceCreditNote:
		err = tx.QueryRow(ctx, `
			SELECT total_amount FROM documents
			WHERE id = $1 AND company_id = $2 AND kind = 'CREDIT_NOTE'
				AND status NOT IN ('DRAFT', 'CANCELLED')
			FOR UPDATE`, sourceID, companyID).Scan(&total)
	default:
		return decimal.Zero, fmt.Errorf("source %q: %w", kind, shared.ErrNotFound)
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("%s %d: %w", kind, sourceID, shared.ErrNotFound)
	}
	if err != nil {
		return decimal.Zero, err
	}

	var applied decimal.Decimal
	err = tx.QueryRow(ctx, `
		SELECT COALESCE(SUM(amount), 0) FROM allocations
		WHERE source_kind = $1 AND source_id = $2`, kind, sourceID).Scan(&applied)
	if err != nil {
		return decimal.Zero, err
	}
	return total.Sub(applied), nil
}

func (r *repository) CreatePayment(ctx context.Context, p Payment) (*Payment, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO payments (company_id, customer_id, amount, currency, method, reference, received_at, created_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, NOW(), NOW())
		RETURNING id, created_at, updated_at`,
		p.CompanyID, p.CustomerID, p.Amount, p.Currency, p.Method, p.Reference, p.ReceivedAt, p.CreatedBy,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert payment: %w", err)
	}
	return &p, nil
}

func (r *repository) GetPayment(ctx context.Context, companyID, id int64) (*Payment, error) {
	var p Payment
	err := r.pool.QueryRow(ctx, `
		SELECT p.id, p.company_id, p.customer_id, p.amount, p.currency, p.method, p.reference,
			p.received_at, p.created_by, p.created_at, p.updated_at,
			COALESCE((SELECT SUM(a.amount) FROM allocations a WHERE a.source_kind = 'PAYMENT' AND a.source_id = p.id), 0)
		FROM payments p WHERE p.id = $1 AND p.company_id = $2`, id, companyID).Scan(
		&p.ID, &p.CompanyID, &p.CustomerID, &p.Amount, &p.Currency, &p.Method, &p.Reference,
		&p.ReceivedAt, &p.CreatedBy, &p.CreatedAt, &p.UpdatedAt, &p.Applied)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) ListByInvoice(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, source_kind, source_id, invoice_id, amount, created_by, created_at, updated_at
		FROM allocations WHERE invoice_id = $1 ORDER BY created_at`, invoiceID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var allocs []Allocation
	for rows.Next() {
		var a Allocation
		if err := rows.Scan(&a.ID, &a.SourceKind, &a.SourceID, &a.InvoiceID, &a.Amount,
			&a.CreatedBy, &a.CreatedAt, &a.UpdatedAt); err != nil {
			return nil, err
		}
		allocs = append(allocs, a)
	}
	return allocs, rows.Err()
}

// mapConflict translates serialization and deadlock failures into the
// retryable conflict error.
func mapConflict(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01":
			return fmt.Errorf("%w: %s", shared.ErrConcurrentUpdateConflict, pgErr.Code)
		}
	}
	return err
}
