package documents

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillbooks/quillbooks/internal/finance/tax"
	"github.com/quillbooks/quillbooks/internal/platform/db"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// Repository defines data access for documents and their lines.
type Repository interface {
	CreateWithLines(ctx context.Context, doc Document) (*Document, error)
	Get(ctx context.Context, companyID, id int64) (*Document, error)
	List(ctx context.Context, req ListDocumentsRequest) ([]Document, error)
	ReplaceLines(ctx context.Context, companyID, id int64, lines []Line, totals tax.Totals) (*Document, error)
	UpdateStatus(ctx context.Context, companyID, id int64, from, to Status) error
	HasAllocations(ctx context.Context, documentID int64) (bool, error)
	ListFallbackNumbered(ctx context.Context, limit int) ([]Document, error)
	ReassignNumber(ctx context.Context, id int64, number string) error
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

const documentColumns = `id, doc_number, number_fallback, kind, company_id, customer_id,
	issue_date, valid_until, status, currency, subtotal, tax_amount, total_amount,
	paid_amount, balance_due, notes, created_by, created_at, updated_at`

func (r *repository) CreateWithLines(ctx context.Context, doc Document) (*Document, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO documents (
				doc_number, number_fallback, kind, company_id, customer_id,
				issue_date, valid_until, status, currency,
				subtotal, tax_amount, total_amount, paid_amount, balance_due,
				notes, created_by, created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,0,$12,$13,$14,NOW(),NOW())
			RETURNING id, created_at, updated_at`,
			doc.DocNumber, doc.NumberFallback, doc.Kind, doc.CompanyID, doc.CustomerID,
			doc.IssueDate, doc.ValidUntil, doc.Status, doc.Currency,
			doc.Subtotal, doc.TaxAmount, doc.TotalAmount,
			doc.Notes, doc.CreatedBy,
		).Scan(&doc.ID, &doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert document: %w", err)
		}
		return insertLines(ctx, tx, doc.ID, doc.Lines)
	})
	if err != nil {
		return nil, err
	}
	for i := range doc.Lines {
		doc.Lines[i].DocumentID = doc.ID
	}
	return &doc, nil
}

func insertLines(ctx context.Context, tx pgx.Tx, documentID int64, lines []Line) error {
	for i := range lines {
		err := tx.QueryRow(ctx, `
			INSERT INTO document_lines (
				document_id, description, quantity, unit_price,
				discount_percent, discount_amount, tax_percent, tax_inclusive,
				net_amount, tax_amount, line_total, line_order
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			RETURNING id`,
			documentID, lines[i].Description, lines[i].Quantity, lines[i].UnitPrice,
			lines[i].DiscountPercent, lines[i].DiscountAmount, lines[i].TaxPercent, lines[i].TaxInclusive,
			lines[i].NetAmount, lines[i].TaxAmount, lines[i].LineTotal, lines[i].LineOrder,
		).Scan(&lines[i].ID)
		if err != nil {
			return fmt.Errorf("insert line %d: %w", i+1, err)
		}
	}
	return nil
}

func (r *repository) Get(ctx context.Context, companyID, id int64) (*Document, error) {
	row := r.pool.QueryRow(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE id = $1 AND company_id = $2`, id, companyID)
	doc, err := scanDocument(row)
	if err != nil {
		return nil, err
	}

	rows, err := r.pool.Query(ctx, `
		SELECT id, document_id, description, quantity, unit_price,
			discount_percent, discount_amount, tax_percent, tax_inclusive,
			net_amount, tax_amount, line_total, line_order
		FROM document_lines WHERE document_id = $1 ORDER BY line_order`, id)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var l Line
		if err := rows.Scan(
			&l.ID, &l.DocumentID, &l.Description, &l.Quantity, &l.UnitPrice,
			&l.DiscountPercent, &l.DiscountAmount, &l.TaxPercent, &l.TaxInclusive,
			&l.NetAmount, &l.TaxAmount, &l.LineTotal, &l.LineOrder); err != nil {
			return nil, err
		}
		doc.Lines = append(doc.Lines, l)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return doc, nil
}

func (r *repository) List(ctx context.Context, req ListDocumentsRequest) ([]Document, error) {
	query := `SELECT ` + documentColumns + ` FROM documents WHERE company_id = $1`
	args := []any{req.CompanyID}
	argNum := 2

	if req.Kind != nil {
		query += fmt.Sprintf(" AND kind = $%d", argNum)
		args = append(args, *req.Kind)
		argNum++
	}
	if req.Status != nil {
		query += fmt.Sprintf(" AND status = $%d", argNum)
		args = append(args, *req.Status)
		argNum++
	}
	if req.CustomerID != nil {
		query += fmt.Sprintf(" AND customer_id = $%d", argNum)
		args = append(args, *req.CustomerID)
		argNum++
	}
	if req.DateFrom != nil {
		query += fmt.Sprintf(" AND issue_date >= $%d", argNum)
		args = append(args, *req.DateFrom)
		argNum++
	}
	if req.DateTo != nil {
		query += fmt.Sprintf(" AND issue_date <= $%d", argNum)
		args = append(args, *req.DateTo)
		argNum++
	}

	query += " ORDER BY created_at DESC"
	if req.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, req.Limit)
		argNum++
	}
	if req.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argNum)
		args = append(args, req.Offset)
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// ReplaceLines implements the edit-and-recompute cycle: delete all lines,
// reinsert the recomputed set and rewrite the derived totals in one
// transaction.
func (r *repository) ReplaceLines(ctx context.Context, companyID, id int64, lines []Line, totals tax.Totals) (*Document, error) {
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			UPDATE documents
			SET subtotal = $3, tax_amount = $4, total_amount = $5, balance_due = $5 - paid_amount, updated_at = NOW()
			WHERE id = $1 AND company_id = $2 AND status = 'DRAFT'`,
			id, companyID, totals.Subtotal, totals.TaxTotal, totals.TotalAmount)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return shared.ErrInvalidStatus
		}
		if _, err := tx.Exec(ctx, `DELETE FROM document_lines WHERE document_id = $1`, id); err != nil {
			return err
		}
		return insertLines(ctx, tx, id, lines)
	})
	if err != nil {
		return nil, err
	}
	return r.Get(ctx, companyID, id)
}

// UpdateStatus applies the transition only when the row is still in the
// expected status, so a concurrent change loses cleanly.
func (r *repository) UpdateStatus(ctx context.Context, companyID, id int64, from, to Status) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET status = $4, updated_at = NOW()
		WHERE id = $1 AND company_id = $2 AND status = $3`,
		id, companyID, from, to)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentUpdateConflict
	}
	return nil
}

func (r *repository) HasAllocations(ctx context.Context, documentID int64) (bool, error) {
	var count int
	err := r.pool.QueryRow(ctx,
		`SELECT COUNT(*) FROM allocations WHERE invoice_id = $1`, documentID).Scan(&count)
	return count > 0, err
}

// ListFallbackNumbered returns documents still carrying fallback-issued
// numbers, for the reconciliation job.
func (r *repository) ListFallbackNumbered(ctx context.Context, limit int) ([]Document, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+documentColumns+` FROM documents WHERE number_fallback ORDER BY created_at LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var docs []Document
	for rows.Next() {
		doc, err := scanDocument(rows)
		if err != nil {
			return nil, err
		}
		docs = append(docs, *doc)
	}
	return docs, rows.Err()
}

// ReassignNumber swaps a fallback number for an authoritative one. The guard
// on number_fallback keeps the job from touching documents reconciled by a
// concurrent run.
func (r *repository) ReassignNumber(ctx context.Context, id int64, number string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE documents SET doc_number = $2, number_fallback = FALSE, updated_at = NOW()
		WHERE id = $1 AND number_fallback`, id, number)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrConcurrentUpdateConflict
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanDocument(row rowScanner) (*Document, error) {
	var doc Document
	err := row.Scan(
		&doc.ID, &doc.DocNumber, &doc.NumberFallback, &doc.Kind, &doc.CompanyID, &doc.CustomerID,
		&doc.IssueDate, &doc.ValidUntil, &doc.Status, &doc.Currency,
		&doc.Subtotal, &doc.TaxAmount, &doc.TotalAmount,
		&doc.PaidAmount, &doc.BalanceDue,
		&doc.Notes, &doc.CreatedBy, &doc.CreatedAt, &doc.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}
