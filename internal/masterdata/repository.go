package masterdata

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/quillbooks/quillbooks/internal/shared"
)

// Repository defines lookups for companies and customers.
type Repository interface {
	GetCompany(ctx context.Context, id int64) (*Company, error)
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	CompanyName(ctx context.Context, companyID int64) (string, error)
}

type repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &repository{pool: pool}
}

func (r *repository) GetCompany(ctx context.Context, id int64) (*Company, error) {
	var c Company
	err := r.pool.QueryRow(ctx, `
		SELECT id, code, name, currency, is_active, created_at, updated_at
		FROM companies WHERE id = $1`, id).Scan(
		&c.ID, &c.Code, &c.Name, &c.Currency, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	var c Customer
	err := r.pool.QueryRow(ctx, `
		SELECT id, company_id, code, name, email, phone, tax_id, payment_terms_days, is_active, created_at, updated_at
		FROM customers WHERE id = $1`, id).Scan(
		&c.ID, &c.CompanyID, &c.Code, &c.Name, &c.Email, &c.Phone, &c.TaxID,
		&c.PaymentTermsDays, &c.IsActive, &c.CreatedAt, &c.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &c, nil
}

func (r *repository) CompanyName(ctx context.Context, companyID int64) (string, error) {
	var name string
	err := r.pool.QueryRow(ctx, `SELECT name FROM companies WHERE id = $1`, companyID).Scan(&name)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", shared.ErrNotFound
	}
	return name, err
}
