// Package masterdata holds the company and customer records the document
// and allocation workflows depend on.
package masterdata

import "time"

// Company is a tenant. Every document, payment and allocation belongs to
// exactly one company.
type Company struct {
	ID        int64     `json:"id" db:"id"`
	Code      string    `json:"code" db:"code"`
	Name      string    `json:"name" db:"name"`
	Currency  string    `json:"currency" db:"currency"`
	IsActive  bool      `json:"is_active" db:"is_active"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// Customer belongs to a company and is referenced by documents.
type Customer struct {
	ID               int64     `json:"id" db:"id"`
	CompanyID        int64     `json:"company_id" db:"company_id"`
	Code             string    `json:"code" db:"code"`
	Name             string    `json:"name" db:"name"`
	Email            *string   `json:"email,omitempty" db:"email"`
	Phone            *string   `json:"phone,omitempty" db:"phone"`
	TaxID            *string   `json:"tax_id,omitempty" db:"tax_id"`
	PaymentTermsDays int       `json:"payment_terms_days" db:"payment_terms_days"`
	IsActive         bool      `json:"is_active" db:"is_active"`
	CreatedAt        time.Time `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time `json:"updated_at" db:"updated_at"`
}
