package allocation

import "time"

type ApplyRequest struct {
	CompanyID  int64      `json:"company_id" validate:"required,gt=0"`
	SourceKind SourceKind `json:"source_kind" validate:"required"`
	SourceID   int64      `json:"source_id" validate:"required,gt=0"`
	InvoiceID  int64      `json:"invoice_id" validate:"required,gt=0"`
	Amount     float64    `json:"amount"`
}

type CreatePaymentRequest struct {
	CompanyID  int64      `json:"company_id" validate:"required,gt=0"`
	CustomerID int64      `json:"customer_id" validate:"required,gt=0"`
	Amount     float64    `json:"amount" validate:"required,gt=0"`
	Currency   string     `json:"currency" validate:"required,len=3"`
	Method     string     `json:"method" validate:"required,oneof=BANK_TRANSFER CASH CHEQUE CARD"`
	Reference  *string    `json:"reference,omitempty"`
	ReceivedAt *time.Time `json:"received_at,omitempty"`
}
