package documents

import "time"

type CreateDocumentRequest struct {
	Kind       Kind            `json:"kind" validate:"required"`
	CompanyID  int64           `json:"company_id" validate:"required,gt=0"`
	CustomerID int64           `json:"customer_id" validate:"required,gt=0"`
	IssueDate  time.Time       `json:"issue_date" validate:"required"`
	ValidUntil *time.Time      `json:"valid_until,omitempty"`
	Currency   string          `json:"currency" validate:"required,len=3"`
	Notes      *string         `json:"notes,omitempty"`
	Lines      []CreateLineReq `json:"lines" validate:"dive"`
}

type CreateLineReq struct {
	Description     string  `json:"description" validate:"required,max=500"`
	Quantity        float64 `json:"quantity" validate:"gte=0"`
	UnitPrice       float64 `json:"unit_price" validate:"gte=0"`
	DiscountPercent float64 `json:"discount_percent" validate:"gte=0,lte=100"`
	DiscountAmount  float64 `json:"discount_amount" validate:"gte=0"`
	TaxPercent      float64 `json:"tax_percent" validate:"gte=0,lte=100"`
	TaxInclusive    bool    `json:"tax_inclusive"`
}

type UpdateLinesRequest struct {
	Lines []CreateLineReq `json:"lines" validate:"dive"`
}

type ListDocumentsRequest struct {
	CompanyID  int64      `json:"company_id" validate:"required,gt=0"`
	Kind       *Kind      `json:"kind,omitempty"`
	Status     *Status    `json:"status,omitempty"`
	CustomerID *int64     `json:"customer_id,omitempty"`
	DateFrom   *time.Time `json:"date_from,omitempty"`
	DateTo     *time.Time `json:"date_to,omitempty"`
	Limit      int        `json:"limit" validate:"gte=0,lte=1000"`
	Offset     int        `json:"offset" validate:"gte=0"`
}
