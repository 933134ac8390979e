package shared

import "errors"

var (
	// ErrNotFound indicates resource not found or not visible to the tenant.
	ErrNotFound = errors.New("not found")
	// ErrInvalidLineInput indicates a negative quantity/price/discount or a tax rate outside [0,100].
	ErrInvalidLineInput = errors.New("invalid line input")
	// ErrRoundingOverflow indicates accumulated rounding drift beyond tolerance.
	ErrRoundingOverflow = errors.New("rounding overflow")
	// ErrSequenceGenerationFailed indicates the authoritative numbering path was unavailable.
	ErrSequenceGenerationFailed = errors.New("sequence generation failed")
	// ErrInvalidAmount indicates a zero or negative allocation amount.
	ErrInvalidAmount = errors.New("invalid amount")
	// ErrInsufficientSourceBalance indicates the payment or credit note has less remaining than requested.
	ErrInsufficientSourceBalance = errors.New("insufficient source balance")
	// ErrExceedsInvoiceBalance indicates the requested amount is larger than the invoice balance due.
	ErrExceedsInvoiceBalance = errors.New("exceeds invoice balance")
	// ErrConcurrentUpdateConflict indicates row-lock or serialization contention; safe to retry.
	ErrConcurrentUpdateConflict = errors.New("concurrent update conflict")
	// ErrInvalidStatus indicates a disallowed document status transition.
	ErrInvalidStatus = errors.New("invalid status transition")
)

// UserSafeMessage maps a taxonomy error to a message suitable for end users.
// Unrecognised errors collapse to a generic message so raw backend errors
// never reach the UI.
func UserSafeMessage(err error) string {
	switch {
	case errors.Is(err, ErrNotFound):
		return "The requested record does not exist."
	case errors.Is(err, ErrInvalidLineInput):
		return "One of the document lines has an invalid quantity, price, discount or tax rate."
	case errors.Is(err, ErrRoundingOverflow):
		return "Document totals could not be reconciled. Please contact support."
	case errors.Is(err, ErrSequenceGenerationFailed):
		return "A document number could not be assigned. A provisional number was issued."
	case errors.Is(err, ErrInvalidAmount):
		return "The amount must be greater than zero."
	case errors.Is(err, ErrInsufficientSourceBalance):
		return "The payment or credit note does not have enough unapplied balance."
	case errors.Is(err, ErrExceedsInvoiceBalance):
		return "The amount is larger than the outstanding balance on the invoice."
	case errors.Is(err, ErrConcurrentUpdateConflict):
		return "The invoice was updated by another request. Please try again."
	case errors.Is(err, ErrInvalidStatus):
		return "This action is not allowed in the document's current status."
	default:
		return "An unexpected error occurred."
	}
}
