package allocation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/observability"
	"github.com/quillbooks/quillbooks/internal/shared"
)

const (
	maxApplyAttempts = 3
	retryBackoff     = 50 * time.Millisecond
)

// Auditor records allocation events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Invalidator drops cached reports after balances change.
type Invalidator interface {
	Invalidate(ctx context.Context) error
}

// Service drives the allocation engine: validation, bounded retry on
// conflicts, metrics and audit.
type Service struct {
	repo    Repository
	audit   Auditor
	metrics *observability.Metrics
	logger  *slog.Logger
	reports Invalidator
}

// NewService builds a Service instance.
func NewService(repo Repository, audit Auditor, metrics *observability.Metrics, logger *slog.Logger) *Service {
	return &Service{repo: repo, audit: audit, metrics: metrics, logger: logger}
}

// WithReportInvalidation registers a report cache to drop after successful
// applications.
func (s *Service) WithReportInvalidation(inv Invalidator) *Service {
	s.reports = inv
	return s
}

// Apply allocates an amount from a payment or credit note to an invoice.
// Conflicting concurrent applications are retried up to maxApplyAttempts
// with linear backoff; every other failure is returned as is.
func (s *Service) Apply(ctx context.Context, req ApplyRequest, actorID int64) (*ApplyResult, error) {
	if !req.SourceKind.Valid() {
		return nil, fmt.Errorf("source kind %q: %w", req.SourceKind, shared.ErrNotFound)
	}
	amount := decimal.NewFromFloat(req.Amount)

	var result *ApplyResult
	var err error
	for attempt := 1; attempt <= maxApplyAttempts; attempt++ {
		result, err = s.repo.Apply(ctx, req.CompanyID, req.SourceKind, req.SourceID, req.InvoiceID, amount, actorID)
		if err == nil || !errors.Is(err, shared.ErrConcurrentUpdateConflict) {
			break
		}
		s.logger.Warn("allocation conflict, retrying",
			slog.Int("attempt", attempt),
			slog.Int64("invoice_id", req.InvoiceID))
		if attempt < maxApplyAttempts {
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(time.Duration(attempt) * retryBackoff):
			}
		}
	}

	s.count(req.SourceKind, outcomeLabel(err))
	if err != nil {
		return nil, err
	}

	s.logger.Info("allocation applied",
		slog.String("source_kind", string(req.SourceKind)),
		slog.Int64("source_id", req.SourceID),
		slog.Int64("invoice_id", req.InvoiceID),
		slog.String("amount", amount.StringFixed(2)),
		slog.String("invoice_status", string(result.InvoiceStatus)))

	if s.audit != nil {
		if auditErr := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "allocation.apply",
			Entity:   "invoice",
			EntityID: strconv.FormatInt(req.InvoiceID, 10),
			Meta: map[string]any{
				"source_kind": req.SourceKind,
				"source_id":   req.SourceID,
				"amount":      amount.StringFixed(2),
				"status":      result.InvoiceStatus,
			},
		}); auditErr != nil {
			s.logger.Warn("audit allocation", slog.Any("error", auditErr))
		}
	}
	if s.reports != nil {
		if invErr := s.reports.Invalidate(ctx); invErr != nil {
			s.logger.Warn("invalidate report cache", slog.Any("error", invErr))
		}
	}
	return result, nil
}

// RegisterPayment records money received from a customer.
func (s *Service) RegisterPayment(ctx context.Context, req CreatePaymentRequest, actorID int64) (*Payment, error) {
	receivedAt := time.Now()
	if req.ReceivedAt != nil {
		receivedAt = *req.ReceivedAt
	}
	reference := req.Reference
	if reference == nil || *reference == "" {
		generated := uuid.NewString()
		reference = &generated
	}
	payment, err := s.repo.CreatePayment(ctx, Payment{
		CompanyID:  req.CompanyID,
		CustomerID: req.CustomerID,
		Amount:     decimal.NewFromFloat(req.Amount),
		Currency:   req.Currency,
		Method:     req.Method,
		Reference:  reference,
		ReceivedAt: receivedAt,
		CreatedBy:  actorID,
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("payment registered",
		slog.Int64("payment_id", payment.ID),
		slog.Int64("customer_id", payment.CustomerID),
		slog.String("amount", payment.Amount.StringFixed(2)))
	return payment, nil
}

// GetPayment returns a payment with its applied total.
func (s *Service) GetPayment(ctx context.Context, companyID, id int64) (*Payment, error) {
	return s.repo.GetPayment(ctx, companyID, id)
}

// ListByInvoice returns all allocations against an invoice.
func (s *Service) ListByInvoice(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	return s.repo.ListByInvoice(ctx, invoiceID)
}

func (s *Service) count(kind SourceKind, outcome string) {
	if s.metrics == nil {
		return
	}
	s.metrics.AllocationsTotal.WithLabelValues(string(kind), outcome).Inc()
}

func outcomeLabel(err error) string {
	switch {
	case err == nil:
		return "applied"
	case errors.Is(err, shared.ErrNotFound):
		return "not_found"
	case errors.Is(err, shared.ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, shared.ErrInsufficientSourceBalance):
		return "insufficient_source"
	case errors.Is(err, shared.ErrExceedsInvoiceBalance):
		return "exceeds_invoice"
	case errors.Is(err, shared.ErrConcurrentUpdateConflict):
		return "conflict"
	default:
		return "error"
	}
}
