package documents

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/quillbooks/quillbooks/internal/finance/tax"
	"github.com/quillbooks/quillbooks/internal/masterdata"
	"github.com/quillbooks/quillbooks/internal/numbering"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// NumberSource assigns document numbers.
type NumberSource interface {
	Next(ctx context.Context, companyID int64, kind numbering.Kind, date time.Time) (numbering.Result, error)
}

// Auditor records document events.
type Auditor interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service handles the document workflow.
type Service struct {
	repo       Repository
	masterdata masterdata.Repository
	numbers    NumberSource
	logger     *slog.Logger
	audit      Auditor
}

// NewService builds a Service instance.
func NewService(repo Repository, md masterdata.Repository, numbers NumberSource, logger *slog.Logger) *Service {
	return &Service{repo: repo, masterdata: md, numbers: numbers, logger: logger}
}

// WithAudit registers an audit sink for notable document events.
func (s *Service) WithAudit(audit Auditor) *Service {
	s.audit = audit
	return s
}

// Create computes every line, aggregates the totals, assigns a document
// number and persists the document with its lines in one transaction.
// Nothing is written if any line is invalid.
func (s *Service) Create(ctx context.Context, req CreateDocumentRequest, createdBy int64) (*Document, error) {
	if !req.Kind.Valid() {
		return nil, fmt.Errorf("%w: unknown document kind %q", shared.ErrInvalidStatus, req.Kind)
	}
	if req.ValidUntil != nil && req.ValidUntil.Before(req.IssueDate) {
		return nil, errors.New("valid_until must be after issue_date")
	}

	customer, err := s.masterdata.GetCustomer(ctx, req.CustomerID)
	if err != nil {
		return nil, fmt.Errorf("verify customer: %w", err)
	}
	if customer.CompanyID != req.CompanyID {
		return nil, fmt.Errorf("verify customer: %w", shared.ErrNotFound)
	}

	lines, totals, err := computeLines(req.Lines)
	if err != nil {
		return nil, err
	}

	number, err := s.numbers.Next(ctx, req.CompanyID, req.Kind.NumberingKind(), req.IssueDate)
	if err != nil {
		return nil, fmt.Errorf("assign document number: %w", err)
	}

	doc := Document{
		DocNumber:      number.Number,
		NumberFallback: number.Fallback,
		Kind:           req.Kind,
		CompanyID:      req.CompanyID,
		CustomerID:     req.CustomerID,
		IssueDate:      req.IssueDate,
		ValidUntil:     req.ValidUntil,
		Status:         StatusDraft,
		Currency:       req.Currency,
		Subtotal:       totals.Subtotal,
		TaxAmount:      totals.TaxTotal,
		TotalAmount:    totals.TotalAmount,
		Notes:          req.Notes,
		CreatedBy:      createdBy,
		Lines:          lines,
	}

	created, err := s.repo.CreateWithLines(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("persist document: %w", err)
	}
	s.logger.Info("document created",
		slog.String("number", created.DocNumber),
		slog.String("kind", string(created.Kind)),
		slog.Int64("company_id", created.CompanyID),
		slog.Bool("fallback_number", created.NumberFallback))
	if created.NumberFallback && s.audit != nil {
		if auditErr := s.audit.Record(ctx, shared.AuditLog{
			ActorID:  createdBy,
			Action:   "document.fallback_number",
			Entity:   "document",
			EntityID: created.DocNumber,
			Meta: map[string]any{
				"kind":       created.Kind,
				"company_id": created.CompanyID,
			},
		}); auditErr != nil {
			s.logger.Warn("audit fallback number", slog.Any("error", auditErr))
		}
	}
	return created, nil
}

// Get returns a document with its lines.
func (s *Service) Get(ctx context.Context, companyID, id int64) (*Document, error) {
	return s.repo.Get(ctx, companyID, id)
}

// List returns documents matching the filter.
func (s *Service) List(ctx context.Context, req ListDocumentsRequest) ([]Document, error) {
	return s.repo.List(ctx, req)
}

// UpdateLines runs the edit-and-recompute cycle on a draft document: all
// lines are replaced and the derived totals rewritten, atomically.
func (s *Service) UpdateLines(ctx context.Context, companyID, id int64, req UpdateLinesRequest) (*Document, error) {
	doc, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if doc.Status != StatusDraft {
		return nil, fmt.Errorf("%w: only draft documents can be edited", shared.ErrInvalidStatus)
	}

	lines, totals, err := computeLines(req.Lines)
	if err != nil {
		return nil, err
	}

	updated, err := s.repo.ReplaceLines(ctx, companyID, id, lines, totals)
	if err != nil {
		return nil, fmt.Errorf("replace lines: %w", err)
	}
	return updated, nil
}

// Send moves a draft document to sent.
func (s *Service) Send(ctx context.Context, companyID, id int64) (*Document, error) {
	return s.transition(ctx, companyID, id, StatusSent)
}

// Cancel cancels a draft or sent document. Invoices with allocations against
// them cannot be cancelled.
func (s *Service) Cancel(ctx context.Context, companyID, id int64) (*Document, error) {
	doc, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if doc.Kind == KindInvoice {
		allocated, err := s.repo.HasAllocations(ctx, id)
		if err != nil {
			return nil, err
		}
		if allocated {
			return nil, fmt.Errorf("%w: invoice has allocations", shared.ErrInvalidStatus)
		}
	}
	return s.transition(ctx, companyID, id, StatusCancelled)
}

func (s *Service) transition(ctx context.Context, companyID, id int64, next Status) (*Document, error) {
	doc, err := s.repo.Get(ctx, companyID, id)
	if err != nil {
		return nil, err
	}
	if !doc.Status.CanTransition(next) {
		return nil, fmt.Errorf("%w: %s -> %s", shared.ErrInvalidStatus, doc.Status, next)
	}
	if err := s.repo.UpdateStatus(ctx, companyID, id, doc.Status, next); err != nil {
		return nil, err
	}
	doc.Status = next
	return doc, nil
}

// computeLines feeds each raw line through the tax calculator and folds the
// results into document totals.
func computeLines(reqs []CreateLineReq) ([]Line, tax.Totals, error) {
	lines := make([]Line, 0, len(reqs))
	results := make([]tax.LineResult, 0, len(reqs))
	for i, lr := range reqs {
		in := tax.LineInput{
			Quantity:        decimal.NewFromFloat(lr.Quantity),
			UnitPrice:       decimal.NewFromFloat(lr.UnitPrice),
			DiscountPercent: decimal.NewFromFloat(lr.DiscountPercent),
			DiscountAmount:  decimal.NewFromFloat(lr.DiscountAmount),
			TaxPercent:      decimal.NewFromFloat(lr.TaxPercent),
			TaxInclusive:    lr.TaxInclusive,
		}
		res, err := tax.ComputeLine(in)
		if err != nil {
			return nil, tax.Totals{}, fmt.Errorf("line %d: %w", i+1, err)
		}
		results = append(results, res)
		lines = append(lines, Line{
			Description:     lr.Description,
			Quantity:        in.Quantity,
			UnitPrice:       in.UnitPrice,
			DiscountPercent: in.DiscountPercent,
			DiscountAmount:  res.DiscountAmount,
			TaxPercent:      in.TaxPercent,
			TaxInclusive:    lr.TaxInclusive,
			NetAmount:       res.NetAmount,
			TaxAmount:       res.TaxAmount,
			LineTotal:       res.LineTotal,
			LineOrder:       i + 1,
		})
	}

	totals, err := tax.Aggregate(results)
	if err != nil {
		return nil, tax.Totals{}, err
	}
	return lines, totals, nil
}
