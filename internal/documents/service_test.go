package documents

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/finance/tax"
	"github.com/quillbooks/quillbooks/internal/masterdata"
	"github.com/quillbooks/quillbooks/internal/numbering"
	"github.com/quillbooks/quillbooks/internal/shared"
)

type memoryDocRepo struct {
	docs        map[int64]*Document
	nextID      int64
	allocated   map[int64]bool
	createCalls int
}

func newMemoryDocRepo() *memoryDocRepo {
	return &memoryDocRepo{docs: make(map[int64]*Document), allocated: make(map[int64]bool)}
}

func (r *memoryDocRepo) CreateWithLines(ctx context.Context, doc Document) (*Document, error) {
	r.nextID++
	r.createCalls++
	doc.ID = r.nextID
	doc.BalanceDue = doc.TotalAmount
	doc.CreatedAt = time.Now()
	doc.UpdatedAt = doc.CreatedAt
	for i := range doc.Lines {
		doc.Lines[i].DocumentID = doc.ID
	}
	stored := doc
	r.docs[doc.ID] = &stored
	return &doc, nil
}

func (r *memoryDocRepo) Get(ctx context.Context, companyID, id int64) (*Document, error) {
	doc, ok := r.docs[id]
	if !ok || doc.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	copied := *doc
	return &copied, nil
}

func (r *memoryDocRepo) List(ctx context.Context, req ListDocumentsRequest) ([]Document, error) {
	var out []Document
	for _, doc := range r.docs {
		if doc.CompanyID != req.CompanyID {
			continue
		}
		if req.Kind != nil && doc.Kind != *req.Kind {
			continue
		}
		if req.Status != nil && doc.Status != *req.Status {
			continue
		}
		out = append(out, *doc)
	}
	return out, nil
}

func (r *memoryDocRepo) ReplaceLines(ctx context.Context, companyID, id int64, lines []Line, totals tax.Totals) (*Document, error) {
	doc, ok := r.docs[id]
	if !ok || doc.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	if doc.Status != StatusDraft {
		return nil, shared.ErrInvalidStatus
	}
	doc.Lines = lines
	doc.Subtotal = totals.Subtotal
	doc.TaxAmount = totals.TaxTotal
	doc.TotalAmount = totals.TotalAmount
	doc.BalanceDue = totals.TotalAmount.Sub(doc.PaidAmount)
	copied := *doc
	return &copied, nil
}

func (r *memoryDocRepo) UpdateStatus(ctx context.Context, companyID, id int64, from, to Status) error {
	doc, ok := r.docs[id]
	if !ok || doc.CompanyID != companyID {
		return shared.ErrNotFound
	}
	if doc.Status != from {
		return shared.ErrConcurrentUpdateConflict
	}
	doc.Status = to
	return nil
}

func (r *memoryDocRepo) HasAllocations(ctx context.Context, documentID int64) (bool, error) {
	return r.allocated[documentID], nil
}

func (r *memoryDocRepo) ListFallbackNumbered(ctx context.Context, limit int) ([]Document, error) {
	var out []Document
	for _, doc := range r.docs {
		if doc.NumberFallback {
			out = append(out, *doc)
		}
	}
	return out, nil
}

func (r *memoryDocRepo) ReassignNumber(ctx context.Context, id int64, number string) error {
	doc, ok := r.docs[id]
	if !ok || !doc.NumberFallback {
		return shared.ErrConcurrentUpdateConflict
	}
	doc.DocNumber = number
	doc.NumberFallback = false
	return nil
}

type memoryMasterdata struct {
	customers map[int64]*masterdata.Customer
}

func (m *memoryMasterdata) GetCompany(ctx context.Context, id int64) (*masterdata.Company, error) {
	return &masterdata.Company{ID: id, Name: "Acme Middle East"}, nil
}

func (m *memoryMasterdata) GetCustomer(ctx context.Context, id int64) (*masterdata.Customer, error) {
	c, ok := m.customers[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return c, nil
}

func (m *memoryMasterdata) CompanyName(ctx context.Context, companyID int64) (string, error) {
	return "Acme Middle East", nil
}

type stubNumbers struct {
	number   string
	fallback bool
	calls    int
}

func (s *stubNumbers) Next(ctx context.Context, companyID int64, kind numbering.Kind, date time.Time) (numbering.Result, error) {
	s.calls++
	return numbering.Result{Number: s.number, Fallback: s.fallback}, nil
}

func newTestService(t *testing.T) (*Service, *memoryDocRepo, *stubNumbers) {
	t.Helper()
	repo := newMemoryDocRepo()
	md := &memoryMasterdata{customers: map[int64]*masterdata.Customer{
		10: {ID: 10, CompanyID: 1, Name: "Globex"},
	}}
	numbers := &stubNumbers{number: "INV-2025-0001"}
	logger := slog.New(slog.DiscardHandler)
	return NewService(repo, md, numbers, logger), repo, numbers
}

func validCreateRequest() CreateDocumentRequest {
	return CreateDocumentRequest{
		Kind:       KindInvoice,
		CompanyID:  1,
		CustomerID: 10,
		IssueDate:  time.Date(2025, 3, 10, 0, 0, 0, 0, time.UTC),
		Currency:   "AED",
		Lines: []CreateLineReq{
			{Description: "Consulting", Quantity: 2, UnitPrice: 100, TaxPercent: 18},
		},
	}
}

func TestCreateComputesTotals(t *testing.T) {
	svc, _, numbers := newTestService(t)

	doc, err := svc.Create(context.Background(), validCreateRequest(), 7)
	require.NoError(t, err)
	require.Equal(t, "INV-2025-0001", doc.DocNumber)
	require.False(t, doc.NumberFallback)
	require.Equal(t, StatusDraft, doc.Status)
	require.Equal(t, 1, numbers.calls)

	require.True(t, doc.Subtotal.Equal(decimal.NewFromInt(200)), "subtotal %s", doc.Subtotal)
	require.True(t, doc.TaxAmount.Equal(decimal.NewFromInt(36)), "tax %s", doc.TaxAmount)
	require.True(t, doc.TotalAmount.Equal(decimal.NewFromInt(236)), "total %s", doc.TotalAmount)
	require.Len(t, doc.Lines, 1)
	require.True(t, doc.Lines[0].LineTotal.Equal(decimal.NewFromInt(236)))
}

func TestCreateInclusiveTax(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := validCreateRequest()
	req.Lines = []CreateLineReq{
		{Description: "Retail item", Quantity: 1, UnitPrice: 236, TaxPercent: 18, TaxInclusive: true},
	}
	doc, err := svc.Create(context.Background(), req, 7)
	require.NoError(t, err)

	require.True(t, doc.Subtotal.Equal(decimal.NewFromInt(200)), "subtotal %s", doc.Subtotal)
	require.True(t, doc.TaxAmount.Equal(decimal.NewFromInt(36)), "tax %s", doc.TaxAmount)
	require.True(t, doc.TotalAmount.Equal(decimal.NewFromInt(236)), "total %s", doc.TotalAmount)
}

func TestCreateEmptyLinesAllowedAsDraft(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := validCreateRequest()
	req.Lines = nil
	doc, err := svc.Create(context.Background(), req, 7)
	require.NoError(t, err)
	require.True(t, doc.Subtotal.IsZero())
	require.True(t, doc.TotalAmount.IsZero())
	require.Equal(t, StatusDraft, doc.Status)
}

func TestCreateRejectsInvalidLine(t *testing.T) {
	svc, repo, _ := newTestService(t)

	req := validCreateRequest()
	req.Lines = []CreateLineReq{
		{Description: "Bad", Quantity: -1, UnitPrice: 100, TaxPercent: 18},
	}
	_, err := svc.Create(context.Background(), req, 7)
	require.ErrorIs(t, err, shared.ErrInvalidLineInput)
	require.Zero(t, repo.createCalls, "nothing should be persisted")
}

func TestCreateRejectsForeignCustomer(t *testing.T) {
	svc, _, _ := newTestService(t)

	req := validCreateRequest()
	req.CompanyID = 2 // customer 10 belongs to company 1
	_, err := svc.Create(context.Background(), req, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestCreateCarriesFallbackFlag(t *testing.T) {
	svc, _, numbers := newTestService(t)
	numbers.number = "INV-2025-T1741600000000"
	numbers.fallback = true
	audit := &memoryAuditor{}
	svc.WithAudit(audit)

	doc, err := svc.Create(context.Background(), validCreateRequest(), 7)
	require.NoError(t, err)
	require.True(t, doc.NumberFallback)
	require.Len(t, audit.logs, 1)
	require.Equal(t, "document.fallback_number", audit.logs[0].Action)
	require.Equal(t, doc.DocNumber, audit.logs[0].EntityID)
}

type memoryAuditor struct {
	logs []shared.AuditLog
}

func (m *memoryAuditor) Record(_ context.Context, log shared.AuditLog) error {
	m.logs = append(m.logs, log)
	return nil
}

func TestUpdateLinesRecomputesTotals(t *testing.T) {
	svc, _, _ := newTestService(t)

	doc, err := svc.Create(context.Background(), validCreateRequest(), 7)
	require.NoError(t, err)

	updated, err := svc.UpdateLines(context.Background(), 1, doc.ID, UpdateLinesRequest{
		Lines: []CreateLineReq{
			{Description: "Consulting", Quantity: 3, UnitPrice: 100, TaxPercent: 18},
			{Description: "Travel", Quantity: 1, UnitPrice: 50},
		},
	})
	require.NoError(t, err)
	require.True(t, updated.Subtotal.Equal(decimal.NewFromInt(350)), "subtotal %s", updated.Subtotal)
	require.True(t, updated.TaxAmount.Equal(decimal.NewFromInt(54)), "tax %s", updated.TaxAmount)
	require.True(t, updated.TotalAmount.Equal(decimal.NewFromInt(404)), "total %s", updated.TotalAmount)
	require.Len(t, updated.Lines, 2)
}

func TestUpdateLinesRejectsSentDocument(t *testing.T) {
	svc, _, _ := newTestService(t)

	doc, err := svc.Create(context.Background(), validCreateRequest(), 7)
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), 1, doc.ID)
	require.NoError(t, err)

	_, err = svc.UpdateLines(context.Background(), 1, doc.ID, UpdateLinesRequest{
		Lines: []CreateLineReq{{Description: "Consulting", Quantity: 1, UnitPrice: 10}},
	})
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestSendAndCancelTransitions(t *testing.T) {
	svc, _, _ := newTestService(t)

	doc, err := svc.Create(context.Background(), validCreateRequest(), 7)
	require.NoError(t, err)

	sent, err := svc.Send(context.Background(), 1, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusSent, sent.Status)

	// Sending twice is a disallowed transition.
	_, err = svc.Send(context.Background(), 1, doc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)

	cancelled, err := svc.Cancel(context.Background(), 1, doc.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCancelled, cancelled.Status)
}

func TestCancelRejectsAllocatedInvoice(t *testing.T) {
	svc, repo, _ := newTestService(t)

	doc, err := svc.Create(context.Background(), validCreateRequest(), 7)
	require.NoError(t, err)
	_, err = svc.Send(context.Background(), 1, doc.ID)
	require.NoError(t, err)
	repo.allocated[doc.ID] = true

	_, err = svc.Cancel(context.Background(), 1, doc.ID)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestStatusTransitions(t *testing.T) {
	cases := []struct {
		from, to Status
		allowed  bool
	}{
		{StatusDraft, StatusSent, true},
		{StatusDraft, StatusCancelled, true},
		{StatusDraft, StatusPaid, false},
		{StatusSent, StatusPartial, true},
		{StatusSent, StatusPaid, true},
		{StatusSent, StatusDraft, false},
		{StatusPartial, StatusPaid, true},
		{StatusPartial, StatusCancelled, false},
		{StatusPaid, StatusSent, false},
		{StatusCancelled, StatusSent, false},
	}
	for _, tc := range cases {
		require.Equal(t, tc.allowed, tc.from.CanTransition(tc.to), "%s -> %s", tc.from, tc.to)
	}
}
