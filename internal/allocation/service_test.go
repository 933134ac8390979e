package allocation

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/documents"
	"github.com/quillbooks/quillbooks/internal/observability"
	"github.com/quillbooks/quillbooks/internal/shared"
)

type memoryInvoice struct {
	companyID  int64
	kind       documents.Kind
	status     documents.Status
	balanceDue decimal.Decimal
	paidAmount decimal.Decimal
	total      decimal.Decimal
}

type allocKey struct {
	kind     SourceKind
	sourceID int64
	invoice  int64
}

type memoryAllocRepo struct {
	mu          sync.Mutex
	payments    map[int64]*Payment
	invoices    map[int64]*memoryInvoice
	allocations map[allocKey]*Allocation
	nextID      int64

	// conflictsLeft injects retryable failures before the next Apply succeeds.
	conflictsLeft int
	applyCalls    int
}

func newMemoryAllocRepo() *memoryAllocRepo {
	return &memoryAllocRepo{
		payments:    make(map[int64]*Payment),
		invoices:    make(map[int64]*memoryInvoice),
		allocations: make(map[allocKey]*Allocation),
	}
}

func (r *memoryAllocRepo) appliedFrom(kind SourceKind, sourceID int64) decimal.Decimal {
	total := decimal.Zero
	for key, a := range r.allocations {
		if key.kind == kind && key.sourceID == sourceID {
			total = total.Add(a.Amount)
		}
	}
	return total
}

func (r *memoryAllocRepo) Apply(ctx context.Context, companyID int64, kind SourceKind, sourceID, invoiceID int64, amount decimal.Decimal, actorID int64) (*ApplyResult, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.applyCalls++
	if r.conflictsLeft > 0 {
		r.conflictsLeft--
		return nil, shared.ErrConcurrentUpdateConflict
	}

	var sourceTotal decimal.Decimal
	switch kind {
	case SourcePayment:
		p, ok := r.payments[sourceID]
		if !ok || p.CompanyID != companyID {
			return nil, fmt.Errorf("%s %d: %w", kind, sourceID, shared.ErrNotFound)
		}
		sourceTotal = p.Amount
	case SourceCreditNote:
		cn, ok := r.invoices[sourceID]
		if !ok || cn.companyID != companyID || cn.kind != documents.KindCreditNote ||
			cn.status == documents.StatusDraft || cn.status == documents.StatusCancelled {
			return nil, fmt.Errorf("%s %d: %w", kind, sourceID, shared.ErrNotFound)
		}
		sourceTotal = cn.total
	}
	remaining := sourceTotal.Sub(r.appliedFrom(kind, sourceID))

	inv, ok := r.invoices[invoiceID]
	if !ok || inv.companyID != companyID || inv.kind != documents.KindInvoice {
		return nil, fmt.Errorf("invoice %d: %w", invoiceID, shared.ErrNotFound)
	}

	if amount.LessThanOrEqual(decimal.Zero) {
		return nil, shared.ErrInvalidAmount
	}
	if remaining.LessThan(amount) {
		return nil, shared.ErrInsufficientSourceBalance
	}
	if inv.balanceDue.LessThan(amount) {
		return nil, shared.ErrExceedsInvoiceBalance
	}
	if inv.status != documents.StatusSent && inv.status != documents.StatusPartial {
		return nil, fmt.Errorf("%w: invoice is %s", shared.ErrInvalidStatus, inv.status)
	}

	key := allocKey{kind: kind, sourceID: sourceID, invoice: invoiceID}
	alloc, ok := r.allocations[key]
	if ok {
		alloc.Amount = alloc.Amount.Add(amount)
	} else {
		r.nextID++
		alloc = &Allocation{
			ID:         r.nextID,
			SourceKind: kind,
			SourceID:   sourceID,
			InvoiceID:  invoiceID,
			Amount:     amount,
			CreatedBy:  actorID,
			CreatedAt:  time.Now(),
		}
		r.allocations[key] = alloc
	}

	inv.paidAmount = inv.paidAmount.Add(amount)
	inv.balanceDue = inv.balanceDue.Sub(amount)
	if inv.balanceDue.IsZero() {
		inv.status = documents.StatusPaid
	} else {
		inv.status = documents.StatusPartial
	}

	return &ApplyResult{
		Allocation:      *alloc,
		InvoiceStatus:   inv.status,
		InvoiceBalance:  inv.balanceDue,
		SourceRemaining: remaining.Sub(amount),
	}, nil
}

func (r *memoryAllocRepo) CreatePayment(ctx context.Context, p Payment) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	p.ID = r.nextID
	p.CreatedAt = time.Now()
	r.payments[p.ID] = &p
	return &p, nil
}

func (r *memoryAllocRepo) GetPayment(ctx context.Context, companyID, id int64) (*Payment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.payments[id]
	if !ok || p.CompanyID != companyID {
		return nil, shared.ErrNotFound
	}
	copied := *p
	copied.Applied = r.appliedFrom(SourcePayment, id)
	return &copied, nil
}

func (r *memoryAllocRepo) ListByInvoice(ctx context.Context, invoiceID int64) ([]Allocation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Allocation
	for key, a := range r.allocations {
		if key.invoice == invoiceID {
			out = append(out, *a)
		}
	}
	return out, nil
}

func (r *memoryAllocRepo) addInvoice(id, companyID int64, total float64) {
	amount := decimal.NewFromFloat(total)
	r.invoices[id] = &memoryInvoice{
		companyID:  companyID,
		kind:       documents.KindInvoice,
		status:     documents.StatusSent,
		balanceDue: amount,
		total:      amount,
	}
}

func (r *memoryAllocRepo) addCreditNote(id, companyID int64, total float64) {
	amount := decimal.NewFromFloat(total)
	r.invoices[id] = &memoryInvoice{
		companyID:  companyID,
		kind:       documents.KindCreditNote,
		status:     documents.StatusSent,
		balanceDue: amount,
		total:      amount,
	}
}

func (r *memoryAllocRepo) addPayment(id, companyID int64, amount float64) {
	r.payments[id] = &Payment{
		ID:        id,
		CompanyID: companyID,
		Amount:    decimal.NewFromFloat(amount),
		Currency:  "AED",
	}
}

type memoryAuditor struct {
	mu   sync.Mutex
	logs []shared.AuditLog
}

func (a *memoryAuditor) Record(ctx context.Context, log shared.AuditLog) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.logs = append(a.logs, log)
	return nil
}

func newTestEngine(t *testing.T) (*Service, *memoryAllocRepo, *memoryAuditor) {
	t.Helper()
	repo := newMemoryAllocRepo()
	audit := &memoryAuditor{}
	svc := NewService(repo, audit, observability.NewMetrics(), slog.New(slog.DiscardHandler))
	return svc, repo, audit
}

func TestApplyPartialThenPaid(t *testing.T) {
	svc, repo, audit := newTestEngine(t)
	repo.addInvoice(1, 1, 236)
	repo.addPayment(100, 1, 150)
	repo.addPayment(101, 1, 100)

	res, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 1, Amount: 150,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, documents.StatusPartial, res.InvoiceStatus)
	require.True(t, res.InvoiceBalance.Equal(decimal.NewFromInt(86)), "balance %s", res.InvoiceBalance)
	require.True(t, res.SourceRemaining.IsZero())

	res, err = svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 101, InvoiceID: 1, Amount: 86,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, documents.StatusPaid, res.InvoiceStatus)
	require.True(t, res.InvoiceBalance.IsZero())
	require.True(t, res.SourceRemaining.Equal(decimal.NewFromInt(14)), "remaining %s", res.SourceRemaining)

	require.Len(t, audit.logs, 2)
	require.Equal(t, "allocation.apply", audit.logs[0].Action)
}

func TestApplyCreditNoteSource(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	repo.addInvoice(1, 1, 500)
	repo.addCreditNote(2, 1, 120)

	res, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourceCreditNote, SourceID: 2, InvoiceID: 1, Amount: 120,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, documents.StatusPartial, res.InvoiceStatus)
	require.True(t, res.InvoiceBalance.Equal(decimal.NewFromInt(380)), "balance %s", res.InvoiceBalance)
	require.True(t, res.SourceRemaining.IsZero())
}

func TestApplyValidationOrder(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	repo.addInvoice(1, 1, 200)
	repo.addPayment(100, 1, 50)

	// Missing rows win over everything else, even a bad amount.
	_, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 999, InvoiceID: 1, Amount: -5,
	}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)

	_, err = svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 999, Amount: -5,
	}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)

	// A bad amount wins over balance checks.
	_, err = svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 1, Amount: 0,
	}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidAmount)

	// The source balance is checked before the invoice balance.
	_, err = svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 1, Amount: 300,
	}, 7)
	require.ErrorIs(t, err, shared.ErrInsufficientSourceBalance)

	repo.addPayment(101, 1, 1000)
	_, err = svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 101, InvoiceID: 1, Amount: 250,
	}, 7)
	require.ErrorIs(t, err, shared.ErrExceedsInvoiceBalance)
}

func TestApplyRejectsForeignCompany(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	repo.addInvoice(1, 1, 200)
	repo.addPayment(100, 2, 50) // other tenant

	_, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 1, Amount: 50,
	}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestApplyRejectsDraftInvoice(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	repo.addInvoice(1, 1, 200)
	repo.invoices[1].status = documents.StatusDraft
	repo.addPayment(100, 1, 50)

	_, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 1, Amount: 50,
	}, 7)
	require.ErrorIs(t, err, shared.ErrInvalidStatus)
}

func TestApplySamePairIncrementsAllocation(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	repo.addInvoice(1, 1, 300)
	repo.addPayment(100, 1, 300)

	first, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 1, Amount: 100,
	}, 7)
	require.NoError(t, err)

	second, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 1, Amount: 200,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, first.Allocation.ID, second.Allocation.ID, "same pair keeps one row")
	require.True(t, second.Allocation.Amount.Equal(decimal.NewFromInt(300)))
	require.Equal(t, documents.StatusPaid, second.InvoiceStatus)

	allocs, err := svc.ListByInvoice(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, allocs, 1)
}

func TestApplyRetriesOnConflict(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	repo.addInvoice(1, 1, 200)
	repo.addPayment(100, 1, 200)
	repo.conflictsLeft = 2

	res, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 1, Amount: 200,
	}, 7)
	require.NoError(t, err)
	require.Equal(t, documents.StatusPaid, res.InvoiceStatus)
	require.Equal(t, 3, repo.applyCalls)
}

func TestApplyGivesUpAfterMaxAttempts(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	repo.addInvoice(1, 1, 200)
	repo.addPayment(100, 1, 200)
	repo.conflictsLeft = 10

	_, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: 100, InvoiceID: 1, Amount: 200,
	}, 7)
	require.ErrorIs(t, err, shared.ErrConcurrentUpdateConflict)
	require.Equal(t, maxApplyAttempts, repo.applyCalls)
}

func TestApplyRejectsUnknownSourceKind(t *testing.T) {
	svc, _, _ := newTestEngine(t)
	_, err := svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: "REFUND", SourceID: 1, InvoiceID: 1, Amount: 10,
	}, 7)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestConcurrentApplyNeverOverAllocates(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	repo.addInvoice(1, 1, 100)
	const workers = 20
	for i := int64(0); i < workers; i++ {
		repo.addPayment(100+i, 1, 10)
	}

	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	for i := int64(0); i < workers; i++ {
		wg.Add(1)
		go func(sourceID int64) {
			defer wg.Done()
			_, err := svc.Apply(context.Background(), ApplyRequest{
				CompanyID: 1, SourceKind: SourcePayment, SourceID: sourceID, InvoiceID: 1, Amount: 10,
			}, 7)
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}(100 + i)
	}
	wg.Wait()

	require.Equal(t, 10, succeeded, "only the first ten applications fit")
	require.True(t, repo.invoices[1].balanceDue.IsZero())
	require.Equal(t, documents.StatusPaid, repo.invoices[1].status)
}

func TestRegisterAndGetPayment(t *testing.T) {
	svc, repo, _ := newTestEngine(t)
	repo.addInvoice(1, 1, 500)

	payment, err := svc.RegisterPayment(context.Background(), CreatePaymentRequest{
		CompanyID: 1, CustomerID: 10, Amount: 250, Currency: "AED", Method: "BANK_TRANSFER",
	}, 7)
	require.NoError(t, err)
	require.NotZero(t, payment.ID)
	require.NotNil(t, payment.Reference)
	require.NotEmpty(t, *payment.Reference)

	_, err = svc.Apply(context.Background(), ApplyRequest{
		CompanyID: 1, SourceKind: SourcePayment, SourceID: payment.ID, InvoiceID: 1, Amount: 100,
	}, 7)
	require.NoError(t, err)

	got, err := svc.GetPayment(context.Background(), 1, payment.ID)
	require.NoError(t, err)
	require.True(t, got.Applied.Equal(decimal.NewFromInt(100)))
	require.True(t, got.Remaining().Equal(decimal.NewFromInt(150)))
}
