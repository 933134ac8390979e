package statements

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/quillbooks/quillbooks/internal/masterdata"
	"github.com/quillbooks/quillbooks/internal/shared"
)

type memoryStatementsRepo struct {
	outstanding []OutstandingInvoice
	rows        []Entry
	listCalls   int
}

func (r *memoryStatementsRepo) ListOutstanding(ctx context.Context, companyID int64) ([]OutstandingInvoice, error) {
	r.listCalls++
	return r.outstanding, nil
}

func (r *memoryStatementsRepo) ListStatementRows(ctx context.Context, companyID, customerID int64, from, to time.Time) ([]Entry, error) {
	return r.rows, nil
}

type stubMasterdata struct{}

func (stubMasterdata) GetCompany(ctx context.Context, id int64) (*masterdata.Company, error) {
	return &masterdata.Company{ID: id, Name: "Acme Middle East"}, nil
}

func (stubMasterdata) GetCustomer(ctx context.Context, id int64) (*masterdata.Customer, error) {
	if id != 10 {
		return nil, shared.ErrNotFound
	}
	return &masterdata.Customer{ID: 10, CompanyID: 1, Name: "Globex"}, nil
}

func (stubMasterdata) CompanyName(ctx context.Context, companyID int64) (string, error) {
	return "Acme Middle East", nil
}

func newTestStatements(t *testing.T, repo *memoryStatementsRepo) *Service {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	cache := NewCache(client, time.Minute)
	svc := NewService(repo, stubMasterdata{}, cache, slog.New(slog.DiscardHandler))
	return svc
}

func day(s string) time.Time {
	t, _ := time.Parse("2006-01-02", s)
	return t
}

func TestAgingBuckets(t *testing.T) {
	repo := &memoryStatementsRepo{outstanding: []OutstandingInvoice{
		{ID: 1, DueDate: day("2025-06-20"), BalanceDue: decimal.NewFromInt(100)}, // not yet due
		{ID: 2, DueDate: day("2025-05-20"), BalanceDue: decimal.NewFromInt(200)}, // 26 days
		{ID: 3, DueDate: day("2025-04-20"), BalanceDue: decimal.NewFromInt(300)}, // 56 days
		{ID: 4, DueDate: day("2025-03-20"), BalanceDue: decimal.NewFromInt(400)}, // 87 days
		{ID: 5, DueDate: day("2024-12-01"), BalanceDue: decimal.NewFromInt(500)}, // way overdue
	}}
	svc := newTestStatements(t, repo)

	report, err := svc.Aging(context.Background(), 1, day("2025-06-15"))
	require.NoError(t, err)
	require.True(t, report.Current.Equal(decimal.NewFromInt(100)), "current %s", report.Current)
	require.True(t, report.Days30.Equal(decimal.NewFromInt(200)), "30 %s", report.Days30)
	require.True(t, report.Days60.Equal(decimal.NewFromInt(300)), "60 %s", report.Days60)
	require.True(t, report.Days90.Equal(decimal.NewFromInt(400)), "90 %s", report.Days90)
	require.True(t, report.Days120.Equal(decimal.NewFromInt(500)), "120 %s", report.Days120)
	require.True(t, report.Total.Equal(decimal.NewFromInt(1500)))
}

func TestAgingServedFromCache(t *testing.T) {
	repo := &memoryStatementsRepo{outstanding: []OutstandingInvoice{
		{ID: 1, DueDate: day("2025-05-20"), BalanceDue: decimal.NewFromInt(50)},
	}}
	svc := newTestStatements(t, repo)

	_, err := svc.Aging(context.Background(), 1, day("2025-06-15"))
	require.NoError(t, err)
	_, err = svc.Aging(context.Background(), 1, day("2025-06-15"))
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls, "second call must hit the cache")

	require.NoError(t, svc.Invalidate(context.Background()))
	_, err = svc.Aging(context.Background(), 1, day("2025-06-15"))
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls, "bump must invalidate")
}

func TestCustomerStatementRunningBalance(t *testing.T) {
	repo := &memoryStatementsRepo{rows: []Entry{
		{Date: day("2025-01-10"), Kind: EntryInvoice, Reference: "INV-2025-0001", Debit: decimal.NewFromInt(236)},
		{Date: day("2025-02-01"), Kind: EntryPayment, Reference: "payment #1", Credit: decimal.NewFromInt(150)},
		{Date: day("2025-02-15"), Kind: EntryCreditNote, Reference: "CN000001", Credit: decimal.NewFromInt(86)},
	}}
	svc := newTestStatements(t, repo)

	stmt, err := svc.CustomerStatement(context.Background(), 1, 10, day("2025-01-01"), day("2025-03-01"))
	require.NoError(t, err)
	require.Equal(t, "Globex", stmt.CustomerName)
	require.Len(t, stmt.Entries, 3)
	require.True(t, stmt.Entries[0].Balance.Equal(decimal.NewFromInt(236)))
	require.True(t, stmt.Entries[1].Balance.Equal(decimal.NewFromInt(86)))
	require.True(t, stmt.Entries[2].Balance.IsZero())
	require.True(t, stmt.Closing.IsZero())
}

func TestCustomerStatementUnknownCustomer(t *testing.T) {
	svc := newTestStatements(t, &memoryStatementsRepo{})

	_, err := svc.CustomerStatement(context.Background(), 1, 999, day("2025-01-01"), day("2025-03-01"))
	require.ErrorIs(t, err, shared.ErrNotFound)
}
