package statements

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/quillbooks/quillbooks/internal/finance/money"
	"github.com/quillbooks/quillbooks/internal/masterdata"
)

// Service computes aging and statements, caching both per company.
type Service struct {
	repo       Repository
	masterdata masterdata.Repository
	cache      *Cache
	group      singleflight.Group
	logger     *slog.Logger
	now        func() time.Time
}

// NewService builds a Service instance.
func NewService(repo Repository, md masterdata.Repository, cache *Cache, logger *slog.Logger) *Service {
	return &Service{repo: repo, masterdata: md, cache: cache, logger: logger, now: time.Now}
}

// Aging buckets every outstanding invoice by days overdue as of the given
// date. Concurrent requests for the same company collapse into one
// computation.
func (s *Service) Aging(ctx context.Context, companyID int64, asOf time.Time) (*AgingReport, error) {
	if asOf.IsZero() {
		asOf = s.now().UTC().Truncate(24 * time.Hour)
	}
	key, err := s.cache.BuildKey(ctx, "statements", "aging",
		strconv.FormatInt(companyID, 10), asOf.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		var report AgingReport
		err := s.cache.FetchJSON(ctx, key, &report, func(ctx context.Context) (any, error) {
			return s.computeAging(ctx, companyID, asOf)
		})
		if err != nil {
			return nil, err
		}
		return &report, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*AgingReport), nil
}

func (s *Service) computeAging(ctx context.Context, companyID int64, asOf time.Time) (*AgingReport, error) {
	invoices, err := s.repo.ListOutstanding(ctx, companyID)
	if err != nil {
		return nil, err
	}
	report := AgingReport{AsOf: asOf, CompanyID: companyID}
	for _, inv := range invoices {
		days := int(asOf.Sub(inv.DueDate).Hours() / 24)
		switch {
		case days <= 0:
			report.Current = report.Current.Add(inv.BalanceDue)
		case days <= 30:
			report.Days30 = report.Days30.Add(inv.BalanceDue)
		case days <= 60:
			report.Days60 = report.Days60.Add(inv.BalanceDue)
		case days <= 90:
			report.Days90 = report.Days90.Add(inv.BalanceDue)
		default:
			report.Days120 = report.Days120.Add(inv.BalanceDue)
		}
		report.Total = report.Total.Add(inv.BalanceDue)
	}
	s.logger.Info("aging computed",
		slog.Int64("company_id", companyID),
		slog.Int("invoices", len(invoices)),
		slog.String("total", money.Format(report.Total)))
	return &report, nil
}

// CustomerStatement lists a customer's chronological activity with a running
// balance.
func (s *Service) CustomerStatement(ctx context.Context, companyID, customerID int64, from, to time.Time) (*Statement, error) {
	if to.IsZero() {
		to = s.now()
	}
	if from.IsZero() {
		from = to.AddDate(-1, 0, 0)
	}
	key, err := s.cache.BuildKey(ctx, "statements", "customer",
		strconv.FormatInt(companyID, 10), strconv.FormatInt(customerID, 10),
		from.Format("2006-01-02"), to.Format("2006-01-02"))
	if err != nil {
		return nil, err
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		var stmt Statement
		err := s.cache.FetchJSON(ctx, key, &stmt, func(ctx context.Context) (any, error) {
			return s.buildStatement(ctx, companyID, customerID, from, to)
		})
		if err != nil {
			return nil, err
		}
		return &stmt, nil
	})
	if err != nil {
		return nil, err
	}
	return result.(*Statement), nil
}

func (s *Service) buildStatement(ctx context.Context, companyID, customerID int64, from, to time.Time) (*Statement, error) {
	customer, err := s.masterdata.GetCustomer(ctx, customerID)
	if err != nil {
		return nil, fmt.Errorf("lookup customer: %w", err)
	}

	entries, err := s.repo.ListStatementRows(ctx, companyID, customerID, from, to)
	if err != nil {
		return nil, err
	}

	stmt := Statement{
		CompanyID:    companyID,
		CustomerID:   customerID,
		CustomerName: customer.Name,
		From:         from,
		To:           to,
		Entries:      entries,
	}
	for i := range stmt.Entries {
		stmt.Closing = stmt.Closing.Add(stmt.Entries[i].Debit).Sub(stmt.Entries[i].Credit)
		stmt.Entries[i].Balance = stmt.Closing
	}
	return &stmt, nil
}

// Invalidate drops every cached report. Called after allocations change
// invoice balances.
func (s *Service) Invalidate(ctx context.Context) error {
	return s.cache.Bump(ctx)
}
