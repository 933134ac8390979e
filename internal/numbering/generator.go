package numbering

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/quillbooks/quillbooks/internal/observability"
	"github.com/quillbooks/quillbooks/internal/shared"
)

// Sequencer hands out the next sequence value for a (company, kind, year)
// bucket. Implementations must be safe under concurrent callers: two calls
// for the same bucket never observe the same value.
type Sequencer interface {
	NextSeq(ctx context.Context, companyID int64, kind Kind, year int) (int64, error)
	// Probe verifies the authoritative path is usable. Called once at startup.
	Probe(ctx context.Context) error
}

// CompanyNamer resolves the company name used for prefix derivation.
type CompanyNamer interface {
	CompanyName(ctx context.Context, companyID int64) (string, error)
}

// Generator assigns document numbers, preferring the authoritative sequencer
// and degrading to client-generated fallback numbers when it is unavailable.
type Generator struct {
	seq       Sequencer
	companies CompanyNamer
	logger    *slog.Logger
	metrics   *observability.Metrics
	now       func() time.Time

	authoritative bool
}

// NewGenerator probes the sequencer once and fixes the implementation choice
// for the process lifetime, rather than deciding per call.
func NewGenerator(ctx context.Context, seq Sequencer, companies CompanyNamer, logger *slog.Logger, metrics *observability.Metrics) *Generator {
	g := &Generator{
		seq:       seq,
		companies: companies,
		logger:    logger,
		metrics:   metrics,
		now:       time.Now,
	}
	if err := seq.Probe(ctx); err != nil {
		logger.Warn("authoritative numbering unavailable, fallback numbers will be issued",
			slog.Any("error", err))
		g.authoritative = false
		return g
	}
	g.authoritative = true
	return g
}

// Result is an assigned number plus whether it came from the fallback path.
type Result struct {
	Number   string
	Fallback bool
}

// Next assigns the next number for the company and kind at the given date.
// The authoritative path is always attempted first; a failure there is
// recovered locally with a timestamp-suffixed fallback number, and the
// degradation is logged and counted because it weakens the gap-free
// guarantee.
func (g *Generator) Next(ctx context.Context, companyID int64, kind Kind, date time.Time) (Result, error) {
	if !kind.Valid() {
		return Result{}, fmt.Errorf("%w: unknown document kind %q", shared.ErrSequenceGenerationFailed, kind)
	}
	if date.IsZero() {
		date = g.now()
	}

	initials := ""
	if name, err := g.companies.CompanyName(ctx, companyID); err == nil {
		initials = CompanyInitials(name)
	} else {
		g.logger.Warn("resolve company for number prefix",
			slog.Int64("company_id", companyID), slog.Any("error", err))
	}

	if g.authoritative {
		year := kind.SequenceYear(date)
		seq, err := g.seq.NextSeq(ctx, companyID, kind, year)
		if err == nil {
			return Result{Number: kind.Render(initials, year, seq)}, nil
		}
		g.logger.Error("authoritative number generation failed, issuing fallback",
			slog.Int64("company_id", companyID),
			slog.String("kind", string(kind)),
			slog.Any("error", err))
	}

	if g.metrics != nil {
		g.metrics.NumberingFallbacks.WithLabelValues(string(kind)).Inc()
	}
	number := kind.renderFallback(initials, g.now())
	g.logger.Warn("issued fallback document number",
		slog.Int64("company_id", companyID),
		slog.String("kind", string(kind)),
		slog.String("number", number))
	return Result{Number: number, Fallback: true}, nil
}
