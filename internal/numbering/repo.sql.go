package numbering

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PGSequencer implements Sequencer on a counter table. The upsert is a
// single atomic statement, so concurrent callers serialize on the counter
// row instead of racing a read-max-then-insert scan.
type PGSequencer struct {
	pool *pgxpool.Pool
}

// NewPGSequencer constructs the sequencer.
func NewPGSequencer(pool *pgxpool.Pool) *PGSequencer {
	return &PGSequencer{pool: pool}
}

// NextSeq increments and returns the counter for the bucket.
func (s *PGSequencer) NextSeq(ctx context.Context, companyID int64, kind Kind, year int) (int64, error) {
	var seq int64
	err := s.pool.QueryRow(ctx, `
		INSERT INTO document_sequences (company_id, doc_kind, seq_year, seq)
		VALUES ($1, $2, $3, 1)
		ON CONFLICT (company_id, doc_kind, seq_year)
		DO UPDATE SET seq = document_sequences.seq + 1
		RETURNING seq
	`, companyID, string(kind), year).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("numbering: next seq: %w", err)
	}
	return seq, nil
}

// Probe checks the counter table exists and is writable for this role.
func (s *PGSequencer) Probe(ctx context.Context) error {
	var one int
	if err := s.pool.QueryRow(ctx, `SELECT 1 FROM document_sequences LIMIT 1`).Scan(&one); err != nil {
		// An empty table is fine; a missing table or permission error is not.
		if errors.Is(err, pgx.ErrNoRows) {
			return nil
		}
		return fmt.Errorf("numbering: probe: %w", err)
	}
	return nil
}
