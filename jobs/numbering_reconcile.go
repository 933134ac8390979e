package jobs

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/hibiken/asynq"

	"github.com/quillbooks/quillbooks/internal/documents"
	jobmetrics "github.com/quillbooks/quillbooks/internal/jobs"
	"github.com/quillbooks/quillbooks/internal/numbering"
)

const defaultReconcileBatch = 100

// NumberingReconcile walks documents carrying fallback numbers and assigns
// authoritative ones. Documents are skipped, not failed, while the sequence
// store is still unreachable.
type NumberingReconcile struct {
	repo    documents.Repository
	numbers *numbering.Generator
	logger  *slog.Logger
	metrics *jobmetrics.Metrics
}

// NewNumberingReconcile constructs the reconcile handler.
func NewNumberingReconcile(repo documents.Repository, numbers *numbering.Generator, logger *slog.Logger, metrics *jobmetrics.Metrics) *NumberingReconcile {
	return &NumberingReconcile{repo: repo, numbers: numbers, logger: logger, metrics: metrics}
}

// Handle processes TaskNumberingReconcile tasks.
func (j *NumberingReconcile) Handle(ctx context.Context, t *asynq.Task) error {
	tracker := j.metrics.Track("numbering_reconcile")
	var payload NumberingReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return tracker.End(asynq.SkipRetry)
	}
	batch := payload.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatch
	}

	docs, err := j.repo.ListFallbackNumbered(ctx, batch)
	if err != nil {
		return tracker.End(err)
	}
	reconciled := 0
	for _, doc := range docs {
		res, err := j.numbers.Next(ctx, doc.CompanyID, doc.Kind.NumberingKind(), doc.IssueDate)
		if err != nil || res.Fallback {
			j.logger.Warn("sequence store still unavailable, leaving fallback number",
				slog.String("doc_number", doc.DocNumber))
			continue
		}
		if err := j.repo.ReassignNumber(ctx, doc.ID, res.Number); err != nil {
			j.logger.Warn("reassign document number",
				slog.Any("error", err),
				slog.String("doc_number", doc.DocNumber))
			continue
		}
		j.logger.Info("document number reconciled",
			slog.String("old", doc.DocNumber),
			slog.String("new", res.Number))
		reconciled++
	}
	j.logger.Info("numbering reconcile done",
		slog.Int("candidates", len(docs)),
		slog.Int("reconciled", reconciled))
	return tracker.End(nil)
}
