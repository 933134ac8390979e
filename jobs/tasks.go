// Package jobs runs background maintenance over Asynq: purging expired
// idempotency keys and reconciling fallback-issued document numbers.
package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskIdempotencyCleanup purges idempotency keys past retention.
	TaskIdempotencyCleanup = "idempotency:cleanup"
	// TaskNumberingReconcile replaces fallback document numbers with
	// authoritative ones once the sequence store is reachable again.
	TaskNumberingReconcile = "numbering:reconcile"
)

// IdempotencyCleanupPayload configures a cleanup run.
type IdempotencyCleanupPayload struct {
	RetentionHours int `json:"retention_hours"`
}

// NewIdempotencyCleanupTask constructs an Asynq task.
func NewIdempotencyCleanupTask(payload IdempotencyCleanupPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskIdempotencyCleanup, data), nil
}

// NumberingReconcilePayload configures a reconcile run.
type NumberingReconcilePayload struct {
	BatchSize int `json:"batch_size"`
}

// NewNumberingReconcileTask constructs an Asynq task.
func NewNumberingReconcileTask(payload NumberingReconcilePayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskNumberingReconcile, data), nil
}
