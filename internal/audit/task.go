package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"
)

const (
	// QueueAudit is the queue the audit worker consumes.
	QueueAudit = "audit"
	// TaskTypeRecord is the task type carrying one audit event.
	TaskTypeRecord = "audit:record"
)

// NewRecordTask wraps an event into an Asynq task.
func NewRecordTask(e Event) (*asynq.Task, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeRecord, data), nil
}

// Writer persists audit events into audit_logs.
type Writer struct {
	pool *pgxpool.Pool
}

// NewWriter constructs a Writer.
func NewWriter(pool *pgxpool.Pool) *Writer {
	return &Writer{pool: pool}
}

// HandleRecordTask processes TaskTypeRecord tasks. Malformed payloads are
// dropped rather than retried.
func (w *Writer) HandleRecordTask(ctx context.Context, t *asynq.Task) error {
	var e Event
	if err := json.Unmarshal(t.Payload(), &e); err != nil {
		return fmt.Errorf("audit: decode event: %v: %w", err, asynq.SkipRetry)
	}
	meta, err := json.Marshal(map[string]any{"before": e.Before, "after": e.After})
	if err != nil {
		return fmt.Errorf("audit: encode meta: %v: %w", err, asynq.SkipRetry)
	}
	_, err = w.pool.Exec(ctx, `
		INSERT INTO audit_logs (id, actor_id, action, entity, entity_id, meta, occurred_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (id) DO NOTHING`,
		e.ID, e.ActorID, e.Action, e.Entity, e.EntityID, meta, e.At)
	return err
}
