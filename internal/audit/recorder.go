package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/clinova/accessd/internal/shared"
)

// Enqueuer is the subset of asynq.Client the recorder needs.
type Enqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// AsynqRecorder hands events to the audit worker through the task queue.
type AsynqRecorder struct {
	client Enqueuer
	logger *slog.Logger
}

// NewAsynqRecorder constructs a recorder backed by the given client.
func NewAsynqRecorder(client Enqueuer, logger *slog.Logger) *AsynqRecorder {
	return &AsynqRecorder{client: client, logger: logger}
}

// Record enqueues the event. The actor is taken from the request principal
// when the caller has not filled it in. Enqueue failures are logged and
// swallowed so the underlying mutation still succeeds.
func (r *AsynqRecorder) Record(ctx context.Context, e Event) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.At.IsZero() {
		e.At = time.Now().UTC()
	}
	if e.ActorID == 0 {
		if p := shared.PrincipalFromContext(ctx); p != nil {
			e.ActorID = p.UserID
		}
	}

	task, err := NewRecordTask(e)
	if err != nil {
		r.warn("audit: build task", e, err)
		return
	}
	if _, err := r.client.EnqueueContext(ctx, task, asynq.Queue(QueueAudit)); err != nil {
		r.warn("audit: enqueue", e, err)
	}
}

func (r *AsynqRecorder) warn(msg string, e Event, err error) {
	if r.logger == nil {
		return
	}
	r.logger.Warn(msg,
		slog.String("action", e.Action),
		slog.String("entity_id", e.EntityID),
		slog.Any("error", err))
}
