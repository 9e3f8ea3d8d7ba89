// Package audit delivers mutation events to the audit component. Delivery
// is best effort: a failure to record never blocks or fails the mutation.
package audit

import (
	"context"
	"time"
)

// Event summarises one mutating operation on permission-relevant state.
type Event struct {
	ID       string         `json:"id"`
	ActorID  int64          `json:"actor_id"`
	Action   string         `json:"action"`
	Entity   string         `json:"entity"`
	EntityID string         `json:"entity_id"`
	Before   map[string]any `json:"before,omitempty"`
	After    map[string]any `json:"after,omitempty"`
	At       time.Time      `json:"at"`
}

// Recorder accepts events for asynchronous delivery.
type Recorder interface {
	Record(ctx context.Context, e Event)
}

// NopRecorder discards every event.
type NopRecorder struct{}

// Record implements Recorder.
func (NopRecorder) Record(context.Context, Event) {}
