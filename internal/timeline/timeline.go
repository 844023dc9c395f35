// Package timeline keeps the append-only audit log of rift activity.
//
// Recording is fire-and-forget from the caller's point of view: the
// financial commit has already happened by the time an event is
// appended, and sink fan-out (websockets, webhooks) runs after the
// store write so delivery problems never surface into money paths.
package timeline

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/riftworks/riftpay/internal/idgen"
)

var ErrNotFound = errors.New("timeline: event not found")

// Event is one append-only timeline entry.
type Event struct {
	ID        string    `json:"id"`
	RiftID    string    `json:"riftId"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Detail    string    `json:"detail,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Store persists timeline events. Events are never updated or deleted.
type Store interface {
	Append(ctx context.Context, e *Event) error
	ListByRift(ctx context.Context, riftID string, limit int) ([]*Event, error)
}

// Sink receives events after they are persisted. Implementations must
// not block; slow delivery is the sink's problem.
type Sink interface {
	Deliver(e *Event)
}

// Recorder appends events and fans them out to sinks. It satisfies the
// Recorder interfaces of the rift, dispute and payout services.
type Recorder struct {
	store  Store
	sinks  []Sink
	logger *slog.Logger
}

// NewRecorder creates a timeline recorder.
func NewRecorder(store Store) *Recorder {
	return &Recorder{store: store, logger: slog.Default()}
}

// WithSink adds a delivery sink.
func (r *Recorder) WithSink(s Sink) *Recorder {
	r.sinks = append(r.sinks, s)
	return r
}

// WithLogger sets the logger.
func (r *Recorder) WithLogger(l *slog.Logger) *Recorder {
	r.logger = l
	return r
}

// Record appends an event. Errors are logged, never returned: the
// caller's operation has already committed.
func (r *Recorder) Record(ctx context.Context, riftID, actor, action, detail string) {
	e := &Event{
		ID:        idgen.WithPrefix("evt_"),
		RiftID:    riftID,
		Actor:     actor,
		Action:    action,
		Detail:    detail,
		CreatedAt: time.Now(),
	}

	if err := r.store.Append(ctx, e); err != nil {
		r.logger.Warn("failed to append timeline event",
			"riftId", riftID, "action", action, "error", err)
		return
	}

	for _, s := range r.sinks {
		s.Deliver(e)
	}
}

// ListByRift returns a rift's events, newest first.
func (r *Recorder) ListByRift(ctx context.Context, riftID string, limit int) ([]*Event, error) {
	return r.store.ListByRift(ctx, riftID, limit)
}
