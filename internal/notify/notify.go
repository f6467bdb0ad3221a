// Package notify defines engine events and delivers them without blocking the engine.
package notify

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aimd54/levellist/internal/metrics"
	"github.com/aimd54/levellist/pkg/logger"
)

// Kind names an event.
type Kind string

// Event kinds.
const (
	RecordSubmitted Kind = "record_submitted"
	RecordApproved  Kind = "record_approved"
	RecordRejected  Kind = "record_rejected"
	VerifierAwarded Kind = "verifier_awarded"
	LevelAdded      Kind = "level_added"
	LevelMoved      Kind = "level_moved"
	LevelRemoved    Kind = "level_removed"
)

// Event is one notification.
type Event struct {
	ID         string                 `json:"id"`
	Kind       Kind                   `json:"kind"`
	OccurredAt time.Time              `json:"occurred_at"`
	Payload    map[string]interface{} `json:"payload"`
}

// NewEvent creates an event with a fresh ID.
func NewEvent(kind Kind, payload map[string]interface{}) Event {
	return Event{
		ID:         uuid.NewString(),
		Kind:       kind,
		OccurredAt: time.Now().UTC(),
		Payload:    payload,
	}
}

// Field returns the payload value for key formatted as a string, or "".
func (e Event) Field(key string) string {
	v, ok := e.Payload[key]
	if !ok || v == nil {
		return ""
	}
	return fmt.Sprint(v)
}

// Sink receives events.
type Sink interface {
	Notify(ctx context.Context, event Event) error
}

// Nop drops every event.
type Nop struct{}

// Notify implements Sink.
func (Nop) Notify(context.Context, Event) error { return nil }

// Async delivers events to a sink from background goroutines. Delivery errors
// are logged and counted; Notify never fails.
type Async struct {
	sink    Sink
	timeout time.Duration
	log     *logger.Logger
	wg      sync.WaitGroup
}

// NewAsync wraps sink. Each delivery gets its own timeout.
func NewAsync(sink Sink, timeout time.Duration, log *logger.Logger) *Async {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Async{sink: sink, timeout: timeout, log: log}
}

// Notify schedules delivery and returns immediately.
func (a *Async) Notify(_ context.Context, event Event) error {
	a.wg.Add(1)
	go func() {
		defer a.wg.Done()

		// Delivery outlives the request that caused it.
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()

		err := a.deliver(ctx, event)
		metrics.RecordNotification(string(event.Kind), err)
		if err != nil {
			a.log.Warn().
				Err(err).
				Str("event_id", event.ID).
				Str("kind", string(event.Kind)).
				Msg("Failed to deliver notification")
		}
	}()
	return nil
}

func (a *Async) deliver(ctx context.Context, event Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("notification sink panicked: %v", r)
		}
	}()
	return a.sink.Notify(ctx, event)
}

// Wait blocks until every scheduled delivery finished.
func (a *Async) Wait() {
	a.wg.Wait()
}
