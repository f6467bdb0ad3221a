// Package mocks provides test doubles shared by package tests.
package mocks

import (
	"context"
	"sync"

	"github.com/aimd54/levellist/internal/notify"
)

// RecordingSink is a notify.Sink that keeps every event it receives.
type RecordingSink struct {
	mu     sync.Mutex
	events []notify.Event
	Err    error
}

// NewRecordingSink creates an empty recording sink.
func NewRecordingSink() *RecordingSink {
	return &RecordingSink{}
}

// Notify records the event and returns Err.
func (s *RecordingSink) Notify(_ context.Context, event notify.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = append(s.events, event)
	return s.Err
}

// Events returns a copy of the recorded events.
func (s *RecordingSink) Events() []notify.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]notify.Event, len(s.events))
	copy(out, s.events)
	return out
}

// Kinds returns the kinds of the recorded events in order.
func (s *RecordingSink) Kinds() []notify.Kind {
	events := s.Events()
	kinds := make([]notify.Kind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Count returns how many events of kind were recorded.
func (s *RecordingSink) Count(kind notify.Kind) int {
	n := 0
	for _, k := range s.Kinds() {
		if k == kind {
			n++
		}
	}
	return n
}

// Reset drops every recorded event.
func (s *RecordingSink) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.events = nil
}
