package state

import "sync"

// EventDiff contains the batch of simulation events ready for broadcast.
type EventDiff struct {
	Events []*Event `json:"events,omitempty"`
}

// EventStore buffers simulation events until the next tick publishes them.
type EventStore struct {
	mu     sync.Mutex
	queued []*Event
}

// NewEventStore constructs an event buffer.
func NewEventStore() *EventStore {
	return &EventStore{}
}

// Add enqueues a copy of the event for the next diff.
func (s *EventStore) Add(event *Event) {
	if s == nil || event == nil {
		return
	}
	copied := *event
	s.mu.Lock()
	s.queued = append(s.queued, &copied)
	s.mu.Unlock()
}

// ConsumeDiff drains the queue, returning copies so callers cannot reach
// back into the store.
func (s *EventStore) ConsumeDiff() EventDiff {
	if s == nil {
		return EventDiff{}
	}

	s.mu.Lock()
	drained := s.queued
	s.queued = nil
	s.mu.Unlock()

	if len(drained) == 0 {
		return EventDiff{}
	}
	out := make([]*Event, len(drained))
	for i, event := range drained {
		copied := *event
		out[i] = &copied
	}
	return EventDiff{Events: out}
}
