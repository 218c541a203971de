package state

import "sync"

// EndpointDiff carries newly placed endpoints; the set only ever grows
// within a universe mode and is replaced wholesale on a mode switch.
type EndpointDiff struct {
	Added []*EndpointState `json:"added,omitempty"`
	Reset bool             `json:"reset,omitempty"`
}

// EndpointStore keeps teleport endpoints in registration order.
type EndpointStore struct {
	mu        sync.RWMutex
	endpoints []*EndpointState
	added     []*EndpointState
	reset     bool
}

// NewEndpointStore constructs an empty endpoint container.
func NewEndpointStore() *EndpointStore {
	return &EndpointStore{}
}

// Append registers a new endpoint and schedules it for the next diff.
func (s *EndpointStore) Append(endpoint *EndpointState) {
	if s == nil || endpoint == nil || endpoint.ID == "" {
		return
	}
	clone := *endpoint

	s.mu.Lock()
	//1.- Registration order doubles as the teleport tie-break order.
	s.endpoints = append(s.endpoints, &clone)
	added := clone
	s.added = append(s.added, &added)
	s.mu.Unlock()
}

// Clear drops every endpoint and flags the reset for the next diff.
func (s *EndpointStore) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.endpoints = nil
	s.added = nil
	s.reset = true
	s.mu.Unlock()
}

// Len reports the number of registered endpoints.
func (s *EndpointStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.endpoints)
}

// Snapshot clones every endpoint in registration order.
func (s *EndpointStore) Snapshot() []*EndpointState {
	if s == nil {
		return nil
	}
	s.mu.RLock()
	snapshot := make([]*EndpointState, 0, len(s.endpoints))
	for _, endpoint := range s.endpoints {
		clone := *endpoint
		snapshot = append(snapshot, &clone)
	}
	s.mu.RUnlock()
	return snapshot
}

// ConsumeDiff retrieves and clears pending endpoint additions and resets.
func (s *EndpointStore) ConsumeDiff() EndpointDiff {
	if s == nil {
		return EndpointDiff{}
	}
	s.mu.Lock()
	diff := EndpointDiff{Added: s.added, Reset: s.reset}
	s.added = nil
	s.reset = false
	s.mu.Unlock()
	return diff
}
