package state

import "sync"

// CharacterStore guards the single character state with dirty tracking.
type CharacterStore struct {
	mu    sync.RWMutex
	state CharacterState
	dirty bool
}

// NewCharacterStore constructs a character container at the origin.
func NewCharacterStore() *CharacterStore {
	return &CharacterStore{dirty: true}
}

// Reset replaces the character state wholesale, marking it dirty.
func (s *CharacterStore) Reset(state CharacterState) {
	if s == nil {
		return
	}
	s.mu.Lock()
	//1.- Swap the whole record so mode switches never leak stale fields.
	s.state = state
	s.dirty = true
	s.mu.Unlock()
}

// Mutate runs fn against the live character record under the write lock.
func (s *CharacterStore) Mutate(fn func(*CharacterState)) {
	if s == nil || fn == nil {
		return
	}
	s.mu.Lock()
	before := s.state
	fn(&s.state)
	//1.- Only mark the record dirty when the mutation changed something.
	if s.state != before {
		s.dirty = true
	}
	s.mu.Unlock()
}

// Snapshot returns a copy of the current character state.
func (s *CharacterStore) Snapshot() CharacterState {
	if s == nil {
		return CharacterState{}
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// ConsumeDiff returns the character state when dirty and clears the flag.
func (s *CharacterStore) ConsumeDiff() *CharacterState {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.dirty {
		return nil
	}
	//1.- Clone the record so callers cannot mutate the store through the diff.
	clone := s.state
	s.dirty = false
	return &clone
}
