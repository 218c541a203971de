package state

import "sync"

// ProjectileDiff aggregates updates and removals for projectiles.
type ProjectileDiff struct {
	Updated []*ProjectileState `json:"updated,omitempty"`
	Removed []string           `json:"removed,omitempty"`
}

// ProjectileStore maintains projectile states with dirty tracking and a
// stable spawn order so per-tick iteration stays deterministic.
type ProjectileStore struct {
	mu      sync.RWMutex
	states  map[string]*ProjectileState
	order   []string
	dirty   map[string]struct{}
	removed map[string]struct{}
}

// NewProjectileStore constructs a projectile container with initialized maps.
func NewProjectileStore() *ProjectileStore {
	return &ProjectileStore{
		states:  make(map[string]*ProjectileState),
		dirty:   make(map[string]struct{}),
		removed: make(map[string]struct{}),
	}
}

// Upsert records or updates a projectile state and schedules it for the next diff.
func (s *ProjectileStore) Upsert(state *ProjectileState) {
	if s == nil || state == nil || state.ID == "" {
		return
	}

	clone := *state

	s.mu.Lock()
	//1.- Remember first-seen order so collision pairs resolve deterministically.
	if _, exists := s.states[clone.ID]; !exists {
		s.order = append(s.order, clone.ID)
	}
	//2.- Store the cloned projectile and mark it dirty while clearing removal markers.
	s.states[clone.ID] = &clone
	delete(s.removed, clone.ID)
	s.dirty[clone.ID] = struct{}{}
	s.mu.Unlock()
}

// Remove deletes a projectile and queues its ID for removal broadcasting.
func (s *ProjectileStore) Remove(projectileID string) {
	if s == nil || projectileID == "" {
		return
	}

	s.mu.Lock()
	//1.- Remove any stored projectile, clear dirty flag, and track the removal.
	if _, exists := s.states[projectileID]; exists {
		s.removeOrderLocked(projectileID)
	}
	delete(s.states, projectileID)
	delete(s.dirty, projectileID)
	s.removed[projectileID] = struct{}{}
	s.mu.Unlock()
}

// Mutate passes the live projectiles in spawn order to fn under the write
// lock and marks every record dirty afterwards. IDs returned by fn are
// removed once the pass completes.
func (s *ProjectileStore) Mutate(fn func(ordered []*ProjectileState) (remove []string)) {
	if s == nil || fn == nil {
		return
	}

	s.mu.Lock()
	//1.- Materialize the spawn-ordered view of the live records.
	ordered := make([]*ProjectileState, 0, len(s.order))
	for _, id := range s.order {
		if projectile, ok := s.states[id]; ok && projectile != nil {
			ordered = append(ordered, projectile)
		}
	}
	expired := fn(ordered)
	//2.- Flag every projectile dirty since the step mutates positions in bulk.
	for _, id := range s.order {
		s.dirty[id] = struct{}{}
	}
	//3.- Apply the removals requested by the mutation pass.
	for _, id := range expired {
		if _, ok := s.states[id]; !ok {
			continue
		}
		s.removeOrderLocked(id)
		delete(s.states, id)
		delete(s.dirty, id)
		s.removed[id] = struct{}{}
	}
	s.mu.Unlock()
}

// Len reports the number of live projectiles.
func (s *ProjectileStore) Len() int {
	if s == nil {
		return 0
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.states)
}

// Clear drops every projectile without emitting removal diffs; used on
// universe-mode switches where viewers receive a full snapshot instead.
func (s *ProjectileStore) Clear() {
	if s == nil {
		return
	}
	s.mu.Lock()
	s.states = make(map[string]*ProjectileState)
	s.order = nil
	s.dirty = make(map[string]struct{})
	s.removed = make(map[string]struct{})
	s.mu.Unlock()
}

// ConsumeDiff retrieves and clears pending projectile updates.
func (s *ProjectileStore) ConsumeDiff() ProjectileDiff {
	if s == nil {
		return ProjectileDiff{}
	}

	s.mu.Lock()
	//1.- Capture dirty IDs in spawn order together with pending removals.
	dirtyIDs := make([]string, 0, len(s.dirty))
	for _, id := range s.order {
		if _, ok := s.dirty[id]; ok {
			dirtyIDs = append(dirtyIDs, id)
		}
	}
	removedIDs := make([]string, 0, len(s.removed))
	for id := range s.removed {
		removedIDs = append(removedIDs, id)
	}

	s.dirty = make(map[string]struct{})
	s.removed = make(map[string]struct{})

	//2.- Clone the projectile states referenced by the dirty identifiers.
	updated := make([]*ProjectileState, 0, len(dirtyIDs))
	for _, id := range dirtyIDs {
		projectile, ok := s.states[id]
		if !ok || projectile == nil {
			continue
		}
		clone := *projectile
		updated = append(updated, &clone)
	}
	s.mu.Unlock()

	return ProjectileDiff{Updated: updated, Removed: removedIDs}
}

// Snapshot clones and returns every projectile state in spawn order.
func (s *ProjectileStore) Snapshot() []*ProjectileState {
	if s == nil {
		return nil
	}

	s.mu.RLock()
	//1.- Clone each projectile under the read lock to preserve isolation.
	snapshot := make([]*ProjectileState, 0, len(s.order))
	for _, id := range s.order {
		projectile, ok := s.states[id]
		if !ok || projectile == nil {
			continue
		}
		clone := *projectile
		snapshot = append(snapshot, &clone)
	}
	s.mu.RUnlock()
	return snapshot
}

func (s *ProjectileStore) removeOrderLocked(projectileID string) {
	for i, id := range s.order {
		if id == projectileID {
			s.order = append(s.order[:i], s.order[i+1:]...)
			return
		}
	}
}
