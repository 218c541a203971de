package state

// TickDiff collates all state deltas emitted for a simulation tick.
type TickDiff struct {
	Tick        uint64          `json:"tick"`
	Mode        string          `json:"mode,omitempty"`
	Character   *CharacterState `json:"character,omitempty"`
	Projectiles ProjectileDiff  `json:"projectiles"`
	Endpoints   EndpointDiff    `json:"endpoints"`
	Events      EventDiff       `json:"events"`
}

// HasChanges reports whether the diff contains any modifications worth broadcasting.
func (d TickDiff) HasChanges() bool {
	//1.- Check each sub diff for non-empty updates or removals.
	if d.Character != nil {
		return true
	}
	if len(d.Projectiles.Updated) > 0 || len(d.Projectiles.Removed) > 0 {
		return true
	}
	if len(d.Endpoints.Added) > 0 || d.Endpoints.Reset {
		return true
	}
	if len(d.Events.Events) > 0 {
		return true
	}
	return false
}

// WorldState holds the authoritative state containers for one session.
type WorldState struct {
	Character   *CharacterStore
	Projectiles *ProjectileStore
	Endpoints   *EndpointStore
	Events      *EventStore
}

// NewWorldState constructs the world containers with default implementations.
func NewWorldState() *WorldState {
	return &WorldState{
		Character:   NewCharacterStore(),
		Projectiles: NewProjectileStore(),
		Endpoints:   NewEndpointStore(),
		Events:      NewEventStore(),
	}
}

// ConsumeDiff gathers the per-store diffs accumulated since the last call.
func (w *WorldState) ConsumeDiff(tick uint64) TickDiff {
	if w == nil {
		return TickDiff{}
	}
	return TickDiff{
		Tick:        tick,
		Character:   w.Character.ConsumeDiff(),
		Projectiles: w.Projectiles.ConsumeDiff(),
		Endpoints:   w.Endpoints.ConsumeDiff(),
		Events:      w.Events.ConsumeDiff(),
	}
}

// Snapshot captures the entire world state, e.g. for a newly joined viewer.
func (w *WorldState) Snapshot(tick uint64) TickDiff {
	if w == nil {
		return TickDiff{}
	}

	//1.- Collect full snapshots from each store for a comprehensive diff.
	character := w.Character.Snapshot()
	return TickDiff{
		Tick:      tick,
		Character: &character,
		Projectiles: ProjectileDiff{
			Updated: w.Projectiles.Snapshot(),
		},
		Endpoints: EndpointDiff{
			Added: w.Endpoints.Snapshot(),
			Reset: true,
		},
	}
}
