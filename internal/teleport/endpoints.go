package teleport

import (
	"fmt"

	"multiverse/sim/internal/physics"
	"multiverse/sim/internal/state"
)

// Endpoint is one half of a teleport structure. Registration order is
// significant: proximity ties between endpoints resolve to the first match.
type Endpoint struct {
	ID       string
	Role     state.EndpointRole
	Group    string
	Position physics.Vec3
	Facing   physics.Vec3
}

// State converts the endpoint into its broadcastable representation.
func (e *Endpoint) State() *state.EndpointState {
	if e == nil {
		return nil
	}
	return &state.EndpointState{
		ID:       e.ID,
		Role:     e.Role,
		Group:    e.Group,
		Position: physics.ToStateVec3(e.Position),
		Facing:   physics.ToStateVec3(e.Facing),
	}
}

// Registry owns the ordered set of endpoints for the active universe mode.
// It is mutated only inside the session's step-granularity lock.
type Registry struct {
	endpoints []*Endpoint
	nextID    uint64
}

// NewRegistry constructs an empty endpoint registry.
func NewRegistry() *Registry {
	return &Registry{}
}

// Add appends a new endpoint, assigning it a stable identifier.
func (r *Registry) Add(role state.EndpointRole, group string, position, facing physics.Vec3) *Endpoint {
	if r == nil || !role.Valid() {
		return nil
	}
	//1.- Derive a monotonically increasing identifier for diff consumers.
	r.nextID++
	endpoint := &Endpoint{
		ID:       fmt.Sprintf("ep-%d", r.nextID),
		Role:     role,
		Group:    group,
		Position: position,
		Facing:   facing,
	}
	r.endpoints = append(r.endpoints, endpoint)
	return endpoint
}

// Clear drops every endpoint, e.g. on a universe-mode switch.
func (r *Registry) Clear() {
	if r == nil {
		return
	}
	r.endpoints = nil
}

// Endpoints returns the registered endpoints in registration order.
func (r *Registry) Endpoints() []*Endpoint {
	if r == nil {
		return nil
	}
	return r.endpoints
}

// Len reports the number of registered endpoints.
func (r *Registry) Len() int {
	if r == nil {
		return 0
	}
	return len(r.endpoints)
}
