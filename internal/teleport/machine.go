package teleport

import (
	"math/rand"

	"multiverse/sim/internal/physics"
)

// ClearanceMargin widens the re-arm distance beyond the trigger threshold.
// The hysteresis band is mandatory: re-arming at the trigger threshold
// itself lets a freshly arrived entity oscillate between the two endpoints.
const ClearanceMargin = 1.0

// Jump describes a completed teleport transition.
type Jump struct {
	From *Endpoint
	To   *Endpoint
	// Position is the relocated reference point, already offset along the
	// destination's facing so the entity does not instantly re-trigger.
	Position physics.Vec3
}

// Machine tracks per-entity Armed/Cooling teleport state against a registry.
//
// Target selection among multiple opposite-role candidates is uniform over
// a seeded source, so identical seeds and input sequences reproduce runs.
// When several endpoints are simultaneously in range the first registered
// one wins; that tie-break is deliberate and documented rather than hidden.
type Machine struct {
	registry   *Registry
	threshold  float64
	exitOffset float64
	rng        *rand.Rand
	cooling    map[string]bool
}

// NewMachine constructs a teleport machine over the supplied registry.
func NewMachine(registry *Registry, threshold, exitOffset float64, rng *rand.Rand) *Machine {
	if rng == nil {
		rng = rand.New(rand.NewSource(1))
	}
	return &Machine{
		registry:   registry,
		threshold:  threshold,
		exitOffset: exitOffset,
		rng:        rng,
		cooling:    make(map[string]bool),
	}
}

// SetThreshold updates the trigger distance, e.g. after a config patch.
func (m *Machine) SetThreshold(threshold float64) {
	if m == nil || threshold <= 0 {
		return
	}
	m.threshold = threshold
}

// Armed reports whether the entity may currently trigger a teleport.
func (m *Machine) Armed(entityID string) bool {
	if m == nil {
		return false
	}
	return !m.cooling[entityID]
}

// Forget drops the entity's cooldown state, e.g. when a projectile expires.
func (m *Machine) Forget(entityID string) {
	if m == nil {
		return
	}
	delete(m.cooling, entityID)
}

// Reset clears every cooldown, e.g. on a universe-mode switch.
func (m *Machine) Reset() {
	if m == nil {
		return
	}
	m.cooling = make(map[string]bool)
}

// Evaluate runs one proximity check for the entity's reference point and
// returns the jump when a teleport fired. A cooling entity re-arms only once
// its distance to every endpoint of both roles exceeds the threshold plus
// the clearance margin, and can therefore never trigger on the same tick.
func (m *Machine) Evaluate(entityID string, reference physics.Vec3) (Jump, bool) {
	if m == nil || m.registry == nil || m.registry.Len() == 0 {
		return Jump{}, false
	}

	if m.cooling[entityID] {
		//1.- Cooling is sticky until the entity clears the hysteresis band.
		if m.cleared(reference) {
			delete(m.cooling, entityID)
		}
		return Jump{}, false
	}

	//2.- Scan endpoints in registration order and trigger on the first hit.
	for _, endpoint := range m.registry.Endpoints() {
		if reference.Sub(endpoint.Position).Length() >= m.threshold {
			continue
		}
		target := m.selectTarget(endpoint)
		if target == nil {
			continue
		}
		//3.- Offset the arrival along the destination facing so the entity
		// lands clear of the structure it materializes at.
		position := target.Position.Add(target.Facing.Scale(m.exitOffset))
		m.cooling[entityID] = true
		return Jump{From: endpoint, To: target, Position: position}, true
	}
	return Jump{}, false
}

// selectTarget picks the destination among every opposite-role endpoint.
func (m *Machine) selectTarget(from *Endpoint) *Endpoint {
	var candidates []*Endpoint
	for _, endpoint := range m.registry.Endpoints() {
		if endpoint == from || endpoint.Role != from.Role.Opposite() {
			continue
		}
		candidates = append(candidates, endpoint)
	}
	switch len(candidates) {
	case 0:
		return nil
	case 1:
		//1.- Paired structures have one deterministic destination.
		return candidates[0]
	default:
		//2.- Multi-portal groups route uniformly at random over the seeded source.
		return candidates[m.rng.Intn(len(candidates))]
	}
}

func (m *Machine) cleared(reference physics.Vec3) bool {
	limit := m.threshold + ClearanceMargin
	//1.- Every endpoint of both roles must be outside the widened band.
	for _, endpoint := range m.registry.Endpoints() {
		if reference.Sub(endpoint.Position).Length() <= limit {
			return false
		}
	}
	return true
}
