package universe

import (
	"math"

	"multiverse/sim/internal/state"
)

// Topology is the boundary policy a mode applies to every entity each tick,
// after integration and before collision resolution.
type Topology interface {
	// Apply constrains the position in place.
	Apply(position *state.Vector3)
}

// Unbounded leaves positions untouched; the tunnel mode's visual tube is a
// rendering concern, not a simulation constraint.
type Unbounded struct{}

// Apply implements Topology as a no-op.
func (Unbounded) Apply(*state.Vector3) {}

// GroundClamped clamps the vertical coordinate to a minimum height while
// leaving the horizontal plane open.
type GroundClamped struct {
	MinY float64
}

// Apply raises any position that sank below the configured floor.
func (g GroundClamped) Apply(position *state.Vector3) {
	if position == nil {
		return
	}
	if position.Y < g.MinY {
		position.Y = g.MinY
	}
}

// Toroidal wraps the horizontal coordinates modulo the world size so that
// crossing +half reappears at -half and vice versa. The vertical coordinate
// is never wrapped.
type Toroidal struct {
	WorldSize float64
}

// Apply wraps the X and Z coordinates into the [-half, +half) interval.
func (t Toroidal) Apply(position *state.Vector3) {
	if position == nil || t.WorldSize <= 0 {
		return
	}
	position.X = wrapCoordinate(position.X, t.WorldSize)
	position.Z = wrapCoordinate(position.Z, t.WorldSize)
}

func wrapCoordinate(value, size float64) float64 {
	half := size / 2.0
	//1.- Shift into [0, size), wrap with math.Mod, then shift back.
	wrapped := math.Mod(value+half, size)
	if wrapped < 0 {
		wrapped += size
	}
	return wrapped - half
}

// TopologyFor selects the boundary policy for a mode exactly once per mode
// switch so the hot per-tick path never branches on the mode again.
func TopologyFor(mode Mode, tunables Tunables) Topology {
	switch mode {
	case ModeInfinity:
		return Toroidal{WorldSize: tunables.WorldSize}
	case ModePortals:
		return GroundClamped{MinY: tunables.MinHeight}
	default:
		return Unbounded{}
	}
}
