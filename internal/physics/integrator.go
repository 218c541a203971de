package physics

import (
	"math"

	"multiverse/sim/internal/state"
)

// MoveIntent captures the held movement toggles consumed during one tick.
type MoveIntent struct {
	Forward     bool
	Backward    bool
	StrafeLeft  bool
	StrafeRight bool
	YawLeft     bool
	YawRight    bool
	Up          bool
	Down        bool
}

// Active reports whether any toggle would produce a displacement.
func (i MoveIntent) Active() bool {
	return i.Forward || i.Backward || i.StrafeLeft || i.StrafeRight ||
		i.YawLeft || i.YawRight || i.Up || i.Down
}

// CharacterTuning carries the movement parameters read by the integrator.
type CharacterTuning struct {
	SpeedMps         float64
	YawRateDegPerSec float64
	AllowVertical    bool
}

// Heading converts a yaw angle in degrees into a unit forward vector on the
// ground plane. Yaw zero faces +Z and increases counter-clockwise.
func Heading(yawDeg float64) Vec3 {
	radians := yawDeg * math.Pi / 180.0
	return Vec3{X: math.Sin(radians), Z: math.Cos(radians)}
}

// IntegrateCharacter advances the character from the held commands. Movement
// is command driven, not force driven: each active direction contributes a
// fixed displacement along the current heading for the elapsed step.
func IntegrateCharacter(character *state.CharacterState, intent MoveIntent, tuning CharacterTuning, step float64) {
	if character == nil || step <= 0 {
		return
	}

	//1.- Apply yaw commands first so translation follows the new heading.
	yawDelta := tuning.YawRateDegPerSec * step
	if intent.YawLeft {
		character.YawDeg = WrapAngleDeg(character.YawDeg + yawDelta)
	}
	if intent.YawRight {
		character.YawDeg = WrapAngleDeg(character.YawDeg - yawDelta)
	}

	//2.- Accumulate the displacement from every held direction.
	forward := Heading(character.YawDeg)
	right := Vec3{X: forward.Z, Z: -forward.X}
	distance := tuning.SpeedMps * step
	var displacement Vec3
	if intent.Forward {
		displacement = displacement.Add(forward.Scale(distance))
	}
	if intent.Backward {
		displacement = displacement.Sub(forward.Scale(distance))
	}
	if intent.StrafeRight {
		displacement = displacement.Add(right.Scale(distance))
	}
	if intent.StrafeLeft {
		displacement = displacement.Sub(right.Scale(distance))
	}
	//3.- Vertical travel only exists in modes that explicitly allow it.
	if tuning.AllowVertical {
		if intent.Up {
			displacement.Y += distance
		}
		if intent.Down {
			displacement.Y -= distance
		}
	}

	position := FromStateVec3(character.Position).Add(displacement)
	character.Position = ToStateVec3(position)
}

// ProjectileTuning carries the ballistic parameters read by the integrator.
type ProjectileTuning struct {
	GravityMps2 float64
	GroundY     float64
}

// IntegrateProjectile advances one projectile by a symplectic-Euler step:
// gravity updates velocity first, then velocity updates position. Gravity is
// suppressed once the projectile's lowest point reaches the ground so a
// resting ball does not accumulate downward velocity.
func IntegrateProjectile(projectile *state.ProjectileState, tuning ProjectileTuning, step float64) {
	if projectile == nil || step <= 0 {
		return
	}

	//1.- Pull the projectile toward the ground while it is still airborne.
	if projectile.Position.Y-projectile.Radius > tuning.GroundY {
		projectile.Velocity.Y -= tuning.GravityMps2 * step
	}

	//2.- Advance each axis using the freshly updated velocity.
	projectile.Position.X += projectile.Velocity.X * step
	projectile.Position.Y += projectile.Velocity.Y * step
	projectile.Position.Z += projectile.Velocity.Z * step
}
