package physics

import (
	"math"

	"multiverse/sim/internal/state"
)

// coincidentEpsilon guards the separation axis against exactly overlapping
// centers; below it the fallback axis is used so no NaN can reach positions.
const coincidentEpsilon = 1e-9

// fallbackSeparationAxis resolves the degenerate coincident-center case.
var fallbackSeparationAxis = Vec3{X: 1}

// GroundTuning carries the parameters of the inelastic ground contact.
type GroundTuning struct {
	GroundY        float64
	RestSnapSpeed  float64
	BounceDamping  float64
	GroundFriction float64
}

// ResolveProjectileCollisions detects and resolves every overlapping sphere
// pair. Pairs are processed in ascending index order so identical inputs
// always produce identical results. Each resolution separates the centers to
// exactly the sum of radii and, when the pair is approaching, exchanges an
// impulse along the contact normal scaled by the restitution multiplier.
func ResolveProjectileCollisions(ordered []*state.ProjectileState, restitution float64) {
	if restitution <= 0 {
		restitution = 1.0
	}

	for i := 0; i < len(ordered); i++ {
		a := ordered[i]
		if a == nil {
			continue
		}
		for j := i + 1; j < len(ordered); j++ {
			b := ordered[j]
			if b == nil {
				continue
			}
			resolveSpherePair(a, b, restitution)
		}
	}
}

func resolveSpherePair(a, b *state.ProjectileState, restitution float64) {
	delta := FromStateVec3(b.Position).Sub(FromStateVec3(a.Position))
	distance := delta.Length()
	minDistance := a.Radius + b.Radius
	if distance >= minDistance {
		return
	}

	//1.- Substitute a fixed axis when the centers coincide exactly.
	normal := fallbackSeparationAxis
	if distance > coincidentEpsilon {
		normal = delta.Scale(1.0 / distance)
	} else {
		distance = 0
	}

	//2.- Push each center half the overlap apart so no penetration remains.
	half := (minDistance - distance) / 2.0
	aPos := FromStateVec3(a.Position).Sub(normal.Scale(half))
	bPos := FromStateVec3(b.Position).Add(normal.Scale(half))
	a.Position = ToStateVec3(aPos)
	b.Position = ToStateVec3(bPos)

	//3.- Exchange an impulse only when the pair is still approaching.
	relative := FromStateVec3(b.Velocity).Sub(FromStateVec3(a.Velocity))
	closing := relative.Dot(normal)
	if closing >= 0 {
		return
	}
	impulse := -(1.0 + restitution) * closing / 2.0
	aVel := FromStateVec3(a.Velocity).Sub(normal.Scale(impulse))
	bVel := FromStateVec3(b.Velocity).Add(normal.Scale(impulse))
	a.Velocity = ToStateVec3(aVel)
	b.Velocity = ToStateVec3(bVel)
}

// ResolveGroundContact clamps a projectile that penetrated the ground plane
// back onto it, reflecting and damping the vertical velocity and applying
// horizontal friction. Vertical speeds below the snap threshold collapse to
// zero so the ball settles instead of micro-bouncing forever. The return
// value reports whether the projectile is now resting.
func ResolveGroundContact(projectile *state.ProjectileState, tuning GroundTuning) bool {
	if projectile == nil {
		return false
	}

	restHeight := tuning.GroundY + projectile.Radius
	if projectile.Position.Y > restHeight {
		return false
	}

	//1.- Clamp the height so the lowest point rests exactly on the plane.
	projectile.Position.Y = restHeight

	//2.- Reflect the downward velocity, snapping small bounces to rest.
	if projectile.Velocity.Y < 0 {
		if math.Abs(projectile.Velocity.Y) < tuning.RestSnapSpeed {
			projectile.Velocity.Y = 0
		} else {
			projectile.Velocity.Y = -projectile.Velocity.Y * tuning.BounceDamping
		}
	}

	//3.- Bleed horizontal speed to model the inelastic contact.
	projectile.Velocity.X *= tuning.GroundFriction
	projectile.Velocity.Z *= tuning.GroundFriction

	return projectile.Velocity.Y == 0
}
