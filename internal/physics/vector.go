package physics

import (
	"math"

	"multiverse/sim/internal/state"
)

// Vec3 is a lightweight vector helper used by the physics utilities.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

// Add returns the component wise sum of two vectors.
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub returns the difference between two vectors.
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Scale multiplies the vector by a scalar.
func (v Vec3) Scale(scalar float64) Vec3 {
	return Vec3{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Dot returns the scalar dot product of two vectors.
func (v Vec3) Dot(other Vec3) float64 {
	return v.X*other.X + v.Y*other.Y + v.Z*other.Z
}

// Length computes the Euclidean norm of the vector.
func (v Vec3) Length() float64 {
	return math.Sqrt(v.Dot(v))
}

// Normalize produces a unit length vector, panicking if the magnitude is zero.
// Callers resolving near-coincident geometry must substitute a fallback axis
// before normalizing.
func (v Vec3) Normalize() Vec3 {
	length := v.Length()
	if length == 0 {
		panic("cannot normalize zero vector")
	}
	inv := 1.0 / length
	return Vec3{X: v.X * inv, Y: v.Y * inv, Z: v.Z * inv}
}

// Lerp interpolates linearly between v and other by t in [0, 1].
func (v Vec3) Lerp(other Vec3, t float64) Vec3 {
	//1.- Clamp the factor so extrapolation never escapes the segment.
	t = Clamp(t, 0, 1)
	return Vec3{
		X: v.X + (other.X-v.X)*t,
		Y: v.Y + (other.Y-v.Y)*t,
		Z: v.Z + (other.Z-v.Z)*t,
	}
}

// Clamp bounds value to the inclusive [low, high] interval.
func Clamp(value, low, high float64) float64 {
	if value < low {
		return low
	}
	if value > high {
		return high
	}
	return value
}

// WrapAngleDeg normalizes an angle to the [-180, 180) range.
func WrapAngleDeg(angle float64) float64 {
	//1.- Use math.Mod to keep values bounded across many integration steps.
	wrapped := math.Mod(angle+180.0, 360.0)
	if wrapped < 0 {
		wrapped += 360.0
	}
	return wrapped - 180.0
}

// FromStateVec3 converts a broadcast vector into the helper representation.
func FromStateVec3(v state.Vector3) Vec3 {
	return Vec3{X: v.X, Y: v.Y, Z: v.Z}
}

// ToStateVec3 copies the helper representation into the broadcast layout.
func ToStateVec3(v Vec3) state.Vector3 {
	return state.Vector3{X: v.X, Y: v.Y, Z: v.Z}
}
