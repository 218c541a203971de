package physics

import (
	"math"
	"testing"
)

func TestVec3Arithmetic(t *testing.T) {
	a := Vec3{X: 1, Y: 2, Z: 3}
	b := Vec3{X: -4, Y: 0.5, Z: 2}

	sum := a.Add(b)
	if sum != (Vec3{X: -3, Y: 2.5, Z: 5}) {
		t.Fatalf("unexpected sum: %+v", sum)
	}
	diff := a.Sub(b)
	if diff != (Vec3{X: 5, Y: 1.5, Z: 1}) {
		t.Fatalf("unexpected difference: %+v", diff)
	}
	if got := a.Scale(2).Dot(b); got != -8+2+12 {
		t.Fatalf("unexpected dot product: %v", got)
	}
}

func TestVec3NormalizeUnitLength(t *testing.T) {
	v := Vec3{X: 3, Y: 4, Z: 12}
	unit := v.Normalize()
	if math.Abs(unit.Length()-1) > 1e-12 {
		t.Fatalf("expected unit length, got %v", unit.Length())
	}
}

func TestVec3NormalizeZeroPanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic for zero vector")
		}
	}()
	Vec3{}.Normalize()
}

func TestWrapAngleDegBounds(t *testing.T) {
	cases := []struct {
		in, want float64
	}{
		{0, 0},
		{180, -180},
		{-180, -180},
		{190, -170},
		{-190, 170},
		{720, 0},
	}
	for _, tc := range cases {
		if got := WrapAngleDeg(tc.in); math.Abs(got-tc.want) > 1e-9 {
			t.Fatalf("WrapAngleDeg(%v) = %v, want %v", tc.in, got, tc.want)
		}
	}
}

func TestClamp(t *testing.T) {
	if got := Clamp(5, 0, 1); got != 1 {
		t.Fatalf("expected clamp to upper bound, got %v", got)
	}
	if got := Clamp(-5, 0, 1); got != 0 {
		t.Fatalf("expected clamp to lower bound, got %v", got)
	}
	if got := Clamp(0.25, 0, 1); got != 0.25 {
		t.Fatalf("expected passthrough, got %v", got)
	}
}
