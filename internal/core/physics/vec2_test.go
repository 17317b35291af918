package physics

import (
	"math"
	"testing"
)

func almostEqual(a, b float64) bool {
	return math.Abs(a-b) < 1e-12
}

func TestVec2Arithmetic(t *testing.T) {
	a := Vec2{X: 3, Y: 4}
	b := Vec2{X: -1, Y: 2}

	if got := a.Add(b); got != (Vec2{X: 2, Y: 6}) {
		t.Fatalf("Add = %+v", got)
	}
	if got := a.Sub(b); got != (Vec2{X: 4, Y: 2}) {
		t.Fatalf("Sub = %+v", got)
	}
	if got := a.Scale(2); got != (Vec2{X: 6, Y: 8}) {
		t.Fatalf("Scale = %+v", got)
	}
	if got := a.Dot(b); got != 5 {
		t.Fatalf("Dot = %v", got)
	}
}

func TestVec2Norm(t *testing.T) {
	v := Vec2{X: 3, Y: 4}
	if got := v.Norm(); !almostEqual(got, 5) {
		t.Fatalf("Norm = %v", got)
	}
	if got := v.NormSquared(); !almostEqual(got, 25) {
		t.Fatalf("NormSquared = %v", got)
	}

	u := v.Normalized()
	if !almostEqual(u.Norm(), 1) {
		t.Fatalf("Normalized length = %v", u.Norm())
	}
	if got := Zero().Normalized(); !got.IsZero() {
		t.Fatalf("Normalized zero = %+v", got)
	}
}

func TestVec2Distance(t *testing.T) {
	a := Vec2{X: 1, Y: 1}
	b := Vec2{X: 4, Y: 5}
	if got := a.Distance(b); !almostEqual(got, 5) {
		t.Fatalf("Distance = %v", got)
	}
}

func TestVec2Lerp(t *testing.T) {
	a := Vec2{X: 0, Y: 0}
	b := Vec2{X: 10, Y: -10}

	if got := a.Lerp(b, 0); got != a {
		t.Fatalf("Lerp(0) = %+v", got)
	}
	if got := a.Lerp(b, 1); got != b {
		t.Fatalf("Lerp(1) = %+v", got)
	}
	if got := a.Lerp(b, 0.5); got != (Vec2{X: 5, Y: -5}) {
		t.Fatalf("Lerp(0.5) = %+v", got)
	}
}

func TestVec2Clamped(t *testing.T) {
	v := Vec2{X: 6, Y: 8}

	got := v.Clamped(5)
	if !almostEqual(got.Norm(), 5) {
		t.Fatalf("Clamped length = %v", got.Norm())
	}
	if !almostEqual(got.X/got.Y, v.X/v.Y) {
		t.Fatalf("Clamped changed direction: %+v", got)
	}

	if got := v.Clamped(20); got != v {
		t.Fatalf("Clamped below max changed vector: %+v", got)
	}
	if got := v.Clamped(0); !got.IsZero() {
		t.Fatalf("Clamped(0) = %+v", got)
	}
}
