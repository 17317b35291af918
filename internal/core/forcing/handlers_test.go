package forcing

import (
	"math"
	"testing"

	"github.com/fmukit/fmukit/internal/core/physics"
)

func vecNear(a, b physics.Vec2, eps float64) bool {
	return math.Abs(a.X-b.X) < eps && math.Abs(a.Y-b.Y) < eps
}

func TestConstant(t *testing.T) {
	h := Constant(physics.Vec2{X: 3, Y: -1})
	for _, ts := range []float64{0, 1, 100} {
		if got := h(ts); got != (physics.Vec2{X: 3, Y: -1}) {
			t.Fatalf("h(%v) = %+v", ts, got)
		}
	}
}

func TestCosine(t *testing.T) {
	// The reference profile: 10*cos(pi*t) on both axes.
	h := Cosine(physics.Vec2{X: 10, Y: 10}, math.Pi)

	if got := h(0); !vecNear(got, physics.Vec2{X: 10, Y: 10}, 1e-9) {
		t.Fatalf("h(0) = %+v", got)
	}
	if got := h(0.5); !vecNear(got, physics.Vec2{}, 1e-9) {
		t.Fatalf("h(0.5) = %+v", got)
	}
	if got := h(1); !vecNear(got, physics.Vec2{X: -10, Y: -10}, 1e-9) {
		t.Fatalf("h(1) = %+v", got)
	}
	if got := h(2); !vecNear(got, physics.Vec2{X: 10, Y: 10}, 1e-9) {
		t.Fatalf("h(2) = %+v", got)
	}
}

func TestSinusoid(t *testing.T) {
	h := Sinusoid(physics.Vec2{X: 4}, 2*math.Pi, math.Pi/2)
	// sin(phase) at t=0 turns the phase-shifted sinusoid into a cosine.
	if got := h(0); !vecNear(got, physics.Vec2{X: 4}, 1e-9) {
		t.Fatalf("h(0) = %+v", got)
	}
	if got := h(0.25); !vecNear(got, physics.Vec2{}, 1e-9) {
		t.Fatalf("h(0.25) = %+v", got)
	}
}

func TestRamp(t *testing.T) {
	h := Ramp(physics.Vec2{X: 8}, 2)

	if got := h(-1); !got.IsZero() {
		t.Fatalf("h(-1) = %+v", got)
	}
	if got := h(1); !vecNear(got, physics.Vec2{X: 4}, 1e-9) {
		t.Fatalf("h(1) = %+v", got)
	}
	if got := h(5); !vecNear(got, physics.Vec2{X: 8}, 1e-9) {
		t.Fatalf("h(5) = %+v", got)
	}

	if got := Ramp(physics.Vec2{X: 8}, 0)(0); !vecNear(got, physics.Vec2{X: 8}, 1e-9) {
		t.Fatalf("zero-rise ramp = %+v", got)
	}
}

func TestSum(t *testing.T) {
	h := Sum(
		Constant(physics.Vec2{X: 1}),
		nil,
		Constant(physics.Vec2{X: 2, Y: 3}),
	)
	if got := h(0); !vecNear(got, physics.Vec2{X: 3, Y: 3}, 1e-9) {
		t.Fatalf("sum = %+v", got)
	}

	if got := Sum()(1); !got.IsZero() {
		t.Fatalf("empty sum = %+v", got)
	}
}

func TestScaleAndClamp(t *testing.T) {
	base := Constant(physics.Vec2{X: 3, Y: 4})

	if got := Scale(base, 2)(0); !vecNear(got, physics.Vec2{X: 6, Y: 8}, 1e-9) {
		t.Fatalf("scale = %+v", got)
	}
	if got := Scale(nil, 2)(0); !got.IsZero() {
		t.Fatalf("scale nil = %+v", got)
	}

	clamped := Clamp(base, 2.5)(0)
	if math.Abs(clamped.Norm()-2.5) > 1e-9 {
		t.Fatalf("clamp norm = %v", clamped.Norm())
	}
	if got := Clamp(nil, 1)(0); !got.IsZero() {
		t.Fatalf("clamp nil = %+v", got)
	}
}
