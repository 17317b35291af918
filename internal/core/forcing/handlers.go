package forcing

import (
	"math"

	"github.com/fmukit/fmukit/internal/core/physics"
)

// Handler constructors for common force profiles. They compose: e.g.
// Sum(Constant(gravity), Cosine(amp, omega)) drives an instance with a
// constant field plus an oscillation.

// Constant returns a handler that applies f regardless of time.
func Constant(f physics.Vec2) Handler {
	return func(float64) physics.Vec2 { return f }
}

// Cosine returns amp scaled by cos(omega*t) on both axes.
func Cosine(amp physics.Vec2, omega float64) Handler {
	return func(t float64) physics.Vec2 {
		return amp.Scale(math.Cos(omega * t))
	}
}

// Sinusoid returns amp scaled by sin(omega*t + phase) on both axes.
func Sinusoid(amp physics.Vec2, omega, phase float64) Handler {
	return func(t float64) physics.Vec2 {
		return amp.Scale(math.Sin(omega*t + phase))
	}
}

// Ramp grows linearly from zero toward f, reaching it at time rise and
// holding it afterwards. A non-positive rise is an immediate Constant.
func Ramp(f physics.Vec2, rise float64) Handler {
	if rise <= 0 {
		return Constant(f)
	}
	return func(t float64) physics.Vec2 {
		switch {
		case t <= 0:
			return physics.Vec2{}
		case t >= rise:
			return f
		default:
			return f.Scale(t / rise)
		}
	}
}

// Sum combines handlers by vector addition. Nil entries are skipped.
func Sum(handlers ...Handler) Handler {
	return func(t float64) physics.Vec2 {
		var total physics.Vec2
		for _, h := range handlers {
			if h == nil {
				continue
			}
			total = total.Add(h(t))
		}
		return total
	}
}

// Scale multiplies h's output by k.
func Scale(h Handler, k float64) Handler {
	if h == nil {
		return Constant(physics.Vec2{})
	}
	return func(t float64) physics.Vec2 {
		return h(t).Scale(k)
	}
}

// Clamp limits the magnitude of h's output to max.
func Clamp(h Handler, max float64) Handler {
	if h == nil {
		return Constant(physics.Vec2{})
	}
	return func(t float64) physics.Vec2 {
		return h(t).Clamped(max)
	}
}
