package physics

import "math"

// Vec2 is a force, position or velocity on the simulation plane.
// It is a plain value; operations return new vectors.
type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Zero returns the zero vector.
func Zero() Vec2 { return Vec2{} }

func (v Vec2) Add(o Vec2) Vec2 { return Vec2{X: v.X + o.X, Y: v.Y + o.Y} }

func (v Vec2) Sub(o Vec2) Vec2 { return Vec2{X: v.X - o.X, Y: v.Y - o.Y} }

func (v Vec2) Scale(k float64) Vec2 { return Vec2{X: v.X * k, Y: v.Y * k} }

func (v Vec2) Dot(o Vec2) float64 { return v.X*o.X + v.Y*o.Y }

// Norm returns the Euclidean length.
func (v Vec2) Norm() float64 { return math.Hypot(v.X, v.Y) }

// NormSquared avoids the square root on comparison paths.
func (v Vec2) NormSquared() float64 { return v.X*v.X + v.Y*v.Y }

func (v Vec2) Distance(o Vec2) float64 { return math.Hypot(o.X-v.X, o.Y-v.Y) }

// Normalized returns the unit vector in v's direction, or the zero
// vector when v has no direction.
func (v Vec2) Normalized() Vec2 {
	n := v.Norm()
	if n == 0 {
		return Vec2{}
	}
	return Vec2{X: v.X / n, Y: v.Y / n}
}

// Lerp interpolates between v and o; k=0 yields v, k=1 yields o.
func (v Vec2) Lerp(o Vec2, k float64) Vec2 {
	return Vec2{X: v.X + (o.X-v.X)*k, Y: v.Y + (o.Y-v.Y)*k}
}

// Clamped limits the vector's length to max, preserving direction.
func (v Vec2) Clamped(max float64) Vec2 {
	if max <= 0 {
		return Vec2{}
	}
	n := v.Norm()
	if n <= max {
		return v
	}
	return v.Scale(max / n)
}

func (v Vec2) IsZero() bool { return v.X == 0 && v.Y == 0 }
