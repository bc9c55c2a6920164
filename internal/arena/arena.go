// Package arena holds the pure movement and collision math for the play
// space. Every function is deterministic and side-effect free; the match
// runner owns all state.
package arena

import "math"

// Vec is a position or displacement in arena units.
type Vec struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Params fixes the geometry the kernel operates in.
type Params struct {
	Width       float64
	Height      float64
	Radius      float64
	HeartRadius float64
	MaxSpeed    float64
}

const separationEpsilon = 1e-3

// ClampToBounds keeps a disk of Params.Radius fully inside the rectangle.
func (p Params) ClampToBounds(v Vec) Vec {
	return Vec{
		X: clamp(v.X, p.Radius, p.Width-p.Radius),
		Y: clamp(v.Y, p.Radius, p.Height-p.Radius),
	}
}

// Advance moves pos along the integer intent (dx, dy ∈ {-1,0,1}) for dt
// seconds. The intent is normalized first, so diagonal input covers the same
// distance per tick as axis-aligned input, then the result is clamped to the
// arena bounds.
func Advance(pos Vec, dx, dy int, dt float64, p Params) Vec {
	if dx == 0 && dy == 0 {
		return pos
	}
	fx, fy := float64(dx), float64(dy)
	length := math.Hypot(fx, fy)
	fx /= length
	fy /= length

	step := p.MaxSpeed * dt
	pos.X += fx * step
	pos.Y += fy * step
	return p.ClampToBounds(pos)
}

// Overlap reports whether two player disks touch or intersect.
func Overlap(a, b Vec, radius float64) bool {
	return dist(a, b) <= 2*radius
}

// HeartOverlap reports whether a player disk touches a heart pickup.
func HeartOverlap(player, heart Vec, p Params) bool {
	return dist(player, heart) <= p.Radius+p.HeartRadius
}

// Separate pushes two overlapping disks apart along their center line so that
// they no longer intersect, then clamps both back into bounds. Coincident
// centers are pushed apart along the x axis so the result stays
// deterministic.
func Separate(a, b Vec, p Params) (Vec, Vec) {
	dx := a.X - b.X
	dy := a.Y - b.Y
	d := math.Hypot(dx, dy)
	minDist := 2 * p.Radius
	if d > minDist {
		return a, b
	}

	var nx, ny float64
	if d == 0 {
		nx, ny = 1, 0
	} else {
		nx, ny = dx/d, dy/d
	}

	push := (minDist-d)/2 + separationEpsilon
	a.X += nx * push
	a.Y += ny * push
	b.X -= nx * push
	b.Y -= ny * push
	return p.ClampToBounds(a), p.ClampToBounds(b)
}

func dist(a, b Vec) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

func clamp(value, min, max float64) float64 {
	if value < min {
		return min
	}
	if value > max {
		return max
	}
	return value
}
