package arena

import (
	"math"
	"math/rand"
)

const spawnAttempts = 64

// SpawnTriangle samples three spawn positions forming a near-equilateral
// triangle. Each vertex keeps at least minPairDist from the other two and
// wallMargin from every wall. The result is fully determined by the provided
// RNG, so a seeded match always spawns the same layout.
func SpawnTriangle(rng *rand.Rand, p Params, minPairDist, wallMargin float64) [3]Vec {
	// Pairwise distance of an equilateral triangle inscribed in a circle of
	// radius r is r*sqrt(3).
	minCircum := minPairDist / math.Sqrt(3)
	maxCircum := math.Min(p.Width, p.Height)/2 - wallMargin - p.Radius
	if maxCircum < minCircum {
		maxCircum = minCircum
	}

	for attempt := 0; attempt < spawnAttempts; attempt++ {
		r := minCircum + rng.Float64()*(maxCircum-minCircum)
		cx := wallMargin + p.Radius + r + rng.Float64()*(p.Width-2*(wallMargin+p.Radius+r))
		cy := wallMargin + p.Radius + r + rng.Float64()*(p.Height-2*(wallMargin+p.Radius+r))
		phase := rng.Float64() * 2 * math.Pi

		var verts [3]Vec
		ok := true
		for i := 0; i < 3; i++ {
			angle := phase + float64(i)*2*math.Pi/3
			v := Vec{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)}
			if v.X < wallMargin+p.Radius || v.X > p.Width-wallMargin-p.Radius ||
				v.Y < wallMargin+p.Radius || v.Y > p.Height-wallMargin-p.Radius {
				ok = false
				break
			}
			verts[i] = v
		}
		if ok {
			return verts
		}
	}

	// Centered fallback keeps determinism if the arena is too cramped for the
	// sampled layouts.
	cx, cy := p.Width/2, p.Height/2
	r := minCircum
	var verts [3]Vec
	for i := 0; i < 3; i++ {
		angle := float64(i) * 2 * math.Pi / 3
		verts[i] = p.ClampToBounds(Vec{X: cx + r*math.Cos(angle), Y: cy + r*math.Sin(angle)})
	}
	return verts
}

// AssignRoles returns a uniformly random bijection of the three roles, as a
// permutation index into Roles.
func AssignRoles(rng *rand.Rand) [3]Role {
	perm := rng.Perm(3)
	var out [3]Role
	for i, p := range perm {
		out[i] = Roles[p]
	}
	return out
}
