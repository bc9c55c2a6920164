package arena

import (
	"math"
	"math/rand"
	"testing"
)

var testParams = Params{
	Width:       1600,
	Height:      900,
	Radius:      22,
	HeartRadius: 16,
	MaxSpeed:    450,
}

func TestAdvanceDiagonalMatchesAxisSpeed(t *testing.T) {
	dt := 1.0 / 30.0
	start := Vec{X: 800, Y: 450}

	straight := Advance(start, 1, 0, dt, testParams)
	diagonal := Advance(start, 1, 1, dt, testParams)

	wantStep := testParams.MaxSpeed * dt
	gotStraight := math.Hypot(straight.X-start.X, straight.Y-start.Y)
	gotDiagonal := math.Hypot(diagonal.X-start.X, diagonal.Y-start.Y)

	if math.Abs(gotStraight-wantStep) > 1e-9 {
		t.Fatalf("axis step = %v, want %v", gotStraight, wantStep)
	}
	if math.Abs(gotDiagonal-wantStep) > 1e-9 {
		t.Fatalf("diagonal step = %v, want %v", gotDiagonal, wantStep)
	}

	perAxis := wantStep / math.Sqrt2
	if math.Abs((diagonal.X-start.X)-perAxis) > 1e-9 {
		t.Fatalf("diagonal x delta = %v, want %v", diagonal.X-start.X, perAxis)
	}
}

func TestAdvanceZeroIntentHoldsPosition(t *testing.T) {
	start := Vec{X: 100, Y: 100}
	if got := Advance(start, 0, 0, 1.0/30.0, testParams); got != start {
		t.Fatalf("position moved without intent: %+v", got)
	}
}

func TestAdvanceClampsToBounds(t *testing.T) {
	cases := []struct {
		name   string
		start  Vec
		dx, dy int
	}{
		{"left wall", Vec{X: testParams.Radius, Y: 450}, -1, 0},
		{"right wall", Vec{X: testParams.Width - testParams.Radius, Y: 450}, 1, 0},
		{"top wall", Vec{X: 800, Y: testParams.Radius}, 0, -1},
		{"bottom wall", Vec{X: 800, Y: testParams.Height - testParams.Radius}, 0, 1},
		{"corner", Vec{X: testParams.Radius, Y: testParams.Radius}, -1, -1},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Advance(tc.start, tc.dx, tc.dy, 1.0, testParams)
			if got.X < testParams.Radius || got.X > testParams.Width-testParams.Radius {
				t.Fatalf("x escaped bounds: %v", got.X)
			}
			if got.Y < testParams.Radius || got.Y > testParams.Height-testParams.Radius {
				t.Fatalf("y escaped bounds: %v", got.Y)
			}
		})
	}
}

func TestOverlap(t *testing.T) {
	a := Vec{X: 100, Y: 100}
	if !Overlap(a, Vec{X: 100 + 2*testParams.Radius, Y: 100}, testParams.Radius) {
		t.Fatal("touching disks should overlap")
	}
	if Overlap(a, Vec{X: 100 + 2*testParams.Radius + 0.001, Y: 100}, testParams.Radius) {
		t.Fatal("separated disks should not overlap")
	}
}

func TestSeparateResolvesOverlap(t *testing.T) {
	a := Vec{X: 400, Y: 300}
	b := Vec{X: 400 + testParams.Radius, Y: 300}

	sa, sb := Separate(a, b, testParams)
	if Overlap(sa, sb, testParams.Radius) {
		t.Fatalf("still overlapping after separation: %+v %+v", sa, sb)
	}
	if sa.X >= sb.X {
		t.Fatalf("separation flipped the pair: %+v %+v", sa, sb)
	}
}

func TestSeparateCoincidentCentersIsDeterministic(t *testing.T) {
	a := Vec{X: 500, Y: 500}
	b := Vec{X: 500, Y: 500}

	sa1, sb1 := Separate(a, b, testParams)
	sa2, sb2 := Separate(a, b, testParams)

	if sa1 != sa2 || sb1 != sb2 {
		t.Fatal("coincident separation must be deterministic")
	}
	if Overlap(sa1, sb1, testParams.Radius) {
		t.Fatalf("coincident disks still overlap: %+v %+v", sa1, sb1)
	}
	if sa1.Y != 500 || sb1.Y != 500 {
		t.Fatal("coincident separation should push along the x axis")
	}
}

func TestSeparateLeavesDistantPairAlone(t *testing.T) {
	a := Vec{X: 100, Y: 100}
	b := Vec{X: 900, Y: 700}
	sa, sb := Separate(a, b, testParams)
	if sa != a || sb != b {
		t.Fatal("non-overlapping pair must not move")
	}
}

func TestRPSResultCycle(t *testing.T) {
	cases := []struct {
		a, b Role
		want Outcome
	}{
		{RoleRock, RoleScissors, OutcomeWin},
		{RoleScissors, RolePaper, OutcomeWin},
		{RolePaper, RoleRock, OutcomeWin},
		{RoleScissors, RoleRock, OutcomeLose},
		{RolePaper, RoleScissors, OutcomeLose},
		{RoleRock, RolePaper, OutcomeLose},
		{RoleRock, RoleRock, OutcomeTie},
		{RolePaper, RolePaper, OutcomeTie},
		{RoleScissors, RoleScissors, OutcomeTie},
	}
	for _, tc := range cases {
		if got := RPSResult(tc.a, tc.b); got != tc.want {
			t.Fatalf("RPSResult(%s, %s) = %v, want %v", tc.a, tc.b, got, tc.want)
		}
	}
}

func TestAssignRolesIsBijection(t *testing.T) {
	for seed := int64(0); seed < 50; seed++ {
		rng := rand.New(rand.NewSource(seed))
		roles := AssignRoles(rng)
		seen := map[Role]bool{}
		for _, r := range roles {
			if !r.Valid() {
				t.Fatalf("seed %d produced invalid role %q", seed, r)
			}
			if seen[r] {
				t.Fatalf("seed %d assigned role %q twice", seed, r)
			}
			seen[r] = true
		}
	}
}

func TestSpawnTriangleRespectsMargins(t *testing.T) {
	const minPair = 150.0
	const margin = 50.0

	for seed := int64(0); seed < 100; seed++ {
		rng := rand.New(rand.NewSource(seed))
		verts := SpawnTriangle(rng, testParams, minPair, margin)

		for i, v := range verts {
			if v.X < margin+testParams.Radius-1e-9 || v.X > testParams.Width-margin-testParams.Radius+1e-9 {
				t.Fatalf("seed %d vertex %d x=%v violates wall margin", seed, i, v.X)
			}
			if v.Y < margin+testParams.Radius-1e-9 || v.Y > testParams.Height-margin-testParams.Radius+1e-9 {
				t.Fatalf("seed %d vertex %d y=%v violates wall margin", seed, i, v.Y)
			}
		}
		for i := 0; i < 3; i++ {
			for j := i + 1; j < 3; j++ {
				d := math.Hypot(verts[i].X-verts[j].X, verts[i].Y-verts[j].Y)
				if d < minPair-1e-9 {
					t.Fatalf("seed %d pair (%d,%d) distance %v below %v", seed, i, j, d, minPair)
				}
			}
		}
	}
}

func TestSpawnTriangleDeterministicPerSeed(t *testing.T) {
	a := SpawnTriangle(rand.New(rand.NewSource(7)), testParams, 150, 50)
	b := SpawnTriangle(rand.New(rand.NewSource(7)), testParams, 150, 50)
	if a != b {
		t.Fatalf("same seed produced different layouts: %+v vs %+v", a, b)
	}
}
