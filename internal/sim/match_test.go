package sim

import (
	"reflect"
	"testing"

	"triad-arena/server/internal/arena"
	"triad-arena/server/internal/proto"
)

func testConfig() Config {
	return Config{
		Params: arena.Params{
			Width:       1600,
			Height:      900,
			Radius:      22,
			HeartRadius: 16,
			MaxSpeed:    450,
		},
		TickRate:      30,
		SnapshotEvery: 2,
		WinHearts:     2,
		FreezeTicks:   90,
	}
}

func threePlayers() []Participant {
	return []Participant{
		{UserID: "alice", Role: arena.RoleRock, Spawn: arena.Vec{X: 200, Y: 450}},
		{UserID: "bob", Role: arena.RoleScissors, Spawn: arena.Vec{X: 800, Y: 450}},
		{UserID: "carol", Role: arena.RolePaper, Spawn: arena.Vec{X: 1400, Y: 450}},
	}
}

func eventsOfType[T any](events []any) []T {
	var out []T
	for _, e := range events {
		if typed, ok := e.(T); ok {
			out = append(out, typed)
		}
	}
	return out
}

// stepUntil drives the match with no inputs until pred returns true or the
// tick budget runs out, collecting every event.
func stepUntil(t *testing.T, m *Match, budget int, pred func(StepResult) bool) []any {
	t.Helper()
	var all []any
	for i := 0; i < budget; i++ {
		result := m.Step(nil)
		all = append(all, result.Events...)
		if pred(result) {
			return all
		}
	}
	t.Fatalf("condition not reached within %d ticks", budget)
	return nil
}

func TestEliminationOnContact(t *testing.T) {
	m := NewMatch("m1", 7, []Participant{
		{UserID: "alice", Role: arena.RoleRock, Spawn: arena.Vec{X: 400, Y: 450}},
		{UserID: "bob", Role: arena.RoleScissors, Spawn: arena.Vec{X: 430, Y: 450}},
		{UserID: "carol", Role: arena.RolePaper, Spawn: arena.Vec{X: 1400, Y: 100}},
	}, testConfig())

	result := m.Step(nil)
	elims := eventsOfType[proto.Elimination](result.Events)
	if len(elims) != 1 {
		t.Fatalf("got %d eliminations, want 1", len(elims))
	}
	if elims[0].EliminatedID != "bob" || elims[0].WinnerID != "alice" {
		t.Fatalf("elimination = %+v, want bob eliminated by alice", elims[0])
	}
	if m.Player("bob").Alive {
		t.Fatal("bob should be dead")
	}
	// 3 → 2 enters the freeze in the same tick, after the elimination.
	if m.Phase() != PhaseFreeze {
		t.Fatalf("phase = %v, want freeze", m.Phase())
	}
	starts := eventsOfType[proto.ShowdownStart](result.Events)
	if len(starts) != 1 {
		t.Fatalf("got %d showdown starts, want 1", len(starts))
	}
	if starts[0].FreezeDuration != 3.0 {
		t.Fatalf("freeze duration = %v, want 3s", starts[0].FreezeDuration)
	}
}

func TestTieBouncesWithoutElimination(t *testing.T) {
	m := NewMatch("m1", 7, []Participant{
		{UserID: "alice", Role: arena.RoleRock, Spawn: arena.Vec{X: 400, Y: 450}},
		{UserID: "bob", Role: arena.RoleRock, Spawn: arena.Vec{X: 420, Y: 450}},
		{UserID: "carol", Role: arena.RolePaper, Spawn: arena.Vec{X: 1400, Y: 100}},
	}, testConfig())

	result := m.Step(nil)
	if n := len(eventsOfType[proto.Elimination](result.Events)); n != 0 {
		t.Fatalf("tie produced %d eliminations", n)
	}
	bounces := eventsOfType[proto.Bounce](result.Events)
	if len(bounces) != 1 {
		t.Fatalf("got %d bounces, want 1", len(bounces))
	}
	a, b := m.Player("alice"), m.Player("bob")
	if arena.Overlap(a.Pos, b.Pos, m.cfg.Params.Radius) {
		t.Fatal("players still overlapping after separation")
	}
}

func TestFreezeHoldsPositionsThenSpawnsHearts(t *testing.T) {
	cfg := testConfig()
	m := NewMatch("m1", 7, threePlayers(), cfg)
	m.Forfeit("bob")

	// First step notices 2 alive and freezes.
	result := m.Step(nil)
	if m.Phase() != PhaseFreeze {
		t.Fatalf("phase = %v, want freeze", m.Phase())
	}
	if len(eventsOfType[proto.ShowdownStart](result.Events)) != 1 {
		t.Fatal("missing SHOWDOWN_START")
	}

	before := m.Player("alice").Pos
	var ready []proto.ShowdownReady
	for i := 0; i < cfg.FreezeTicks; i++ {
		result = m.Step(map[string]Input{"alice": {DX: 1, Sequence: uint64(i + 1)}})
		ready = append(ready, eventsOfType[proto.ShowdownReady](result.Events)...)
	}
	if m.Player("alice").Pos != before {
		t.Fatal("frozen player moved during the freeze")
	}
	if len(ready) != 1 {
		t.Fatalf("got %d SHOWDOWN_READY, want exactly 1", len(ready))
	}
	if m.Phase() != PhaseShowdown {
		t.Fatalf("phase = %v, want showdown", m.Phase())
	}

	want := DefaultHeartLayout()
	if len(ready[0].Hearts) != len(want) {
		t.Fatalf("got %d hearts, want %d", len(ready[0].Hearts), len(want))
	}
	for i, h := range ready[0].Hearts {
		if h.X != want[i].X || h.Y != want[i].Y {
			t.Fatalf("heart %d at (%v,%v), want (%v,%v)", i, h.X, h.Y, want[i].X, want[i].Y)
		}
	}
}

func TestShowdownCollisionsNeverEliminate(t *testing.T) {
	cfg := testConfig()
	cfg.FreezeTicks = 1
	m := NewMatch("m1", 7, []Participant{
		{UserID: "alice", Role: arena.RoleRock, Spawn: arena.Vec{X: 400, Y: 450}},
		{UserID: "bob", Role: arena.RoleScissors, Spawn: arena.Vec{X: 800, Y: 450}},
		{UserID: "carol", Role: arena.RolePaper, Spawn: arena.Vec{X: 1400, Y: 100}},
	}, cfg)
	m.Forfeit("carol")
	m.Step(nil) // freeze
	m.Step(nil) // showdown ready

	// Walk rock into scissors; in showdown this bounces, never eliminates.
	m.Player("bob").Pos = arena.Vec{X: 430, Y: 450}
	result := m.Step(nil)
	if n := len(eventsOfType[proto.Elimination](result.Events)); n != 0 {
		t.Fatalf("showdown produced %d eliminations", n)
	}
	if len(eventsOfType[proto.Bounce](result.Events)) != 1 {
		t.Fatal("expected a bounce")
	}
}

func TestHeartCaptureWinsAtThreshold(t *testing.T) {
	cfg := testConfig()
	cfg.FreezeTicks = 1
	m := NewMatch("m1", 7, threePlayers(), cfg)
	m.Forfeit("bob")
	m.Step(nil)
	m.Step(nil)

	hearts := DefaultHeartLayout()

	// Carol grabs the first heart.
	m.Player("carol").Pos = hearts[0]
	result := m.Step(nil)
	captured := eventsOfType[proto.HeartCaptured](result.Events)
	if len(captured) != 1 || captured[0].PlayerID != "carol" || captured[0].PlayerScore != 1 {
		t.Fatalf("capture = %+v", captured)
	}
	if result.Outcome != nil {
		t.Fatal("one heart should not end the match")
	}

	// Standing on a captured heart does nothing.
	result = m.Step(nil)
	if n := len(eventsOfType[proto.HeartCaptured](result.Events)); n != 0 {
		t.Fatalf("captured heart captured again %d times", n)
	}

	// Second heart ends it.
	m.Player("carol").Pos = hearts[1]
	result = m.Step(nil)
	if result.Outcome == nil || result.Outcome.WinnerID != "carol" {
		t.Fatalf("outcome = %+v, want carol wins", result.Outcome)
	}
	if m.Phase() != PhaseOver {
		t.Fatalf("phase = %v, want over", m.Phase())
	}
}

func TestForfeitLeavesLastAliveWinner(t *testing.T) {
	m := NewMatch("m1", 7, threePlayers(), testConfig())
	m.Forfeit("bob")
	m.Forfeit("carol")

	result := m.Step(nil)
	if result.Outcome == nil || result.Outcome.WinnerID != "alice" {
		t.Fatalf("outcome = %+v, want alice wins", result.Outcome)
	}
}

func TestVoidWhenEveryoneGone(t *testing.T) {
	m := NewMatch("m1", 7, threePlayers(), testConfig())
	m.SetConnected("alice", false)
	m.SetConnected("bob", false)
	m.SetConnected("carol", false)

	result := m.Step(nil)
	if result.Outcome == nil || !result.Outcome.Voided {
		t.Fatalf("outcome = %+v, want voided", result.Outcome)
	}
}

func TestSnapshotCadenceAndMonotonicTicks(t *testing.T) {
	m := NewMatch("m1", 7, threePlayers(), testConfig())

	var ticks []uint64
	for i := 0; i < 10; i++ {
		result := m.Step(nil)
		if result.Snapshot != nil {
			ticks = append(ticks, result.Snapshot.Tick)
		}
	}
	if len(ticks) != 5 {
		t.Fatalf("10 ticks produced %d snapshots, want 5", len(ticks))
	}
	for i := 1; i < len(ticks); i++ {
		if ticks[i] <= ticks[i-1] {
			t.Fatalf("snapshot ticks not strictly increasing: %v", ticks)
		}
	}
}

func TestDisconnectedPositionFrozenAndInputsDropped(t *testing.T) {
	m := NewMatch("m1", 7, threePlayers(), testConfig())
	m.SetConnected("alice", false)
	before := m.Player("alice").Pos

	m.Step(map[string]Input{"alice": {DX: 1, DY: 0, Sequence: 1}})
	if m.Player("alice").Pos != before {
		t.Fatal("disconnected player moved")
	}
	if m.Player("alice").LastSeq != 0 {
		t.Fatal("input from a disconnected player was applied")
	}
}

func TestStaleSequenceDiscarded(t *testing.T) {
	m := NewMatch("m1", 7, threePlayers(), testConfig())

	m.Step(map[string]Input{"alice": {DX: 1, Sequence: 10}})
	moved := m.Player("alice").Pos

	// An older sequence must not override the retained intent.
	m.Step(map[string]Input{"alice": {DX: -1, Sequence: 5}})
	after := m.Player("alice").Pos
	if after.X <= moved.X {
		t.Fatalf("stale input reversed movement: %v -> %v", moved, after)
	}
	if m.Player("alice").LastSeq != 10 {
		t.Fatalf("last sequence = %d, want 10", m.Player("alice").LastSeq)
	}
}

func TestPositionsStayInBounds(t *testing.T) {
	cfg := testConfig()
	m := NewMatch("m1", 7, threePlayers(), cfg)

	inputs := map[string]Input{}
	for i := 0; i < 300; i++ {
		for j, id := range []string{"alice", "bob", "carol"} {
			inputs[id] = Input{DX: 1, DY: (i+j)%3 - 1, Sequence: uint64(i + 1)}
		}
		m.Step(inputs)
		for _, p := range m.players {
			if p.Pos.X < cfg.Params.Radius || p.Pos.X > cfg.Params.Width-cfg.Params.Radius ||
				p.Pos.Y < cfg.Params.Radius || p.Pos.Y > cfg.Params.Height-cfg.Params.Radius {
				t.Fatalf("tick %d: %s out of bounds at %v", i, p.UserID, p.Pos)
			}
		}
	}
}

func TestStepIsDeterministic(t *testing.T) {
	run := func() []any {
		cfg := testConfig()
		cfg.FreezeTicks = 3
		cfg.RandomHearts = true
		m := NewMatch("m1", 99, threePlayers(), cfg)
		var all []any
		for i := 0; i < 200; i++ {
			inputs := map[string]Input{
				"alice": {DX: 1, Sequence: uint64(i + 1)},
				"bob":   {DX: -1, Sequence: uint64(i + 1)},
				"carol": {DY: 1, Sequence: uint64(i + 1)},
			}
			result := m.Step(inputs)
			all = append(all, result.Events...)
			if result.Snapshot != nil {
				all = append(all, *result.Snapshot)
			}
			if result.Outcome != nil {
				all = append(all, *result.Outcome)
				break
			}
		}
		return all
	}

	first, second := run(), run()
	if !reflect.DeepEqual(first, second) {
		t.Fatal("identical seed and inputs produced different event streams")
	}
}

func TestReconnectStateCarriesRoleAndTick(t *testing.T) {
	cfg := testConfig()
	cfg.FreezeTicks = 1
	m := NewMatch("m1", 7, threePlayers(), cfg)
	m.Forfeit("bob")
	m.Step(nil)
	m.Step(nil)

	state := m.ReconnectState("carol")
	if state.MatchID != "m1" || state.Role != "paper" {
		t.Fatalf("state = %+v", state)
	}
	if state.Tick != m.Tick() {
		t.Fatalf("state tick = %d, match tick = %d", state.Tick, m.Tick())
	}
	if len(state.Players) != 3 || len(state.Hearts) != 3 {
		t.Fatalf("players=%d hearts=%d", len(state.Players), len(state.Hearts))
	}
}
