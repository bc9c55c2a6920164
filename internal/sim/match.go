// Package sim is the authoritative match simulation. A Match is a pure
// deterministic state machine: given the seed, the per-tick inputs, and the
// tick counter it always produces the same events. The Runner wraps a Match
// with the real-time loop and the fan-out.
package sim

import (
	"math/rand"
	"sort"

	"triad-arena/server/internal/arena"
	"triad-arena/server/internal/proto"
)

// Phase tracks match progression.
type Phase int

const (
	PhaseBattle Phase = iota
	PhaseFreeze
	PhaseShowdown
	PhaseOver
)

// Input is one participant's intent for a tick.
type Input struct {
	DX       int
	DY       int
	Sequence uint64
	Frozen   bool
}

// Participant seeds one player slot.
type Participant struct {
	UserID string
	Role   arena.Role
	Spawn  arena.Vec
}

// Player is the in-match view of a participant.
type Player struct {
	UserID    string
	Role      arena.Role
	Pos       arena.Vec
	Alive     bool
	Connected bool
	Frozen    bool
	LastSeq   uint64
	Hearts    int

	intentX int
	intentY int
}

// Heart is a collectible during showdown.
type Heart struct {
	ID       int
	Pos      arena.Vec
	Captured bool
	OwnerID  string
}

// Outcome is the terminal result.
type Outcome struct {
	WinnerID string
	Voided   bool
	EndTick  uint64
}

// Config fixes the rules of one match. FreezeTicks and heart layout derive
// from the process configuration at construction.
type Config struct {
	Params        arena.Params
	TickRate      int
	SnapshotEvery int
	WinHearts     int
	FreezeTicks   int
	HeartLayout   []arena.Vec
	RandomHearts  bool
}

// DefaultHeartLayout is the fixed production heart placement.
func DefaultHeartLayout() []arena.Vec {
	return []arena.Vec{{X: 400, Y: 300}, {X: 800, Y: 600}, {X: 1200, Y: 300}}
}

// StepResult carries everything one tick produced, already in delivery
// order: eliminations and bounces, then showdown transitions, then heart
// captures, then the snapshot.
type StepResult struct {
	Events   []any
	Snapshot *proto.Snapshot
	Outcome  *Outcome
}

// Match is the simulation state. Not safe for concurrent use; the Runner
// serializes access.
type Match struct {
	ID   string
	Seed int64

	cfg     Config
	rng     *rand.Rand
	tick    uint64
	phase   Phase
	players []*Player // canonical order by user id
	hearts  []Heart

	freezeRemaining int
	outcome         *Outcome
}

// NewMatch builds a match from countdown-completion state. Participants may
// arrive in any order; the canonical pair-processing order is by user id.
func NewMatch(id string, seed int64, participants []Participant, cfg Config) *Match {
	if len(cfg.HeartLayout) == 0 {
		cfg.HeartLayout = DefaultHeartLayout()
	}
	players := make([]*Player, 0, len(participants))
	for _, p := range participants {
		players = append(players, &Player{
			UserID:    p.UserID,
			Role:      p.Role,
			Pos:       p.Spawn,
			Alive:     true,
			Connected: true,
		})
	}
	sort.Slice(players, func(i, j int) bool { return players[i].UserID < players[j].UserID })
	return &Match{
		ID:      id,
		Seed:    seed,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(seed)),
		players: players,
	}
}

// Tick returns the current tick counter.
func (m *Match) Tick() uint64 { return m.tick }

// Phase returns the current phase.
func (m *Match) Phase() Phase { return m.phase }

// Player returns the state for a user id.
func (m *Match) Player(userID string) *Player {
	for _, p := range m.players {
		if p.UserID == userID {
			return p
		}
	}
	return nil
}

// SetConnected flips a participant's link status. A disconnected player's
// position freezes and their inputs are dropped until reconnect.
func (m *Match) SetConnected(userID string, connected bool) {
	if p := m.Player(userID); p != nil {
		p.Connected = connected
	}
}

// Forfeit eliminates a participant without an RPS check (grace expiry).
func (m *Match) Forfeit(userID string) {
	if p := m.Player(userID); p != nil {
		p.Alive = false
	}
}

// Step advances the simulation one tick. inputs holds at most one input per
// user, already reduced to the greatest sequence number by the caller.
func (m *Match) Step(inputs map[string]Input) StepResult {
	if m.phase == PhaseOver {
		return StepResult{Outcome: m.outcome}
	}
	m.tick++
	var result StepResult

	m.ingest(inputs)
	m.advance()
	result.Events = append(result.Events, m.resolveCollisions()...)
	result.Events = append(result.Events, m.progressShowdown()...)
	result.Events = append(result.Events, m.captureHearts()...)
	m.settleOutcome(&result)

	if m.phase != PhaseOver && m.cfg.SnapshotEvery > 0 && m.tick%uint64(m.cfg.SnapshotEvery) == 0 {
		snapshot := m.buildSnapshot()
		result.Snapshot = &snapshot
	}
	return result
}

// ingest applies each participant's freshest input. Stale sequences are
// discarded; inputs from disconnected players are dropped.
func (m *Match) ingest(inputs map[string]Input) {
	for _, p := range m.players {
		in, ok := inputs[p.UserID]
		if !ok || !p.Connected || !p.Alive {
			continue
		}
		if in.Sequence < p.LastSeq {
			continue
		}
		p.LastSeq = in.Sequence
		p.intentX = clampIntent(in.DX)
		p.intentY = clampIntent(in.DY)
		if m.phase == PhaseShowdown {
			p.Frozen = in.Frozen
		}
	}
}

func (m *Match) advance() {
	if m.phase == PhaseFreeze {
		return
	}
	dt := 1.0 / float64(m.cfg.TickRate)
	for _, p := range m.players {
		if !p.Alive || !p.Connected || p.Frozen {
			continue
		}
		p.Pos = arena.Advance(p.Pos, p.intentX, p.intentY, dt, m.cfg.Params)
	}
}

// resolveCollisions walks alive pairs in canonical order. Outside showdown an
// overlap settles by RPS; ties and showdown overlaps bounce apart.
func (m *Match) resolveCollisions() []any {
	var events []any
	for i := 0; i < len(m.players); i++ {
		for j := i + 1; j < len(m.players); j++ {
			a, b := m.players[i], m.players[j]
			if !a.Alive || !b.Alive || !arena.Overlap(a.Pos, b.Pos, m.cfg.Params.Radius) {
				continue
			}
			if m.phase == PhaseBattle {
				switch arena.RPSResult(a.Role, b.Role) {
				case arena.OutcomeWin:
					b.Alive = false
					events = append(events, proto.Elimination{
						Type: proto.TypeElimination, EliminatedID: b.UserID, WinnerID: a.UserID,
					})
					continue
				case arena.OutcomeLose:
					a.Alive = false
					events = append(events, proto.Elimination{
						Type: proto.TypeElimination, EliminatedID: a.UserID, WinnerID: b.UserID,
					})
					continue
				}
			}
			a.Pos, b.Pos = arena.Separate(a.Pos, b.Pos, m.cfg.Params)
			events = append(events, proto.Bounce{
				Type: proto.TypeBounce, Player1ID: a.UserID, Player2ID: b.UserID,
			})
		}
	}
	return events
}

// progressShowdown handles the battle→freeze→showdown transitions.
func (m *Match) progressShowdown() []any {
	var events []any
	switch m.phase {
	case PhaseBattle:
		if m.aliveCount() == 2 {
			m.phase = PhaseFreeze
			m.freezeRemaining = m.cfg.FreezeTicks
			for _, p := range m.players {
				if p.Alive {
					p.Frozen = true
				}
			}
			events = append(events, proto.ShowdownStart{
				Type:           proto.TypeShowdownStart,
				FreezeDuration: float64(m.cfg.FreezeTicks) / float64(m.cfg.TickRate),
			})
		}
	case PhaseFreeze:
		m.freezeRemaining--
		if m.freezeRemaining <= 0 {
			m.phase = PhaseShowdown
			for _, p := range m.players {
				p.Frozen = false
			}
			m.spawnHearts()
			events = append(events, proto.ShowdownReady{
				Type:   proto.TypeShowdownReady,
				Hearts: m.heartViews(),
			})
		}
	}
	return events
}

func (m *Match) spawnHearts() {
	layout := m.cfg.HeartLayout
	if m.cfg.RandomHearts {
		layout = make([]arena.Vec, len(m.cfg.HeartLayout))
		p := m.cfg.Params
		for i := range layout {
			layout[i] = arena.Vec{
				X: p.HeartRadius + m.rng.Float64()*(p.Width-2*p.HeartRadius),
				Y: p.HeartRadius + m.rng.Float64()*(p.Height-2*p.HeartRadius),
			}
		}
	}
	m.hearts = make([]Heart, len(layout))
	for i, pos := range layout {
		m.hearts[i] = Heart{ID: i + 1, Pos: pos}
	}
}

func (m *Match) captureHearts() []any {
	if m.phase != PhaseShowdown {
		return nil
	}
	var events []any
	for hi := range m.hearts {
		heart := &m.hearts[hi]
		if heart.Captured {
			continue
		}
		for _, p := range m.players {
			if !p.Alive || !p.Connected {
				continue
			}
			if !arena.HeartOverlap(p.Pos, heart.Pos, m.cfg.Params) {
				continue
			}
			heart.Captured = true
			heart.OwnerID = p.UserID
			p.Hearts++
			events = append(events, proto.HeartCaptured{
				Type:        proto.TypeHeartCaptured,
				PlayerID:    p.UserID,
				HeartID:     heart.ID,
				PlayerScore: p.Hearts,
			})
			break
		}
	}
	return events
}

// settleOutcome checks the terminal conditions after this tick's events.
func (m *Match) settleOutcome(result *StepResult) {
	alive := m.aliveCount()

	switch {
	case alive == 0:
		m.finish(result, Outcome{Voided: true, EndTick: m.tick})
	case alive == 1:
		m.finish(result, Outcome{WinnerID: m.lastAlive().UserID, EndTick: m.tick})
	case m.phase == PhaseShowdown:
		for _, p := range m.players {
			if p.Alive && p.Hearts >= m.cfg.WinHearts {
				m.finish(result, Outcome{WinnerID: p.UserID, EndTick: m.tick})
				return
			}
		}
		if m.allDisconnected() {
			m.finish(result, Outcome{Voided: true, EndTick: m.tick})
		}
	default:
		if m.allDisconnected() {
			m.finish(result, Outcome{Voided: true, EndTick: m.tick})
		}
	}
}

func (m *Match) finish(result *StepResult, outcome Outcome) {
	m.phase = PhaseOver
	m.outcome = &outcome
	result.Outcome = m.outcome
}

func (m *Match) buildSnapshot() proto.Snapshot {
	snapshot := proto.Snapshot{Type: proto.TypeSnapshot, Tick: m.tick}
	for _, p := range m.players {
		snapshot.Players = append(snapshot.Players, proto.SnapshotPlayer{
			ID:        p.UserID,
			Role:      string(p.Role),
			Alive:     p.Alive,
			X:         p.Pos.X,
			Y:         p.Pos.Y,
			Connected: p.Connected,
		})
	}
	if m.phase == PhaseShowdown || m.phase == PhaseFreeze {
		snapshot.Hearts = m.heartViews()
		snapshot.Scores = m.scores()
	}
	return snapshot
}

// ReconnectState builds the replay frame for a rebinding participant.
func (m *Match) ReconnectState(userID string) proto.ReconnectState {
	state := proto.ReconnectState{
		Type:    proto.TypeReconnectState,
		MatchID: m.ID,
		Tick:    m.tick,
	}
	if p := m.Player(userID); p != nil {
		state.Role = string(p.Role)
	}
	snapshot := m.buildSnapshot()
	state.Players = snapshot.Players
	state.Hearts = snapshot.Hearts
	state.Scores = snapshot.Scores
	return state
}

func (m *Match) heartViews() []proto.SnapshotHeart {
	views := make([]proto.SnapshotHeart, len(m.hearts))
	for i, h := range m.hearts {
		views[i] = proto.SnapshotHeart{ID: h.ID, X: h.Pos.X, Y: h.Pos.Y, Captured: h.Captured}
	}
	return views
}

func (m *Match) scores() map[string]int {
	scores := make(map[string]int, len(m.players))
	for _, p := range m.players {
		if p.Alive {
			scores[p.UserID] = p.Hearts
		}
	}
	return scores
}

func (m *Match) aliveCount() int {
	n := 0
	for _, p := range m.players {
		if p.Alive {
			n++
		}
	}
	return n
}

func (m *Match) lastAlive() *Player {
	for _, p := range m.players {
		if p.Alive {
			return p
		}
	}
	return nil
}

func (m *Match) allDisconnected() bool {
	for _, p := range m.players {
		if p.Alive && p.Connected {
			return false
		}
	}
	return true
}

func clampIntent(v int) int {
	if v < -1 {
		return -1
	}
	if v > 1 {
		return 1
	}
	return v
}
