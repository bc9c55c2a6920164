package sim

import (
	"context"
	"time"

	"triad-arena/server/internal/proto"
	"triad-arena/server/logging"
)

// Sender fans a message out to one participant. session.Registry satisfies
// this.
type Sender interface {
	Send(userID string, message any) error
}

// Runner drives one match in real time. It is the single writer of the
// match state; inputs and control arrive over channels and are applied
// inside the tick loop.
type Runner struct {
	match  *Match
	sender Sender
	events logging.Publisher

	interval time.Duration
	payout   string // display amount attached to MATCH_END for the winner path

	inputs   chan queuedInput
	commands chan func(*Match)
	finished chan Outcome
	done     chan struct{}
}

type queuedInput struct {
	userID string
	input  Input
}

const inputQueueSize = 256

// NewRunner wraps a match. payoutDisplay is the amount string carried in the
// MATCH_END frame when a winner is determined.
func NewRunner(match *Match, sender Sender, events logging.Publisher, payoutDisplay string) *Runner {
	return &Runner{
		match:    match,
		sender:   sender,
		events:   events,
		interval: time.Second / time.Duration(match.cfg.TickRate),
		payout:   payoutDisplay,
		inputs:   make(chan queuedInput, inputQueueSize),
		commands: make(chan func(*Match), 32),
		finished: make(chan Outcome, 1),
		done:     make(chan struct{}),
	}
}

// QueueInput enqueues a participant input. Overflow drops the oldest intent;
// only the freshest sequence matters anyway.
func (r *Runner) QueueInput(userID string, in Input) {
	select {
	case r.inputs <- queuedInput{userID: userID, input: in}:
	default:
		select {
		case <-r.inputs:
		default:
		}
		select {
		case r.inputs <- queuedInput{userID: userID, input: in}:
		default:
		}
	}
}

// PlayerDisconnected freezes the player and tells the others.
func (r *Runner) PlayerDisconnected(userID string, graceRemaining time.Duration) {
	r.do(func(m *Match) {
		m.SetConnected(userID, false)
		r.broadcast(m, proto.PlayerDisconnect{
			Type:           proto.TypePlayerDisconnect,
			PlayerID:       userID,
			GraceRemaining: graceRemaining.Seconds(),
		})
	})
}

// PlayerReconnected rebinds the player and replays current state to them.
func (r *Runner) PlayerReconnected(userID string) {
	r.do(func(m *Match) {
		m.SetConnected(userID, true)
		r.sender.Send(userID, m.ReconnectState(userID))
		r.broadcast(m, proto.PlayerReconnect{Type: proto.TypePlayerReconnect, PlayerID: userID})
	})
}

// Forfeit eliminates a player whose grace expired.
func (r *Runner) Forfeit(userID string) {
	r.do(func(m *Match) {
		p := m.Player(userID)
		if p == nil || !p.Alive {
			return
		}
		m.Forfeit(userID)
		r.broadcast(m, proto.Elimination{Type: proto.TypeElimination, EliminatedID: userID})
		r.events.Publish(context.Background(), logging.Event{
			Type:     logging.EventForfeit,
			Tick:     m.Tick(),
			Severity: logging.SeverityInfo,
			Category: logging.CategoryMatch,
			Actor:    logging.EntityRef{ID: userID, Kind: logging.EntityKindPlayer},
			Targets:  []logging.EntityRef{{ID: m.ID, Kind: logging.EntityKindMatch}},
		})
	})
}

// do runs fn inside the tick loop. Best effort once the loop has exited.
func (r *Runner) do(fn func(*Match)) {
	select {
	case r.commands <- fn:
	case <-r.done:
	}
}

// Finished yields the outcome once the match reaches a terminal state.
func (r *Runner) Finished() <-chan Outcome { return r.finished }

// Run drives the tick loop until the match ends or ctx cancels. A cancelled
// context voids the match.
func (r *Runner) Run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	pending := make(map[string]Input)
	for {
		select {
		case <-ctx.Done():
			outcome := Outcome{Voided: true, EndTick: r.match.Tick()}
			r.broadcast(r.match, proto.MatchEnd{Type: proto.TypeMatchEnd, Voided: true})
			r.finished <- outcome
			return
		case cmd := <-r.commands:
			cmd(r.match)
		case in := <-r.inputs:
			keepFreshest(pending, in)
		case <-ticker.C:
			r.drainInputs(pending)
			result := r.match.Step(pending)
			clearInputs(pending)
			r.deliver(result)
			if result.Outcome != nil {
				r.finished <- *result.Outcome
				return
			}
		}
	}
}

func (r *Runner) drainInputs(pending map[string]Input) {
	for {
		select {
		case in := <-r.inputs:
			keepFreshest(pending, in)
		default:
			return
		}
	}
}

func keepFreshest(pending map[string]Input, in queuedInput) {
	if prior, ok := pending[in.userID]; ok && prior.Sequence > in.input.Sequence {
		return
	}
	pending[in.userID] = in.input
}

func clearInputs(pending map[string]Input) {
	for k := range pending {
		delete(pending, k)
	}
}

// deliver pushes one tick's output in order: events, then the snapshot, with
// MATCH_END last on the terminal tick.
func (r *Runner) deliver(result StepResult) {
	for _, event := range result.Events {
		r.broadcast(r.match, event)
	}
	if result.Snapshot != nil {
		r.broadcast(r.match, *result.Snapshot)
	}
	if result.Outcome != nil {
		end := proto.MatchEnd{Type: proto.TypeMatchEnd, Voided: result.Outcome.Voided}
		if result.Outcome.WinnerID != "" {
			end.WinnerID = result.Outcome.WinnerID
			end.PayoutAmount = r.payout
		}
		r.broadcast(r.match, end)
	}
}

func (r *Runner) broadcast(m *Match, message any) {
	for _, p := range m.players {
		if !p.Connected {
			continue
		}
		r.sender.Send(p.UserID, message)
	}
}
