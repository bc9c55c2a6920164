// Package lobby owns admission, deposits, countdown, and reset. It is the
// single writer of lobby and seat state; the match runner takes over player
// state only between countdown completion and the terminal event.
package lobby

import (
	"time"

	"triad-arena/server/internal/proto"
)

// State is the lobby lifecycle.
type State string

const (
	StateEmpty      State = "empty"
	StateWaiting    State = "waiting"
	StateReady      State = "ready"
	StateCountdown  State = "countdown"
	StateInProgress State = "in-progress"
	StateSettling   State = "settling"
	StateCooling    State = "cooling"
)

// Seat is one admitted (or provisionally admitted) player.
type Seat struct {
	UserID      string
	DisplayName string
	Wallet      string
	DepositID   string
	TxHash      string
	Paid        bool
	Connected   bool
	JoinedAt    time.Time
}

// Lobby is one slot of the fixed pool. Mutation only through the Manager.
type Lobby struct {
	ID             int
	DepositAddress string
	State          State

	Seats             []*Seat
	WaitStart         time.Time
	CountdownDeadline time.Time
	CoolingUntil      time.Time
	MatchID           string

	lastCountdownSecs int
}

func (l *Lobby) seat(userID string) *Seat {
	for _, s := range l.Seats {
		if s.UserID == userID {
			return s
		}
	}
	return nil
}

func (l *Lobby) removeSeat(userID string) {
	for i, s := range l.Seats {
		if s.UserID == userID {
			l.Seats = append(l.Seats[:i], l.Seats[i+1:]...)
			return
		}
	}
}

func (l *Lobby) paidCount() int {
	n := 0
	for _, s := range l.Seats {
		if s.Paid {
			n++
		}
	}
	return n
}

// joinable reports whether a new seat may be admitted in this state.
func (l *Lobby) joinable() bool {
	switch l.State {
	case StateEmpty, StateWaiting, StateReady:
		return true
	default:
		return false
	}
}

func (l *Lobby) summary() proto.LobbySummary {
	return proto.LobbySummary{
		ID:             l.ID,
		Status:         string(l.State),
		PlayerCount:    len(l.Seats),
		DepositAddress: l.DepositAddress,
	}
}

func (l *Lobby) update(now time.Time) proto.LobbyUpdate {
	update := proto.LobbyUpdate{
		Type:           proto.TypeLobbyUpdate,
		LobbyID:        l.ID,
		Status:         string(l.State),
		DepositAddress: l.DepositAddress,
	}
	for _, s := range l.Seats {
		update.Players = append(update.Players, proto.LobbyPlayer{
			ID:          s.UserID,
			DisplayName: s.DisplayName,
			Paid:        s.Paid,
			Connected:   s.Connected,
		})
	}
	if l.State == StateCountdown {
		remaining := int(l.CountdownDeadline.Sub(now).Seconds())
		if remaining < 0 {
			remaining = 0
		}
		update.TimeRemaining = &remaining
	}
	return update
}
