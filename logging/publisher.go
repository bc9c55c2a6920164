// Package logging is the structured event layer shared by the lobby, match,
// transport, and settlement planes. Producers publish domain events; a router
// fans them out to the configured sinks without blocking the producer.
package logging

import (
	"context"
	"time"
)

type EventType string

// Lifecycle and gameplay events.
const (
	EventLobbyTransition  EventType = "lobby.transition"
	EventSeatAdmitted     EventType = "lobby.seat_admitted"
	EventSeatRemoved      EventType = "lobby.seat_removed"
	EventDepositConfirmed EventType = "lobby.deposit_confirmed"
	EventDepositRejected  EventType = "lobby.deposit_rejected"
	EventMatchStarted     EventType = "match.started"
	EventElimination      EventType = "match.elimination"
	EventShowdown         EventType = "match.showdown"
	EventHeartCaptured    EventType = "match.heart_captured"
	EventMatchEnded       EventType = "match.ended"
	EventMatchVoided      EventType = "match.voided"
	EventForfeit          EventType = "match.forfeit"
	EventSessionOpened    EventType = "session.opened"
	EventSessionClosed    EventType = "session.closed"
	EventSessionRebound   EventType = "session.rebound"
	EventRateLimited      EventType = "session.rate_limited"
	EventPayoutSent       EventType = "settlement.payout_sent"
	EventPayoutFailed     EventType = "settlement.payout_failed"
	EventRefundSent       EventType = "settlement.refund_sent"
	EventRefundFailed     EventType = "settlement.refund_failed"
	EventBalanceShort     EventType = "settlement.insufficient_balance"
	EventChainError       EventType = "chain.error"
	EventStoreError       EventType = "store.error"
)

type Severity int

const (
	SeverityDebug Severity = iota
	SeverityInfo
	SeverityWarn
	SeverityError
)

type EntityKind string

const (
	EntityKindPlayer  EntityKind = "player"
	EntityKindLobby   EntityKind = "lobby"
	EntityKindMatch   EntityKind = "match"
	EntityKindWallet  EntityKind = "wallet"
	EntityKindSession EntityKind = "session"
	EntityKindSystem  EntityKind = "system"
)

const (
	CategoryLobby      = "lobby"
	CategoryMatch      = "match"
	CategorySettlement = "settlement"
	CategoryNetwork    = "network"
	CategorySystem     = "system"
)

// EntityRef names the entity an event is about.
type EntityRef struct {
	ID   string     `json:"id"`
	Kind EntityKind `json:"kind"`
}

// Event is one structured record. Tick is zero outside a running match.
type Event struct {
	Type     EventType      `json:"type"`
	Tick     uint64         `json:"tick,omitempty"`
	Time     time.Time      `json:"time"`
	Actor    EntityRef      `json:"actor"`
	Targets  []EntityRef    `json:"targets,omitempty"`
	Severity Severity       `json:"severity"`
	Category string         `json:"category,omitempty"`
	Extra    map[string]any `json:"extra,omitempty"`
}

// WithExtra attaches a key/value pair, allocating the map lazily.
func (e Event) WithExtra(key string, value any) Event {
	if e.Extra == nil {
		e.Extra = make(map[string]any, 1)
	}
	e.Extra[key] = value
	return e
}

type Publisher interface {
	Publish(ctx context.Context, event Event)
}

type PublisherFunc func(ctx context.Context, event Event)

func (f PublisherFunc) Publish(ctx context.Context, event Event) {
	if f == nil {
		return
	}
	f(ctx, event)
}

type nopPublisher struct{}

func (nopPublisher) Publish(context.Context, Event) {}

// NopPublisher discards every event; used by tests that do not assert on
// logging.
func NopPublisher() Publisher {
	return nopPublisher{}
}

func clone(event Event) Event {
	cloned := event
	if len(event.Targets) > 0 {
		cloned.Targets = append([]EntityRef(nil), event.Targets...)
	}
	if event.Extra != nil {
		copied := make(map[string]any, len(event.Extra))
		for k, v := range event.Extra {
			copied[k] = v
		}
		cloned.Extra = copied
	}
	return cloned
}
