// Package store owns the durable records: users, session tokens, matches,
// deposits, payouts, refunds. Writes that move a record between states are
// atomic compare-and-set transitions; the settlement pipeline leans on that
// for idempotency.
package store

import (
	"context"
	"errors"
	"time"
)

var (
	ErrNotFound = errors.New("store: record not found")
	ErrConflict = errors.New("store: conflicting state transition")
	ErrExists   = errors.New("store: record already exists")
)

type User struct {
	ID            string `gorm:"primaryKey"`
	Wallet        string `gorm:"uniqueIndex;size:42"`
	DisplayName   string
	Avatar        []byte
	Wins          int
	MatchesPlayed int
	EarningsMinor int64
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type SessionToken struct {
	Token     string `gorm:"primaryKey"`
	UserID    string `gorm:"index"`
	IssuedAt  time.Time
	ExpiresAt time.Time
}

type DepositState string

const (
	DepositPending   DepositState = "pending"
	DepositConfirmed DepositState = "confirmed"
	DepositRejected  DepositState = "rejected"
	DepositRefunded  DepositState = "refunded"
)

type Deposit struct {
	ID            string `gorm:"primaryKey"`
	LobbyID       int    `gorm:"index"`
	UserID        string `gorm:"index"`
	TxHash        string `gorm:"uniqueIndex"`
	AmountMinor   int64
	Confirmations uint64
	State         DepositState `gorm:"index"`
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type MatchState string

const (
	MatchRunning  MatchState = "running"
	MatchComplete MatchState = "complete"
	MatchVoided   MatchState = "voided"
)

type Match struct {
	ID        string `gorm:"primaryKey"`
	LobbyID   int    `gorm:"index"`
	Seed      int64
	State     MatchState `gorm:"index"`
	WinnerID  *string
	StartTick uint64
	EndTick   uint64
	CreatedAt time.Time
	UpdatedAt time.Time
}

type MatchParticipant struct {
	MatchID   string `gorm:"primaryKey"`
	UserID    string `gorm:"primaryKey"`
	Role      string
	DepositID string
	SpawnX    float64
	SpawnY    float64
}

type TransferState string

const (
	TransferPending TransferState = "pending"
	TransferSent    TransferState = "sent"
	TransferFailed  TransferState = "failed"
)

// Payout settles a completed match; at most one per match.
type Payout struct {
	ID          string `gorm:"primaryKey"`
	MatchID     string `gorm:"uniqueIndex"`
	Recipient   string
	AmountMinor int64
	TxHash      string
	State       TransferState `gorm:"index"`
	Attempts    int
	LastError   string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Refund returns a confirmed deposit; at most one per deposit.
type Refund struct {
	ID          string `gorm:"primaryKey"`
	DepositID   string `gorm:"uniqueIndex"`
	Recipient   string
	AmountMinor int64
	TxHash      string
	State       TransferState `gorm:"index"`
	Attempts    int
	LastError   string
	Reason      string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Store is the durable record interface. The gorm implementation backs
// production; the memory implementation backs tests and dev mode.
type Store interface {
	// Users.
	UpsertUserByWallet(ctx context.Context, wallet string) (*User, error)
	GetUser(ctx context.Context, id string) (*User, error)
	UpdateProfile(ctx context.Context, id, displayName string, avatar []byte) error
	AddMatchStats(ctx context.Context, userID string, won bool, earningsMinor int64) error

	// Session tokens.
	InsertSessionToken(ctx context.Context, token *SessionToken) error
	GetSessionToken(ctx context.Context, token string) (*SessionToken, error)
	DeleteSessionToken(ctx context.Context, token string) error
	DeleteExpiredTokens(ctx context.Context, now time.Time) (int64, error)

	// Matches.
	CreateMatch(ctx context.Context, match *Match, participants []MatchParticipant) error
	CompleteMatch(ctx context.Context, matchID, winnerID string, endTick uint64) error
	VoidMatch(ctx context.Context, matchID string, endTick uint64) error
	ListRunningMatches(ctx context.Context) ([]Match, error)
	MatchParticipants(ctx context.Context, matchID string) ([]MatchParticipant, error)

	// Deposits.
	CreateDeposit(ctx context.Context, deposit *Deposit) error
	GetDeposit(ctx context.Context, id string) (*Deposit, error)
	GetDepositByTx(ctx context.Context, txHash string) (*Deposit, error)
	SetDepositState(ctx context.Context, id string, from, to DepositState, confirmations uint64) error

	// Payouts.
	CreatePayout(ctx context.Context, payout *Payout) error
	GetPayoutByMatch(ctx context.Context, matchID string) (*Payout, error)
	MarkPayoutSent(ctx context.Context, id, txHash string) error
	MarkPayoutFailed(ctx context.Context, id, lastError string) error
	ListPendingPayouts(ctx context.Context) ([]Payout, error)

	// Refunds.
	CreateRefund(ctx context.Context, refund *Refund) error
	GetRefundByDeposit(ctx context.Context, depositID string) (*Refund, error)
	MarkRefundSent(ctx context.Context, id, txHash string) error
	MarkRefundFailed(ctx context.Context, id, lastError string) error
	ListPendingRefunds(ctx context.Context) ([]Refund, error)
}
