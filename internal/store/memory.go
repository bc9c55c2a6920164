package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemoryStore is the in-process Store used by tests and dev mode. It mirrors
// the transition semantics of the gorm implementation exactly.
type MemoryStore struct {
	mu           sync.Mutex
	users        map[string]*User
	usersByAddr  map[string]string
	tokens       map[string]*SessionToken
	matches      map[string]*Match
	participants map[string][]MatchParticipant
	deposits     map[string]*Deposit
	depositsByTx map[string]string
	payouts      map[string]*Payout
	payoutByM    map[string]string
	refunds      map[string]*Refund
	refundByDep  map[string]string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:        make(map[string]*User),
		usersByAddr:  make(map[string]string),
		tokens:       make(map[string]*SessionToken),
		matches:      make(map[string]*Match),
		participants: make(map[string][]MatchParticipant),
		deposits:     make(map[string]*Deposit),
		depositsByTx: make(map[string]string),
		payouts:      make(map[string]*Payout),
		payoutByM:    make(map[string]string),
		refunds:      make(map[string]*Refund),
		refundByDep:  make(map[string]string),
	}
}

var _ Store = (*MemoryStore)(nil)

func (s *MemoryStore) UpsertUserByWallet(_ context.Context, wallet string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.usersByAddr[wallet]; ok {
		u := *s.users[id]
		return &u, nil
	}
	user := &User{
		ID:          uuid.NewString(),
		Wallet:      wallet,
		DisplayName: shortWalletName(wallet),
		CreatedAt:   time.Now(),
		UpdatedAt:   time.Now(),
	}
	s.users[user.ID] = user
	s.usersByAddr[wallet] = user.ID
	out := *user
	return &out, nil
}

func (s *MemoryStore) GetUser(_ context.Context, id string) (*User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *user
	return &out, nil
}

func (s *MemoryStore) UpdateProfile(_ context.Context, id, displayName string, avatar []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[id]
	if !ok {
		return ErrNotFound
	}
	if displayName != "" {
		user.DisplayName = displayName
	}
	if avatar != nil {
		user.Avatar = avatar
	}
	user.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) AddMatchStats(_ context.Context, userID string, won bool, earningsMinor int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	user.MatchesPlayed++
	user.EarningsMinor += earningsMinor
	if won {
		user.Wins++
	}
	return nil
}

func (s *MemoryStore) InsertSessionToken(_ context.Context, token *SessionToken) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tokens[token.Token]; ok {
		return ErrExists
	}
	cp := *token
	s.tokens[token.Token] = &cp
	return nil
}

func (s *MemoryStore) GetSessionToken(_ context.Context, token string) (*SessionToken, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	st, ok := s.tokens[token]
	if !ok {
		return nil, ErrNotFound
	}
	out := *st
	return &out, nil
}

func (s *MemoryStore) DeleteSessionToken(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tokens, token)
	return nil
}

func (s *MemoryStore) DeleteExpiredTokens(_ context.Context, now time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for k, tok := range s.tokens {
		if tok.ExpiresAt.Before(now) {
			delete(s.tokens, k)
			n++
		}
	}
	return n, nil
}

func (s *MemoryStore) CreateMatch(_ context.Context, match *Match, participants []MatchParticipant) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.matches[match.ID]; ok {
		return ErrExists
	}
	cp := *match
	cp.CreatedAt = time.Now()
	s.matches[match.ID] = &cp
	s.participants[match.ID] = append([]MatchParticipant(nil), participants...)
	return nil
}

func (s *MemoryStore) CompleteMatch(_ context.Context, matchID, winnerID string, endTick uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok || match.State != MatchRunning {
		return ErrConflict
	}
	winner := winnerID
	match.State = MatchComplete
	match.WinnerID = &winner
	match.EndTick = endTick
	return nil
}

func (s *MemoryStore) VoidMatch(_ context.Context, matchID string, endTick uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	match, ok := s.matches[matchID]
	if !ok || match.State != MatchRunning {
		return ErrConflict
	}
	match.State = MatchVoided
	match.EndTick = endTick
	return nil
}

func (s *MemoryStore) ListRunningMatches(_ context.Context) ([]Match, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Match
	for _, m := range s.matches {
		if m.State == MatchRunning {
			out = append(out, *m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (s *MemoryStore) MatchParticipants(_ context.Context, matchID string) ([]MatchParticipant, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := append([]MatchParticipant(nil), s.participants[matchID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out, nil
}

func (s *MemoryStore) CreateDeposit(_ context.Context, deposit *Deposit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.depositsByTx[deposit.TxHash]; ok {
		return ErrExists
	}
	cp := *deposit
	cp.CreatedAt = time.Now()
	s.deposits[deposit.ID] = &cp
	s.depositsByTx[deposit.TxHash] = deposit.ID
	return nil
}

func (s *MemoryStore) GetDeposit(_ context.Context, id string) (*Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.deposits[id]
	if !ok {
		return nil, ErrNotFound
	}
	out := *dep
	return &out, nil
}

func (s *MemoryStore) GetDepositByTx(_ context.Context, txHash string) (*Deposit, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.depositsByTx[txHash]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.deposits[id]
	return &out, nil
}

func (s *MemoryStore) SetDepositState(_ context.Context, id string, from, to DepositState, confirmations uint64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	dep, ok := s.deposits[id]
	if !ok || dep.State != from {
		return ErrConflict
	}
	dep.State = to
	dep.Confirmations = confirmations
	dep.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) CreatePayout(_ context.Context, payout *Payout) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.payoutByM[payout.MatchID]; ok {
		return nil // idempotent on match id
	}
	cp := *payout
	cp.CreatedAt = time.Now()
	s.payouts[payout.ID] = &cp
	s.payoutByM[payout.MatchID] = payout.ID
	return nil
}

func (s *MemoryStore) GetPayoutByMatch(_ context.Context, matchID string) (*Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.payoutByM[matchID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.payouts[id]
	return &out, nil
}

func (s *MemoryStore) MarkPayoutSent(_ context.Context, id, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok || p.State == TransferSent {
		return ErrConflict
	}
	p.State = TransferSent
	p.TxHash = txHash
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkPayoutFailed(_ context.Context, id, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.payouts[id]
	if !ok || p.State == TransferSent {
		return ErrConflict
	}
	p.State = TransferFailed
	p.LastError = lastError
	p.Attempts++
	p.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListPendingPayouts(_ context.Context) ([]Payout, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Payout
	for _, p := range s.payouts {
		if p.State == TransferPending {
			out = append(out, *p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (s *MemoryStore) CreateRefund(_ context.Context, refund *Refund) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.refundByDep[refund.DepositID]; ok {
		return nil // idempotent on deposit id
	}
	cp := *refund
	cp.CreatedAt = time.Now()
	s.refunds[refund.ID] = &cp
	s.refundByDep[refund.DepositID] = refund.ID
	return nil
}

func (s *MemoryStore) GetRefundByDeposit(_ context.Context, depositID string) (*Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.refundByDep[depositID]
	if !ok {
		return nil, ErrNotFound
	}
	out := *s.refunds[id]
	return &out, nil
}

func (s *MemoryStore) MarkRefundSent(_ context.Context, id, txHash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok || r.State == TransferSent {
		return ErrConflict
	}
	r.State = TransferSent
	r.TxHash = txHash
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) MarkRefundFailed(_ context.Context, id, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.refunds[id]
	if !ok || r.State == TransferSent {
		return ErrConflict
	}
	r.State = TransferFailed
	r.LastError = lastError
	r.Attempts++
	r.UpdatedAt = time.Now()
	return nil
}

func (s *MemoryStore) ListPendingRefunds(_ context.Context) ([]Refund, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Refund
	for _, r := range s.refunds {
		if r.State == TransferPending {
			out = append(out, *r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}
