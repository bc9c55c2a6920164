package store

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) Store {
	t.Helper()
	return NewMemoryStore()
}

func TestUpsertUserByWalletIsIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	wallet := "0x1111111111111111111111111111111111111111"
	first, err := s.UpsertUserByWallet(ctx, wallet)
	require.NoError(t, err)
	second, err := s.UpsertUserByWallet(ctx, wallet)
	require.NoError(t, err)
	require.Equal(t, first.ID, second.ID)
	require.Equal(t, "0x1111…1111", first.DisplayName)
}

func TestAddMatchStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	user, err := s.UpsertUserByWallet(ctx, "0x2222222222222222222222222222222222222222")
	require.NoError(t, err)

	require.NoError(t, s.AddMatchStats(ctx, user.ID, true, 2_400_000))
	require.NoError(t, s.AddMatchStats(ctx, user.ID, false, 0))

	got, err := s.GetUser(ctx, user.ID)
	require.NoError(t, err)
	require.Equal(t, 1, got.Wins)
	require.Equal(t, 2, got.MatchesPlayed)
	require.Equal(t, int64(2_400_000), got.EarningsMinor)

	require.ErrorIs(t, s.AddMatchStats(ctx, "missing", true, 0), ErrNotFound)
}

func TestSessionTokenLifecycle(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	now := time.Now()

	live := &SessionToken{Token: "live", UserID: "u1", IssuedAt: now, ExpiresAt: now.Add(time.Hour)}
	stale := &SessionToken{Token: "stale", UserID: "u1", IssuedAt: now.Add(-2 * time.Hour), ExpiresAt: now.Add(-time.Hour)}
	require.NoError(t, s.InsertSessionToken(ctx, live))
	require.NoError(t, s.InsertSessionToken(ctx, stale))
	require.ErrorIs(t, s.InsertSessionToken(ctx, live), ErrExists)

	pruned, err := s.DeleteExpiredTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), pruned)

	_, err = s.GetSessionToken(ctx, "stale")
	require.ErrorIs(t, err, ErrNotFound)
	got, err := s.GetSessionToken(ctx, "live")
	require.NoError(t, err)
	require.Equal(t, "u1", got.UserID)
}

func TestMatchTransitionsAreCompareAndSet(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	match := &Match{ID: uuid.NewString(), LobbyID: 1, Seed: 42, State: MatchRunning}
	parts := []MatchParticipant{
		{MatchID: match.ID, UserID: "b", Role: "paper", DepositID: "d2"},
		{MatchID: match.ID, UserID: "a", Role: "rock", DepositID: "d1"},
		{MatchID: match.ID, UserID: "c", Role: "scissors", DepositID: "d3"},
	}
	require.NoError(t, s.CreateMatch(ctx, match, parts))

	got, err := s.MatchParticipants(ctx, match.ID)
	require.NoError(t, err)
	require.Len(t, got, 3)
	require.Equal(t, "a", got[0].UserID)

	require.NoError(t, s.CompleteMatch(ctx, match.ID, "a", 900))
	// Already complete: neither transition may apply again.
	require.ErrorIs(t, s.CompleteMatch(ctx, match.ID, "b", 901), ErrConflict)
	require.ErrorIs(t, s.VoidMatch(ctx, match.ID, 901), ErrConflict)

	running, err := s.ListRunningMatches(ctx)
	require.NoError(t, err)
	require.Empty(t, running)
}

func TestDepositStateMachine(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	dep := &Deposit{
		ID:          uuid.NewString(),
		LobbyID:     2,
		UserID:      "u1",
		TxHash:      "0xabc",
		AmountMinor: 1_000_000,
		State:       DepositPending,
	}
	require.NoError(t, s.CreateDeposit(ctx, dep))

	dup := &Deposit{ID: uuid.NewString(), UserID: "u2", TxHash: "0xabc", State: DepositPending}
	require.ErrorIs(t, s.CreateDeposit(ctx, dup), ErrExists)

	require.NoError(t, s.SetDepositState(ctx, dep.ID, DepositPending, DepositConfirmed, 3))
	require.ErrorIs(t, s.SetDepositState(ctx, dep.ID, DepositPending, DepositRejected, 0), ErrConflict)

	got, err := s.GetDepositByTx(ctx, "0xabc")
	require.NoError(t, err)
	require.Equal(t, DepositConfirmed, got.State)
	require.Equal(t, uint64(3), got.Confirmations)
}

func TestPayoutIdempotencyPerMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	matchID := uuid.NewString()
	first := &Payout{ID: uuid.NewString(), MatchID: matchID, Recipient: "0xwin", AmountMinor: 2_400_000, State: TransferPending}
	require.NoError(t, s.CreatePayout(ctx, first))

	// A second create for the same match is swallowed, not duplicated.
	second := &Payout{ID: uuid.NewString(), MatchID: matchID, Recipient: "0xwin", AmountMinor: 2_400_000, State: TransferPending}
	require.NoError(t, s.CreatePayout(ctx, second))

	got, err := s.GetPayoutByMatch(ctx, matchID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
}

func TestPayoutSentIsTerminal(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	p := &Payout{ID: uuid.NewString(), MatchID: uuid.NewString(), Recipient: "0xwin", AmountMinor: 2_400_000, State: TransferPending}
	require.NoError(t, s.CreatePayout(ctx, p))

	require.NoError(t, s.MarkPayoutFailed(ctx, p.ID, "rpc timeout"))
	require.NoError(t, s.MarkPayoutSent(ctx, p.ID, "0xtx"))
	require.ErrorIs(t, s.MarkPayoutSent(ctx, p.ID, "0xtx2"), ErrConflict)
	require.ErrorIs(t, s.MarkPayoutFailed(ctx, p.ID, "late"), ErrConflict)

	got, err := s.GetPayoutByMatch(ctx, p.MatchID)
	require.NoError(t, err)
	require.Equal(t, TransferSent, got.State)
	require.Equal(t, "0xtx", got.TxHash)
	require.Equal(t, 1, got.Attempts)
}

func TestRefundIdempotencyPerDeposit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	depID := uuid.NewString()
	first := &Refund{ID: uuid.NewString(), DepositID: depID, Recipient: "0xback", AmountMinor: 1_000_000, State: TransferPending, Reason: "countdown aborted"}
	require.NoError(t, s.CreateRefund(ctx, first))
	second := &Refund{ID: uuid.NewString(), DepositID: depID, Recipient: "0xback", AmountMinor: 1_000_000, State: TransferPending}
	require.NoError(t, s.CreateRefund(ctx, second))

	got, err := s.GetRefundByDeposit(ctx, depID)
	require.NoError(t, err)
	require.Equal(t, first.ID, got.ID)
	require.Equal(t, "countdown aborted", got.Reason)
}

func TestListPendingTransfers(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	pending := &Payout{ID: uuid.NewString(), MatchID: uuid.NewString(), State: TransferPending}
	done := &Payout{ID: uuid.NewString(), MatchID: uuid.NewString(), State: TransferPending}
	require.NoError(t, s.CreatePayout(ctx, pending))
	require.NoError(t, s.CreatePayout(ctx, done))
	require.NoError(t, s.MarkPayoutSent(ctx, done.ID, "0xtx"))

	got, err := s.ListPendingPayouts(ctx)
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, pending.ID, got[0].ID)

	ref := &Refund{ID: uuid.NewString(), DepositID: uuid.NewString(), State: TransferPending}
	require.NoError(t, s.CreateRefund(ctx, ref))
	refs, err := s.ListPendingRefunds(ctx)
	require.NoError(t, err)
	require.Len(t, refs, 1)
}
