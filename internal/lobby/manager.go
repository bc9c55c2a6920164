package lobby

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"triad-arena/server/internal/arena"
	"triad-arena/server/internal/chain"
	"triad-arena/server/internal/config"
	"triad-arena/server/internal/money"
	"triad-arena/server/internal/proto"
	"triad-arena/server/internal/sim"
	"triad-arena/server/internal/store"
	"triad-arena/server/logging"
)

// Settler accepts settlement jobs. The settle coordinator implements this;
// the manager never talks to the chain for payouts directly.
type Settler interface {
	EnqueuePayout(matchID, recipient string, amount money.Amount)
	EnqueueRefund(depositID, recipient string, amount money.Amount, reason string)
}

// Sender fans messages out to connected users; session.Registry satisfies
// this.
type Sender interface {
	Send(userID string, message any) error
}

const coolingPeriod = 5 * time.Second

// Manager owns the fixed lobby pool. Every mutation of lobby or seat state
// goes through its lock; match state is handed to a sim.Runner for the
// duration of in-progress.
type Manager struct {
	cfg     config.Config
	store   store.Store
	gateway chain.Gateway
	sender  Sender
	settler Settler
	events  logging.Publisher

	mu         sync.Mutex
	lobbies    []*Lobby
	seatIndex  map[string]int // user id → lobby id
	runners    map[int]*sim.Runner
	cancels    map[int]context.CancelFunc
	stateSince map[int]time.Time

	now  func() time.Time
	seed func() int64
}

func NewManager(cfg config.Config, st store.Store, gateway chain.Gateway, sender Sender, settler Settler, events logging.Publisher) *Manager {
	m := &Manager{
		cfg:        cfg,
		store:      st,
		gateway:    gateway,
		sender:     sender,
		settler:    settler,
		events:     events,
		seatIndex:  make(map[string]int),
		runners:    make(map[int]*sim.Runner),
		cancels:    make(map[int]context.CancelFunc),
		stateSince: make(map[int]time.Time),
		now:        time.Now,
		seed:       rand.Int63,
	}
	for i := 1; i <= cfg.LobbyCount; i++ {
		m.lobbies = append(m.lobbies, &Lobby{
			ID:             i,
			DepositAddress: depositAddressFor(cfg, i),
			State:          StateEmpty,
		})
		m.stateSince[i] = m.now()
	}
	return m
}

// depositAddressFor resolves the lobby slot's long-lived receive address.
// Every lobby owns its own address so a deposit verifies against the lobby it
// was meant for. Dev mode runs without configured addresses and gets distinct
// placeholders the mock gateway accepts.
func depositAddressFor(cfg config.Config, slot int) string {
	if slot-1 < len(cfg.LobbyDepositAddresses) {
		return cfg.LobbyDepositAddresses[slot-1]
	}
	return fmt.Sprintf("0xdeb0%032x%04x", 0, slot)
}

// Summaries builds the LOBBY_LIST payload.
func (m *Manager) Summaries() proto.LobbyList {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := proto.LobbyList{Type: proto.TypeLobbyList}
	for _, l := range m.lobbies {
		list.Lobbies = append(list.Lobbies, l.summary())
	}
	return list
}

// Join admits a user into a lobby behind a deposit. viaAdmin marks requests
// from the admin edge, the only place synthetic dev hashes are honored.
func (m *Manager) Join(ctx context.Context, userID string, lobbyID int, txHash string, viaAdmin bool) *proto.Error {
	m.mu.Lock()

	l := m.lobby(lobbyID)
	if l == nil {
		m.mu.Unlock()
		return errp(proto.CodeLobbyNotJoinable, "no such lobby")
	}
	if seatedIn, ok := m.seatIndex[userID]; ok {
		if seatedIn == lobbyID {
			if seat := l.seat(userID); seat != nil && seat.TxHash == txHash {
				// Resubmitting the same hash for the same seat is a no-op.
				m.mu.Unlock()
				return nil
			}
		}
		m.mu.Unlock()
		return errp(proto.CodeAlreadySeated, "already seated")
	}
	if !l.joinable() {
		m.mu.Unlock()
		return errp(proto.CodeLobbyNotJoinable, "lobby not joinable")
	}
	if len(l.Seats) >= 3 {
		m.mu.Unlock()
		return errp(proto.CodeLobbyFull, "lobby full")
	}
	synthetic := isSyntheticHash(txHash)
	if synthetic && !(viaAdmin && m.cfg.DevMode) {
		m.mu.Unlock()
		return errp(proto.CodeDevTxOnPublic, "synthetic deposit rejected")
	}

	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		m.mu.Unlock()
		return errp(proto.CodeStoreError, "user lookup failed")
	}

	deposit := &store.Deposit{
		ID:          uuid.NewString(),
		LobbyID:     lobbyID,
		UserID:      userID,
		TxHash:      txHash,
		AmountMinor: int64(m.cfg.EntryFee),
		State:       store.DepositPending,
	}
	if err := m.store.CreateDeposit(ctx, deposit); err != nil {
		m.mu.Unlock()
		if errors.Is(err, store.ErrExists) {
			return errp(proto.CodeDuplicateDeposit, "deposit already claimed")
		}
		return errp(proto.CodeStoreError, "deposit record failed")
	}

	seat := &Seat{
		UserID:      userID,
		DisplayName: user.DisplayName,
		Wallet:      user.Wallet,
		DepositID:   deposit.ID,
		TxHash:      txHash,
		Connected:   true,
		JoinedAt:    m.now(),
	}
	l.Seats = append(l.Seats, seat)
	m.seatIndex[userID] = lobbyID
	if l.State == StateEmpty {
		m.setState(l, StateWaiting)
		l.WaitStart = m.now()
	}
	depositAddr := l.DepositAddress
	m.publish(ctx, logging.EventSeatAdmitted, logging.SeverityInfo, logging.CategoryLobby, userID, l)
	m.broadcastUpdate(l)
	m.mu.Unlock()

	if synthetic {
		m.applyDepositResult(ctx, deposit.ID, &chain.VerifiedDeposit{
			From:          user.Wallet,
			Amount:        m.cfg.EntryFee,
			Confirmations: m.cfg.MinConfirmations,
		}, nil)
		return nil
	}

	// One inline verification attempt; the poller picks up whatever is not
	// yet confirmed.
	verified, verr := m.gateway.VerifyDeposit(ctx, txHash, depositAddr)
	m.applyDepositResult(ctx, deposit.ID, verified, verr)
	return nil
}

// PollDeposits re-verifies every pending deposit. Run on a sweep cadence.
func (m *Manager) PollDeposits(ctx context.Context) {
	m.mu.Lock()
	type pending struct {
		depositID string
		txHash    string
		recipient string
	}
	var work []pending
	for _, l := range m.lobbies {
		for _, s := range l.Seats {
			if !s.Paid {
				work = append(work, pending{depositID: s.DepositID, txHash: s.TxHash, recipient: l.DepositAddress})
			}
		}
	}
	m.mu.Unlock()

	for _, p := range work {
		verified, err := m.gateway.VerifyDeposit(ctx, p.txHash, p.recipient)
		m.applyDepositResult(ctx, p.depositID, verified, err)
	}
}

// applyDepositResult folds a verification outcome into the seat. Transient
// failures and short confirmations leave the deposit pending.
func (m *Manager) applyDepositResult(ctx context.Context, depositID string, verified *chain.VerifiedDeposit, verr error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l, seat := m.seatByDeposit(depositID)
	if l == nil || seat.Paid {
		return
	}

	if verr != nil {
		if chain.Transient(verr) {
			return
		}
		m.rejectSeatLocked(ctx, l, seat, proto.CodeTxNotFound, "deposit verification failed")
		return
	}
	if !strings.EqualFold(verified.From, seat.Wallet) {
		m.rejectSeatLocked(ctx, l, seat, proto.CodeWrongRecipient, "deposit sent from another wallet")
		return
	}
	if verified.Amount < m.cfg.EntryFee {
		m.rejectSeatLocked(ctx, l, seat, proto.CodeWrongAmount, "deposit amount below entry fee")
		return
	}
	if verified.Confirmations < m.cfg.MinConfirmations {
		return
	}

	if err := m.store.SetDepositState(ctx, depositID, store.DepositPending, store.DepositConfirmed, verified.Confirmations); err != nil {
		return
	}
	seat.Paid = true
	m.publish(ctx, logging.EventDepositConfirmed, logging.SeverityInfo, logging.CategoryLobby, seat.UserID, l)
	m.broadcastUpdate(l)
	m.maybeStartCountdown(l)
}

func (m *Manager) rejectSeatLocked(ctx context.Context, l *Lobby, seat *Seat, code int, message string) {
	m.store.SetDepositState(ctx, seat.DepositID, store.DepositPending, store.DepositRejected, 0)
	l.removeSeat(seat.UserID)
	delete(m.seatIndex, seat.UserID)
	m.sender.Send(seat.UserID, proto.Errorf(code, message))
	m.publish(ctx, logging.EventDepositRejected, logging.SeverityWarn, logging.CategoryLobby, seat.UserID, l)
	if len(l.Seats) == 0 && l.State == StateWaiting {
		m.setState(l, StateEmpty)
	}
	m.broadcastUpdate(l)
}

// maybeStartCountdown moves a full, fully paid lobby through ready into
// countdown.
func (m *Manager) maybeStartCountdown(l *Lobby) {
	if l.State != StateWaiting && l.State != StateReady {
		return
	}
	if len(l.Seats) != 3 || l.paidCount() != 3 {
		return
	}
	m.setState(l, StateReady)
	m.setState(l, StateCountdown)
	l.CountdownDeadline = m.now().Add(m.cfg.CountdownLength)
	l.lastCountdownSecs = -1
	total := int(m.cfg.CountdownLength.Seconds())
	for _, s := range l.Seats {
		m.sender.Send(s.UserID, proto.MatchStarting{Type: proto.TypeMatchStarting, Countdown: total})
	}
	m.broadcastUpdate(l)
}

// RequestRefund handles a seated user's refund claim. Before the refund
// timeout elapses the claim is rejected.
func (m *Manager) RequestRefund(ctx context.Context, userID string, lobbyID int) *proto.Error {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.lobby(lobbyID)
	if l == nil || l.seat(userID) == nil {
		return errp(proto.CodeNotSeated, "not seated in this lobby")
	}
	switch l.State {
	case StateWaiting, StateReady, StateCountdown:
	default:
		return errp(proto.CodeLobbyNotJoinable, "lobby is not refundable now")
	}
	if m.now().Sub(l.WaitStart) < m.cfg.RefundTimeout {
		return errp(proto.CodeRefundTooEarly, "refund not yet available")
	}

	m.releaseSeatLocked(ctx, l, userID, "timeout")
	return nil
}

// releaseSeatLocked removes a seat and schedules a refund for its confirmed
// deposit. Cancels a running countdown.
func (m *Manager) releaseSeatLocked(ctx context.Context, l *Lobby, userID, reason string) {
	seat := l.seat(userID)
	if seat == nil {
		return
	}
	l.removeSeat(userID)
	delete(m.seatIndex, userID)

	if seat.Paid {
		if err := m.store.SetDepositState(ctx, seat.DepositID, store.DepositConfirmed, store.DepositRefunded, 0); err == nil {
			m.settler.EnqueueRefund(seat.DepositID, seat.Wallet, m.cfg.EntryFee, reason)
			m.sender.Send(userID, proto.RefundProcessed{Type: proto.TypeRefundProcessed, Reason: reason})
		}
	}

	if l.State == StateCountdown || l.State == StateReady {
		m.setState(l, StateWaiting)
		l.CountdownDeadline = time.Time{}
	}
	if len(l.Seats) == 0 && (l.State == StateWaiting || l.State == StateReady) {
		m.setState(l, StateEmpty)
	}
	m.publish(ctx, logging.EventSeatRemoved, logging.SeverityInfo, logging.CategoryLobby, userID, l)
	m.broadcastUpdate(l)
}

// Tick drives the time-based transitions: countdown broadcast and expiry,
// cooling reset. Call on a sub-second cadence.
func (m *Manager) Tick(ctx context.Context) {
	m.mu.Lock()
	now := m.now()
	var starting []*Lobby
	for _, l := range m.lobbies {
		switch l.State {
		case StateCountdown:
			remaining := int(l.CountdownDeadline.Sub(now).Seconds() + 0.999)
			if remaining < 0 {
				remaining = 0
			}
			if remaining != l.lastCountdownSecs {
				l.lastCountdownSecs = remaining
				for _, s := range l.Seats {
					m.sender.Send(s.UserID, proto.LobbyCountdown{
						Type: proto.TypeLobbyCountdown, LobbyID: l.ID, SecondsRemaining: remaining,
					})
					m.sender.Send(s.UserID, proto.Countdown{Type: proto.TypeCountdown, SecondsRemaining: remaining})
				}
			}
			if !now.Before(l.CountdownDeadline) {
				starting = append(starting, l)
			}
		case StateCooling:
			if now.After(l.CoolingUntil) {
				l.Seats = nil
				l.MatchID = ""
				m.setState(l, StateEmpty)
			}
		}
	}
	for _, l := range starting {
		m.startMatchLocked(ctx, l)
	}
	m.mu.Unlock()
}

// startMatchLocked performs countdown completion: roles, spawns, the match
// record, and the runner handoff.
func (m *Manager) startMatchLocked(ctx context.Context, l *Lobby) {
	if len(l.Seats) != 3 || l.paidCount() != 3 {
		// A seat fell out at the last instant; the countdown cancel path
		// already moved the lobby back to waiting.
		return
	}

	seed := m.seed()
	rng := rand.New(rand.NewSource(seed))
	roles := arena.AssignRoles(rng)
	spawns := arena.SpawnTriangle(rng, m.params(), m.cfg.SpawnMinPairDist, m.cfg.SpawnWallMargin)

	matchID := uuid.NewString()
	match := &store.Match{
		ID:      matchID,
		LobbyID: l.ID,
		Seed:    seed,
		State:   store.MatchRunning,
	}
	participants := make([]store.MatchParticipant, 3)
	simParts := make([]sim.Participant, 3)
	for i, seat := range l.Seats {
		participants[i] = store.MatchParticipant{
			MatchID:   matchID,
			UserID:    seat.UserID,
			Role:      string(roles[i]),
			DepositID: seat.DepositID,
			SpawnX:    spawns[i].X,
			SpawnY:    spawns[i].Y,
		}
		simParts[i] = sim.Participant{UserID: seat.UserID, Role: roles[i], Spawn: spawns[i]}
	}
	if err := m.store.CreateMatch(ctx, match, participants); err != nil {
		m.publish(ctx, logging.EventStoreError, logging.SeverityError, logging.CategorySystem, "", l)
		return
	}

	for i, seat := range l.Seats {
		m.sender.Send(seat.UserID, proto.RoleAssignment{
			Type:   proto.TypeRoleAssignment,
			Role:   string(roles[i]),
			SpawnX: spawns[i].X,
			SpawnY: spawns[i].Y,
		})
	}

	l.MatchID = matchID
	m.setState(l, StateInProgress)
	m.broadcastUpdate(l)
	m.publish(ctx, logging.EventMatchStarted, logging.SeverityInfo, logging.CategoryMatch, matchID, l)

	simMatch := sim.NewMatch(matchID, seed, simParts, sim.Config{
		Params:        m.params(),
		TickRate:      m.cfg.TickRate,
		SnapshotEvery: m.cfg.SnapshotEvery,
		WinHearts:     m.cfg.WinHearts,
		FreezeTicks:   int(m.cfg.ShowdownFreeze.Seconds() * float64(m.cfg.TickRate)),
		HeartLayout:   sim.DefaultHeartLayout(),
		RandomHearts:  m.cfg.HeartLayoutRandom,
	})
	runner := sim.NewRunner(simMatch, m.sender, m.events, m.payoutAmount().String())
	runCtx, cancel := context.WithCancel(context.Background())
	m.runners[l.ID] = runner
	m.cancels[l.ID] = cancel
	go runner.Run(runCtx)
	go m.awaitFinish(l.ID, runner)
}

func (m *Manager) awaitFinish(lobbyID int, runner *sim.Runner) {
	outcome := <-runner.Finished()
	m.finishMatch(context.Background(), lobbyID, outcome)
}

// finishMatch commits the terminal state and hands settlement jobs over.
func (m *Manager) finishMatch(ctx context.Context, lobbyID int, outcome sim.Outcome) {
	m.mu.Lock()
	defer m.mu.Unlock()

	l := m.lobby(lobbyID)
	if l == nil || l.State != StateInProgress {
		return
	}
	matchID := l.MatchID
	if cancel, ok := m.cancels[lobbyID]; ok {
		cancel()
		delete(m.cancels, lobbyID)
	}
	delete(m.runners, lobbyID)
	m.setState(l, StateSettling)

	seats := append([]*Seat(nil), l.Seats...)
	for _, seat := range seats {
		delete(m.seatIndex, seat.UserID)
	}
	l.Seats = nil

	if outcome.Voided {
		m.store.VoidMatch(ctx, matchID, outcome.EndTick)
		for _, seat := range seats {
			if !seat.Paid {
				continue
			}
			if err := m.store.SetDepositState(ctx, seat.DepositID, store.DepositConfirmed, store.DepositRefunded, 0); err == nil {
				m.settler.EnqueueRefund(seat.DepositID, seat.Wallet, m.cfg.EntryFee, "match voided")
			}
		}
		m.publish(ctx, logging.EventMatchVoided, logging.SeverityWarn, logging.CategoryMatch, matchID, l)
	} else {
		m.store.CompleteMatch(ctx, matchID, outcome.WinnerID, outcome.EndTick)
		payout := m.payoutAmount()
		for _, seat := range seats {
			won := seat.UserID == outcome.WinnerID
			earnings := int64(0)
			if won {
				earnings = int64(payout)
				m.settler.EnqueuePayout(matchID, seat.Wallet, payout)
			}
			m.store.AddMatchStats(ctx, seat.UserID, won, earnings)
		}
		m.publish(ctx, logging.EventMatchEnded, logging.SeverityInfo, logging.CategoryMatch, matchID, l)
	}

	m.setState(l, StateCooling)
	l.CoolingUntil = m.now().Add(coolingPeriod)
}

// RouteInput forwards a decoded INPUT frame to the user's running match.
func (m *Manager) RouteInput(userID string, in proto.Input) {
	m.mu.Lock()
	lobbyID, ok := m.seatIndex[userID]
	var runner *sim.Runner
	if ok {
		runner = m.runners[lobbyID]
	}
	m.mu.Unlock()
	if runner == nil {
		return
	}
	runner.QueueInput(userID, sim.Input{
		DX:       in.DirX,
		DY:       in.DirY,
		Sequence: in.Sequence,
		Frozen:   in.Frozen,
	})
}

// HandleDisconnect reacts to transport loss. During countdown the seat is
// dropped and the countdown cancels; during a match the grace window starts.
func (m *Manager) HandleDisconnect(ctx context.Context, userID string, graceDeadline time.Time) {
	m.mu.Lock()
	lobbyID, ok := m.seatIndex[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	l := m.lobby(lobbyID)
	seat := l.seat(userID)
	if seat == nil {
		m.mu.Unlock()
		return
	}

	switch l.State {
	case StateInProgress:
		seat.Connected = false
		runner := m.runners[lobbyID]
		m.mu.Unlock()
		if runner != nil {
			runner.PlayerDisconnected(userID, time.Until(graceDeadline))
		}
	case StateCountdown:
		m.releaseSeatLocked(ctx, l, userID, "disconnect")
		m.mu.Unlock()
	default:
		seat.Connected = false
		m.broadcastUpdate(l)
		m.mu.Unlock()
	}
}

// HandleReconnect rebinds a user who returned within grace.
func (m *Manager) HandleReconnect(userID string) {
	m.mu.Lock()
	lobbyID, ok := m.seatIndex[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	l := m.lobby(lobbyID)
	seat := l.seat(userID)
	if seat == nil {
		m.mu.Unlock()
		return
	}
	seat.Connected = true
	if l.State == StateInProgress {
		runner := m.runners[lobbyID]
		m.mu.Unlock()
		if runner != nil {
			runner.PlayerReconnected(userID)
		}
		return
	}
	m.broadcastUpdate(l)
	m.mu.Unlock()
}

// HandleLeave removes a user who closed the connection on purpose. Same
// consequences as an expired grace window: forfeit mid-match, otherwise the
// seat releases with a refund.
func (m *Manager) HandleLeave(ctx context.Context, userID string) {
	m.GraceExpired(ctx, userID)
}

// GraceExpired forfeits a user whose reconnect window ran out.
func (m *Manager) GraceExpired(ctx context.Context, userID string) {
	m.mu.Lock()
	lobbyID, ok := m.seatIndex[userID]
	if !ok {
		m.mu.Unlock()
		return
	}
	l := m.lobby(lobbyID)
	if l.State == StateInProgress {
		runner := m.runners[lobbyID]
		m.mu.Unlock()
		if runner != nil {
			runner.Forfeit(userID)
		}
		return
	}
	m.releaseSeatLocked(ctx, l, userID, "disconnect")
	m.mu.Unlock()
}

// Reconcile repairs state after a restart: non-terminal matches void and
// their confirmed deposits are refunded.
func (m *Manager) Reconcile(ctx context.Context) error {
	running, err := m.store.ListRunningMatches(ctx)
	if err != nil {
		return fmt.Errorf("lobby: reconcile: %w", err)
	}
	for _, match := range running {
		if err := m.store.VoidMatch(ctx, match.ID, match.EndTick); err != nil {
			continue
		}
		participants, err := m.store.MatchParticipants(ctx, match.ID)
		if err != nil {
			continue
		}
		for _, p := range participants {
			deposit, err := m.store.GetDeposit(ctx, p.DepositID)
			if err != nil {
				continue
			}
			if m.store.SetDepositState(ctx, deposit.ID, store.DepositConfirmed, store.DepositRefunded, deposit.Confirmations) == nil {
				m.settler.EnqueueRefund(deposit.ID, m.walletFor(ctx, p.UserID), m.cfg.EntryFee, "server restart")
			}
		}
		m.publish(ctx, logging.EventMatchVoided, logging.SeverityWarn, logging.CategoryMatch, match.ID, nil)
	}
	return nil
}

// Stuck returns lobby ids sitting in countdown or settling beyond maxAge.
func (m *Manager) Stuck(maxAge time.Duration) []int {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	var stuck []int
	for _, l := range m.lobbies {
		if l.State != StateCountdown && l.State != StateSettling {
			continue
		}
		if now.Sub(m.stateSince[l.ID]) > maxAge {
			stuck = append(stuck, l.ID)
		}
	}
	return stuck
}

// Reset clears every lobby back to empty. Dev-mode only, via the admin edge.
func (m *Manager) Reset(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for id, cancel := range m.cancels {
		cancel()
		delete(m.cancels, id)
		delete(m.runners, id)
	}
	for _, l := range m.lobbies {
		for _, seat := range l.Seats {
			delete(m.seatIndex, seat.UserID)
		}
		l.Seats = nil
		l.MatchID = ""
		l.CountdownDeadline = time.Time{}
		m.setState(l, StateEmpty)
	}
}

// Seated reports whether the user currently holds a seat anywhere.
func (m *Manager) Seated(userID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.seatIndex[userID]
	return ok
}

// SeatCount reports the occupancy of one lobby.
func (m *Manager) SeatCount(lobbyID int) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if l := m.lobby(lobbyID); l != nil {
		return len(l.Seats)
	}
	return 0
}

// States reports each lobby's state for diagnostics.
func (m *Manager) States() map[int]string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make(map[int]string, len(m.lobbies))
	for _, l := range m.lobbies {
		out[l.ID] = string(l.State)
	}
	return out
}

func (m *Manager) lobby(id int) *Lobby {
	for _, l := range m.lobbies {
		if l.ID == id {
			return l
		}
	}
	return nil
}

func (m *Manager) seatByDeposit(depositID string) (*Lobby, *Seat) {
	for _, l := range m.lobbies {
		for _, s := range l.Seats {
			if s.DepositID == depositID {
				return l, s
			}
		}
	}
	return nil, nil
}

func (m *Manager) setState(l *Lobby, next State) {
	if l.State == next {
		return
	}
	l.State = next
	m.stateSince[l.ID] = m.now()
	m.events.Publish(context.Background(), logging.Event{
		Type:     logging.EventLobbyTransition,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryLobby,
		Actor:    logging.EntityRef{ID: fmt.Sprintf("lobby-%d", l.ID), Kind: logging.EntityKindLobby},
		Extra:    map[string]any{"state": string(next)},
	})
}

func (m *Manager) broadcastUpdate(l *Lobby) {
	update := l.update(m.now())
	for _, s := range l.Seats {
		m.sender.Send(s.UserID, update)
	}
}

func (m *Manager) publish(ctx context.Context, eventType logging.EventType, severity logging.Severity, category, actorID string, l *Lobby) {
	event := logging.Event{
		Type:     eventType,
		Severity: severity,
		Category: category,
		Actor:    logging.EntityRef{ID: actorID, Kind: logging.EntityKindPlayer},
	}
	if l != nil {
		event.Targets = []logging.EntityRef{{ID: fmt.Sprintf("lobby-%d", l.ID), Kind: logging.EntityKindLobby}}
	}
	m.events.Publish(ctx, event)
}

func (m *Manager) params() arena.Params {
	return arena.Params{
		Width:       m.cfg.ArenaWidth,
		Height:      m.cfg.ArenaHeight,
		Radius:      m.cfg.PlayerRadius,
		HeartRadius: m.cfg.HeartRadius,
		MaxSpeed:    m.cfg.MaxSpeed,
	}
}

func (m *Manager) payoutAmount() money.Amount {
	return m.cfg.PayoutAmount
}

func (m *Manager) walletFor(ctx context.Context, userID string) string {
	user, err := m.store.GetUser(ctx, userID)
	if err != nil {
		return ""
	}
	return user.Wallet
}

func errp(code int, message string) *proto.Error {
	e := proto.Errorf(code, message)
	return &e
}

// isSyntheticHash detects dev-mode fabricated hashes.
func isSyntheticHash(txHash string) bool {
	return strings.HasPrefix(txHash, "dev-")
}
