package lobby

import (
	"context"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"triad-arena/server/internal/proto"
	"triad-arena/server/internal/store"
)

// BotPool seats scripted players through the admin edge. Dev mode only; the
// deposits are synthetic and the inputs come from a driver goroutine instead
// of a websocket.
type BotPool struct {
	manager *Manager
	store   store.Store
	ctx     context.Context
	counter atomic.Uint64
}

func NewBotPool(ctx context.Context, manager *Manager, st store.Store) *BotPool {
	return &BotPool{manager: manager, store: st, ctx: ctx}
}

// Add seats one bot and starts its driver. Returns the bot's user id.
func (b *BotPool) Add(lobbyID int) (string, error) {
	n := b.counter.Add(1)
	wallet := fmt.Sprintf("0xb07%037x", n)
	user, err := b.store.UpsertUserByWallet(b.ctx, wallet)
	if err != nil {
		return "", fmt.Errorf("lobby: bot user: %w", err)
	}
	txHash := "dev-bot-" + uuid.NewString()
	if perr := b.manager.Join(b.ctx, user.ID, lobbyID, txHash, true); perr != nil {
		return "", fmt.Errorf("lobby: bot join: %s", perr.Message)
	}
	go b.drive(user.ID, int64(n))
	return user.ID, nil
}

// Fill tops the lobby up to three seats.
func (b *BotPool) Fill(lobbyID int) ([]string, error) {
	var added []string
	for b.manager.SeatCount(lobbyID) < 3 {
		id, err := b.Add(lobbyID)
		if err != nil {
			return added, err
		}
		added = append(added, id)
	}
	return added, nil
}

// drive feeds wandering inputs until the seat is gone.
func (b *BotPool) drive(userID string, seed int64) {
	rng := rand.New(rand.NewSource(seed))
	ticker := time.NewTicker(100 * time.Millisecond)
	defer ticker.Stop()

	var seq uint64
	dx, dy := rng.Intn(3)-1, rng.Intn(3)-1
	for {
		select {
		case <-b.ctx.Done():
			return
		case <-ticker.C:
		}
		if !b.manager.Seated(userID) {
			return
		}
		if rng.Intn(10) == 0 {
			dx, dy = rng.Intn(3)-1, rng.Intn(3)-1
		}
		seq++
		b.manager.RouteInput(userID, proto.Input{
			Type: proto.TypeInput, DirX: dx, DirY: dy, Sequence: seq,
		})
	}
}
