package lobby

import (
	"context"
	"time"

	"triad-arena/server/internal/proto"
)

// Dispatcher adapts the Manager to the websocket edge. Frames arriving here
// are already decoded, authenticated, and rate-admitted.
type Dispatcher struct {
	Manager *Manager
	Sender  Sender
}

func (d *Dispatcher) OnConnect(userID string, rebound bool) {
	d.Sender.Send(userID, d.Manager.Summaries())
	if rebound {
		d.Manager.HandleReconnect(userID)
	}
}

func (d *Dispatcher) OnMessage(userID string, message any) {
	switch msg := message.(type) {
	case proto.JoinLobby:
		if perr := d.Manager.Join(context.Background(), userID, msg.LobbyID, msg.PaymentTxHash, false); perr != nil {
			d.Sender.Send(userID, *perr)
		}
	case proto.RequestRefund:
		if perr := d.Manager.RequestRefund(context.Background(), userID, msg.LobbyID); perr != nil {
			d.Sender.Send(userID, *perr)
		}
	case proto.Input:
		d.Manager.RouteInput(userID, msg)
	}
}

func (d *Dispatcher) OnDisconnect(userID string, deadline time.Time) {
	d.Manager.HandleDisconnect(context.Background(), userID, deadline)
}

func (d *Dispatcher) OnClose(userID string) {
	d.Manager.HandleLeave(context.Background(), userID)
}
