package ws

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"triad-arena/server/internal/auth"
	"triad-arena/server/internal/proto"
	"triad-arena/server/internal/session"
	"triad-arena/server/internal/store"
	"triad-arena/server/logging"
)

// Dispatcher receives decoded frames from authenticated connections. The
// edge guarantees the user id on every call was bound through HELLO.
type Dispatcher interface {
	// OnConnect fires after WELCOME is sent; rebound is true when the user
	// returned inside the reconnect grace window.
	OnConnect(userID string, rebound bool)
	// OnMessage delivers a decoded, rate-admitted frame.
	OnMessage(userID string, message any)
	// OnDisconnect fires on transport loss; deadline is the grace expiry.
	OnDisconnect(userID string, deadline time.Time)
	// OnClose fires when the client closed on purpose; no grace applies.
	OnClose(userID string)
}

// Handler upgrades websocket connections and runs the session protocol.
type Handler struct {
	Tokens   *auth.Tokens
	Store    store.Store
	Registry *session.Registry
	Dispatch Dispatcher
	Events   logging.Publisher

	Limits           session.Limits
	HandshakeTimeout time.Duration
	ReadTimeout      time.Duration
	MaxFrameBytes    int64

	Upgrader websocket.Upgrader
}

func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := h.Upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	ws.SetReadLimit(h.MaxFrameBytes)
	conn := newConn(ws)

	userID, rebound, ok := h.handshake(r.Context(), ws, conn, clientIP(r))
	if !ok {
		return
	}

	h.Events.Publish(r.Context(), logging.Event{
		Type:     logging.EventSessionOpened,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Actor:    logging.EntityRef{ID: userID, Kind: logging.EntityKindPlayer},
	})
	h.Dispatch.OnConnect(userID, rebound)
	h.readLoop(r.Context(), ws, conn, userID)
}

// handshake enforces HELLO-first with a hard deadline. Any failure closes
// the transport after a typed error.
func (h *Handler) handshake(ctx context.Context, ws *websocket.Conn, conn *Conn, ip string) (userID string, rebound bool, ok bool) {
	ws.SetReadDeadline(time.Now().Add(h.HandshakeTimeout))
	_, data, err := ws.ReadMessage()
	if err != nil {
		conn.closeWith(websocket.ClosePolicyViolation, "handshake timeout")
		return "", false, false
	}

	decoded, err := proto.Decode(data)
	if err != nil {
		conn.Send(proto.Errorf(proto.CodeMalformedFrame, "malformed handshake"))
		conn.closeWith(websocket.ClosePolicyViolation, "malformed handshake")
		return "", false, false
	}
	hello, isHello := decoded.(proto.Hello)
	if !isHello {
		conn.Send(proto.Errorf(proto.CodeHandshakeFirst, "HELLO must be the first frame"))
		conn.closeWith(websocket.ClosePolicyViolation, "handshake first")
		return "", false, false
	}

	userID, err = h.Tokens.Validate(ctx, hello.SessionToken)
	if err != nil {
		code := proto.CodeInvalidToken
		if errors.Is(err, auth.ErrTokenExpired) {
			code = proto.CodeExpiredToken
		}
		conn.Send(proto.Errorf(code, "session token rejected"))
		conn.closeWith(websocket.ClosePolicyViolation, "bad token")
		return "", false, false
	}

	user, err := h.Store.GetUser(ctx, userID)
	if err != nil {
		conn.Send(proto.Errorf(proto.CodeStoreError, "user lookup failed"))
		conn.closeWith(websocket.CloseInternalServerErr, "store error")
		return "", false, false
	}

	_, rebound, err = h.Registry.Bind(userID, user.Wallet, ip, hello.SessionToken, conn)
	if err != nil {
		conn.Send(proto.Errorf(proto.CodeLobbyNotJoinable, "too many connections"))
		conn.closeWith(websocket.ClosePolicyViolation, "connection limit")
		return "", false, false
	}

	conn.Send(proto.Welcome{
		Type:       proto.TypeWelcome,
		UserID:     userID,
		ServerTime: time.Now().UnixMilli(),
	})
	return userID, rebound, true
}

func (h *Handler) readLoop(ctx context.Context, ws *websocket.Conn, conn *Conn, userID string) {
	limiter := session.NewLimiter(h.Limits)

	for {
		ws.SetReadDeadline(time.Now().Add(h.ReadTimeout))
		_, data, err := ws.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				h.left(ctx, conn, userID)
				return
			}
			if errors.Is(err, websocket.ErrReadLimit) {
				conn.closeWith(websocket.CloseMessageTooBig, "frame too large")
			}
			h.lost(ctx, conn, userID)
			return
		}

		decoded, err := proto.Decode(data)
		switch {
		case errors.Is(err, proto.ErrUnknownType):
			conn.Send(proto.Errorf(proto.CodeUnknownType, "unknown message type"))
			continue
		case errors.Is(err, proto.ErrFrameTooLarge):
			conn.Send(proto.Errorf(proto.CodeOversizeFrame, "frame too large"))
			conn.closeWith(websocket.CloseMessageTooBig, "frame too large")
			h.lost(ctx, conn, userID)
			return
		case err != nil:
			conn.Send(proto.Errorf(proto.CodeMalformedFrame, "malformed frame"))
			conn.closeWith(websocket.ClosePolicyViolation, "malformed frame")
			h.lost(ctx, conn, userID)
			return
		}

		switch msg := decoded.(type) {
		case proto.Input:
			if !limiter.AllowInput() {
				h.rateLimited(ctx, conn, limiter, userID)
				continue
			}
			h.Dispatch.OnMessage(userID, msg)
		case proto.Ping:
			if !limiter.AllowOther() {
				h.rateLimited(ctx, conn, limiter, userID)
				continue
			}
			conn.Send(proto.Pong{
				Type:       proto.TypePong,
				ClientTime: msg.ClientTime,
				ServerTime: time.Now().UnixMilli(),
			})
		case proto.Hello:
			conn.Send(proto.Errorf(proto.CodeHandshakeFirst, "already authenticated"))
		default:
			if !limiter.AllowOther() {
				h.rateLimited(ctx, conn, limiter, userID)
				continue
			}
			h.Dispatch.OnMessage(userID, msg)
		}
	}
}

// rateLimited drops the frame and surfaces at most one error per second.
func (h *Handler) rateLimited(ctx context.Context, conn *Conn, limiter *session.Limiter, userID string) {
	if !limiter.Surface() {
		return
	}
	conn.Send(proto.Errorf(proto.CodeRateLimited, "rate limited"))
	h.Events.Publish(ctx, logging.Event{
		Type:     logging.EventRateLimited,
		Severity: logging.SeverityWarn,
		Category: logging.CategoryNetwork,
		Actor:    logging.EntityRef{ID: userID, Kind: logging.EntityKindPlayer},
	})
}

// lost handles transport failure: the session detaches and the grace window
// opens. A detach racing a replacement bind is a no-op so the fresh
// connection keeps its binding.
func (h *Handler) lost(ctx context.Context, conn *Conn, userID string) {
	conn.Close()
	deadline, err := h.Registry.Detach(userID, conn)
	if err != nil {
		return
	}
	h.Events.Publish(ctx, logging.Event{
		Type:     logging.EventSessionClosed,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Actor:    logging.EntityRef{ID: userID, Kind: logging.EntityKindPlayer},
	})
	h.Dispatch.OnDisconnect(userID, deadline)
}

// left handles a voluntary close: the session and its token die immediately,
// with no grace window.
func (h *Handler) left(ctx context.Context, conn *Conn, userID string) {
	conn.Close()
	token, ok := h.Registry.Remove(userID, conn)
	if !ok {
		return
	}
	h.Tokens.Revoke(ctx, token)
	h.Events.Publish(ctx, logging.Event{
		Type:     logging.EventSessionClosed,
		Severity: logging.SeverityInfo,
		Category: logging.CategoryNetwork,
		Actor:    logging.EntityRef{ID: userID, Kind: logging.EntityKindPlayer},
		Extra:    map[string]any{"voluntary": true},
	})
	h.Dispatch.OnClose(userID)
}

func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
