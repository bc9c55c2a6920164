// Package session binds authenticated users to live transports and enforces
// the per-connection policies: rate limits, per-IP caps, and the reconnect
// grace window.
package session

import (
	"errors"
	"sync"
	"time"
)

var (
	ErrTooManyConns      = errors.New("session: too many connections from this address")
	ErrUnknownUser       = errors.New("session: no session for user")
	ErrGraceExpired      = errors.New("session: reconnect grace expired")
	ErrTransportReplaced = errors.New("session: transport already replaced")
)

// Transport is the outbound half of a connection. Send must not block the
// caller; implementations queue internally.
type Transport interface {
	Send(message any) error
	Close() error
}

// Session is one authenticated user's presence, surviving transport loss for
// the grace window.
type Session struct {
	UserID         string
	Wallet         string
	IP             string
	Token          string // current session token, refreshed on rotation
	ConnectedAt    time.Time
	DisconnectedAt time.Time // zero while a transport is bound

	transport Transport
}

// Connected reports whether a live transport is bound.
func (s *Session) Connected() bool { return s.transport != nil }

// Registry tracks every live session. All mutation is serialized internally;
// callers hold no locks.
type Registry struct {
	mu       sync.Mutex
	sessions map[string]*Session
	perIP    map[string]int

	maxPerIP int
	grace    time.Duration
	now      func() time.Time
}

func NewRegistry(maxPerIP int, grace time.Duration) *Registry {
	return &Registry{
		sessions: make(map[string]*Session),
		perIP:    make(map[string]int),
		maxPerIP: maxPerIP,
		grace:    grace,
		now:      time.Now,
	}
}

// Bind attaches a transport for the user. If the user is inside the grace
// window the existing session rebinds and rebound is true; a bind attempt for
// a user with a live transport replaces it (account reconnect from a new tab)
// after closing the old one.
func (r *Registry) Bind(userID, wallet, ip, token string, t Transport) (s *Session, rebound bool, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	existing, ok := r.sessions[userID]
	if !ok && r.maxPerIP > 0 && r.perIP[ip] >= r.maxPerIP {
		return nil, false, ErrTooManyConns
	}

	if ok {
		if existing.transport != nil {
			// Replacing from the same address frees a slot for the one it
			// takes; a new address has to pass the cap on its own.
			if r.maxPerIP > 0 && ip != existing.IP && r.perIP[ip] >= r.maxPerIP {
				return nil, false, ErrTooManyConns
			}
			existing.transport.Close()
			r.perIP[existing.IP]--
			if r.perIP[existing.IP] <= 0 {
				delete(r.perIP, existing.IP)
			}
		} else {
			if r.now().Sub(existing.DisconnectedAt) > r.grace {
				// Grace ran out but the reaper has not collected yet;
				// treat as a fresh session.
				r.dropLocked(userID)
				ok = false
			} else {
				rebound = true
			}
		}
	}

	if !ok {
		existing = &Session{UserID: userID, Wallet: wallet, ConnectedAt: r.now()}
		r.sessions[userID] = existing
	}
	existing.IP = ip
	existing.Token = token
	existing.transport = t
	existing.DisconnectedAt = time.Time{}
	r.perIP[ip]++
	return existing, rebound, nil
}

// Detach records transport loss and starts the grace window. The deadline by
// which the user must rebind is returned. When t is no longer the bound
// transport (a replacement bind already happened) the call changes nothing
// and reports ErrTransportReplaced.
func (r *Registry) Detach(userID string, t Transport) (deadline time.Time, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return time.Time{}, ErrUnknownUser
	}
	if s.transport != t {
		return time.Time{}, ErrTransportReplaced
	}
	r.perIP[s.IP]--
	if r.perIP[s.IP] <= 0 {
		delete(r.perIP, s.IP)
	}
	s.transport = nil
	s.DisconnectedAt = r.now()
	return s.DisconnectedAt.Add(r.grace), nil
}

// Remove destroys the session outright (voluntary client close). Guarded by
// the same transport check as Detach; a stale call from a replaced connection
// changes nothing. The session's current token is returned so the edge can
// revoke it.
func (r *Registry) Remove(userID string, t Transport) (token string, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, found := r.sessions[userID]
	if !found || s.transport != t {
		return "", false
	}
	token = s.Token
	r.dropLocked(userID)
	return token, true
}

// UpdateToken records the freshly rotated token for the session.
func (r *Registry) UpdateToken(userID, token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[userID]; ok {
		s.Token = token
	}
}

func (r *Registry) dropLocked(userID string) {
	s, ok := r.sessions[userID]
	if !ok {
		return
	}
	if s.transport != nil {
		s.transport.Close()
		r.perIP[s.IP]--
		if r.perIP[s.IP] <= 0 {
			delete(r.perIP, s.IP)
		}
	}
	delete(r.sessions, userID)
}

// Send delivers a message to the user's transport if one is bound.
func (r *Registry) Send(userID string, message any) error {
	r.mu.Lock()
	s, ok := r.sessions[userID]
	var t Transport
	if ok {
		t = s.transport
	}
	r.mu.Unlock()
	if !ok {
		return ErrUnknownUser
	}
	if t == nil {
		return ErrGraceExpired
	}
	return t.Send(message)
}

// Lookup returns a copy of the session state.
func (r *Registry) Lookup(userID string) (Session, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sessions[userID]
	if !ok {
		return Session{}, false
	}
	return *s, true
}

// ReapExpired removes every detached session whose grace ran out and returns
// their user ids. The caller turns these into forfeits.
func (r *Registry) ReapExpired() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := r.now()
	var expired []string
	for userID, s := range r.sessions {
		if s.transport == nil && now.Sub(s.DisconnectedAt) > r.grace {
			expired = append(expired, userID)
			delete(r.sessions, userID)
		}
	}
	return expired
}

// Connected lists a copy of every session with a live transport. Used by the
// token rotation sweep.
func (r *Registry) Connected() []Session {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []Session
	for _, s := range r.sessions {
		if s.transport != nil {
			out = append(out, *s)
		}
	}
	return out
}

// Count returns the number of tracked sessions (connected or in grace).
func (r *Registry) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.sessions)
}
