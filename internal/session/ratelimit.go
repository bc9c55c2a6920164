package session

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Limits configures the two per-connection buckets.
type Limits struct {
	InputPerSec float64
	OtherPerSec float64
}

// Limiter throttles one connection. Input frames and everything else draw
// from separate buckets so a chatty client cannot starve its own movement.
type Limiter struct {
	input *rate.Limiter
	other *rate.Limiter

	mu           sync.Mutex
	lastSurfaced time.Time
	now          func() time.Time
}

func NewLimiter(limits Limits) *Limiter {
	return &Limiter{
		input: rate.NewLimiter(rate.Limit(limits.InputPerSec), int(limits.InputPerSec)),
		other: rate.NewLimiter(rate.Limit(limits.OtherPerSec), int(limits.OtherPerSec)),
		now:   time.Now,
	}
}

// AllowInput reports whether an input frame may be processed now.
func (l *Limiter) AllowInput() bool { return l.input.Allow() }

// AllowOther reports whether a non-input frame may be processed now.
func (l *Limiter) AllowOther() bool { return l.other.Allow() }

// Surface reports whether a rate-limited error should be sent to the client.
// At most one error per second surfaces; further violations inside the window
// drop silently.
func (l *Limiter) Surface() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	now := l.now()
	if now.Sub(l.lastSurfaced) < time.Second {
		return false
	}
	l.lastSurfaced = now
	return true
}
