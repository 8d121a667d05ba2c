package http

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// maxTrackedUsers bounds the limiter table before idle entries are pruned.
const maxTrackedUsers = 4096

// Limiter enforces a token bucket per user id.
type Limiter struct {
	mu    sync.Mutex
	limit rate.Limit
	burst int
	idle  time.Duration
	users map[string]*userLimiter
	now   func() time.Time
}

type userLimiter struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewLimiter allows perMinute turns per user with bursts of burst.
// A non-positive perMinute disables limiting (returns nil).
func NewLimiter(perMinute, burst int) *Limiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = 1
	}
	return &Limiter{
		limit: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
		idle:  10 * time.Minute,
		users: make(map[string]*userLimiter),
		now:   time.Now,
	}
}

// Allow reports whether userID may run a turn now. A nil Limiter allows everything.
func (l *Limiter) Allow(userID string) bool {
	if l == nil {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	u, ok := l.users[userID]
	if !ok {
		if len(l.users) >= maxTrackedUsers {
			l.prune(now)
		}
		u = &userLimiter{lim: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = u
	}
	u.seen = now
	return u.lim.AllowN(now, 1)
}

// prune drops users idle for longer than l.idle. Caller holds l.mu.
func (l *Limiter) prune(now time.Time) {
	for id, u := range l.users {
		if now.Sub(u.seen) > l.idle {
			delete(l.users, id)
		}
	}
}
