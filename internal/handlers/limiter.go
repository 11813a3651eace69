package handlers

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleLimiterTTL is how long an unused per-user limiter is kept.
const idleLimiterTTL = 10 * time.Minute

type userBucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// userLimiter rate limits commands per user.
type userLimiter struct {
	limit rate.Limit
	burst int
	now   func() time.Time

	mu        sync.Mutex
	users     map[string]*userBucket
	lastSweep time.Time
}

// newUserLimiter allows perSecond commands per user with the given burst.
// A non-positive rate disables limiting.
func newUserLimiter(perSecond float64, burst int) *userLimiter {
	return &userLimiter{
		limit: rate.Limit(perSecond),
		burst: max(burst, 1),
		now:   time.Now,
		users: make(map[string]*userBucket),
	}
}

func (l *userLimiter) Allow(userID string) bool {
	if l.limit <= 0 {
		return true
	}
	now := l.now()

	l.mu.Lock()
	defer l.mu.Unlock()
	l.sweepLocked(now)

	b, ok := l.users[userID]
	if !ok {
		b = &userBucket{lim: rate.NewLimiter(l.limit, l.burst)}
		l.users[userID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

func (l *userLimiter) sweepLocked(now time.Time) {
	if now.Sub(l.lastSweep) < idleLimiterTTL {
		return
	}
	l.lastSweep = now
	for id, b := range l.users {
		if now.Sub(b.seen) > idleLimiterTTL {
			delete(l.users, id)
		}
	}
}
