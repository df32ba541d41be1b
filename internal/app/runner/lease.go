package runner

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Lease guards against overlapping runs. Unlike a plain boolean flag it
// carries an owner token and an expiry, so a run that died without
// releasing cannot wedge the scheduler forever: once the TTL passes the
// next attempt steals the lease.
type Lease struct {
	mu      sync.Mutex
	ttl     time.Duration
	owner   string
	expires time.Time
	now     func() time.Time
}

func NewLease(ttl time.Duration) *Lease {
	if ttl <= 0 {
		ttl = 10 * time.Minute
	}
	return &Lease{ttl: ttl, now: time.Now}
}

// TryAcquire returns an owner token, or false while a live holder
// exists.
func (l *Lease) TryAcquire() (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if l.owner != "" && now.Before(l.expires) {
		return "", false
	}
	l.owner = uuid.NewString()
	l.expires = now.Add(l.ttl)
	return l.owner, true
}

// Release frees the lease if the token still owns it. A stale token
// after a steal is a no-op.
func (l *Lease) Release(owner string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.owner == owner {
		l.owner = ""
		l.expires = time.Time{}
	}
}
