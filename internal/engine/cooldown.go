package engine

import (
	"sync"
	"time"
)

// cooldown keeps a pair out of planning for a while after it was extracted
// from, so a surplus is drained across cycles rather than all at once.
type cooldown struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	now  func() time.Time
}

func newCooldown(ttl time.Duration, now func() time.Time) *cooldown {
	return &cooldown{seen: make(map[string]time.Time), ttl: ttl, now: now}
}

func (c *cooldown) mark(key string) {
	if c.ttl <= 0 {
		return
	}
	c.mu.Lock()
	c.seen[key] = c.now()
	c.mu.Unlock()
}

func (c *cooldown) active(key string) bool {
	if c.ttl <= 0 {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	at, ok := c.seen[key]
	if !ok {
		return false
	}
	if c.now().Sub(at) >= c.ttl {
		delete(c.seen, key)
		return false
	}
	return true
}
