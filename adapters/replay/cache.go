// Package replay tracks envelope nonces seen within the clock-skew window.
// Timestamp checking alone leaves a window in which a captured request could
// be resent; rejecting repeated nonces inside that window closes it.
package replay

import (
	"sync"
	"time"

	"github.com/clearshot/handshake/ports"
)

// Cache is a thread-safe TTL cache over (identity, nonce) pairs. Expired
// entries are cleared by a periodic sweep.
type Cache struct {
	mu   sync.Mutex
	seen map[string]time.Time
	ttl  time.Duration
	done chan struct{}
	once sync.Once
}

// NewCache creates a cache that remembers nonces for ttl and sweeps expired
// entries in the background.
func NewCache(ttl time.Duration) *Cache {
	c := &Cache{
		seen: make(map[string]time.Time),
		ttl:  ttl,
		done: make(chan struct{}),
	}
	go c.sweepLoop()
	return c
}

var _ ports.ReplayGuard = (*Cache)(nil)

// Seen atomically records the nonce for identityKey and reports whether it
// was already present and unexpired. Check and mark happen under one lock so
// two concurrent requests with the same nonce cannot both pass.
func (c *Cache) Seen(identityKey, nonce string) bool {
	key := identityKey + "\x00" + nonce

	c.mu.Lock()
	defer c.mu.Unlock()

	if at, ok := c.seen[key]; ok && time.Since(at) < c.ttl {
		return true
	}
	c.seen[key] = time.Now()
	return false
}

func (c *Cache) sweepLoop() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sweep()
		case <-c.done:
			return
		}
	}
}

func (c *Cache) sweep() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := time.Now()
	for key, at := range c.seen {
		if now.Sub(at) >= c.ttl {
			delete(c.seen, key)
		}
	}
}

// Close stops the background sweep. Safe to call more than once.
func (c *Cache) Close() {
	c.once.Do(func() { close(c.done) })
}
