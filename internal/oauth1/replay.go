package oauth1

import (
	"sync"
	"time"
)

// Replay guards against nonce replays. Use marks the nonce as consumed and
// reports false when it was seen before or its timestamp is stale.
type Replay interface {
	Use(nonce string, issued time.Time) (bool, error)
}

// NonceCache is an in-memory Replay. One tool process handles every launch
// for its deployment, so process-local state is sufficient; a restart only
// shrinks the replay window.
type NonceCache struct {
	mu     sync.Mutex
	seen   map[string]time.Time
	window time.Duration
	now    func() time.Time
}

func NewNonceCache() *NonceCache {
	return &NonceCache{
		seen:   make(map[string]time.Time),
		window: MaxTimestampAge,
		now:    time.Now,
	}
}

func (c *NonceCache) Use(nonce string, issued time.Time) (bool, error) {
	now := c.now()
	age := now.Sub(issued)
	if age < -c.window || age > c.window {
		return false, nil
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for n, t := range c.seen {
		if now.Sub(t) > c.window {
			delete(c.seen, n)
		}
	}
	if _, dup := c.seen[nonce]; dup {
		return false, nil
	}
	c.seen[nonce] = now
	return true, nil
}

// NoopReplay accepts everything. For tests.
type NoopReplay struct{}

func (NoopReplay) Use(string, time.Time) (bool, error) { return true, nil }
