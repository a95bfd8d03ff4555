package api

import (
	"context"
	"time"
)

// Cooldown spaces out expensive requests (manual refreshes, exports) per
// client IP. Cheap requests are never limited. Like the cache it keeps its
// map inside a single goroutine.
type Cooldown struct {
	interval time.Duration
	requests chan cooldownRequest
	quit     chan struct{}
	now      func() time.Time
}

type cooldownRequest struct {
	key   string
	reply chan time.Duration
}

// NewCooldown starts the limiter. A non-positive interval returns nil, which
// allows every request.
func NewCooldown(interval time.Duration) *Cooldown {
	if interval <= 0 {
		return nil
	}
	c := &Cooldown{
		interval: interval,
		requests: make(chan cooldownRequest),
		quit:     make(chan struct{}),
		now:      time.Now,
	}
	go c.loop()
	return c
}

// Allow reports whether key may proceed now. When it may not, the second
// result is how long the client should wait.
func (c *Cooldown) Allow(ctx context.Context, key string) (bool, time.Duration) {
	if c == nil {
		return true, 0
	}
	req := cooldownRequest{key: key, reply: make(chan time.Duration, 1)}
	select {
	case c.requests <- req:
	case <-c.quit:
		return true, 0
	case <-ctx.Done():
		return false, 0
	}
	wait := <-req.reply
	return wait <= 0, wait
}

// Close stops the goroutine. Safe to call more than once.
func (c *Cooldown) Close() {
	if c == nil {
		return
	}
	select {
	case <-c.quit:
	default:
		close(c.quit)
	}
}

func (c *Cooldown) loop() {
	last := make(map[string]time.Time)
	sweep := time.NewTicker(10 * c.interval)
	defer sweep.Stop()

	for {
		select {
		case <-c.quit:
			return
		case <-sweep.C:
			now := c.now()
			for k, t := range last {
				if now.Sub(t) >= c.interval {
					delete(last, k)
				}
			}
		case req := <-c.requests:
			now := c.now()
			if t, ok := last[req.key]; ok {
				if readyAt := t.Add(c.interval); now.Before(readyAt) {
					req.reply <- readyAt.Sub(now)
					continue
				}
			}
			last[req.key] = now
			req.reply <- 0
		}
	}
}
