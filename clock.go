package vidpipe

import (
	"context"
	"sync"
	"time"
)

// clock measures stream time. It runs only in Playing state and is reset
// to seek position when segment changes.
type clock struct {
	m       sync.Mutex
	base    time.Time     // when clock was started last time
	elapsed time.Duration // stream time accumulated before base
	running bool
	changed chan struct{} // closed and replaced on every change
}

func (c *clock) start() {
	c.m.Lock()
	defer c.m.Unlock()
	if c.running {
		return
	}
	c.base = time.Now()
	c.running = true
	c.notify()
}

func (c *clock) pause() {
	c.m.Lock()
	defer c.m.Unlock()
	if !c.running {
		return
	}
	c.elapsed += time.Since(c.base)
	c.running = false
	c.notify()
}

func (c *clock) reset(to time.Duration) {
	c.m.Lock()
	defer c.m.Unlock()
	c.elapsed = to
	c.base = time.Now()
	c.notify()
}

// notify must be called with lock held.
func (c *clock) notify() {
	close(c.changed)
	c.changed = make(chan struct{})
}

func (c *clock) now() time.Duration {
	c.m.Lock()
	defer c.m.Unlock()
	return c.nowLocked()
}

func (c *clock) nowLocked() time.Duration {
	if c.running {
		return c.elapsed + time.Since(c.base)
	}
	return c.elapsed
}

// wait blocks until stream time reaches t. It returns how late the clock is.
func (c *clock) wait(ctx context.Context, t time.Duration) (time.Duration, error) {
	for {
		c.m.Lock()
		now := c.nowLocked()
		running := c.running
		changed := c.changed
		c.m.Unlock()
		if now >= t {
			return now - t, nil
		}
		if !running {
			select {
			case <-changed:
				continue
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		}
		timer := time.NewTimer(t - now)
		select {
		case <-timer.C:
		case <-changed:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
			return 0, ctx.Err()
		}
	}
}
