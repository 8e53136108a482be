// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package mockable

import (
	"sync"
	"time"
)

// Clock wraps global time so that it can be pinned and stepped in tests
// and by hosts that execute against a block timestamp.
// It is safe for concurrent use.
type Clock struct {
	mu    sync.RWMutex
	faked bool
	time  time.Time
}

// Set pins the clock to t.
func (c *Clock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = true
	c.time = t
}

// Advance moves a pinned clock forward by d. An unpinned clock is pinned
// to the current wall time first.
func (c *Clock) Advance(d time.Duration) time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.faked {
		c.faked = true
		c.time = time.Now()
	}
	c.time = c.time.Add(d)
	return c.time
}

// Sync releases the clock back to wall time.
func (c *Clock) Sync() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.faked = false
}

// Time returns the time on this clock.
func (c *Clock) Time() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.faked {
		return c.time
	}
	return time.Now()
}

// UnixMilli returns the clock time in milliseconds.
func (c *Clock) UnixMilli() uint64 {
	return uint64(max(c.Time().UnixMilli(), 0))
}
