package repository

import (
	"sync"
	"time"
)

// timeResolution is the finest precision every backend stores.
const timeResolution = time.Microsecond

// Clock yields strictly increasing UTC timestamps so successive writes to the
// same row always advance updated_at.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

// NewClock wraps now; nil means time.Now.
func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

// Now returns the next timestamp, at least one resolution step after the last.
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(timeResolution)
	if !t.After(c.last) {
		t = c.last.Add(timeResolution)
	}
	c.last = t
	return t
}
