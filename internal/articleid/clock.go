package articleid

import (
	"sync"
	"time"
)

// Clock hands out strictly increasing microsecond timestamps. Two calls never
// return the same value, even if the wall clock stalls or steps backwards.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last int64
}

func NewClock() *Clock {
	return &Clock{now: time.Now}
}

// NewClockAt is NewClock with an injected time source.
func NewClockAt(now func() time.Time) *Clock {
	return &Clock{now: now}
}

func (c *Clock) Next() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.last = max(c.now().UnixMicro(), c.last+1)
	return c.last
}

// Now returns the wall time in seconds, the resolution of updated_at.
func (c *Clock) Now() int64 {
	return c.now().Unix()
}
