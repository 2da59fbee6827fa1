package capture

import (
	"sync"
	"time"
)

// FrameClock gates the fusion pass on new frames and hands out pass
// timestamps that never go backwards, even if the wall clock does.
type FrameClock struct {
	mu        sync.Mutex
	now       func() time.Time
	lastStamp int64
	lastFrame int64
	seen      bool
}

// NewFrameClock returns a clock reading the wall clock.
func NewFrameClock() *FrameClock {
	return &FrameClock{now: time.Now}
}

// NewFrameClockWithNow returns a clock reading now instead of the wall clock.
func NewFrameClockWithNow(now func() time.Time) *FrameClock {
	return &FrameClock{now: now}
}

// Observe reports the stamp for this pass in milliseconds and whether the
// frame differs from the last one observed. A stale or missing frame leaves
// the clock's frame memory untouched and returns fresh == false.
func (c *FrameClock) Observe(frame *Frame) (int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stamp := c.now().UnixMilli()
	if stamp < c.lastStamp {
		stamp = c.lastStamp
	}
	c.lastStamp = stamp

	if frame == nil || frame.Mat == nil {
		return stamp, false
	}
	if c.seen && frame.Timestamp == c.lastFrame {
		return stamp, false
	}

	c.lastFrame = frame.Timestamp
	c.seen = true
	return stamp, true
}

// Reset forgets the last frame, so the next frame is always fresh.
// The stamp stays monotonic across resets.
func (c *FrameClock) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.seen = false
	c.lastFrame = 0
}
