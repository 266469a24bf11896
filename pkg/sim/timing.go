package sim

import (
	"context"
	"time"
)

// timingWindow is the number of ResponseTiming records retained in memory.
const timingWindow = 100

// ResponseTiming is an immutable record of one completed generation.
type ResponseTiming struct {
	ResponseID  string
	TemplateKey string
	Duration    time.Duration
	CompletedAt time.Time
}

// TimingSink receives every ResponseTiming for persistent storage, in
// addition to the client's in-memory window. Append errors are logged by
// the client and never affect the session.
type TimingSink interface {
	Append(ctx context.Context, t ResponseTiming) error
}

// appendTimingLocked adds a record to the bounded window, dropping the
// oldest entry once the window is full. Must be called with c.mu held.
func (c *Client) appendTimingLocked(t ResponseTiming) {
	c.timings = append(c.timings, t)
	if len(c.timings) > timingWindow {
		c.timings = c.timings[len(c.timings)-timingWindow:]
	}
}

// Timings returns a copy of the retained timing window, oldest first.
func (c *Client) Timings() []ResponseTiming {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]ResponseTiming, len(c.timings))
	copy(out, c.timings)
	return out
}
