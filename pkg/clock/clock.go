package clock

import (
	"context"
	"sync"
	"time"
)

// Clock abstracts time so the pipeline can be tested with an injected fake.
// It is the only source of "now" and "today" in the scan and notification code.
type Clock interface {
	Now() time.Time
	Sleep(ctx context.Context, d time.Duration)
	Today() time.Time
}

// SystemClock is the wall-clock implementation
type SystemClock struct{}

// NewSystemClock creates a new system clock
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current UTC time
func (c *SystemClock) Now() time.Time {
	return time.Now().UTC()
}

// Sleep blocks for d or until the context is cancelled
func (c *SystemClock) Sleep(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}

// Today returns the current UTC date truncated to midnight
func (c *SystemClock) Today() time.Time {
	return Midnight(c.Now())
}

// Midnight truncates t to the start of its UTC day
func Midnight(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// Pacer enforces a minimum gap between successive calls within one stage.
// Each stage paces independently; there is no global rate.
type Pacer struct {
	clock Clock
	gap   time.Duration

	mu   sync.Mutex
	last time.Time
}

// NewPacer creates a pacer with the given minimum gap
func NewPacer(clock Clock, gap time.Duration) *Pacer {
	return &Pacer{clock: clock, gap: gap}
}

// Wait sleeps long enough that at least the configured gap has passed
// since the previous Wait returned. The first call never sleeps. Returns
// the context error if the wait was cut short by cancellation.
func (p *Pacer) Wait(ctx context.Context) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	now := p.clock.Now()
	if !p.last.IsZero() {
		elapsed := now.Sub(p.last)
		if elapsed < p.gap {
			p.clock.Sleep(ctx, p.gap-elapsed)
			if err := ctx.Err(); err != nil {
				return err
			}
		}
	}
	p.last = p.clock.Now()
	return nil
}

// FakeClock is a deterministic clock for tests. Sleep advances it instantly.
type FakeClock struct {
	mu  sync.Mutex
	now time.Time

	// SleptFor records every Sleep duration in order
	SleptFor []time.Duration
}

// NewFakeClock creates a fake clock starting at t
func NewFakeClock(t time.Time) *FakeClock {
	return &FakeClock{now: t.UTC()}
}

// Now returns the fake current time
func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Sleep advances the fake time by d without blocking
func (c *FakeClock) Sleep(ctx context.Context, d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if d > 0 {
		c.now = c.now.Add(d)
	}
	c.SleptFor = append(c.SleptFor, d)
}

// Today returns the fake date truncated to midnight
func (c *FakeClock) Today() time.Time {
	return Midnight(c.Now())
}

// Advance moves the fake time forward by d
func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// SetTime sets the fake time to t
func (c *FakeClock) SetTime(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t.UTC()
}
