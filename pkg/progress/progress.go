// Package progress provides the clock, time budgets and heartbeat logging
// passed into long-running passes.
package progress

import (
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Clock reports the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock reads the wall clock.
type SystemClock struct{}

// Now returns time.Now().
func (SystemClock) Now() time.Time { return time.Now() }

// ManualClock is a Clock for tests. Every call to Now advances it by Step.
type ManualClock struct {
	mu   sync.Mutex
	now  time.Time
	Step time.Duration
}

// NewManualClock returns a clock starting at start.
func NewManualClock(start time.Time, step time.Duration) *ManualClock {
	return &ManualClock{now: start, Step: step}
}

// Now returns the current reading and then advances by Step.
func (c *ManualClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now
	c.now = c.now.Add(c.Step)
	return t
}

// Advance moves the clock forward by d.
func (c *ManualClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

// Budget is a soft wall-clock deadline. A zero limit never expires.
type Budget struct {
	clock Clock
	start time.Time
	limit time.Duration
}

// NewBudget starts a budget of limit on clock. A nil clock uses SystemClock.
func NewBudget(clock Clock, limit time.Duration) Budget {
	if clock == nil {
		clock = SystemClock{}
	}
	return Budget{clock: clock, start: clock.Now(), limit: limit}
}

// Expired reports whether the budget is spent.
func (b Budget) Expired() bool {
	if b.limit <= 0 {
		return false
	}
	return b.clock.Now().Sub(b.start) >= b.limit
}

// Elapsed returns the time since the budget started.
func (b Budget) Elapsed() time.Duration {
	return b.clock.Now().Sub(b.start)
}

// Reporter emits heartbeat log lines at most once per interval.
// A nil *Reporter is valid and silent.
type Reporter struct {
	clock    Clock
	logger   zerolog.Logger
	interval time.Duration
	enabled  bool

	mu   sync.Mutex
	last time.Time
}

// NewReporter creates a reporter. When enabled is false it stays silent.
func NewReporter(clock Clock, logger zerolog.Logger, interval time.Duration, enabled bool) *Reporter {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Reporter{
		clock:    clock,
		logger:   logger,
		interval: interval,
		enabled:  enabled,
		last:     clock.Now(),
	}
}

// Clock returns the reporter's clock, or SystemClock for a nil reporter.
func (r *Reporter) Clock() Clock {
	if r == nil {
		return SystemClock{}
	}
	return r.clock
}

// Tick logs "done of total" for stage when the interval has elapsed since
// the previous line. It reports whether a line was written.
func (r *Reporter) Tick(stage string, done, total int) bool {
	if r == nil || !r.enabled {
		return false
	}
	r.mu.Lock()
	now := r.clock.Now()
	if now.Sub(r.last) < r.interval {
		r.mu.Unlock()
		return false
	}
	r.last = now
	r.mu.Unlock()

	pct := 0.0
	if total > 0 {
		pct = 100 * float64(done) / float64(total)
	}
	r.logger.Info().
		Str("stage", stage).
		Int("done", done).
		Int("total", total).
		Float64("percent", pct).
		Msg("Progress")
	return true
}

// Phase logs the completion of a named phase with its duration.
func (r *Reporter) Phase(name string, took time.Duration) {
	if r == nil || !r.enabled {
		return
	}
	r.logger.Info().Str("phase", name).Dur("took", took).Msg("Phase completed")
}
