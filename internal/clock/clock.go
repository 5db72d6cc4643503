package clock

import (
	"sort"
	"sync"
	"time"
)

// Clock abstracts time operations for testability
// This allows tests to control time without relying on the system clock
type Clock interface {
	// Now returns the current time
	Now() time.Time

	// AfterFunc schedules fn to run once after d has elapsed
	AfterFunc(d time.Duration, fn func()) Timer
}

// Timer is a handle to a callback scheduled with AfterFunc
type Timer interface {
	// Stop cancels the scheduled callback
	// It reports whether the callback was stopped before it ran
	Stop() bool
}

// SystemClock uses the real system clock
type SystemClock struct{}

// NewSystemClock creates a clock that uses the real system time
func NewSystemClock() *SystemClock {
	return &SystemClock{}
}

// Now returns the current system time
func (c *SystemClock) Now() time.Time {
	return time.Now()
}

// AfterFunc schedules fn on a real timer
func (c *SystemClock) AfterFunc(d time.Duration, fn func()) Timer {
	return systemTimer{t: time.AfterFunc(d, fn)}
}

type systemTimer struct {
	t *time.Timer
}

func (t systemTimer) Stop() bool {
	return t.t.Stop()
}

// FixtureClock is a controllable clock for testing
// It allows tests to set specific times and advance time programmatically.
// Callbacks scheduled with AfterFunc run synchronously from Advance once
// their due time is reached.
type FixtureClock struct {
	mu          sync.Mutex
	currentTime time.Time
	timers      []*fixtureTimer
}

// NewFixtureClock creates a fixture clock starting at the given time
// If zero time is provided, uses time.Now()
func NewFixtureClock(startTime time.Time) *FixtureClock {
	if startTime.IsZero() {
		startTime = time.Now()
	}
	return &FixtureClock{
		currentTime: startTime,
	}
}

// Now returns the current fixture time
func (c *FixtureClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentTime
}

// AfterFunc schedules fn to run when the fixture clock reaches now + d
func (c *FixtureClock) AfterFunc(d time.Duration, fn func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := &fixtureTimer{
		clock: c,
		at:    c.currentTime.Add(d),
		fn:    fn,
	}
	c.timers = append(c.timers, t)
	return t
}

// Set sets the fixture clock to a specific time
// It does not fire pending timers; use Advance for that
func (c *FixtureClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = t
}

// Advance moves the fixture clock forward by the given duration and runs
// every scheduled callback that becomes due, in schedule order. Callbacks
// that schedule followups within the advanced window are run as well.
func (c *FixtureClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.currentTime = c.currentTime.Add(d)
	c.mu.Unlock()

	for {
		t := c.nextDueTimer()
		if t == nil {
			return
		}
		t.fn()
	}
}

// Rewind moves the fixture clock backward by the given duration
func (c *FixtureClock) Rewind(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.currentTime = c.currentTime.Add(-d)
}

// PendingTimers returns the number of scheduled callbacks that have not
// fired or been stopped
func (c *FixtureClock) PendingTimers() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, t := range c.timers {
		if !t.fired && !t.stopped {
			n++
		}
	}
	return n
}

// nextDueTimer marks and returns the earliest unfired timer that is due,
// or nil if none is due
func (c *FixtureClock) nextDueTimer() *fixtureTimer {
	c.mu.Lock()
	defer c.mu.Unlock()

	sort.SliceStable(c.timers, func(i, j int) bool {
		return c.timers[i].at.Before(c.timers[j].at)
	})

	for _, t := range c.timers {
		if t.fired || t.stopped {
			continue
		}
		if t.at.After(c.currentTime) {
			continue
		}
		t.fired = true
		return t
	}
	return nil
}

type fixtureTimer struct {
	clock   *FixtureClock
	at      time.Time
	fn      func()
	fired   bool
	stopped bool
}

func (t *fixtureTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()

	if t.fired || t.stopped {
		return false
	}
	t.stopped = true
	return true
}
