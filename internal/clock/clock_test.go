package clock

import (
	"testing"
	"time"
)

func TestSystemClock_Now(t *testing.T) {
	clock := NewSystemClock()

	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("SystemClock.Now() returned time outside expected range: %v not between %v and %v", now, before, after)
	}
}

func TestFixtureClock_Now(t *testing.T) {
	startTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFixtureClock(startTime)

	now := clock.Now()
	if !now.Equal(startTime) {
		t.Errorf("expected time %v, got %v", startTime, now)
	}
}

func TestFixtureClock_DefaultsToNow(t *testing.T) {
	before := time.Now()
	clock := NewFixtureClock(time.Time{}) // zero time
	after := time.Now()

	now := clock.Now()
	if now.Before(before) || now.After(after) {
		t.Errorf("FixtureClock with zero time should default to time.Now(), got %v", now)
	}
}

func TestFixtureClock_Advance(t *testing.T) {
	startTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewFixtureClock(startTime)

	t.Run("advance by hours", func(t *testing.T) {
		clock.Advance(2 * time.Hour)
		expected := startTime.Add(2 * time.Hour)
		if !clock.Now().Equal(expected) {
			t.Errorf("expected time %v, got %v", expected, clock.Now())
		}
	})

	t.Run("multiple advances accumulate", func(t *testing.T) {
		clock.Set(startTime) // reset
		clock.Advance(1 * time.Hour)
		clock.Advance(30 * time.Minute)
		clock.Advance(15 * time.Second)
		expected := startTime.Add(1*time.Hour + 30*time.Minute + 15*time.Second)
		if !clock.Now().Equal(expected) {
			t.Errorf("expected time %v, got %v", expected, clock.Now())
		}
	})
}

func TestFixtureClock_AfterFunc(t *testing.T) {
	startTime := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

	t.Run("fires when due", func(t *testing.T) {
		clock := NewFixtureClock(startTime)

		fired := 0
		clock.AfterFunc(10*time.Minute, func() { fired++ })

		clock.Advance(9 * time.Minute)
		if fired != 0 {
			t.Errorf("timer fired %d times before due", fired)
		}

		clock.Advance(1 * time.Minute)
		if fired != 1 {
			t.Errorf("expected timer to fire once, fired %d times", fired)
		}

		// Advancing further must not re-fire a one-shot timer
		clock.Advance(1 * time.Hour)
		if fired != 1 {
			t.Errorf("one-shot timer fired %d times", fired)
		}
	})

	t.Run("stopped timer does not fire", func(t *testing.T) {
		clock := NewFixtureClock(startTime)

		fired := false
		timer := clock.AfterFunc(10*time.Minute, func() { fired = true })

		if !timer.Stop() {
			t.Error("Stop() on a pending timer should report true")
		}
		if timer.Stop() {
			t.Error("second Stop() should report false")
		}

		clock.Advance(1 * time.Hour)
		if fired {
			t.Error("stopped timer fired")
		}
	})

	t.Run("fires in schedule order", func(t *testing.T) {
		clock := NewFixtureClock(startTime)

		var order []string
		clock.AfterFunc(20*time.Minute, func() { order = append(order, "second") })
		clock.AfterFunc(10*time.Minute, func() { order = append(order, "first") })

		clock.Advance(30 * time.Minute)

		if len(order) != 2 || order[0] != "first" || order[1] != "second" {
			t.Errorf("timers fired out of order: %v", order)
		}
	})

	t.Run("callback can schedule a followup in the same window", func(t *testing.T) {
		clock := NewFixtureClock(startTime)

		fired := 0
		var schedule func()
		schedule = func() {
			fired++
			if fired < 3 {
				clock.AfterFunc(10*time.Minute, schedule)
			}
		}
		clock.AfterFunc(10*time.Minute, schedule)

		clock.Advance(30 * time.Minute)
		if fired != 3 {
			t.Errorf("expected chained timers to fire 3 times, fired %d", fired)
		}
	})

	t.Run("pending timer count", func(t *testing.T) {
		clock := NewFixtureClock(startTime)

		timer := clock.AfterFunc(10*time.Minute, func() {})
		clock.AfterFunc(20*time.Minute, func() {})
		if got := clock.PendingTimers(); got != 2 {
			t.Errorf("expected 2 pending timers, got %d", got)
		}

		timer.Stop()
		if got := clock.PendingTimers(); got != 1 {
			t.Errorf("expected 1 pending timer after stop, got %d", got)
		}

		clock.Advance(time.Hour)
		if got := clock.PendingTimers(); got != 0 {
			t.Errorf("expected 0 pending timers after advance, got %d", got)
		}
	})
}
