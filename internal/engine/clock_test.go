package engine

import (
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

func waitUntil(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition not met within timeout")
}

func TestClock_CountdownAndExpiry(t *testing.T) {
	clock := NewClockWithInterval(2 * time.Millisecond)

	var mu sync.Mutex
	var ticks []int
	var expired atomic.Int32

	clock.Start(3,
		func(remaining int) {
			mu.Lock()
			ticks = append(ticks, remaining)
			mu.Unlock()
		},
		func() { expired.Add(1) })

	waitUntil(t, time.Second, func() bool { return expired.Load() == 1 })

	mu.Lock()
	defer mu.Unlock()
	if len(ticks) != 3 {
		t.Fatalf("Expected 3 ticks, got %d: %v", len(ticks), ticks)
	}
	for i, r := range ticks {
		want := 2 - i
		if r != want {
			t.Errorf("Tick %d: expected remaining %d, got %d", i, want, r)
		}
	}
	if ticks[len(ticks)-1] != 0 {
		t.Errorf("Last tick should report 0, got %d", ticks[len(ticks)-1])
	}
}

func TestClock_ExpiryFiresExactlyOnce(t *testing.T) {
	clock := NewClockWithInterval(time.Millisecond)

	var expired atomic.Int32
	clock.Start(1, nil, func() { expired.Add(1) })

	waitUntil(t, time.Second, func() bool { return expired.Load() >= 1 })

	// Give any stray tick a chance to misfire.
	time.Sleep(20 * time.Millisecond)
	if got := expired.Load(); got != 1 {
		t.Errorf("Expected exactly 1 expiry, got %d", got)
	}
}

func TestClock_CancelDisarmsExpiry(t *testing.T) {
	clock := NewClockWithInterval(time.Millisecond)

	var expired atomic.Int32
	clock.Start(2, nil, func() { expired.Add(1) })
	clock.Cancel()

	time.Sleep(20 * time.Millisecond)
	if got := expired.Load(); got != 0 {
		t.Errorf("Cancelled clock must not expire, got %d expiries", got)
	}
}

func TestClock_CancelIsIdempotent(t *testing.T) {
	clock := NewClockWithInterval(time.Millisecond)

	var expired atomic.Int32
	clock.Start(1, nil, func() { expired.Add(1) })

	clock.Cancel()
	clock.Cancel()

	// Cancel after expiry is also fine.
	clock.Start(1, nil, func() { expired.Add(1) })
	waitUntil(t, time.Second, func() bool { return expired.Load() == 1 })
	clock.Cancel()
	clock.Cancel()
}

func TestClock_ZeroDurationExpiresImmediately(t *testing.T) {
	clock := NewClockWithInterval(time.Millisecond)

	var expired atomic.Int32
	clock.Start(0, nil, func() { expired.Add(1) })

	if got := expired.Load(); got != 1 {
		t.Errorf("Zero-duration start should expire on arm, got %d expiries", got)
	}
}

func TestClock_RestartCancelsPreviousCountdown(t *testing.T) {
	clock := NewClockWithInterval(time.Millisecond)

	var first, second atomic.Int32
	clock.Start(1000, nil, func() { first.Add(1) })
	clock.Start(1, nil, func() { second.Add(1) })

	waitUntil(t, time.Second, func() bool { return second.Load() == 1 })

	time.Sleep(10 * time.Millisecond)
	if got := first.Load(); got != 0 {
		t.Errorf("Replaced countdown must not expire, got %d expiries", got)
	}
}

func TestClock_RapidRestartsIsolateCountdowns(t *testing.T) {
	clock := NewClockWithInterval(time.Millisecond)

	// Churn through short countdowns. Each restart may leave the previous
	// loop goroutine with a tick already queued; none of those ticks may
	// leak into a later countdown.
	var replaced atomic.Int32
	for i := 0; i < 50; i++ {
		clock.Start(1, nil, func() { replaced.Add(1) })
	}

	var final atomic.Int32
	clock.Start(1000, nil, func() { final.Add(1) })
	defer clock.Cancel()

	time.Sleep(25 * time.Millisecond)

	if got := replaced.Load(); got != 0 {
		t.Errorf("Replaced countdowns must not expire, got %d expiries", got)
	}
	if got := final.Load(); got != 0 {
		t.Errorf("Fresh countdown expired early, got %d expiries", got)
	}
	// Only the live loop may count this countdown down.
	if remaining := clock.Remaining(); remaining < 900 {
		t.Errorf("Fresh countdown drained by stale ticks, remaining %d", remaining)
	}
}
