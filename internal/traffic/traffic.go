package traffic

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// DefaultRetention bounds how long outcomes are kept. It must cover the widest
// window callers query (the idle window).
const DefaultRetention = 30 * time.Minute

// Tracker maintains sliding windows of outcome timestamps.
// Single source of truth for overload (RequestCount, DenialCount), idle
// (RequestCount) and degraded (ErrorRate).
type Tracker struct {
	clock     clockwork.Clock
	retention time.Duration

	mu           sync.Mutex
	successTimes []time.Time
	errorTimes   []time.Time
	deniedTimes  []time.Time
}

// NewTracker returns a Tracker reading time from clock. A nil clock uses the
// real clock; a non-positive retention uses DefaultRetention.
func NewTracker(clock clockwork.Clock, retention time.Duration) *Tracker {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if retention <= 0 {
		retention = DefaultRetention
	}
	return &Tracker{clock: clock, retention: retention}
}

// RecordSuccess records a successful request outcome.
func (t *Tracker) RecordSuccess() {
	t.recordN(&t.successTimes, 1)
}

// RecordError records a failed request outcome (internal error, timeout, etc.).
func (t *Tracker) RecordError() {
	t.recordN(&t.errorTimes, 1)
}

// RecordDenied records a rate-limit denial (429).
func (t *Tracker) RecordDenied() {
	t.recordN(&t.deniedTimes, 1)
}

// RecordSuccessN records n successful outcomes for synthetic load injection.
func (t *Tracker) RecordSuccessN(n int) {
	t.recordN(&t.successTimes, n)
}

// RecordErrorN records n error outcomes for synthetic error injection.
func (t *Tracker) RecordErrorN(n int) {
	t.recordN(&t.errorTimes, n)
}

func (t *Tracker) recordN(slice *[]time.Time, n int) {
	if n <= 0 {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.clock.Now()
	for i := 0; i < n; i++ {
		*slice = append(*slice, now)
	}
	t.pruneLocked(now)
}

// RequestCount returns the total number of outcomes (success + error + denied) within the window.
func (t *Tracker) RequestCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	return countSince(t.successTimes, cutoff) +
		countSince(t.errorTimes, cutoff) +
		countSince(t.deniedTimes, cutoff)
}

// DenialCount returns the number of rate-limit denials within the window.
func (t *Tracker) DenialCount(window time.Duration) int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return countSince(t.deniedTimes, t.clock.Now().Add(-window))
}

// ErrorRate returns (errorCount, totalCount) within the window.
// totalCount includes successes and errors only; denials are excluded.
func (t *Tracker) ErrorRate(window time.Duration) (errors, total int) {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.clock.Now().Add(-window)
	errCount := countSince(t.errorTimes, cutoff)
	return errCount, errCount + countSince(t.successTimes, cutoff)
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.successTimes = nil
	t.errorTimes = nil
	t.deniedTimes = nil
}

// Clock returns the clock the tracker reads.
func (t *Tracker) Clock() clockwork.Clock {
	return t.clock
}

// countSince counts timestamps that are not before cutoff.
func countSince(times []time.Time, cutoff time.Time) int {
	n := 0
	for _, ts := range times {
		if !ts.Before(cutoff) {
			n++
		}
	}
	return n
}

// pruneLocked drops timestamps older than the retention. Must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.retention)
	prune := func(slice *[]time.Time) {
		times := *slice
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			*slice = append(times[:0], times[i:]...)
		}
	}
	prune(&t.successTimes)
	prune(&t.errorTimes)
	prune(&t.deniedTimes)
}
