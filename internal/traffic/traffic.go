// Package traffic keeps sliding windows of weather-route outcomes for the
// health check.
package traffic

import (
	"sync"
	"time"
)

// Outcome classifies one weather request.
type Outcome int

const (
	Success Outcome = iota
	Error           // upstream error, timeout
	Denied          // rate limited (429)
)

// Counts is the number of outcomes of each kind inside a window.
type Counts struct {
	Success int
	Error   int
	Denied  int
}

// Total returns all outcomes, denials included.
func (c Counts) Total() int { return c.Success + c.Error + c.Denied }

// ErrorPct returns errors as a percentage of successes plus errors. Denials
// are excluded. Zero traffic reports 0.
func (c Counts) ErrorPct() float64 {
	n := c.Success + c.Error
	if n == 0 {
		return 0
	}
	return float64(c.Error) * 100 / float64(n)
}

// Tracker records outcome timestamps and drops those older than maxAge.
// Safe for concurrent use.
type Tracker struct {
	mu     sync.Mutex
	times  [3][]time.Time // indexed by Outcome
	maxAge time.Duration
	now    func() time.Time
}

// New returns a Tracker that keeps outcomes for maxAge (minimum one minute).
func New(maxAge time.Duration) *Tracker {
	if maxAge < time.Minute {
		maxAge = time.Minute
	}
	return &Tracker{maxAge: maxAge, now: time.Now}
}

// Record appends one outcome.
func (t *Tracker) Record(o Outcome) {
	if o < Success || o > Denied {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	now := t.now()
	t.times[o] = append(t.times[o], now)
	t.pruneLocked(now)
}

// Counts returns outcomes recorded within window.
func (t *Tracker) Counts(window time.Duration) Counts {
	t.mu.Lock()
	defer t.mu.Unlock()
	cutoff := t.now().Add(-window)
	return Counts{
		Success: countSince(t.times[Success], cutoff),
		Error:   countSince(t.times[Error], cutoff),
		Denied:  countSince(t.times[Denied], cutoff),
	}
}

// Reset clears all recorded outcomes.
func (t *Tracker) Reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.times = [3][]time.Time{}
}

// countSince counts timestamps not before cutoff. times is ascending.
func countSince(times []time.Time, cutoff time.Time) int {
	i := 0
	for ; i < len(times) && times[i].Before(cutoff); i++ {
	}
	return len(times) - i
}

// pruneLocked must be called with mu held.
func (t *Tracker) pruneLocked(now time.Time) {
	cutoff := now.Add(-t.maxAge)
	for k := range t.times {
		times := t.times[k]
		i := 0
		for ; i < len(times) && times[i].Before(cutoff); i++ {
		}
		if i > 0 {
			t.times[k] = append(times[:0], times[i:]...)
		}
	}
}
