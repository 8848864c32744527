package clock

import "time"

// RealClock is the Clock blockcache.Init defaults to when a caller
// passes nil: wall-clock time, used to drive the autoflush tiers
// (tier1Delta/tier2Delta/tier3Delta) against actual elapsed time in
// production.
type RealClock struct{}

// Now returns the current wall-clock time.
func (RealClock) Now() time.Time {
	return time.Now()
}

// After delivers the current time on the returned channel once d has
// elapsed, per time.After.
func (RealClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}
