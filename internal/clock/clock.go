package clock

import "time"

// Clock is the abstract time service blockcache.Cache's background
// goroutine uses to drive autoflush. RealClock and SimulatedClock both
// implement it.
type Clock interface {
	// Now returns the current time.
	Now() time.Time

	// After returns a channel that receives the time once d has elapsed.
	After(d time.Duration) <-chan time.Time
}

var (
	_ Clock = RealClock{}
	_ Clock = &SimulatedClock{}
)
