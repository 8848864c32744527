package clock

import (
	"sync"
	"time"
)

// afterRequest is a pending After call waiting for SimulatedClock's
// time to reach targetTime.
type afterRequest struct {
	targetTime time.Time
	ch         chan time.Time
}

// SimulatedClock lets blockcache's autoflush tests cross
// tier1Delta/tier2Delta/tier3Delta deterministically: time only moves
// when SetTime or AdvanceTime is called. The zero value starts at the
// zero time.
type SimulatedClock struct {
	mu      sync.RWMutex
	t       time.Time // guarded by mu
	pending []*afterRequest
}

// NewSimulatedClock returns a SimulatedClock starting at startTime.
func NewSimulatedClock(startTime time.Time) *SimulatedClock {
	return &SimulatedClock{t: startTime}
}

// Now returns the clock's current simulated time.
func (sc *SimulatedClock) Now() time.Time {
	sc.mu.RLock()
	defer sc.mu.RUnlock()
	return sc.t
}

// SetTime jumps the clock to t, firing any pending After calls whose
// target time has now been reached.
func (sc *SimulatedClock) SetTime(t time.Time) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.t = t
	sc.processPending()
}

// AdvanceTime moves the clock forward by d, firing any pending After
// calls whose target time has now been reached — the primitive
// blockcache's autoflush tests use to cross a tier's delta.
func (sc *SimulatedClock) AdvanceTime(d time.Duration) {
	sc.mu.Lock()
	defer sc.mu.Unlock()
	sc.t = sc.t.Add(d)
	sc.processPending()
}

// After returns a channel that receives the simulated time once d has
// elapsed according to this clock's own advancement, not wall time.
// A non-positive d fires immediately with the current time.
func (sc *SimulatedClock) After(d time.Duration) <-chan time.Time {
	sc.mu.Lock()
	defer sc.mu.Unlock()

	ch := make(chan time.Time, 1)
	target := sc.t.Add(d)
	if !target.After(sc.t) {
		ch <- sc.t
		return ch
	}
	sc.pending = append(sc.pending, &afterRequest{targetTime: target, ch: ch})
	return ch
}

// processPending fires every pending request whose target time has
// been reached or passed; it must be called with sc.mu held.
func (sc *SimulatedClock) processPending() {
	var stillPending []*afterRequest
	for _, ar := range sc.pending {
		if !sc.t.Before(ar.targetTime) {
			ar.ch <- ar.targetTime
		} else {
			stillPending = append(stillPending, ar)
		}
	}
	sc.pending = stillPending
}
