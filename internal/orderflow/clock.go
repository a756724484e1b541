package orderflow

import (
	"sync"
	"time"
)

// Clock supplies the aggregator's notion of "now". The live path injects
// RealClock; backfill injects a SimulatedClock advanced from historical trade
// timestamps, so the aggregation logic is identical in both modes.
type Clock interface {
	Now() time.Time
}

// RealClock reads the wall clock in UTC.
type RealClock struct{}

func (RealClock) Now() time.Time { return time.Now().UTC() }

// SimulatedClock is an externally-set clock for historical replay.
type SimulatedClock struct {
	mu sync.RWMutex
	t  time.Time
}

// NewSimulatedClock starts a simulated clock at t.
func NewSimulatedClock(t time.Time) *SimulatedClock {
	return &SimulatedClock{t: t.UTC()}
}

func (c *SimulatedClock) Now() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.t
}

// Set moves the clock. Moving backwards is the caller's bug; the clock does
// not guard against it.
func (c *SimulatedClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t.UTC()
	c.mu.Unlock()
}
