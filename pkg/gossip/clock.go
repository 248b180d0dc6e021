package gossip

import (
	"sync/atomic"
	"time"
)

// Clock supplies the local time used for LastUpdate stamps and timeouts.
// Units are whatever TFail and TRemove are configured in, normally ticks.
type Clock interface {
	Now() int64
}

// ManualClock is advanced explicitly; simulations share one across nodes.
type ManualClock struct {
	t atomic.Int64
}

func (c *ManualClock) Now() int64 { return c.t.Load() }

// Advance moves the clock forward by d and returns the new time.
func (c *ManualClock) Advance(d int64) int64 { return c.t.Add(d) }

// WallClock counts elapsed Units since Start.
type WallClock struct {
	Start time.Time
	Unit  time.Duration
}

// NewWallClock starts a wall clock now, counting in unit steps.
func NewWallClock(unit time.Duration) WallClock {
	if unit <= 0 {
		unit = time.Second
	}
	return WallClock{Start: time.Now(), Unit: unit}
}

func (c WallClock) Now() int64 { return int64(time.Since(c.Start) / c.Unit) }
