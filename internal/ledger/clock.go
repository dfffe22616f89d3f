// Package ledger models the slice of the external ledger/ordering oracle
// this service consumes: coarse ledger time, a total order over accepted
// operations, and the oracle's replay protection. Consensus, finality, and
// fairness all live outside; nothing here assumes operations arrive in
// submission order.
package ledger

import (
	"sync"
	"time"
)

// Clock supplies current ledger time in unix seconds. Ledger time is coarse
// and adjustable within a small drift by whoever finalizes an operation;
// consumers must not rely on sub-second precision.
type Clock interface {
	Now() int64
}

// SystemClock reads the host clock at second granularity.
type SystemClock struct{}

func (SystemClock) Now() int64 { return time.Now().Unix() }

// ManualClock is a settable clock for tests and simulations.
type ManualClock struct {
	mu  sync.Mutex
	now int64
}

// NewManualClock starts a manual clock at the given unix time.
func NewManualClock(now int64) *ManualClock {
	return &ManualClock{now: now}
}

func (c *ManualClock) Now() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward by d seconds.
func (c *ManualClock) Advance(seconds int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now += seconds
}

// Set pins the clock to an absolute unix time.
func (c *ManualClock) Set(now int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}
