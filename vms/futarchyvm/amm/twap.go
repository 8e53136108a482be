// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package amm

import (
	"errors"
	"time"

	"github.com/holiman/uint256"
)

var (
	ErrOracleStarted    = errors.New("oracle start time already set")
	ErrOracleNotStarted = errors.New("oracle start time not set")
	ErrBeforeStart      = errors.New("time precedes oracle start")
	ErrStaleTime        = errors.New("time precedes last observation")

	bpsDenominator = uint256.NewInt(10_000)
)

// Oracle accumulates a time-weighted average price from the moment it is
// started. Each observation moves the recorded price at most stepMaxBps
// away from the price recorded at the previous timestamp, so a single
// block cannot drag the average arbitrarily far.
type Oracle struct {
	stepMaxBps uint64

	started bool
	start   time.Time

	lastTime   time.Time
	anchor     uint256.Int // recorded price before lastTime
	last       uint256.Int // recorded price since lastTime
	cumulative uint256.Int // Σ price·ms since start
}

// NewOracle returns an oracle that has not started. A stepMaxBps of zero
// disables the step cap.
func NewOracle(stepMaxBps uint64) *Oracle {
	return &Oracle{stepMaxBps: stepMaxBps}
}

// Start begins accumulation at start with initial as the first price.
func (o *Oracle) Start(start time.Time, initial *uint256.Int) error {
	if o.started {
		return ErrOracleStarted
	}
	o.started = true
	o.start = start
	o.lastTime = start
	o.anchor.Set(initial)
	o.last.Set(initial)
	return nil
}

// Started reports whether Start has been called.
func (o *Oracle) Started() bool { return o.started }

// StartTime returns the time accumulation began.
func (o *Oracle) StartTime() time.Time { return o.start }

// LastPrice returns the most recently recorded price.
func (o *Oracle) LastPrice() *uint256.Int { return new(uint256.Int).Set(&o.last) }

// Observe records price at now. Observations before Start are ignored.
func (o *Oracle) Observe(price *uint256.Int, now time.Time) error {
	if !o.started {
		return nil
	}
	if now.Before(o.lastTime) {
		return ErrStaleTime
	}
	if now.After(o.lastTime) {
		o.accumulate(now)
		o.lastTime = now
		o.anchor.Set(&o.last)
	}
	o.last.Set(o.capped(price))
	return nil
}

// TWAP returns the time-weighted average price between the start time and
// now. At the start time itself it returns the recorded price.
func (o *Oracle) TWAP(now time.Time) (*uint256.Int, error) {
	switch {
	case !o.started:
		return nil, ErrOracleNotStarted
	case now.Before(o.start):
		return nil, ErrBeforeStart
	case now.Before(o.lastTime):
		return nil, ErrStaleTime
	}
	elapsed := now.Sub(o.start).Milliseconds()
	if elapsed <= 0 {
		return new(uint256.Int).Set(&o.last), nil
	}
	total := new(uint256.Int).Set(&o.cumulative)
	tail := new(uint256.Int).Mul(&o.last, uint256.NewInt(uint64(now.Sub(o.lastTime).Milliseconds())))
	total.Add(total, tail)
	return total.Div(total, uint256.NewInt(uint64(elapsed))), nil
}

func (o *Oracle) accumulate(now time.Time) {
	ms := now.Sub(o.lastTime).Milliseconds()
	if ms <= 0 {
		return
	}
	weighted := new(uint256.Int).Mul(&o.last, uint256.NewInt(uint64(ms)))
	o.cumulative.Add(&o.cumulative, weighted)
}

// capped limits price to within stepMaxBps of the anchor.
func (o *Oracle) capped(price *uint256.Int) *uint256.Int {
	if o.stepMaxBps == 0 || o.anchor.IsZero() {
		return price
	}
	step := new(uint256.Int).Mul(&o.anchor, uint256.NewInt(o.stepMaxBps))
	step.Div(step, bpsDenominator)

	upper := new(uint256.Int).Add(&o.anchor, step)
	if price.Gt(upper) {
		return upper
	}
	if step.Gt(&o.anchor) {
		return price
	}
	lower := new(uint256.Int).Sub(&o.anchor, step)
	if price.Lt(lower) {
		return lower
	}
	return price
}
