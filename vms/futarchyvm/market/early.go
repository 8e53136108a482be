// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"time"

	"github.com/holiman/uint256"

	"github.com/luxfi/futarchy/vms/futarchyvm/config"
)

// MaxFlipHistory is the number of most recent flips kept per market.
const MaxFlipHistory = 100

// EarlyResolution tracks how stable the leader has been.
type EarlyResolution struct {
	leader   int
	lastFlip time.Time

	// ring of the most recent flips, oldest at head once full
	flips []Flip
	head  int
}

func newEarlyResolution(leader int, now time.Time) *EarlyResolution {
	return &EarlyResolution{
		leader:   leader,
		lastFlip: now,
		flips:    make([]Flip, 0, MaxFlipHistory),
	}
}

// Leader returns the outcome that currently holds the highest price.
func (e *EarlyResolution) Leader() int { return e.leader }

// LastFlip returns when the leader last changed, or when tracking began.
func (e *EarlyResolution) LastFlip() time.Time { return e.lastFlip }

// Flips returns the retained flips, oldest first.
func (e *EarlyResolution) Flips() []Flip {
	out := make([]Flip, 0, len(e.flips))
	out = append(out, e.flips[e.head:]...)
	return append(out, e.flips[:e.head]...)
}

// FlipsSince counts retained flips at or after t.
func (e *EarlyResolution) FlipsSince(t time.Time) int {
	n := 0
	for _, f := range e.flips {
		if !f.At.Before(t) {
			n++
		}
	}
	return n
}

func (e *EarlyResolution) record(f Flip) {
	e.leader = f.To
	e.lastFlip = f.At
	if len(e.flips) < MaxFlipHistory {
		e.flips = append(e.flips, f)
		return
	}
	e.flips[e.head] = f
	e.head = (e.head + 1) % MaxFlipHistory
}

// Early resolution refusals.
const (
	ReasonDisabled        = "early resolution disabled"
	ReasonNotTrading      = "market not trading"
	ReasonTooEarly        = "minimum trading duration not reached"
	ReasonNoTrades        = "no trades recorded"
	ReasonLeaderUnstable  = "leader changed too recently"
	ReasonTooManyFlips    = "too many leader changes in window"
	ReasonSpreadTooNarrow = "leader spread too narrow"
)

// CanResolveEarly reports whether trading may end before its scheduled end
// at now, and if not, why.
func (s *State) CanResolveEarly(cfg config.EarlyResolution, now time.Time) (bool, string) {
	switch {
	case !cfg.Enabled:
		return false, ReasonDisabled
	case !s.IsTradingActive(now):
		return false, ReasonNotTrading
	case now.Sub(s.tradingStart) < time.Duration(cfg.MinTradingDuration):
		return false, ReasonTooEarly
	case s.early == nil:
		return false, ReasonNoTrades
	case now.Sub(s.early.lastFlip) < time.Duration(cfg.MinTimeSinceFlip):
		return false, ReasonLeaderUnstable
	case s.early.FlipsSince(now.Add(-time.Duration(cfg.FlipWindow))) > cfg.MaxFlipsInWindow:
		return false, ReasonTooManyFlips
	}

	_, price, spread := s.board.WinnerAndSpread()
	if cfg.MinSpreadBps > 0 {
		if price.IsZero() {
			return false, ReasonSpreadTooNarrow
		}
		bps := new(uint256.Int).Mul(spread, uint256.NewInt(10_000))
		bps.Div(bps, price)
		if bps.Lt(uint256.NewInt(cfg.MinSpreadBps)) {
			return false, ReasonSpreadTooNarrow
		}
	}
	return true, ""
}
