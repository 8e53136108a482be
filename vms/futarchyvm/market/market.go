// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package market implements the lifecycle of a conditional market:
// premarket, trading, ended and finalized, in that order and never back.
package market

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/futarchy/vms/futarchyvm/config"
	"github.com/luxfi/futarchy/vms/futarchyvm/leaderboard"
)

// MaxTradingDuration caps the trading window of every market.
const MaxTradingDuration = config.MaxTradingPeriod

var (
	ErrNoOutcomes            = errors.New("market needs at least one outcome")
	ErrTradingAlreadyStarted = errors.New("trading already started")
	ErrTradingNotStarted     = errors.New("trading not started")
	ErrTradingAlreadyEnded   = errors.New("trading already ended")
	ErrTradingNotEnded       = errors.New("trading not ended")
	ErrAlreadyFinalized      = errors.New("market already finalized")
	ErrInvalidDuration       = errors.New("invalid trading duration")
	ErrOutcomeOutOfRange     = errors.New("outcome index out of range")
	ErrPoolsAlreadySet       = errors.New("pools already set")
	ErrPoolsNotSet           = errors.New("pools not set")
	ErrPoolCount             = errors.New("pool count differs from outcome count")
)

// Pool is the price source of one outcome.
type Pool interface {
	CurrentPrice() *uint256.Int
	TWAP(now time.Time) (*uint256.Int, error)
	Reserves() (asset uint64, stable uint64)
	SetOracleStartTime(market ids.ID, start time.Time) error
}

// Stage is the position of a market in its lifecycle.
type Stage uint8

const (
	Premarket Stage = iota
	Trading
	Ended
	Finalized
)

func (s Stage) String() string {
	switch s {
	case Premarket:
		return "premarket"
	case Trading:
		return "trading"
	case Ended:
		return "ended"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// Status holds the lifecycle flags. Each flag only ever goes from false to
// true.
type Status struct {
	TradingStarted bool
	TradingEnded   bool
	Finalized      bool
}

// Stage returns the stage the flags describe.
func (s Status) Stage() Stage {
	switch {
	case s.Finalized:
		return Finalized
	case s.TradingEnded:
		return Ended
	case s.TradingStarted:
		return Trading
	default:
		return Premarket
	}
}

// State is the state of one market.
type State struct {
	id     ids.ID
	labels []string
	pools  []Pool
	events EventSink

	status Status
	winner int

	createdAt    time.Time
	tradingStart time.Time
	tradingEnd   time.Time
	endedAt      time.Time
	finalizedAt  time.Time

	early *EarlyResolution
	board *leaderboard.Leaderboard
}

// New returns a premarket market with one outcome per label.
func New(id ids.ID, labels []string, now time.Time, events EventSink) (*State, error) {
	if len(labels) == 0 {
		return nil, ErrNoOutcomes
	}
	if events == nil {
		events = NoEvents{}
	}
	return &State{
		id:        id,
		labels:    append([]string(nil), labels...),
		events:    events,
		createdAt: now,
	}, nil
}

func (s *State) ID() ids.ID           { return s.id }
func (s *State) OutcomeCount() int    { return len(s.labels) }
func (s *State) Status() Status       { return s.status }
func (s *State) Stage() Stage         { return s.status.Stage() }
func (s *State) CreatedAt() time.Time { return s.createdAt }

// Labels returns a copy of the outcome labels.
func (s *State) Labels() []string {
	return append([]string(nil), s.labels...)
}

// Label returns the label of outcome.
func (s *State) Label(outcome int) (string, error) {
	if err := s.checkOutcome(outcome); err != nil {
		return "", err
	}
	return s.labels[outcome], nil
}

// WinningOutcome returns the winner, which exists only once finalized.
func (s *State) WinningOutcome() (int, bool) {
	return s.winner, s.status.Finalized
}

// TradingStart returns when trading started.
func (s *State) TradingStart() (time.Time, bool) {
	return s.tradingStart, s.status.TradingStarted
}

// TradingEnd returns when trading is scheduled to end. It exists once
// trading has started.
func (s *State) TradingEnd() (time.Time, bool) {
	return s.tradingEnd, s.status.TradingStarted
}

// EndedAt returns when EndTrading was called.
func (s *State) EndedAt() (time.Time, bool) {
	return s.endedAt, s.status.TradingEnded
}

// FinalizedAt returns when Finalize was called.
func (s *State) FinalizedAt() (time.Time, bool) {
	return s.finalizedAt, s.status.Finalized
}

// IsTradingActive reports whether trades are accepted at now.
func (s *State) IsTradingActive(now time.Time) bool {
	return s.status.TradingStarted && !s.status.TradingEnded && now.Before(s.tradingEnd)
}

// TradingExpired reports whether the trading window has run out without
// EndTrading being called.
func (s *State) TradingExpired(now time.Time) bool {
	return s.status.TradingStarted && !s.status.TradingEnded && !now.Before(s.tradingEnd)
}

// StartTrading opens trading for duration.
func (s *State) StartTrading(duration time.Duration, now time.Time) error {
	switch {
	case s.status.TradingStarted:
		return ErrTradingAlreadyStarted
	case duration <= 0 || duration > MaxTradingDuration:
		return fmt.Errorf("%w: %s, cap %s", ErrInvalidDuration, duration, MaxTradingDuration)
	}
	s.status.TradingStarted = true
	s.tradingStart = now
	s.tradingEnd = now.Add(duration)
	s.events.Emit(&TradingStarted{
		Market: s.id,
		Start:  s.tradingStart,
		End:    s.tradingEnd,
	})
	return nil
}

// EndTrading closes trading.
func (s *State) EndTrading(now time.Time) error {
	switch {
	case !s.status.TradingStarted:
		return ErrTradingNotStarted
	case s.status.TradingEnded:
		return ErrTradingAlreadyEnded
	}
	s.status.TradingEnded = true
	s.endedAt = now
	s.events.Emit(&TradingEnded{
		Market: s.id,
		At:     now,
	})
	return nil
}

// Finalize records the winning outcome. It can succeed once, after trading
// ended.
func (s *State) Finalize(winner int, now time.Time) error {
	switch {
	case !s.status.TradingEnded:
		return ErrTradingNotEnded
	case s.status.Finalized:
		return ErrAlreadyFinalized
	}
	if err := s.checkOutcome(winner); err != nil {
		return err
	}
	s.status.Finalized = true
	s.winner = winner
	s.finalizedAt = now
	s.events.Emit(&MarketFinalized{
		Market:  s.id,
		Winner:  winner,
		At:      now,
		Outcome: s.labels[winner],
	})
	return nil
}

// SetPools attaches one pool per outcome. It can succeed once.
func (s *State) SetPools(pools []Pool) error {
	switch {
	case s.pools != nil:
		return ErrPoolsAlreadySet
	case len(pools) != len(s.labels):
		return fmt.Errorf("%w: %d pools, %d outcomes", ErrPoolCount, len(pools), len(s.labels))
	}
	s.pools = append([]Pool(nil), pools...)
	return nil
}

// HasPools reports whether SetPools succeeded.
func (s *State) HasPools() bool { return s.pools != nil }

// Pool returns the pool of outcome.
func (s *State) Pool(outcome int) (Pool, error) {
	if s.pools == nil {
		return nil, ErrPoolsNotSet
	}
	if err := s.checkOutcome(outcome); err != nil {
		return nil, err
	}
	return s.pools[outcome], nil
}

// Pools returns every pool in outcome order.
func (s *State) Pools() ([]Pool, error) {
	if s.pools == nil {
		return nil, ErrPoolsNotSet
	}
	return append([]Pool(nil), s.pools...), nil
}

// Leaderboard returns the leaderboard, which exists once a trade has been
// recorded.
func (s *State) Leaderboard() (*leaderboard.Leaderboard, bool) {
	return s.board, s.board != nil
}

// EarlyResolution returns the early resolution metrics, which exist once a
// trade has been recorded.
func (s *State) EarlyResolution() (*EarlyResolution, bool) {
	return s.early, s.early != nil
}

// RecordTrade refreshes the price of outcome after a trade on its pool.
// The first call builds the leaderboard from every pool's price.
func (s *State) RecordTrade(outcome int, now time.Time) error {
	if s.pools == nil {
		return ErrPoolsNotSet
	}
	if err := s.checkOutcome(outcome); err != nil {
		return err
	}

	if s.board == nil {
		prices := make([]*uint256.Int, len(s.pools))
		for i, pool := range s.pools {
			prices[i] = pool.CurrentPrice()
		}
		board, err := leaderboard.New(prices)
		if err != nil {
			return err
		}
		s.board = board
		s.early = newEarlyResolution(board.Winner(), now)
		return nil
	}

	if err := s.board.UpdatePrice(outcome, s.pools[outcome].CurrentPrice()); err != nil {
		return err
	}
	leader, _, spread := s.board.WinnerAndSpread()
	if leader == s.early.leader {
		return nil
	}
	flip := Flip{
		At:   now,
		From: s.early.leader,
		To:   leader,
	}
	flip.Spread.Set(spread)
	s.early.record(flip)
	s.events.Emit(&LeaderFlipped{
		Market: s.id,
		Flip:   flip,
	})
	return nil
}

func (s *State) checkOutcome(outcome int) error {
	if outcome < 0 || outcome >= len(s.labels) {
		return fmt.Errorf("%w: %d of %d", ErrOutcomeOutOfRange, outcome, len(s.labels))
	}
	return nil
}
