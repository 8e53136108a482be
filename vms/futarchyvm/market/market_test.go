// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/luxfi/futarchy/vms/futarchyvm/config"
	"github.com/luxfi/futarchy/vms/futarchyvm/market/marketmock"

	futjson "github.com/luxfi/futarchy/utils/json"
)

var epoch = time.Unix(1_700_000_000, 0)

type recorder struct {
	events []Event
}

func (r *recorder) Emit(e Event) { r.events = append(r.events, e) }

func newMarket(t *testing.T, n int) (*State, *recorder) {
	t.Helper()

	labels := make([]string, n)
	for i := range labels {
		labels[i] = "outcome"
	}
	labels[0] = "reject"
	events := &recorder{}
	s, err := New(ids.GenerateTestID(), labels, epoch, events)
	require.NoError(t, err)
	return s, events
}

// pricedPools returns mock pools whose CurrentPrice reads prices[i].
func pricedPools(ctrl *gomock.Controller, prices []uint64) []Pool {
	pools := make([]Pool, len(prices))
	for i := range prices {
		pool := marketmock.NewPool(ctrl)
		pool.EXPECT().CurrentPrice().DoAndReturn(func() *uint256.Int {
			return uint256.NewInt(prices[i])
		}).AnyTimes()
		pools[i] = pool
	}
	return pools
}

func TestNewRequiresOutcomes(t *testing.T) {
	_, err := New(ids.GenerateTestID(), nil, epoch, nil)
	require.ErrorIs(t, err, ErrNoOutcomes)
}

func TestLifecycle(t *testing.T) {
	require := require.New(t)

	s, events := newMarket(t, 2)
	require.Equal(Premarket, s.Stage())
	_, ok := s.WinningOutcome()
	require.False(ok)
	_, ok = s.TradingEnd()
	require.False(ok)

	require.ErrorIs(s.EndTrading(epoch), ErrTradingNotStarted)
	require.ErrorIs(s.Finalize(0, epoch), ErrTradingNotEnded)

	require.NoError(s.StartTrading(time.Hour, epoch))
	require.Equal(Trading, s.Stage())
	end, ok := s.TradingEnd()
	require.True(ok)
	require.Equal(epoch.Add(time.Hour), end)
	require.True(s.IsTradingActive(epoch.Add(time.Minute)))
	require.False(s.IsTradingActive(end))
	require.True(s.TradingExpired(end))
	require.ErrorIs(s.StartTrading(time.Hour, epoch), ErrTradingAlreadyStarted)
	require.ErrorIs(s.Finalize(0, epoch), ErrTradingNotEnded)

	require.NoError(s.EndTrading(end))
	require.Equal(Ended, s.Stage())
	require.False(s.TradingExpired(end))
	require.ErrorIs(s.EndTrading(end), ErrTradingAlreadyEnded)

	require.ErrorIs(s.Finalize(2, end), ErrOutcomeOutOfRange)
	_, ok = s.WinningOutcome()
	require.False(ok)

	require.NoError(s.Finalize(1, end))
	require.Equal(Finalized, s.Stage())
	winner, ok := s.WinningOutcome()
	require.True(ok)
	require.Equal(1, winner)
	require.ErrorIs(s.Finalize(0, end), ErrAlreadyFinalized)

	status := s.Status()
	require.True(status.TradingStarted)
	require.True(status.TradingEnded)
	require.True(status.Finalized)

	require.Len(events.events, 3)
	require.IsType(&TradingStarted{}, events.events[0])
	require.IsType(&TradingEnded{}, events.events[1])
	finalized, ok := events.events[2].(*MarketFinalized)
	require.True(ok)
	require.Equal(1, finalized.Winner)
	require.Equal(s.ID(), finalized.MarketID())
}

func TestStartTradingDuration(t *testing.T) {
	tests := []struct {
		name     string
		duration time.Duration
		err      error
	}{
		{name: "zero", duration: 0, err: ErrInvalidDuration},
		{name: "negative", duration: -time.Second, err: ErrInvalidDuration},
		{name: "31 days", duration: 31 * 24 * time.Hour, err: ErrInvalidDuration},
		{name: "exactly 30 days", duration: MaxTradingDuration},
		{name: "one second", duration: time.Second},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)

			s, _ := newMarket(t, 2)
			err := s.StartTrading(test.duration, epoch)
			require.ErrorIs(err, test.err)
			require.Equal(test.err == nil, s.Status().TradingStarted)
		})
	}
}

func TestSetPools(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	s, _ := newMarket(t, 3)
	_, err := s.Pool(0)
	require.ErrorIs(err, ErrPoolsNotSet)
	require.ErrorIs(s.RecordTrade(0, epoch), ErrPoolsNotSet)

	require.ErrorIs(s.SetPools(pricedPools(ctrl, []uint64{1, 2})), ErrPoolCount)

	pools := pricedPools(ctrl, []uint64{1, 2, 3})
	require.NoError(s.SetPools(pools))
	require.True(s.HasPools())
	require.ErrorIs(s.SetPools(pools), ErrPoolsAlreadySet)

	pool, err := s.Pool(2)
	require.NoError(err)
	require.Equal(pools[2], pool)
	_, err = s.Pool(3)
	require.ErrorIs(err, ErrOutcomeOutOfRange)

	label, err := s.Label(0)
	require.NoError(err)
	require.Equal("reject", label)
}

func TestLeaderboardIsLazy(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	s, _ := newMarket(t, 3)
	prices := []uint64{100, 300, 200}
	require.NoError(s.SetPools(pricedPools(ctrl, prices)))

	_, ok := s.Leaderboard()
	require.False(ok)
	_, ok = s.EarlyResolution()
	require.False(ok)

	require.NoError(s.RecordTrade(1, epoch))
	board, ok := s.Leaderboard()
	require.True(ok)
	require.Equal(1, board.Winner())

	early, ok := s.EarlyResolution()
	require.True(ok)
	require.Equal(1, early.Leader())
	require.Equal(epoch, early.LastFlip())
	require.Empty(early.Flips())
}

func TestRecordTradeFlips(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	s, events := newMarket(t, 2)
	prices := []uint64{100, 90}
	require.NoError(s.SetPools(pricedPools(ctrl, prices)))
	require.NoError(s.StartTrading(time.Hour, epoch))
	require.NoError(s.RecordTrade(0, epoch))

	prices[1] = 150
	at := epoch.Add(time.Minute)
	require.NoError(s.RecordTrade(1, at))

	early, _ := s.EarlyResolution()
	require.Equal(1, early.Leader())
	require.Equal(at, early.LastFlip())
	flips := early.Flips()
	require.Len(flips, 1)
	require.Equal(0, flips[0].From)
	require.Equal(1, flips[0].To)
	require.Equal(uint64(50), flips[0].Spread.Uint64())

	flipped, ok := events.events[len(events.events)-1].(*LeaderFlipped)
	require.True(ok)
	require.Equal(1, flipped.Flip.To)

	// A trade that keeps the leader records nothing.
	prices[1] = 120
	require.NoError(s.RecordTrade(1, at.Add(time.Minute)))
	require.Len(early.Flips(), 1)

	require.ErrorIs(s.RecordTrade(2, at), ErrOutcomeOutOfRange)
}

func TestFlipHistoryIsBounded(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)

	s, _ := newMarket(t, 2)
	prices := []uint64{10, 5}
	require.NoError(s.SetPools(pricedPools(ctrl, prices)))
	require.NoError(s.RecordTrade(0, epoch))

	const flips = MaxFlipHistory + 25
	for i := 0; i < flips; i++ {
		// Refreshing both outcomes after the swap flips the leader once.
		prices[0], prices[1] = prices[1], prices[0]
		at := epoch.Add(time.Duration(i+1) * time.Second)
		require.NoError(s.RecordTrade(0, at))
		require.NoError(s.RecordTrade(1, at))
	}

	early, _ := s.EarlyResolution()
	history := early.Flips()
	require.Len(history, MaxFlipHistory)
	require.Equal(epoch.Add(26*time.Second), history[0].At)
	require.Equal(epoch.Add(flips*time.Second), history[len(history)-1].At)
	for i := 1; i < len(history); i++ {
		require.True(history[i-1].At.Before(history[i].At))
	}
	require.Equal(10, early.FlipsSince(epoch.Add((flips-9)*time.Second)))
}

func TestCanResolveEarly(t *testing.T) {
	cfg := config.EarlyResolution{
		Enabled:            true,
		MinTradingDuration: futjson.Duration(time.Hour),
		MinTimeSinceFlip:   futjson.Duration(30 * time.Minute),
		FlipWindow:         futjson.Duration(time.Hour),
		MaxFlipsInWindow:   1,
		MinSpreadBps:       1_000,
	}

	tests := []struct {
		name   string
		cfg    func(config.EarlyResolution) config.EarlyResolution
		setup  func(s *State, prices []uint64)
		now    time.Duration
		ok     bool
		reason string
	}{
		{
			name:   "disabled",
			cfg:    func(c config.EarlyResolution) config.EarlyResolution { c.Enabled = false; return c },
			now:    2 * time.Hour,
			reason: ReasonDisabled,
		},
		{
			name:   "trading window over",
			now:    10 * time.Hour,
			reason: ReasonNotTrading,
		},
		{
			name:   "too early",
			now:    30 * time.Minute,
			reason: ReasonTooEarly,
		},
		{
			name: "leader just flipped",
			setup: func(s *State, prices []uint64) {
				prices[1] = 200
				require.NoError(t, s.RecordTrade(1, epoch.Add(110*time.Minute)))
			},
			now:    2 * time.Hour,
			reason: ReasonLeaderUnstable,
		},
		{
			name: "too many flips",
			setup: func(s *State, prices []uint64) {
				prices[1] = 200
				require.NoError(t, s.RecordTrade(1, epoch.Add(70*time.Minute)))
				prices[1] = 50
				require.NoError(t, s.RecordTrade(1, epoch.Add(80*time.Minute)))
			},
			now:    2 * time.Hour,
			reason: ReasonTooManyFlips,
		},
		{
			name: "spread too narrow",
			setup: func(s *State, prices []uint64) {
				prices[1] = 95
				require.NoError(t, s.RecordTrade(1, epoch.Add(time.Minute)))
			},
			now:    2 * time.Hour,
			reason: ReasonSpreadTooNarrow,
		},
		{
			name: "stable leader",
			now:  2 * time.Hour,
			ok:   true,
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			require := require.New(t)
			ctrl := gomock.NewController(t)

			s, _ := newMarket(t, 2)
			prices := []uint64{100, 50}
			require.NoError(s.SetPools(pricedPools(ctrl, prices)))
			require.NoError(s.StartTrading(4*time.Hour, epoch))
			require.NoError(s.RecordTrade(0, epoch))
			if test.setup != nil {
				test.setup(s, prices)
			}

			c := cfg
			if test.cfg != nil {
				c = test.cfg(c)
			}
			ok, reason := s.CanResolveEarly(c, epoch.Add(test.now))
			require.Equal(test.ok, ok)
			require.Equal(test.reason, reason)
		})
	}
}

func TestCanResolveEarlyWithoutTrades(t *testing.T) {
	require := require.New(t)

	s, _ := newMarket(t, 2)
	require.NoError(s.StartTrading(4*time.Hour, epoch))

	cfg := config.EarlyResolution{Enabled: true, FlipWindow: futjson.Duration(time.Hour)}
	ok, reason := s.CanResolveEarly(cfg, epoch.Add(time.Hour))
	require.False(ok)
	require.Equal(ReasonNoTrades, reason)
}
