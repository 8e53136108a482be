// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package metrics

import (
	"strconv"

	"github.com/luxfi/metric"

	utilmetric "github.com/luxfi/futarchy/utils/metric"
	"github.com/luxfi/futarchy/utils/wrappers"
)

const (
	resultLabel  = "result"
	outcomeLabel = "outcome"
	sideLabel    = "side"

	ResultAccept   = "accept"
	ResultReject   = "reject"
	ResultCommit   = "commit"
	ResultRollback = "rollback"
)

var _ Metrics = (*metricsImpl)(nil)

type Metrics interface {
	// MarkProposalCreated counts a new proposal.
	MarkProposalCreated()
	// SetActiveMarkets records the number of markets in their trading
	// window.
	SetActiveMarkets(n int)
	MarkProposalFinalized(winner int)
	// MarkSwap counts a swap on outcome paying in side and records how far
	// it moved the pool's price.
	MarkSwap(outcome int, side string, impactBps uint64)
	MarkLeaderFlip()
	// MarkSession counts an escrow session closed with result.
	MarkSession(result string)
}

type metricsImpl struct {
	proposalsCreated   metric.Counter
	proposalsFinalized metric.CounterVec
	swaps              metric.CounterVec
	swapImpact         utilmetric.Averager
	leaderFlips        metric.Counter
	sessions           metric.CounterVec
	activeMarkets      metric.Gauge
}

func New(registerer metric.Registerer) (Metrics, error) {
	m := &metricsImpl{
		proposalsCreated: metric.NewCounter(metric.CounterOpts{
			Name: "proposals_created",
			Help: "Number of proposals created",
		}),
		proposalsFinalized: metric.NewCounterVec(
			metric.CounterOpts{
				Name: "proposals_finalized",
				Help: "Number of proposals finalized by result",
			},
			[]string{resultLabel},
		),
		swaps: metric.NewCounterVec(
			metric.CounterOpts{
				Name: "swaps",
				Help: "Number of conditional swaps by outcome and input side",
			},
			[]string{outcomeLabel, sideLabel},
		),
		leaderFlips: metric.NewCounter(metric.CounterOpts{
			Name: "leader_flips",
			Help: "Number of times a market's leading outcome changed",
		}),
		sessions: metric.NewCounterVec(
			metric.CounterOpts{
				Name: "escrow_sessions",
				Help: "Number of escrow sessions by result",
			},
			[]string{resultLabel},
		),
		activeMarkets: metric.NewGauge(metric.GaugeOpts{
			Name: "active_markets",
			Help: "Number of markets in their trading window",
		}),
	}

	errs := wrappers.Errs{}
	m.swapImpact = utilmetric.NewAveragerWithErrs(
		"swap_impact_bps",
		"price impact of swaps in basis points",
		registerer,
		&errs,
	)
	errs.Add(
		registerer.Register(metric.AsCollector(m.proposalsCreated)),
		registerer.Register(metric.AsCollector(m.proposalsFinalized)),
		registerer.Register(metric.AsCollector(m.swaps)),
		registerer.Register(metric.AsCollector(m.leaderFlips)),
		registerer.Register(metric.AsCollector(m.sessions)),
		registerer.Register(metric.AsCollector(m.activeMarkets)),
	)
	return m, errs.Err
}

func (m *metricsImpl) MarkProposalCreated() {
	m.proposalsCreated.Inc()
}

func (m *metricsImpl) SetActiveMarkets(n int) {
	m.activeMarkets.Set(float64(n))
}

func (m *metricsImpl) MarkProposalFinalized(winner int) {
	result := ResultAccept
	if winner == 0 {
		result = ResultReject
	}
	m.proposalsFinalized.With(metric.Labels{
		resultLabel: result,
	}).Inc()
}

func (m *metricsImpl) MarkSwap(outcome int, side string, impactBps uint64) {
	m.swaps.With(metric.Labels{
		outcomeLabel: strconv.Itoa(outcome),
		sideLabel:    side,
	}).Inc()
	m.swapImpact.Observe(float64(impactBps))
}

func (m *metricsImpl) MarkLeaderFlip() {
	m.leaderFlips.Inc()
}

func (m *metricsImpl) MarkSession(result string) {
	m.sessions.With(metric.Labels{
		resultLabel: result,
	}).Inc()
}
