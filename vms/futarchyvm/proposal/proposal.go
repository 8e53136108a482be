// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package proposal drives a futarchy proposal through premarket, review,
// trading and finalization.
//
// Outcome 0 is always the status quo. Outcomes 1..N-1 are variants that
// carry actions; one of them wins only if its time-weighted price beats
// outcome 0's by the configured threshold.
package proposal

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	"github.com/luxfi/futarchy/vms/futarchyvm/amm"
	"github.com/luxfi/futarchy/vms/futarchyvm/config"
	"github.com/luxfi/futarchy/vms/futarchyvm/escrow"
	"github.com/luxfi/futarchy/vms/futarchyvm/market"
)

// RejectOutcome is the status quo outcome.
const RejectOutcome = 0

var (
	ErrOutcomeCount        = errors.New("invalid outcome count")
	ErrInsufficientFee     = errors.New("insufficient proposal fee")
	ErrRejectActions       = errors.New("reject outcome cannot carry actions")
	ErrActionCount         = errors.New("action list length differs from outcome count")
	ErrWrongStage          = errors.New("operation not allowed in this stage")
	ErrAlreadyInitialized  = errors.New("market already initialized")
	ErrNotInitialized      = errors.New("market not initialized")
	ErrInsufficientSeed    = errors.New("bootstrap liquidity below minimum")
	ErrSpotPoolEmpty       = errors.New("spot pool has no reserves")
	ErrRatioOutOfTolerance = errors.New("bootstrap ratio differs from spot pool")
	ErrReviewNotElapsed    = errors.New("review period not elapsed")
	ErrTradingClosed       = errors.New("trading closed")
	ErrTradingActive       = errors.New("trading still active")
	ErrSponsorshipDisabled = errors.New("sponsorship disabled")
	ErrUnauthorizedSponsor = errors.New("sponsor not authorized")
	ErrSponsorReject       = errors.New("reject outcome cannot be sponsored")
	ErrAlreadySponsored    = errors.New("outcome already sponsored")
	ErrOutcomeOutOfRange   = errors.New("outcome index out of range")
	ErrLiquidityReclaimed  = errors.New("liquidity already reclaimed")
)

// Stage is the position of a proposal in its lifecycle.
type Stage uint8

const (
	Premarket Stage = iota
	Review
	Trading
	Finalized
)

func (s Stage) String() string {
	switch s {
	case Premarket:
		return "premarket"
	case Review:
		return "review"
	case Trading:
		return "trading"
	case Finalized:
		return "finalized"
	default:
		return "unknown"
	}
}

// SpotPool is the spot market the bootstrap reserves are priced against.
type SpotPool interface {
	Reserves() (asset uint64, stable uint64)
}

// Params describe a proposal at creation.
type Params struct {
	ID       ids.ID
	DAO      ids.ID
	Proposer ids.ShortID
	Title    string
	// Labels names every outcome; Labels[0] is the status quo.
	Labels []string
	// Actions holds the encoded actions of every outcome. It is either
	// empty or has one entry per outcome, and Actions[0] must be empty.
	Actions [][]byte
}

// Proposal is one futarchy proposal and the market that decides it. It is
// not safe for concurrent use.
type Proposal struct {
	cfg     config.Config
	params  Params
	stage   Stage
	feePaid uint64

	createdAt   time.Time
	reviewAt    time.Time
	tradingAt   time.Time
	finalizedAt time.Time

	market *market.State
	escrow *escrow.Escrow
	pools  []*amm.Pool

	sponsors  []ids.ShortID // per outcome, ids.ShortEmpty when unsponsored
	twaps     []*uint256.Int
	reclaimed bool
}

// New validates params and returns a premarket proposal.
func New(cfg config.Config, params Params, feePaid uint64, now time.Time, events market.EventSink) (*Proposal, error) {
	n := len(params.Labels)
	switch {
	case n < cfg.MinOutcomes || n > cfg.MaxOutcomes:
		return nil, fmt.Errorf("%w: %d not in [%d, %d]", ErrOutcomeCount, n, cfg.MinOutcomes, cfg.MaxOutcomes)
	case feePaid < uint64(cfg.ProposalFee):
		return nil, fmt.Errorf("%w: paid %d, required %d", ErrInsufficientFee, feePaid, uint64(cfg.ProposalFee))
	case len(params.Actions) != 0 && len(params.Actions) != n:
		return nil, fmt.Errorf("%w: %d actions, %d outcomes", ErrActionCount, len(params.Actions), n)
	case len(params.Actions) != 0 && len(params.Actions[RejectOutcome]) != 0:
		return nil, ErrRejectActions
	}

	m, err := market.New(params.ID, params.Labels, now, events)
	if err != nil {
		return nil, err
	}
	params.Labels = append([]string(nil), params.Labels...)
	params.Actions = append([][]byte(nil), params.Actions...)
	return &Proposal{
		cfg:       cfg,
		params:    params,
		stage:     Premarket,
		feePaid:   feePaid,
		createdAt: now,
		market:    m,
		sponsors:  make([]ids.ShortID, n),
	}, nil
}

func (p *Proposal) ID() ids.ID               { return p.params.ID }
func (p *Proposal) Params() Params           { return p.params }
func (p *Proposal) Stage() Stage             { return p.stage }
func (p *Proposal) FeePaid() uint64          { return p.feePaid }
func (p *Proposal) CreatedAt() time.Time     { return p.createdAt }
func (p *Proposal) OutcomeCount() int        { return len(p.params.Labels) }
func (p *Proposal) Market() *market.State    { return p.market }
func (p *Proposal) Escrow() *escrow.Escrow   { return p.escrow }
func (p *Proposal) Initialized() bool        { return p.escrow != nil }
func (p *Proposal) LiquidityReclaimed() bool { return p.reclaimed }

// Pool returns the AMM of outcome.
func (p *Proposal) Pool(outcome int) (*amm.Pool, error) {
	if p.pools == nil {
		return nil, ErrNotInitialized
	}
	if err := p.checkOutcome(outcome); err != nil {
		return nil, err
	}
	return p.pools[outcome], nil
}

// SponsorOf returns who sponsored outcome, if anyone.
func (p *Proposal) SponsorOf(outcome int) (ids.ShortID, bool) {
	if outcome < 0 || outcome >= len(p.sponsors) {
		return ids.ShortEmpty, false
	}
	return p.sponsors[outcome], p.sponsors[outcome] != ids.ShortEmpty
}

// Winner returns the winning outcome once finalized.
func (p *Proposal) Winner() (int, bool) {
	return p.market.WinningOutcome()
}

// TWAPs returns the time-weighted prices the winner was chosen from.
func (p *Proposal) TWAPs() []*uint256.Int {
	out := make([]*uint256.Int, len(p.twaps))
	for i, t := range p.twaps {
		out[i] = new(uint256.Int).Set(t)
	}
	return out
}

// Leader returns the outcome with the highest instantaneous price, which
// exists once a trade has been made.
func (p *Proposal) Leader() (int, bool) {
	board, ok := p.market.Leaderboard()
	if !ok {
		return 0, false
	}
	return board.Winner(), true
}

// Deadline returns when the current stage expires on its own. Premarket
// and finalized proposals have none.
func (p *Proposal) Deadline() (time.Time, bool) {
	switch p.stage {
	case Review:
		return p.reviewAt.Add(time.Duration(p.cfg.ReviewPeriod)), true
	case Trading:
		return p.market.TradingEnd()
	default:
		return time.Time{}, false
	}
}

// InitializeMarket creates the escrow, splits the bootstrap coins into
// every outcome and seeds one AMM per outcome with them. The ratio of
// asset to stable must match spot within the configured tolerance.
func (p *Proposal) InitializeMarket(spot SpotPool, asset, stable *escrow.Coin, now time.Time) error {
	switch {
	case p.stage != Premarket:
		return fmt.Errorf("%w: %s", ErrWrongStage, p.stage)
	case p.escrow != nil:
		return ErrAlreadyInitialized
	case asset == nil || stable == nil || asset.Spent() || stable.Spent():
		return escrow.ErrSpent
	case asset.Side() != escrow.Asset || stable.Side() != escrow.Stable:
		return fmt.Errorf("%w: bootstrap sides %s/%s", escrow.ErrTokenMismatch, asset.Side(), stable.Side())
	case asset.Value() < uint64(p.cfg.MinBootstrapAsset) || stable.Value() < uint64(p.cfg.MinBootstrapStable):
		return fmt.Errorf("%w: %d/%d, minimum %d/%d", ErrInsufficientSeed,
			asset.Value(), stable.Value(), uint64(p.cfg.MinBootstrapAsset), uint64(p.cfg.MinBootstrapStable))
	}
	if err := p.checkRatio(spot, asset.Value(), stable.Value()); err != nil {
		return err
	}

	n := p.OutcomeCount()
	e, err := escrow.New(p.params.ID, n)
	if err != nil {
		return err
	}
	assets, stables := escrow.NewAuthorities(p.params.ID, n)
	for i := 0; i < n; i++ {
		if err := e.Register(i, assets[i], stables[i]); err != nil {
			return err
		}
	}

	assetTokens, err := splitAll(e, asset)
	if err != nil {
		return err
	}
	stableTokens, err := splitAll(e, stable)
	if err != nil {
		return err
	}

	pools := make([]*amm.Pool, n)
	marketPools := make([]market.Pool, n)
	for i := 0; i < n; i++ {
		pool, err := amm.NewPool(p.cfg.AMMFeeBps, assetTokens[i], stableTokens[i], p.cfg.TWAPStepMaxBps, now)
		if err != nil {
			return err
		}
		pools[i] = pool
		marketPools[i] = pool
	}
	if err := p.market.SetPools(marketPools); err != nil {
		return err
	}
	p.escrow = e
	p.pools = pools
	return nil
}

// AdvanceToReview locks the proposal's parameters.
func (p *Proposal) AdvanceToReview(now time.Time) error {
	switch {
	case p.stage != Premarket:
		return fmt.Errorf("%w: %s", ErrWrongStage, p.stage)
	case p.escrow == nil:
		return ErrNotInitialized
	}
	p.stage = Review
	p.reviewAt = now
	return nil
}

// AdvanceToTrading opens trading once the review period has elapsed and
// starts every pool's TWAP oracle.
func (p *Proposal) AdvanceToTrading(now time.Time) error {
	if p.stage != Review {
		return fmt.Errorf("%w: %s", ErrWrongStage, p.stage)
	}
	if ready := p.reviewAt.Add(time.Duration(p.cfg.ReviewPeriod)); now.Before(ready) {
		return fmt.Errorf("%w: ready at %s", ErrReviewNotElapsed, ready)
	}
	if err := p.market.StartTrading(time.Duration(p.cfg.TradingPeriod), now); err != nil {
		return err
	}
	for _, pool := range p.pools {
		if err := pool.SetOracleStartTime(p.params.ID, now); err != nil {
			return err
		}
	}
	p.stage = Trading
	p.tradingAt = now
	return nil
}

// Swap trades token on outcome's pool and refreshes the leaderboard.
func (p *Proposal) Swap(outcome int, token *escrow.Token, minAmountOut uint64, now time.Time) (*escrow.Token, *amm.SwapResult, error) {
	if p.stage != Trading {
		return nil, nil, fmt.Errorf("%w: %s", ErrWrongStage, p.stage)
	}
	if !p.market.IsTradingActive(now) {
		return nil, nil, ErrTradingClosed
	}
	if err := p.checkOutcome(outcome); err != nil {
		return nil, nil, err
	}
	out, result, err := p.pools[outcome].Swap(token, minAmountOut, now)
	if err != nil {
		return nil, nil, err
	}
	if err := p.market.RecordTrade(outcome, now); err != nil {
		return nil, nil, err
	}
	return out, result, nil
}

// Sponsor lowers the threshold outcome must clear to the sponsored
// threshold. Only configured sponsors may do this, before trading starts.
func (p *Proposal) Sponsor(sponsor ids.ShortID, outcome int) error {
	switch {
	case !p.cfg.SponsorshipEnabled:
		return ErrSponsorshipDisabled
	case !p.cfg.IsSponsor(sponsor):
		return fmt.Errorf("%w: %s", ErrUnauthorizedSponsor, sponsor)
	case outcome == RejectOutcome:
		return ErrSponsorReject
	case p.stage != Premarket && p.stage != Review:
		return fmt.Errorf("%w: %s", ErrWrongStage, p.stage)
	}
	if err := p.checkOutcome(outcome); err != nil {
		return err
	}
	if p.sponsors[outcome] != ids.ShortEmpty {
		return fmt.Errorf("%w: outcome %d", ErrAlreadySponsored, outcome)
	}
	p.sponsors[outcome] = sponsor
	return nil
}

// ShouldEndEarly reports whether trading may end before its deadline.
func (p *Proposal) ShouldEndEarly(now time.Time) (bool, string) {
	if p.stage != Trading {
		return false, market.ReasonNotTrading
	}
	return p.market.CanResolveEarly(p.cfg.EarlyResolution, now)
}

// Finalize ends trading if its window ran out or early resolution allows
// it, picks the winner from the pools' TWAPs and resolves the escrow.
func (p *Proposal) Finalize(now time.Time) (int, error) {
	if p.stage != Trading {
		return 0, fmt.Errorf("%w: %s", ErrWrongStage, p.stage)
	}
	end, _ := p.market.TradingEnd()
	expired := p.market.TradingExpired(now)
	if !expired {
		if ok, reason := p.ShouldEndEarly(now); !ok {
			return 0, fmt.Errorf("%w: %s", ErrTradingActive, reason)
		}
	}

	at := now
	if expired {
		at = end
	}
	twaps := make([]*uint256.Int, len(p.pools))
	for i, pool := range p.pools {
		twap, err := pool.TWAP(at)
		if err != nil {
			return 0, fmt.Errorf("outcome %d twap: %w", i, err)
		}
		twaps[i] = twap
	}
	winner := p.pickWinner(twaps)

	if p.escrow.Pending() > 0 {
		return 0, escrow.ErrPendingOperation
	}
	if err := p.market.EndTrading(now); err != nil {
		return 0, err
	}
	if err := p.market.Finalize(winner, now); err != nil {
		return 0, err
	}
	if err := p.escrow.Resolve(winner); err != nil {
		return 0, err
	}
	p.twaps = twaps
	p.stage = Finalized
	p.finalizedAt = now
	return winner, nil
}

// ReclaimLiquidity withdraws every pool's reserves after finalization and
// redeems the winning outcome's share for spot. Losing reserves are
// worthless and dropped.
func (p *Proposal) ReclaimLiquidity() (*escrow.Coin, *escrow.Coin, error) {
	switch {
	case p.stage != Finalized:
		return nil, nil, fmt.Errorf("%w: %s", ErrWrongStage, p.stage)
	case p.reclaimed:
		return nil, nil, ErrLiquidityReclaimed
	}
	winner, _ := p.market.WinningOutcome()

	var assetCoin, stableCoin *escrow.Coin
	for i, pool := range p.pools {
		assetTok, stableTok, err := pool.Withdraw()
		if err != nil {
			return nil, nil, err
		}
		if i != winner {
			continue
		}
		if assetCoin, err = p.escrow.RedeemWinning(assetTok); err != nil {
			return nil, nil, err
		}
		if stableCoin, err = p.escrow.RedeemWinning(stableTok); err != nil {
			return nil, nil, err
		}
	}
	p.reclaimed = true
	return assetCoin, stableCoin, nil
}

// EffectiveThresholdBps returns how far outcome's TWAP must exceed the
// reject TWAP, in basis points.
func (p *Proposal) EffectiveThresholdBps(outcome int) int64 {
	if _, ok := p.SponsorOf(outcome); ok {
		return p.cfg.SponsoredThresholdBps
	}
	return p.cfg.TWAPThresholdBps
}

// pickWinner returns the accept outcome with the highest TWAP among those
// that strictly beat the reject TWAP by their threshold, or the reject
// outcome when none does. Ties go to the lower index.
func (p *Proposal) pickWinner(twaps []*uint256.Int) int {
	bps := uint256.NewInt(10_000)
	winner := RejectOutcome
	for i := 1; i < len(twaps); i++ {
		// twap_i·10000 > twap_0·(10000 + threshold)
		lhs := new(uint256.Int).Mul(twaps[i], bps)
		rhs := new(uint256.Int).Mul(twaps[RejectOutcome], uint256.NewInt(uint64(10_000+p.EffectiveThresholdBps(i))))
		if !lhs.Gt(rhs) {
			continue
		}
		if winner == RejectOutcome || twaps[i].Gt(twaps[winner]) {
			winner = i
		}
	}
	return winner
}

func (p *Proposal) checkRatio(spot SpotPool, asset, stable uint64) error {
	if spot == nil {
		return ErrSpotPoolEmpty
	}
	spotAsset, spotStable := spot.Reserves()
	if spotAsset == 0 || spotStable == 0 {
		return ErrSpotPoolEmpty
	}
	// stable/asset vs spotStable/spotAsset, cross multiplied
	got := new(uint256.Int).Mul(uint256.NewInt(stable), uint256.NewInt(spotAsset))
	want := new(uint256.Int).Mul(uint256.NewInt(spotStable), uint256.NewInt(asset))
	diff := new(uint256.Int)
	if got.Gt(want) {
		diff.Sub(got, want)
	} else {
		diff.Sub(want, got)
	}
	diff.Mul(diff, uint256.NewInt(10_000))
	limit := new(uint256.Int).Mul(want, uint256.NewInt(p.cfg.BootstrapToleranceBps))
	if diff.Gt(limit) {
		return fmt.Errorf("%w: bootstrap %d/%d, spot %d/%d", ErrRatioOutOfTolerance, asset, stable, spotAsset, spotStable)
	}
	return nil
}

func (p *Proposal) checkOutcome(outcome int) error {
	if outcome < 0 || outcome >= p.OutcomeCount() {
		return fmt.Errorf("%w: %d of %d", ErrOutcomeOutOfRange, outcome, p.OutcomeCount())
	}
	return nil
}

// splitAll splits coin into every outcome of e and returns the tokens in
// outcome order.
func splitAll(e *escrow.Escrow, coin *escrow.Coin) ([]*escrow.Token, error) {
	progress, err := e.StartSplit(coin)
	if err != nil {
		return nil, err
	}
	tokens := make([]*escrow.Token, e.OutcomeCount())
	for i := range tokens {
		if tokens[i], err = e.SplitStep(progress, i); err != nil {
			return nil, err
		}
	}
	if err := e.FinishSplit(progress); err != nil {
		return nil, err
	}
	return tokens, e.Discard(progress)
}
