// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package amm implements the constant-product pool that trades one
// outcome's conditional asset against its conditional stable.
package amm

import (
	"errors"
	"fmt"
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"

	safemath "github.com/luxfi/futarchy/utils/math"
	"github.com/luxfi/futarchy/vms/futarchyvm/escrow"
)

// PriceScale is the fixed-point scale of prices: a price of PriceScale
// means one stable per asset.
const PriceScale = 1_000_000_000_000

var (
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrInvalidAmount         = errors.New("invalid amount")
	ErrSlippageExceeded      = errors.New("slippage exceeded")
	ErrInvalidReserve        = errors.New("invalid reserve token")
	ErrInvalidFee            = errors.New("fee must be below 10000 bps")
	ErrWrongMarket           = errors.New("pool belongs to a different market")
	ErrDrained               = errors.New("pool reserves withdrawn")

	priceScale = uint256.NewInt(PriceScale)
)

// SwapResult describes an executed or quoted swap.
type SwapResult struct {
	In             escrow.Side
	AmountIn       uint64
	AmountOut      uint64
	Fee            uint64
	PriceImpactBps uint64
	Price          *uint256.Int // price after the swap
}

// Pool is the AMM of one outcome. Its reserves are conditional tokens of
// that outcome, so trading never touches the escrow's spot balances. A pool
// is not safe for concurrent use.
type Pool struct {
	market  ids.ID
	outcome int
	feeBps  uint16

	reserves [2]*escrow.Token
	drained  bool

	oracle *Oracle

	volume  [2]uint64
	fees    [2]uint64
	txCount uint64

	createdAt time.Time
	updatedAt time.Time
}

// NewPool seeds a pool with asset and stable, which must be conditional
// tokens of the same outcome. The pool takes ownership of both.
func NewPool(feeBps uint16, asset, stable *escrow.Token, stepMaxBps uint64, now time.Time) (*Pool, error) {
	if feeBps >= 10_000 {
		return nil, ErrInvalidFee
	}
	if asset == nil || stable == nil || asset.Spent() || stable.Spent() {
		return nil, fmt.Errorf("%w: missing or spent", ErrInvalidReserve)
	}
	switch {
	case asset.Side() != escrow.Asset || stable.Side() != escrow.Stable:
		return nil, fmt.Errorf("%w: sides %s/%s", ErrInvalidReserve, asset.Side(), stable.Side())
	case asset.Market() != stable.Market() || asset.Outcome() != stable.Outcome():
		return nil, fmt.Errorf("%w: reserves from different outcomes", ErrInvalidReserve)
	case asset.Value() == 0 || stable.Value() == 0:
		return nil, ErrInsufficientLiquidity
	}
	return &Pool{
		market:    asset.Market(),
		outcome:   asset.Outcome(),
		feeBps:    feeBps,
		reserves:  [2]*escrow.Token{asset, stable},
		oracle:    NewOracle(stepMaxBps),
		createdAt: now,
		updatedAt: now,
	}, nil
}

func (p *Pool) Market() ids.ID  { return p.market }
func (p *Pool) Outcome() int    { return p.outcome }
func (p *Pool) FeeBps() uint16  { return p.feeBps }
func (p *Pool) Oracle() *Oracle { return p.oracle }
func (p *Pool) TxCount() uint64 { return p.txCount }
func (p *Pool) Drained() bool   { return p.drained }

// Reserves returns the asset and stable reserves. A withdrawn pool has
// none.
func (p *Pool) Reserves() (uint64, uint64) {
	if p.drained {
		return 0, 0
	}
	return p.reserves[escrow.Asset].Value(), p.reserves[escrow.Stable].Value()
}

// Volume returns the cumulative input volume on side.
func (p *Pool) Volume(side escrow.Side) uint64 {
	if !side.Valid() {
		return 0
	}
	return p.volume[side]
}

// CurrentPrice returns stable per asset scaled by PriceScale.
func (p *Pool) CurrentPrice() *uint256.Int {
	asset, stable := p.Reserves()
	return price(asset, stable)
}

// SetOracleStartTime starts TWAP accumulation at start. It can be called
// once.
func (p *Pool) SetOracleStartTime(market ids.ID, start time.Time) error {
	if market != p.market {
		return ErrWrongMarket
	}
	return p.oracle.Start(start, p.CurrentPrice())
}

// TWAP returns the time-weighted average price since the oracle start.
func (p *Pool) TWAP(now time.Time) (*uint256.Int, error) {
	return p.oracle.TWAP(now)
}

// Quote returns the result of swapping amountIn of side without executing
// it.
func (p *Pool) Quote(in escrow.Side, amountIn uint64) (*SwapResult, error) {
	if p.drained {
		return nil, ErrDrained
	}
	if !in.Valid() {
		return nil, fmt.Errorf("%w: side %d", ErrInvalidAmount, in)
	}
	if amountIn == 0 {
		return nil, ErrInvalidAmount
	}
	out := 1 - in
	reserveIn := uint256.NewInt(p.reserves[in].Value())
	reserveOut := uint256.NewInt(p.reserves[out].Value())

	// amountOut = reserveOut·inWithFee / (reserveIn·10000 + inWithFee)
	inWithFee := new(uint256.Int).Mul(uint256.NewInt(amountIn), uint256.NewInt(uint64(10_000-p.feeBps)))
	numerator := new(uint256.Int).Mul(reserveOut, inWithFee)
	denominator := new(uint256.Int).Mul(reserveIn, bpsDenominator)
	denominator.Add(denominator, inWithFee)
	amountOut := numerator.Div(numerator, denominator)
	if amountOut.IsZero() || !amountOut.Lt(reserveOut) {
		return nil, ErrInsufficientLiquidity
	}

	fee, err := safemath.MulDiv(amountIn, uint64(p.feeBps), bpsDenominator.Uint64())
	if err != nil {
		return nil, err
	}

	newIn := new(uint256.Int).Add(reserveIn, uint256.NewInt(amountIn))
	if !newIn.IsUint64() {
		return nil, fmt.Errorf("%w: reserve overflow", ErrInvalidAmount)
	}
	newOut := new(uint256.Int).Sub(reserveOut, amountOut)

	var before, after *uint256.Int
	if in == escrow.Asset {
		before = price(reserveIn.Uint64(), reserveOut.Uint64())
		after = price(newIn.Uint64(), newOut.Uint64())
	} else {
		before = price(reserveOut.Uint64(), reserveIn.Uint64())
		after = price(newOut.Uint64(), newIn.Uint64())
	}

	return &SwapResult{
		In:             in,
		AmountIn:       amountIn,
		AmountOut:      amountOut.Uint64(),
		Fee:            fee,
		PriceImpactBps: impactBps(before, after),
		Price:          after,
	}, nil
}

// Swap trades token against the pool and returns the opposite-side token.
// The token's side selects the direction.
func (p *Pool) Swap(token *escrow.Token, minAmountOut uint64, now time.Time) (*escrow.Token, *SwapResult, error) {
	if token == nil || token.Spent() {
		return nil, nil, escrow.ErrSpent
	}
	if token.Bound() {
		return nil, nil, escrow.ErrSessionBound
	}
	if token.Market() != p.market || token.Outcome() != p.outcome {
		return nil, nil, fmt.Errorf("%w: token outcome %d, pool outcome %d", ErrInvalidReserve, token.Outcome(), p.outcome)
	}
	in := token.Side()
	result, err := p.Quote(in, token.Value())
	if err != nil {
		return nil, nil, err
	}
	if result.AmountOut < minAmountOut {
		return nil, nil, fmt.Errorf("%w: out %d, min %d", ErrSlippageExceeded, result.AmountOut, minAmountOut)
	}
	if err := p.oracle.Observe(result.Price, now); err != nil {
		return nil, nil, err
	}

	out, err := p.reserves[1-in].Split(result.AmountOut)
	if err != nil {
		return nil, nil, err
	}
	if err := p.reserves[in].Join(token); err != nil {
		return nil, nil, err
	}

	p.volume[in] += result.AmountIn
	p.fees[in] += result.Fee
	p.txCount++
	p.updatedAt = now
	return out, result, nil
}

// Withdraw hands the reserves back to the caller and closes the pool to
// further trading.
func (p *Pool) Withdraw() (*escrow.Token, *escrow.Token, error) {
	if p.drained {
		return nil, nil, ErrDrained
	}
	p.drained = true
	return p.reserves[escrow.Asset], p.reserves[escrow.Stable], nil
}

func price(asset, stable uint64) *uint256.Int {
	if asset == 0 {
		return new(uint256.Int)
	}
	p := new(uint256.Int).Mul(uint256.NewInt(stable), priceScale)
	return p.Div(p, uint256.NewInt(asset))
}

func impactBps(before, after *uint256.Int) uint64 {
	if before.IsZero() {
		return 0
	}
	diff := new(uint256.Int)
	if after.Gt(before) {
		diff.Sub(after, before)
	} else {
		diff.Sub(before, after)
	}
	diff.Mul(diff, bpsDenominator)
	return diff.Div(diff, before).Uint64()
}
