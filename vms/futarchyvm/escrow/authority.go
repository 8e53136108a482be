// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import (
	"fmt"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/futarchy/utils/math"
)

var _ Authority = (*Treasury)(nil)

// Authority is the mint/burn capability for one (market, outcome, side)
// conditional token. The escrow owns one asset and one stable authority per
// outcome and is the only caller of Mint and Burn.
type Authority interface {
	Market() ids.ID
	Outcome() int
	Side() Side

	// Mint creates amount new units.
	Mint(amount uint64) (*Token, error)
	// Burn destroys token and returns its value.
	Burn(token *Token) (uint64, error)
	// TotalSupply is the number of units minted and not yet burned.
	TotalSupply() uint64
}

// Treasury is the default Authority: it tracks total supply in memory.
type Treasury struct {
	market  ids.ID
	outcome int
	side    Side
	supply  uint64
}

// NewTreasury returns an authority with zero supply.
func NewTreasury(market ids.ID, outcome int, side Side) *Treasury {
	return &Treasury{
		market:  market,
		outcome: outcome,
		side:    side,
	}
}

// NewAuthorities returns the asset and stable treasuries for outcomes
// 0..n-1 in registration order.
func NewAuthorities(market ids.ID, n int) (assets []Authority, stables []Authority) {
	assets = make([]Authority, n)
	stables = make([]Authority, n)
	for i := 0; i < n; i++ {
		assets[i] = NewTreasury(market, i, Asset)
		stables[i] = NewTreasury(market, i, Stable)
	}
	return assets, stables
}

func (t *Treasury) Market() ids.ID      { return t.market }
func (t *Treasury) Outcome() int        { return t.outcome }
func (t *Treasury) Side() Side          { return t.side }
func (t *Treasury) TotalSupply() uint64 { return t.supply }

func (t *Treasury) Mint(amount uint64) (*Token, error) {
	if amount == 0 {
		return nil, ErrZeroAmount
	}
	supply, err := safemath.Add(t.supply, amount)
	if err != nil {
		return nil, fmt.Errorf("minting %d on outcome %d %s: %w", amount, t.outcome, t.side, err)
	}
	t.supply = supply
	return &Token{
		market:  t.market,
		outcome: t.outcome,
		side:    t.side,
		value:   amount,
	}, nil
}

func (t *Treasury) Burn(token *Token) (uint64, error) {
	if token.spent {
		return 0, ErrSpent
	}
	if token.market != t.market || token.outcome != t.outcome || token.side != t.side {
		return 0, fmt.Errorf("%w: token for outcome %d %s burned by outcome %d %s",
			ErrTokenMismatch, token.outcome, token.side, t.outcome, t.side)
	}
	supply, err := safemath.Sub(t.supply, token.value)
	if err != nil {
		return 0, fmt.Errorf("burning %d on outcome %d %s: %w", token.value, t.outcome, t.side, err)
	}
	t.supply = supply
	value := token.value
	token.void()
	return value, nil
}
