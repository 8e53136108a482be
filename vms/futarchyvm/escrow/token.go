// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import (
	"fmt"

	"github.com/luxfi/ids"
)

// Side selects the asset or the stable leg of a market.
type Side uint8

const (
	Asset Side = iota
	Stable
)

func (s Side) String() string {
	switch s {
	case Asset:
		return "asset"
	case Stable:
		return "stable"
	default:
		return "unknown"
	}
}

// Valid reports whether s is Asset or Stable.
func (s Side) Valid() bool {
	return s == Asset || s == Stable
}

// Coin is a spot balance handed to or released by the escrow. A coin is
// single-owner: once consumed it is spent and cannot be used again. A coin
// released inside an escrow session is bound to it and cannot be split or
// joined until the session commits.
type Coin struct {
	side  Side
	value uint64
	spent bool
	bound bool
}

// NewCoin wraps value units of spot on side.
func NewCoin(side Side, value uint64) *Coin {
	return &Coin{side: side, value: value}
}

func (c *Coin) Side() Side    { return c.side }
func (c *Coin) Value() uint64 { return c.value }
func (c *Coin) Spent() bool   { return c.spent }
func (c *Coin) Bound() bool   { return c.bound }

// Split moves amount out of c into a new coin.
func (c *Coin) Split(amount uint64) (*Coin, error) {
	switch {
	case c.spent:
		return nil, ErrSpent
	case c.bound:
		return nil, ErrSessionBound
	case amount == 0:
		return nil, ErrZeroAmount
	case amount > c.value:
		return nil, fmt.Errorf("%w: split %d of %d", ErrInsufficientBalance, amount, c.value)
	}
	c.value -= amount
	return &Coin{side: c.side, value: amount}, nil
}

// Join moves the whole of other into c and spends other.
func (c *Coin) Join(other *Coin) error {
	switch {
	case c == other:
		return ErrSelfJoin
	case c.spent || other.spent:
		return ErrSpent
	case c.bound || other.bound:
		return ErrSessionBound
	case c.side != other.side:
		return fmt.Errorf("%w: %s into %s", ErrTokenMismatch, other.side, c.side)
	}
	c.value += other.value
	other.value = 0
	other.spent = true
	return nil
}

func (c *Coin) take() (uint64, error) {
	if c.spent {
		return 0, ErrSpent
	}
	v := c.value
	c.value = 0
	c.spent = true
	return v, nil
}

func (c *Coin) restore(value uint64) {
	c.value = value
	c.spent = false
}

// Token is a conditional token: value units of one side that are only
// redeemable for spot if its outcome wins. Tokens are single-owner like
// coins, and are bound to the session that minted them the same way.
type Token struct {
	market  ids.ID
	outcome int
	side    Side
	value   uint64
	spent   bool
	bound   bool
}

func (t *Token) Market() ids.ID { return t.market }
func (t *Token) Outcome() int   { return t.outcome }
func (t *Token) Side() Side     { return t.side }
func (t *Token) Value() uint64  { return t.value }
func (t *Token) Spent() bool    { return t.spent }
func (t *Token) Bound() bool    { return t.bound }

// Split moves amount out of t into a new token of the same kind. Supply is
// unchanged.
func (t *Token) Split(amount uint64) (*Token, error) {
	switch {
	case t.spent:
		return nil, ErrSpent
	case t.bound:
		return nil, ErrSessionBound
	case amount == 0:
		return nil, ErrZeroAmount
	case amount > t.value:
		return nil, fmt.Errorf("%w: split %d of %d", ErrInsufficientBalance, amount, t.value)
	}
	t.value -= amount
	return &Token{market: t.market, outcome: t.outcome, side: t.side, value: amount}, nil
}

// Join moves the whole of other into t and spends other. Both tokens must
// belong to the same market, outcome and side.
func (t *Token) Join(other *Token) error {
	switch {
	case t == other:
		return ErrSelfJoin
	case t.spent || other.spent:
		return ErrSpent
	case t.bound || other.bound:
		return ErrSessionBound
	case !t.sameKind(other):
		return fmt.Errorf("%w: outcome %d %s into outcome %d %s",
			ErrTokenMismatch, other.outcome, other.side, t.outcome, t.side)
	}
	t.value += other.value
	other.value = 0
	other.spent = true
	return nil
}

func (t *Token) String() string {
	return fmt.Sprintf("%s/%d/%s:%d", t.market, t.outcome, t.side, t.value)
}

func (t *Token) sameKind(other *Token) bool {
	return t.market == other.market && t.outcome == other.outcome && t.side == other.side
}

func (t *Token) void() {
	t.value = 0
	t.spent = true
}

func (t *Token) restore(value uint64) {
	t.value = value
	t.spent = false
}
