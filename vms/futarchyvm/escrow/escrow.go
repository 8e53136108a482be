// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package escrow implements the quantum-liquidity escrow of a conditional
// market.
//
// Depositing X units of spot mints X conditional units in every outcome at
// once, so after any completed split or recombine
//
//	Supply(o, side) == SpotBalance(side)   for every outcome o.
//
// Conditional tokens of different outcomes are different kinds, so the
// mint and burn of a complete set is a sequence of calls threaded through
// a progress value (see SplitProgress and RecombineProgress). An escrow is
// not safe for concurrent use; the host serializes calls.
package escrow

import (
	"errors"
	"fmt"

	"github.com/luxfi/ids"

	safemath "github.com/luxfi/futarchy/utils/math"
)

var (
	// sequencing
	ErrOutOfOrder        = errors.New("outcome presented out of order")
	ErrWrongOutcome      = errors.New("token belongs to a different outcome")
	ErrAlreadyComplete   = errors.New("every outcome already visited")
	ErrFinished          = errors.New("progress already finished")
	ErrAlreadyRegistered = errors.New("every outcome already registered")
	ErrSessionActive     = errors.New("escrow session already active")
	ErrNoSession         = errors.New("no escrow session active")
	ErrSessionBound      = errors.New("value is bound to an open escrow session")
	ErrAlreadyResolved   = errors.New("escrow already resolved")
	ErrNotResolved       = errors.New("escrow not resolved")
	ErrResolved          = errors.New("escrow resolved, minting closed")

	// bounds
	ErrOutcomeOutOfRange = errors.New("outcome index out of range")
	ErrInvalidSide       = errors.New("invalid side")

	// invariant guards
	ErrZeroAmount         = errors.New("amount must be positive")
	ErrAmountMismatch     = errors.New("token value does not match progress amount")
	ErrIncomplete         = errors.New("not every outcome visited")
	ErrPendingOperation   = errors.New("split or recombine in progress")
	ErrInvariantViolated  = errors.New("conditional supply differs from spot balance")
	ErrSpent              = errors.New("coin or token already spent")
	ErrSelfJoin           = errors.New("cannot join a value into itself")
	ErrTokenMismatch      = errors.New("token kind mismatch")
	ErrWrongMarket        = errors.New("token or progress belongs to a different market")
	ErrInvalidProgress    = errors.New("invalid progress")
	ErrAuthorityMismatch  = errors.New("authority does not match its slot")
	ErrLosingOutcome      = errors.New("token is not for the winning outcome")
	ErrInvalidOutcomeSize = errors.New("outcome count must be positive")

	// resources
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrAuthorityMissing    = errors.New("authority not registered")
)

type authorityPair [2]Authority

// Escrow pools the spot balances of one market and holds the mint/burn
// authorities of every outcome.
type Escrow struct {
	market       ids.ID
	outcomeCount int

	spot        [2]uint64
	authorities []authorityPair

	pending    map[uint64]struct{}
	progressID uint64

	resolved bool
	winner   int

	journal *journal
}

// New returns an empty escrow for a market with outcomeCount outcomes.
func New(market ids.ID, outcomeCount int) (*Escrow, error) {
	if outcomeCount <= 0 {
		return nil, ErrInvalidOutcomeSize
	}
	return &Escrow{
		market:       market,
		outcomeCount: outcomeCount,
		authorities:  make([]authorityPair, 0, outcomeCount),
		pending:      make(map[uint64]struct{}),
	}, nil
}

func (e *Escrow) Market() ids.ID       { return e.market }
func (e *Escrow) OutcomeCount() int    { return e.outcomeCount }
func (e *Escrow) RegisteredCount() int { return len(e.authorities) }

// Pending returns the number of open split and recombine progress values.
func (e *Escrow) Pending() int { return len(e.pending) }

// SpotBalances returns the pooled spot asset and stable balances.
func (e *Escrow) SpotBalances() (asset uint64, stable uint64) {
	return e.spot[Asset], e.spot[Stable]
}

// SpotBalance returns the pooled spot balance of side.
func (e *Escrow) SpotBalance(side Side) uint64 {
	if !side.Valid() {
		return 0
	}
	return e.spot[side]
}

// Supply returns the conditional supply of outcome on side.
func (e *Escrow) Supply(outcome int, side Side) (uint64, error) {
	auth, err := e.authority(outcome, side)
	if err != nil {
		return 0, err
	}
	return auth.TotalSupply(), nil
}

// Winner returns the winning outcome once the escrow is resolved.
func (e *Escrow) Winner() (int, bool) {
	return e.winner, e.resolved
}

// Register stores the authorities of outcome. Outcomes must be registered
// in index order, exactly once each.
func (e *Escrow) Register(outcome int, asset Authority, stable Authority) error {
	switch {
	case outcome < 0 || outcome >= e.outcomeCount:
		return fmt.Errorf("%w: %d of %d", ErrOutcomeOutOfRange, outcome, e.outcomeCount)
	case len(e.authorities) == e.outcomeCount:
		return ErrAlreadyRegistered
	case outcome != len(e.authorities):
		return fmt.Errorf("%w: registering %d, expected %d", ErrOutOfOrder, outcome, len(e.authorities))
	case asset == nil || stable == nil:
		return fmt.Errorf("%w: outcome %d", ErrAuthorityMissing, outcome)
	}
	for _, check := range []struct {
		auth Authority
		side Side
	}{{asset, Asset}, {stable, Stable}} {
		if check.auth.Market() != e.market || check.auth.Outcome() != outcome || check.auth.Side() != check.side {
			return fmt.Errorf("%w: outcome %d %s", ErrAuthorityMismatch, outcome, check.side)
		}
		if check.auth.TotalSupply() != e.spot[check.side] {
			return fmt.Errorf("%w: outcome %d %s supply %d, spot %d",
				ErrInvariantViolated, outcome, check.side, check.auth.TotalSupply(), e.spot[check.side])
		}
	}

	e.authorities = append(e.authorities, authorityPair{Asset: asset, Stable: stable})
	e.record(func() {
		e.authorities = e.authorities[:len(e.authorities)-1]
	})
	return nil
}

// MintConditional mints amount units of outcome's conditional token on
// side. It does not touch spot balances.
func (e *Escrow) MintConditional(outcome int, side Side, amount uint64) (*Token, error) {
	auth, err := e.authority(outcome, side)
	if err != nil {
		return nil, err
	}
	return e.mint(auth, amount)
}

// BurnConditional burns token through outcome's authority on side. It does
// not touch spot balances.
func (e *Escrow) BurnConditional(outcome int, side Side, token *Token) (uint64, error) {
	auth, err := e.authority(outcome, side)
	if err != nil {
		return 0, err
	}
	if err := e.checkToken(token, outcome, side); err != nil {
		return 0, err
	}
	return e.burn(auth, token)
}

// DepositAndMint moves coin into the pool and mints the same amount of
// outcome's conditional token. On its own this raises the spot balance for
// every outcome while minting for only one, so it is meant for one-outcome
// top-ups; general liquidity enters through StartSplit. It fails until every
// outcome is registered, since Register requires supply to match spot.
func (e *Escrow) DepositAndMint(outcome int, coin *Coin) (*Token, error) {
	if coin == nil {
		return nil, ErrSpent
	}
	if len(e.authorities) < e.outcomeCount {
		return nil, fmt.Errorf("%w: %d of %d registered", ErrAuthorityMissing, len(e.authorities), e.outcomeCount)
	}
	auth, err := e.authority(outcome, coin.side)
	if err != nil {
		return nil, err
	}
	if coin.spent {
		return nil, ErrSpent
	}
	if coin.value == 0 {
		return nil, ErrZeroAmount
	}
	if _, err := safemath.Add(auth.TotalSupply(), coin.value); err != nil {
		return nil, err
	}
	value, err := e.deposit(coin)
	if err != nil {
		return nil, err
	}
	return e.mint(auth, value)
}

// Resolve fixes the winning outcome. Minting through StartSplit is closed
// afterwards and tokens of winner become redeemable through RedeemWinning.
func (e *Escrow) Resolve(winner int) error {
	switch {
	case e.resolved:
		return ErrAlreadyResolved
	case winner < 0 || winner >= e.outcomeCount:
		return fmt.Errorf("%w: %d of %d", ErrOutcomeOutOfRange, winner, e.outcomeCount)
	case len(e.pending) > 0:
		return ErrPendingOperation
	}
	e.resolved = true
	e.winner = winner
	e.record(func() {
		e.resolved = false
		e.winner = 0
	})
	return nil
}

// RedeemWinning burns a token of the winning outcome and releases the same
// amount of spot.
func (e *Escrow) RedeemWinning(token *Token) (*Coin, error) {
	if !e.resolved {
		return nil, ErrNotResolved
	}
	if token == nil || token.spent {
		return nil, ErrSpent
	}
	if token.market != e.market {
		return nil, ErrWrongMarket
	}
	if token.outcome != e.winner {
		return nil, fmt.Errorf("%w: outcome %d, winner %d", ErrLosingOutcome, token.outcome, e.winner)
	}
	auth, err := e.authority(token.outcome, token.side)
	if err != nil {
		return nil, err
	}
	if e.spot[token.side] < token.value {
		return nil, fmt.Errorf("%w: redeeming %d %s from %d",
			ErrInsufficientBalance, token.value, token.side, e.spot[token.side])
	}
	value, err := e.burn(auth, token)
	if err != nil {
		return nil, err
	}
	return e.withdraw(token.side, value)
}

// CheckQuantumInvariant verifies that every registered outcome's supply
// equals the spot balance on both sides. Once resolved only the winner is
// checked. It fails while a split or recombine is open.
func (e *Escrow) CheckQuantumInvariant() error {
	if len(e.pending) > 0 {
		return fmt.Errorf("%w: %d open", ErrPendingOperation, len(e.pending))
	}
	for outcome, pair := range e.authorities {
		if e.resolved && outcome != e.winner {
			continue
		}
		for side, auth := range pair {
			if supply := auth.TotalSupply(); supply != e.spot[side] {
				return fmt.Errorf("%w: outcome %d %s supply %d, spot %d",
					ErrInvariantViolated, outcome, Side(side), supply, e.spot[side])
			}
		}
	}
	return nil
}

func (e *Escrow) authority(outcome int, side Side) (Authority, error) {
	switch {
	case !side.Valid():
		return nil, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	case outcome < 0 || outcome >= e.outcomeCount:
		return nil, fmt.Errorf("%w: %d of %d", ErrOutcomeOutOfRange, outcome, e.outcomeCount)
	case outcome >= len(e.authorities):
		return nil, fmt.Errorf("%w: outcome %d", ErrAuthorityMissing, outcome)
	}
	return e.authorities[outcome][side], nil
}

func (e *Escrow) checkToken(token *Token, outcome int, side Side) error {
	switch {
	case token == nil || token.spent:
		return ErrSpent
	case token.market != e.market:
		return ErrWrongMarket
	case token.outcome != outcome:
		return fmt.Errorf("%w: token outcome %d, expected %d", ErrWrongOutcome, token.outcome, outcome)
	case token.side != side:
		return fmt.Errorf("%w: token side %s, expected %s", ErrTokenMismatch, token.side, side)
	}
	return nil
}

func (e *Escrow) mint(auth Authority, amount uint64) (*Token, error) {
	token, err := auth.Mint(amount)
	if err != nil {
		return nil, err
	}
	e.record(func() {
		// A synthetic token brings supply back down even if the callback
		// already moved the minted value elsewhere.
		_, _ = auth.Burn(&Token{
			market:  auth.Market(),
			outcome: auth.Outcome(),
			side:    auth.Side(),
			value:   amount,
		})
		if !token.spent {
			token.void()
		}
	})
	if e.journal != nil {
		token.bound = true
		e.journal.tokens = append(e.journal.tokens, token)
	}
	return token, nil
}

func (e *Escrow) burn(auth Authority, token *Token) (uint64, error) {
	value, err := auth.Burn(token)
	if err != nil {
		return 0, err
	}
	e.record(func() {
		if fresh, err := auth.Mint(value); err == nil {
			fresh.void()
		}
		token.restore(value)
	})
	return value, nil
}

func (e *Escrow) deposit(coin *Coin) (uint64, error) {
	side := coin.side
	if !side.Valid() {
		return 0, fmt.Errorf("%w: %d", ErrInvalidSide, side)
	}
	balance, err := safemath.Add(e.spot[side], coin.value)
	if err != nil {
		return 0, err
	}
	value, err := coin.take()
	if err != nil {
		return 0, err
	}
	e.spot[side] = balance
	e.record(func() {
		e.spot[side] -= value
		coin.restore(value)
	})
	return value, nil
}

func (e *Escrow) withdraw(side Side, amount uint64) (*Coin, error) {
	balance, err := safemath.Sub(e.spot[side], amount)
	if err != nil {
		return nil, fmt.Errorf("%w: withdrawing %d %s from %d", ErrInsufficientBalance, amount, side, e.spot[side])
	}
	e.spot[side] = balance
	coin := NewCoin(side, amount)
	e.record(func() {
		e.spot[side] += amount
		coin.value = 0
		coin.spent = true
	})
	if e.journal != nil {
		coin.bound = true
		e.journal.coins = append(e.journal.coins, coin)
	}
	return coin, nil
}
