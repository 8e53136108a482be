// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

import (
	"fmt"

	"github.com/luxfi/ids"
)

var (
	_ Progress = (*SplitProgress)(nil)
	_ Progress = (*RecombineProgress)(nil)
)

// Progress is proof that a split or recombine has visited outcomes
// 0..Next()-1. It must be advanced through every outcome and then finished;
// Discard fails on a progress that has not been finished.
type Progress interface {
	Market() ids.ID
	Side() Side
	Amount() uint64
	OutcomeCount() int
	Next() int
	Complete() bool
	Finished() bool

	state() *progress
}

type progress struct {
	id           uint64
	market       ids.ID
	side         Side
	amount       uint64
	outcomeCount int
	next         int
	finished     bool
}

func (p *progress) Market() ids.ID    { return p.market }
func (p *progress) Side() Side        { return p.side }
func (p *progress) Amount() uint64    { return p.amount }
func (p *progress) OutcomeCount() int { return p.outcomeCount }
func (p *progress) Next() int         { return p.next }
func (p *progress) Complete() bool    { return p.next == p.outcomeCount }
func (p *progress) Finished() bool    { return p.finished }
func (p *progress) state() *progress  { return p }

// SplitProgress tracks a spot deposit whose conditional tokens are being
// minted outcome by outcome.
type SplitProgress struct {
	progress
}

// RecombineProgress tracks a complete set of conditional tokens being burned
// outcome by outcome before its spot is released.
type RecombineProgress struct {
	progress
}

// StartSplit deposits coin and opens a split at outcome 0.
func (e *Escrow) StartSplit(coin *Coin) (*SplitProgress, error) {
	switch {
	case coin == nil || coin.spent:
		return nil, ErrSpent
	case coin.value == 0:
		return nil, ErrZeroAmount
	case e.resolved:
		return nil, ErrResolved
	case len(e.authorities) < e.outcomeCount:
		return nil, fmt.Errorf("%w: %d of %d registered", ErrAuthorityMissing, len(e.authorities), e.outcomeCount)
	}
	amount, err := e.deposit(coin)
	if err != nil {
		return nil, err
	}
	p := &SplitProgress{progress: e.open(coin.side, amount, 0)}
	return p, nil
}

// SplitStep mints the progress amount for outcome, which must be the next
// outcome in index order.
func (e *Escrow) SplitStep(p *SplitProgress, outcome int) (*Token, error) {
	if p == nil {
		return nil, ErrInvalidProgress
	}
	if err := e.checkStep(&p.progress, outcome); err != nil {
		return nil, err
	}
	auth, err := e.authority(outcome, p.side)
	if err != nil {
		return nil, err
	}
	token, err := e.mint(auth, p.amount)
	if err != nil {
		return nil, err
	}
	e.advance(&p.progress)
	return token, nil
}

// FinishSplit closes a split that has visited every outcome.
func (e *Escrow) FinishSplit(p *SplitProgress) error {
	if p == nil {
		return ErrInvalidProgress
	}
	return e.finish(&p.progress)
}

// StartRecombine burns the outcome 0 token of a complete set and opens a
// recombine at outcome 1 for the token's value.
func (e *Escrow) StartRecombine(token *Token) (*RecombineProgress, error) {
	switch {
	case token == nil || token.spent:
		return nil, ErrSpent
	case token.market != e.market:
		return nil, ErrWrongMarket
	case token.outcome != 0:
		return nil, fmt.Errorf("%w: recombine starts at outcome 0, got %d", ErrOutOfOrder, token.outcome)
	case token.value == 0:
		return nil, ErrZeroAmount
	}
	auth, err := e.authority(0, token.side)
	if err != nil {
		return nil, err
	}
	if e.spot[token.side] < token.value {
		return nil, fmt.Errorf("%w: recombining %d %s against %d",
			ErrInsufficientBalance, token.value, token.side, e.spot[token.side])
	}
	side := token.side
	amount, err := e.burn(auth, token)
	if err != nil {
		return nil, err
	}
	p := &RecombineProgress{progress: e.open(side, amount, 1)}
	return p, nil
}

// RecombineStep burns token for outcome, which must be the next outcome in
// index order. The token's value must equal the amount burned at start.
func (e *Escrow) RecombineStep(p *RecombineProgress, outcome int, token *Token) error {
	if p == nil {
		return ErrInvalidProgress
	}
	if err := e.checkStep(&p.progress, outcome); err != nil {
		return err
	}
	if err := e.checkToken(token, outcome, p.side); err != nil {
		return err
	}
	if token.value != p.amount {
		return fmt.Errorf("%w: got %d, expected %d", ErrAmountMismatch, token.value, p.amount)
	}
	auth, err := e.authority(outcome, p.side)
	if err != nil {
		return err
	}
	if _, err := e.burn(auth, token); err != nil {
		return err
	}
	e.advance(&p.progress)
	return nil
}

// FinishRecombine closes a recombine that has visited every outcome and
// releases its amount of spot.
func (e *Escrow) FinishRecombine(p *RecombineProgress) (*Coin, error) {
	if p == nil {
		return nil, ErrInvalidProgress
	}
	if err := e.checkFinish(&p.progress); err != nil {
		return nil, err
	}
	coin, err := e.withdraw(p.side, p.amount)
	if err != nil {
		return nil, err
	}
	e.close(&p.progress)
	return coin, nil
}

// Discard drops a progress value. Dropping one that was never finished is
// an error: the deposit or burns it represents would otherwise be left
// half-applied.
func (e *Escrow) Discard(p Progress) error {
	if p == nil {
		return ErrInvalidProgress
	}
	st := p.state()
	if st.market != e.market {
		return ErrWrongMarket
	}
	if !st.finished {
		return fmt.Errorf("%w: discarded at outcome %d of %d", ErrIncomplete, st.next, st.outcomeCount)
	}
	return nil
}

func (e *Escrow) open(side Side, amount uint64, next int) progress {
	e.progressID++
	id := e.progressID
	e.pending[id] = struct{}{}
	e.record(func() {
		delete(e.pending, id)
	})
	return progress{
		id:           id,
		market:       e.market,
		side:         side,
		amount:       amount,
		outcomeCount: e.outcomeCount,
		next:         next,
	}
}

func (e *Escrow) checkStep(p *progress, outcome int) error {
	switch {
	case p.market != e.market:
		return ErrWrongMarket
	case p.finished:
		return ErrFinished
	case p.next >= p.outcomeCount:
		return ErrAlreadyComplete
	case outcome != p.next:
		return fmt.Errorf("%w: got %d, expected %d", ErrOutOfOrder, outcome, p.next)
	}
	return nil
}

func (e *Escrow) advance(p *progress) {
	p.next++
	e.record(func() {
		p.next--
	})
}

func (e *Escrow) checkFinish(p *progress) error {
	switch {
	case p.market != e.market:
		return ErrWrongMarket
	case p.finished:
		return ErrFinished
	case p.next != p.outcomeCount:
		return fmt.Errorf("%w: at outcome %d of %d", ErrIncomplete, p.next, p.outcomeCount)
	}
	return nil
}

func (e *Escrow) finish(p *progress) error {
	if err := e.checkFinish(p); err != nil {
		return err
	}
	e.close(p)
	return nil
}

func (e *Escrow) close(p *progress) {
	p.finished = true
	delete(e.pending, p.id)
	e.record(func() {
		p.finished = false
		e.pending[p.id] = struct{}{}
	})
}
