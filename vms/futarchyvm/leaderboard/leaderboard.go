// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

// Package leaderboard tracks which outcome of a market currently has the
// highest price.
package leaderboard

import (
	"errors"
	"fmt"

	"github.com/holiman/uint256"

	"github.com/luxfi/futarchy/utils/heap"
)

var (
	ErrEmpty             = errors.New("leaderboard needs at least one outcome")
	ErrOutcomeOutOfRange = errors.New("outcome index out of range")
	ErrNilPrice          = errors.New("price must not be nil")
)

// Entry is the price of one outcome.
type Entry struct {
	Price   uint256.Int
	Outcome int
}

// higher orders entries by price, then by lower outcome index.
func higher(a, b *Entry) bool {
	if c := a.Price.Cmp(&b.Price); c != 0 {
		return c > 0
	}
	return a.Outcome < b.Outcome
}

// Leaderboard is a max-heap of outcome prices with a reverse index from
// outcome to heap slot. Building it is O(n), updating one outcome is
// O(log n) and reading the winner and spread is O(1).
type Leaderboard struct {
	heap  *heap.Max[*Entry]
	slots []int
}

// New builds a leaderboard where outcome i starts at prices[i].
func New(prices []*uint256.Int) (*Leaderboard, error) {
	if len(prices) == 0 {
		return nil, ErrEmpty
	}
	entries := make([]*Entry, len(prices))
	for i, p := range prices {
		if p == nil {
			return nil, fmt.Errorf("%w: outcome %d", ErrNilPrice, i)
		}
		entries[i] = &Entry{Outcome: i}
		entries[i].Price.Set(p)
	}

	l := &Leaderboard{slots: make([]int, len(prices))}
	l.heap = heap.BuildMax(entries, higher, heap.WithMoveHook(func(e *Entry, slot int) {
		l.slots[e.Outcome] = slot
	}))
	return l, nil
}

// Len returns the number of outcomes.
func (l *Leaderboard) Len() int { return len(l.slots) }

// UpdatePrice sets the price of outcome and moves it to its new rank.
func (l *Leaderboard) UpdatePrice(outcome int, price *uint256.Int) error {
	if outcome < 0 || outcome >= len(l.slots) {
		return fmt.Errorf("%w: %d of %d", ErrOutcomeOutOfRange, outcome, len(l.slots))
	}
	if price == nil {
		return ErrNilPrice
	}
	slot := l.slots[outcome]
	l.heap.At(slot).Price.Set(price)
	l.heap.Fix(slot)
	return nil
}

// Price returns the current price of outcome.
func (l *Leaderboard) Price(outcome int) (*uint256.Int, error) {
	if outcome < 0 || outcome >= len(l.slots) {
		return nil, fmt.Errorf("%w: %d of %d", ErrOutcomeOutOfRange, outcome, len(l.slots))
	}
	return new(uint256.Int).Set(&l.heap.At(l.slots[outcome]).Price), nil
}

// Winner returns the outcome with the highest price.
func (l *Leaderboard) Winner() int {
	root, _ := l.heap.Peek()
	return root.Outcome
}

// WinnerAndSpread returns the leading outcome, its price and how far it is
// ahead of the runner-up. The runner-up is always one of the root's
// children. With a single outcome the spread is zero.
func (l *Leaderboard) WinnerAndSpread() (int, *uint256.Int, *uint256.Int) {
	root, _ := l.heap.Peek()
	price := new(uint256.Int).Set(&root.Price)
	spread := new(uint256.Int)

	n := l.heap.Len()
	if n < 2 {
		return root.Outcome, price, spread
	}
	second := l.heap.At(heap.Left(0))
	if r := heap.Right(0); r < n {
		if right := l.heap.At(r); higher(right, second) {
			second = right
		}
	}
	spread.Sub(&root.Price, &second.Price)
	return root.Outcome, price, spread
}

// Entries returns the outcome prices in outcome order.
func (l *Leaderboard) Entries() []Entry {
	out := make([]Entry, len(l.slots))
	for outcome, slot := range l.slots {
		e := l.heap.At(slot)
		out[outcome] = Entry{Outcome: e.Outcome}
		out[outcome].Price.Set(&e.Price)
	}
	return out
}
