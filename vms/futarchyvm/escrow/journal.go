// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package escrow

// journal collects the inverse of every state change made while a session
// is open, and the values the session handed out.
type journal struct {
	undo   []func()
	tokens []*Token
	coins  []*Coin
}

// Begin opens a session. Every change made until Commit or Rollback can be
// reverted as a unit. Tokens minted and coins released in between are bound
// to the session: they can be passed back to the escrow but not split or
// joined, so a rollback that voids them leaves nothing derived behind.
func (e *Escrow) Begin() error {
	if e.journal != nil {
		return ErrSessionActive
	}
	e.journal = &journal{}
	return nil
}

// Commit keeps the changes made since Begin and releases the values the
// session handed out.
func (e *Escrow) Commit() error {
	if e.journal == nil {
		return ErrNoSession
	}
	j := e.journal
	e.journal = nil
	j.unbind()
	return nil
}

// Rollback reverts the changes made since Begin, newest first.
func (e *Escrow) Rollback() error {
	if e.journal == nil {
		return ErrNoSession
	}
	j := e.journal
	e.journal = nil
	for i := len(j.undo) - 1; i >= 0; i-- {
		j.undo[i]()
	}
	j.unbind()
	return nil
}

// InSession reports whether Begin has been called without a matching
// Commit or Rollback.
func (e *Escrow) InSession() bool {
	return e.journal != nil
}

func (e *Escrow) record(fn func()) {
	if e.journal != nil {
		e.journal.undo = append(e.journal.undo, fn)
	}
}

func (j *journal) unbind() {
	for _, t := range j.tokens {
		t.bound = false
	}
	for _, c := range j.coins {
		c.bound = false
	}
}
