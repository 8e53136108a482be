// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package market

import (
	"time"

	"github.com/holiman/uint256"
	"github.com/luxfi/ids"
)

var (
	_ Event = (*TradingStarted)(nil)
	_ Event = (*TradingEnded)(nil)
	_ Event = (*MarketFinalized)(nil)
	_ Event = (*LeaderFlipped)(nil)

	_ EventSink = NoEvents{}
	_ EventSink = (EventSinkFunc)(nil)
)

// Event is emitted on lifecycle transitions for external indexers.
type Event interface {
	MarketID() ids.ID
}

type TradingStarted struct {
	Market ids.ID
	Start  time.Time
	End    time.Time
}

type TradingEnded struct {
	Market ids.ID
	At     time.Time
}

type MarketFinalized struct {
	Market  ids.ID
	Winner  int
	At      time.Time
	Outcome string
}

type LeaderFlipped struct {
	Market ids.ID
	Flip   Flip
}

func (e *TradingStarted) MarketID() ids.ID  { return e.Market }
func (e *TradingEnded) MarketID() ids.ID    { return e.Market }
func (e *MarketFinalized) MarketID() ids.ID { return e.Market }
func (e *LeaderFlipped) MarketID() ids.ID   { return e.Market }

// EventSink receives market events.
type EventSink interface {
	Emit(Event)
}

// EventSinkFunc adapts a function to EventSink.
type EventSinkFunc func(Event)

func (f EventSinkFunc) Emit(e Event) { f(e) }

// NoEvents drops every event.
type NoEvents struct{}

func (NoEvents) Emit(Event) {}

// Flip records a change of leader.
type Flip struct {
	At     time.Time
	From   int
	To     int
	Spread uint256.Int
}
