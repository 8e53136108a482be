// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package state

import "github.com/luxfi/ids"

// Times are unix milliseconds; zero means unset.

// MarketRecord is the persisted form of a market's state.
type MarketRecord struct {
	ID     ids.ID   `serialize:"true" json:"id"`
	Labels []string `serialize:"true" json:"labels"`

	TradingStarted bool   `serialize:"true" json:"tradingStarted"`
	TradingEnded   bool   `serialize:"true" json:"tradingEnded"`
	Finalized      bool   `serialize:"true" json:"finalized"`
	Winner         uint32 `serialize:"true" json:"winner"`

	CreatedAt    int64 `serialize:"true" json:"createdAt"`
	TradingStart int64 `serialize:"true" json:"tradingStart"`
	TradingEnd   int64 `serialize:"true" json:"tradingEnd"`
	EndedAt      int64 `serialize:"true" json:"endedAt"`
	FinalizedAt  int64 `serialize:"true" json:"finalizedAt"`

	// Per outcome pool reserves, empty before initialization.
	AssetReserves  []uint64 `serialize:"true" json:"assetReserves"`
	StableReserves []uint64 `serialize:"true" json:"stableReserves"`

	// Early resolution metrics, zero before the first trade.
	Leader    uint32 `serialize:"true" json:"leader"`
	LastFlip  int64  `serialize:"true" json:"lastFlip"`
	FlipCount uint32 `serialize:"true" json:"flipCount"`
}

// EscrowRecord is the persisted form of a market's escrow.
type EscrowRecord struct {
	Market       ids.ID   `serialize:"true" json:"market"`
	OutcomeCount uint32   `serialize:"true" json:"outcomeCount"`
	Registered   uint32   `serialize:"true" json:"registered"`
	SpotAsset    uint64   `serialize:"true" json:"spotAsset"`
	SpotStable   uint64   `serialize:"true" json:"spotStable"`
	AssetSupply  []uint64 `serialize:"true" json:"assetSupply"`
	StableSupply []uint64 `serialize:"true" json:"stableSupply"`
	Resolved     bool     `serialize:"true" json:"resolved"`
	Winner       uint32   `serialize:"true" json:"winner"`
}

// ProposalRecord is the persisted form of a proposal.
type ProposalRecord struct {
	ID       ids.ID        `serialize:"true" json:"id"`
	DAO      ids.ID        `serialize:"true" json:"dao"`
	Proposer ids.ShortID   `serialize:"true" json:"proposer"`
	Title    string        `serialize:"true" json:"title"`
	Stage    uint8         `serialize:"true" json:"stage"`
	FeePaid  uint64        `serialize:"true" json:"feePaid"`
	Actions  [][]byte      `serialize:"true" json:"actions"`
	Sponsors []ids.ShortID `serialize:"true" json:"sponsors"`

	CreatedAt int64  `serialize:"true" json:"createdAt"`
	Deadline  int64  `serialize:"true" json:"deadline"`
	UpdatedAt uint64 `serialize:"true" json:"updatedAt"`

	// Big-endian TWAP of every outcome at finalization.
	TWAPs [][32]byte `serialize:"true" json:"twaps"`
}
