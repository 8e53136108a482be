// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package futarchyvm

import (
	"time"

	"github.com/luxfi/ids"
	"github.com/luxfi/log"

	"github.com/luxfi/futarchy/vms/futarchyvm/escrow"
	"github.com/luxfi/futarchy/vms/futarchyvm/proposal"
	"github.com/luxfi/futarchy/vms/futarchyvm/state"
)

// persist stages the records of p and writes them through the versioned
// database. On failure nothing is written, the cached records are dropped
// and the in-memory proposal is left ahead of its stored records until the
// next successful persist.
func (vm *VM) persist(p *proposal.Proposal) error {
	err := vm.write(p)
	if err != nil {
		vm.log.Error("failed to persist proposal",
			log.Stringer("proposalID", p.ID()),
			log.Err(err),
		)
	}
	return err
}

func (vm *VM) write(p *proposal.Proposal) error {
	if err := vm.stage(p); err != nil {
		vm.state.Abort()
		return err
	}
	if err := vm.state.Commit(); err != nil {
		vm.state.Abort()
		vm.db.Abort()
		return err
	}
	if err := vm.db.Commit(); err != nil {
		vm.state.Reset()
		vm.db.Abort()
		return err
	}
	return nil
}

func (vm *VM) stage(p *proposal.Proposal) error {
	record := proposalRecord(p)
	record.UpdatedAt = vm.clock.UnixMilli()
	if err := vm.state.PutProposal(record); err != nil {
		return err
	}
	if err := vm.state.PutMarket(marketRecord(p)); err != nil {
		return err
	}
	if !p.Initialized() {
		return nil
	}
	return vm.state.PutEscrow(escrowRecord(p.Escrow()))
}

func proposalRecord(p *proposal.Proposal) *state.ProposalRecord {
	params := p.Params()
	r := &state.ProposalRecord{
		ID:        params.ID,
		DAO:       params.DAO,
		Proposer:  params.Proposer,
		Title:     params.Title,
		Stage:     uint8(p.Stage()),
		FeePaid:   p.FeePaid(),
		Actions:   params.Actions,
		Sponsors:  make([]ids.ShortID, p.OutcomeCount()),
		CreatedAt: unixMilli(p.CreatedAt()),
	}
	for i := range r.Sponsors {
		r.Sponsors[i], _ = p.SponsorOf(i)
	}
	if at, ok := p.Deadline(); ok {
		r.Deadline = unixMilli(at)
	}
	for _, twap := range p.TWAPs() {
		r.TWAPs = append(r.TWAPs, twap.Bytes32())
	}
	return r
}

func marketRecord(p *proposal.Proposal) *state.MarketRecord {
	m := p.Market()
	status := m.Status()
	r := &state.MarketRecord{
		ID:             m.ID(),
		Labels:         m.Labels(),
		TradingStarted: status.TradingStarted,
		TradingEnded:   status.TradingEnded,
		Finalized:      status.Finalized,
		CreatedAt:      unixMilli(m.CreatedAt()),
	}
	if winner, ok := m.WinningOutcome(); ok {
		r.Winner = uint32(winner)
	}
	if at, ok := m.TradingStart(); ok {
		r.TradingStart = unixMilli(at)
	}
	if at, ok := m.TradingEnd(); ok {
		r.TradingEnd = unixMilli(at)
	}
	if at, ok := m.EndedAt(); ok {
		r.EndedAt = unixMilli(at)
	}
	if at, ok := m.FinalizedAt(); ok {
		r.FinalizedAt = unixMilli(at)
	}
	if early, ok := m.EarlyResolution(); ok {
		r.Leader = uint32(early.Leader())
		r.LastFlip = unixMilli(early.LastFlip())
		r.FlipCount = uint32(len(early.Flips()))
	}
	if p.Initialized() {
		for i := 0; i < p.OutcomeCount(); i++ {
			pool, err := p.Pool(i)
			if err != nil {
				break
			}
			asset, stable := pool.Reserves()
			r.AssetReserves = append(r.AssetReserves, asset)
			r.StableReserves = append(r.StableReserves, stable)
		}
	}
	return r
}

func escrowRecord(e *escrow.Escrow) *state.EscrowRecord {
	spotAsset, spotStable := e.SpotBalances()
	r := &state.EscrowRecord{
		Market:       e.Market(),
		OutcomeCount: uint32(e.OutcomeCount()),
		Registered:   uint32(e.RegisteredCount()),
		SpotAsset:    spotAsset,
		SpotStable:   spotStable,
		AssetSupply:  make([]uint64, e.RegisteredCount()),
		StableSupply: make([]uint64, e.RegisteredCount()),
	}
	for i := 0; i < e.RegisteredCount(); i++ {
		r.AssetSupply[i], _ = e.Supply(i, escrow.Asset)
		r.StableSupply[i], _ = e.Supply(i, escrow.Stable)
	}
	if winner, ok := e.Winner(); ok {
		r.Resolved = true
		r.Winner = uint32(winner)
	}
	return r
}

func unixMilli(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}
