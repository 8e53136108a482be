// Copyright (C) 2019-2025, Lux Industries, Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package futarchyvm

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/luxfi/database"
	"github.com/luxfi/database/prefixdb"
	"github.com/luxfi/database/versiondb"
	"github.com/luxfi/ids"
	"github.com/luxfi/log"
	"github.com/luxfi/metric"

	"github.com/luxfi/futarchy/utils/timer/mockable"
	"github.com/luxfi/futarchy/vms/futarchyvm/amm"
	"github.com/luxfi/futarchy/vms/futarchyvm/config"
	"github.com/luxfi/futarchy/vms/futarchyvm/escrow"
	"github.com/luxfi/futarchy/vms/futarchyvm/market"
	"github.com/luxfi/futarchy/vms/futarchyvm/metrics"
	"github.com/luxfi/futarchy/vms/futarchyvm/proposal"
	"github.com/luxfi/futarchy/vms/futarchyvm/state"
)

var (
	_ market.EventSink = (*VM)(nil)

	dbPrefix = []byte("futarchy")

	ErrNotInitialized     = errors.New("vm not initialized")
	ErrAlreadyInitialized = errors.New("vm already initialized")
	ErrShutdown           = errors.New("vm shut down")
	ErrUnknownProposal    = errors.New("unknown proposal")
	ErrDuplicateProposal  = errors.New("proposal already exists")
	ErrIncompleteSet      = errors.New("token set does not cover every outcome")
)

// VM hosts futarchy proposals. Every call runs under the VM lock, so engine
// operations execute one at a time, and commits the touched proposal's
// records before returning.
type VM struct {
	config.Config

	log  log.Logger
	lock sync.Mutex

	// Used to check local time
	clock mockable.Clock

	baseDB database.Database
	db     *versiondb.Database
	state  *state.State

	metrics metrics.Metrics

	proposals map[ids.ID]*proposal.Proposal
	schedule  *schedule

	initialized bool
	shutdown    bool
}

// New returns an uninitialized VM that logs to logger.
func New(logger log.Logger) *VM {
	return &VM{log: logger}
}

// Initialize parses configBytes over the default configuration and opens
// the VM's state in db.
func (vm *VM) Initialize(
	_ context.Context,
	db database.Database,
	configBytes []byte,
	registerer metric.Registerer,
) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if vm.initialized {
		return ErrAlreadyInitialized
	}
	if vm.log == nil {
		vm.log = log.NewNoOpLogger()
	}

	cfg, err := config.Parse(configBytes)
	if err != nil {
		return err
	}
	vm.Config = cfg

	vm.baseDB = db
	vm.db = versiondb.New(prefixdb.New(dbPrefix, db))
	vm.state, err = state.New(vm.db, cfg.RecordCacheSize)
	if err != nil {
		return err
	}
	vm.metrics, err = metrics.New(registerer)
	if err != nil {
		return fmt.Errorf("failed to register metrics: %w", err)
	}

	vm.proposals = make(map[ids.ID]*proposal.Proposal)
	vm.schedule = newSchedule()
	vm.initialized = true

	vm.log.Info("futarchy VM initialized",
		log.Int("maxOutcomes", cfg.MaxOutcomes),
		log.Duration("reviewPeriod", time.Duration(cfg.ReviewPeriod)),
		log.Duration("tradingPeriod", time.Duration(cfg.TradingPeriod)),
	)
	return nil
}

// CreateProposal opens a premarket proposal.
func (vm *VM) CreateProposal(params proposal.Params, feePaid uint64) (*proposal.Proposal, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if err := vm.ready(); err != nil {
		return nil, err
	}
	if _, ok := vm.proposals[params.ID]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateProposal, params.ID)
	}
	p, err := proposal.New(vm.Config, params, feePaid, vm.clock.Time(), vm)
	if err != nil {
		vm.log.Debug("proposal rejected",
			log.Stringer("proposalID", params.ID),
			log.Err(err),
		)
		return nil, err
	}
	if err := vm.persist(p); err != nil {
		return nil, err
	}
	vm.proposals[params.ID] = p
	vm.metrics.MarkProposalCreated()

	vm.log.Info("proposal created",
		log.Stringer("proposalID", params.ID),
		log.Stringer("daoID", params.DAO),
		log.Int("outcomes", len(params.Labels)),
	)
	return p, nil
}

// InitializeMarket seeds the proposal's market from the bootstrap coins and
// moves it into review.
func (vm *VM) InitializeMarket(id ids.ID, spot proposal.SpotPool, asset, stable *escrow.Coin) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	p, err := vm.get(id)
	if err != nil {
		return err
	}
	now := vm.clock.Time()
	if err := p.InitializeMarket(spot, asset, stable, now); err != nil {
		return err
	}
	if err := p.AdvanceToReview(now); err != nil {
		return err
	}
	vm.reschedule(p)
	return vm.persist(p)
}

// Atomic runs fn as one escrow session of proposal id. If fn fails or
// leaves a split or recombine unfinished, every escrow mutation fn made is
// undone. fn must not call back into the VM.
func (vm *VM) Atomic(id ids.ID, fn func(*escrow.Escrow) error) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	p, err := vm.get(id)
	if err != nil {
		return err
	}
	return vm.atomic(p, fn)
}

// Split deposits coin into the escrow of proposal id and returns one
// conditional token per outcome, in outcome order.
func (vm *VM) Split(id ids.ID, coin *escrow.Coin) ([]*escrow.Token, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	p, err := vm.get(id)
	if err != nil {
		return nil, err
	}
	var tokens []*escrow.Token
	err = vm.atomic(p, func(e *escrow.Escrow) error {
		progress, err := e.StartSplit(coin)
		if err != nil {
			return err
		}
		minted := make([]*escrow.Token, e.OutcomeCount())
		for i := range minted {
			if minted[i], err = e.SplitStep(progress, i); err != nil {
				return err
			}
		}
		if err := e.FinishSplit(progress); err != nil {
			return err
		}
		tokens = minted
		return e.Discard(progress)
	})
	return tokens, err
}

// Recombine burns a complete set of conditional tokens, given in outcome
// order, and returns the spot they were backed by.
func (vm *VM) Recombine(id ids.ID, tokens []*escrow.Token) (*escrow.Coin, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	p, err := vm.get(id)
	if err != nil {
		return nil, err
	}
	if len(tokens) != p.OutcomeCount() {
		return nil, fmt.Errorf("%w: %d tokens, %d outcomes", ErrIncompleteSet, len(tokens), p.OutcomeCount())
	}
	var coin *escrow.Coin
	err = vm.atomic(p, func(e *escrow.Escrow) error {
		progress, err := e.StartRecombine(tokens[0])
		if err != nil {
			return err
		}
		for i := 1; i < len(tokens); i++ {
			if err := e.RecombineStep(progress, i, tokens[i]); err != nil {
				return err
			}
		}
		released, err := e.FinishRecombine(progress)
		if err != nil {
			return err
		}
		coin = released
		return e.Discard(progress)
	})
	return coin, err
}

// Swap trades token on the pool of outcome. If the records cannot be
// written the trade still stands and its output is returned with the error.
func (vm *VM) Swap(id ids.ID, outcome int, token *escrow.Token, minAmountOut uint64) (*escrow.Token, *amm.SwapResult, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	p, err := vm.get(id)
	if err != nil {
		return nil, nil, err
	}
	if token == nil {
		return nil, nil, escrow.ErrSpent
	}
	side := token.Side()
	out, result, err := p.Swap(outcome, token, minAmountOut, vm.clock.Time())
	if err != nil {
		vm.log.Debug("swap rejected",
			log.Stringer("proposalID", id),
			log.Int("outcome", outcome),
			log.Err(err),
		)
		return nil, nil, err
	}
	vm.metrics.MarkSwap(outcome, side.String(), result.PriceImpactBps)
	return out, result, vm.persist(p)
}

// Sponsor lowers the threshold outcome of proposal id must clear.
func (vm *VM) Sponsor(id ids.ID, sponsor ids.ShortID, outcome int) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	p, err := vm.get(id)
	if err != nil {
		return err
	}
	if err := p.Sponsor(sponsor, outcome); err != nil {
		return err
	}
	vm.log.Info("outcome sponsored",
		log.Stringer("proposalID", id),
		log.Stringer("sponsor", sponsor),
		log.Int("outcome", outcome),
	)
	return vm.persist(p)
}

// Tick moves every proposal whose deadline has passed into its next stage
// and finalizes trading proposals that may resolve early. A proposal that
// fails to advance is logged and left for the next tick.
func (vm *VM) Tick(ctx context.Context) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if err := vm.ready(); err != nil {
		return err
	}
	now := vm.clock.Time()
	for _, id := range vm.schedule.Due(now) {
		if err := ctx.Err(); err != nil {
			return err
		}
		vm.advance(vm.proposals[id])
	}
	for _, id := range vm.schedule.All() {
		if err := ctx.Err(); err != nil {
			return err
		}
		p := vm.proposals[id]
		if ok, _ := p.ShouldEndEarly(now); ok {
			vm.advance(p)
		}
	}
	vm.metrics.SetActiveMarkets(vm.activeMarkets())
	return nil
}

// Redeem exchanges a token of the winning outcome for spot. Like Swap, a
// failed record write is returned alongside the released coin.
func (vm *VM) Redeem(id ids.ID, token *escrow.Token) (*escrow.Coin, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	p, err := vm.get(id)
	if err != nil {
		return nil, err
	}
	if !p.Initialized() {
		return nil, proposal.ErrNotInitialized
	}
	coin, err := p.Escrow().RedeemWinning(token)
	if err != nil {
		return nil, err
	}
	return coin, vm.persist(p)
}

// ReclaimLiquidity returns the winning share of the bootstrap liquidity of
// a finalized proposal. A failed record write is returned alongside the
// coins.
func (vm *VM) ReclaimLiquidity(id ids.ID) (*escrow.Coin, *escrow.Coin, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	p, err := vm.get(id)
	if err != nil {
		return nil, nil, err
	}
	asset, stable, err := p.ReclaimLiquidity()
	if err != nil {
		return nil, nil, err
	}
	return asset, stable, vm.persist(p)
}

// Leader returns the outcome of proposal id with the highest current
// price, once it has traded.
func (vm *VM) Leader(id ids.ID) (int, bool, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	p, err := vm.get(id)
	if err != nil {
		return 0, false, err
	}
	leader, ok := p.Leader()
	return leader, ok, nil
}

// Proposal returns the live proposal id. It and its escrow must only be
// read, and only while no other VM call is running; every change goes
// through the VM so it is locked and persisted.
func (vm *VM) Proposal(id ids.ID) (*proposal.Proposal, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	return vm.get(id)
}

// Record returns the committed record of proposal id.
func (vm *VM) Record(id ids.ID) (*state.ProposalRecord, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if err := vm.ready(); err != nil {
		return nil, err
	}
	return vm.state.GetProposal(id)
}

// MarketRecord returns the committed market record of proposal id.
func (vm *VM) MarketRecord(id ids.ID) (*state.MarketRecord, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if err := vm.ready(); err != nil {
		return nil, err
	}
	return vm.state.GetMarket(id)
}

// EscrowRecord returns the committed escrow record of proposal id.
func (vm *VM) EscrowRecord(id ids.ID) (*state.EscrowRecord, error) {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if err := vm.ready(); err != nil {
		return nil, err
	}
	return vm.state.GetEscrow(id)
}

// Emit logs market events and counts leader flips.
func (vm *VM) Emit(e market.Event) {
	switch e := e.(type) {
	case *market.TradingStarted:
		vm.log.Info("trading started",
			log.Stringer("marketID", e.Market),
			log.Time("start", e.Start),
			log.Time("end", e.End),
		)
	case *market.TradingEnded:
		vm.log.Info("trading ended",
			log.Stringer("marketID", e.Market),
			log.Time("at", e.At),
		)
	case *market.MarketFinalized:
		vm.log.Info("market finalized",
			log.Stringer("marketID", e.Market),
			log.Int("winner", e.Winner),
			log.String("outcome", e.Outcome),
		)
	case *market.LeaderFlipped:
		vm.metrics.MarkLeaderFlip()
		vm.log.Info("leader flipped",
			log.Stringer("marketID", e.Market),
			log.Int("from", e.Flip.From),
			log.Int("to", e.Flip.To),
			log.String("spread", e.Flip.Spread.Dec()),
		)
	}
}

// Shutdown drops uncommitted state and closes the VM's database.
func (vm *VM) Shutdown(context.Context) error {
	vm.lock.Lock()
	defer vm.lock.Unlock()

	if !vm.initialized || vm.shutdown {
		return nil
	}
	vm.shutdown = true
	vm.log.Info("shutting down futarchy VM",
		log.Int("proposals", len(vm.proposals)),
	)
	errs := []error{vm.state.Close()}
	vm.db.Abort()
	errs = append(errs, vm.db.Close())
	return errors.Join(errs...)
}

func (vm *VM) ready() error {
	switch {
	case !vm.initialized:
		return ErrNotInitialized
	case vm.shutdown:
		return ErrShutdown
	}
	return nil
}

func (vm *VM) get(id ids.ID) (*proposal.Proposal, error) {
	if err := vm.ready(); err != nil {
		return nil, err
	}
	p, ok := vm.proposals[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProposal, id)
	}
	return p, nil
}

func (vm *VM) atomic(p *proposal.Proposal, fn func(*escrow.Escrow) error) error {
	if !p.Initialized() {
		return proposal.ErrNotInitialized
	}
	e := p.Escrow()
	if err := e.Begin(); err != nil {
		return err
	}
	err := fn(e)
	if err == nil && e.Pending() > 0 {
		err = fmt.Errorf("%w: %d unfinished", escrow.ErrPendingOperation, e.Pending())
	}
	if err != nil {
		if rbErr := e.Rollback(); rbErr != nil {
			return errors.Join(err, rbErr)
		}
		vm.metrics.MarkSession(metrics.ResultRollback)
		vm.log.Debug("escrow session rolled back",
			log.Stringer("proposalID", p.ID()),
			log.Err(err),
		)
		return err
	}
	if err := e.Commit(); err != nil {
		return err
	}
	vm.metrics.MarkSession(metrics.ResultCommit)
	return vm.persist(p)
}

// advance moves p out of its expired stage.
func (vm *VM) advance(p *proposal.Proposal) {
	now := vm.clock.Time()
	switch p.Stage() {
	case proposal.Review:
		if err := p.AdvanceToTrading(now); err != nil {
			vm.log.Warn("failed to open trading",
				log.Stringer("proposalID", p.ID()),
				log.Err(err),
			)
			return
		}
	case proposal.Trading:
		winner, err := p.Finalize(now)
		if err != nil {
			vm.log.Warn("failed to finalize proposal",
				log.Stringer("proposalID", p.ID()),
				log.Err(err),
			)
			return
		}
		vm.metrics.MarkProposalFinalized(winner)
	default:
		return
	}
	vm.reschedule(p)
	if err := vm.persist(p); err != nil {
		vm.log.Error("failed to persist proposal",
			log.Stringer("proposalID", p.ID()),
			log.Err(err),
		)
	}
}

func (vm *VM) reschedule(p *proposal.Proposal) {
	if at, ok := p.Deadline(); ok {
		vm.schedule.Set(p.ID(), at)
		return
	}
	vm.schedule.Remove(p.ID())
}

func (vm *VM) activeMarkets() int {
	n := 0
	for _, p := range vm.proposals {
		if p.Stage() == proposal.Trading {
			n++
		}
	}
	return n
}
