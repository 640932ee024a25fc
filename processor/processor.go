// Package processor implements the Block Processor: the single-writer
// state machine that serializes every mutation to chain state. It owns the
// validate → fork-choice → verify → apply pipeline, the undo-journal-backed
// deleteLastBlock revert path, and the NewBlock/DeleteBlock/SyncRequired
// events the rest of the node reacts to.
package processor

import (
	"sync"

	"github.com/soliduschain/node/bft"
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/log"
	"github.com/soliduschain/node/slot"
	"github.com/soliduschain/node/vm"
)

var logger = log.Component("processor")

// State is the processor-wide block-apply phase. Concurrent entry into any
// non-Idle state is rejected with errs.KindValidation ("busy") rather than
// queued — callers (Forger, sync mechanisms, Transport) are expected to
// retry.
type State int

const (
	StateIdle State = iota
	StateValidating
	StateVerifying
	StateApplying
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateValidating:
		return "validating"
	case StateVerifying:
		return "verifying"
	case StateApplying:
		return "applying"
	default:
		return "unknown"
	}
}

// PeerPenalizer lets the processor report misbehaving peers without owning
// any networking code itself.
type PeerPenalizer interface {
	Penalize(peerID string, severity int)
}

const (
	PenaltyMinor = 10
	PenaltyFork  = 100
)

// FeePolicy computes the minimum acceptable fee for a transaction:
// minFeePerByte * size + baseFee(moduleID, assetID).
type FeePolicy struct {
	MinFeePerByte uint64
	BaseFee       func(moduleID, assetID uint32) uint64
}

func (f FeePolicy) MinFee(tx *core.Transaction) uint64 {
	base := uint64(0)
	if f.BaseFee != nil {
		base = f.BaseFee(tx.ModuleID, tx.AssetID)
	}
	return f.MinFeePerByte*uint64(tx.Size()) + base
}

// Config bounds validation independent of any single block.
type Config struct {
	MaxPayloadLength int
	FeePolicy        FeePolicy

	// RoundLength is the number of slots per validator round. A height
	// that starts a new round (height % RoundLength == 0) triggers a
	// recomputation of the active ValidatorSet from delegate accounts.
	RoundLength int
	// ValidatorSetSize caps how many delegates ComputeValidatorSet ranks
	// into the active round.
	ValidatorSetSize int
}

// Processor is the node's single writer for chain state.
type Processor struct {
	mu    sync.Mutex // single-writer gate guarding state and every stage
	state State

	chain      *chain.Chain
	bftMgr     *bft.Manager
	registry   *vm.Registry
	bus        *events.Bus
	clock      slot.Clock
	cfg        Config
	penalizer  PeerPenalizer
	validators core.ValidatorSet

	prunedThrough uint64 // highest height whose undo journal has been deleted
}

// New builds a processor wired to its collaborators and subscribes to
// ValidatorsChanged so fork-choice/validate always sees the current round's
// assignment.
func New(c *chain.Chain, bftMgr *bft.Manager, registry *vm.Registry, bus *events.Bus, clock slot.Clock, cfg Config, penalizer PeerPenalizer) *Processor {
	p := &Processor{
		chain:     c,
		bftMgr:    bftMgr,
		registry:  registry,
		bus:       bus,
		clock:     clock,
		cfg:       cfg,
		penalizer: penalizer,
	}
	if bus != nil {
		bus.Subscribe(func(ev events.ValidatorsChanged) {
			p.mu.Lock()
			p.validators = ev.Set
			p.mu.Unlock()
		})
		bus.Subscribe(p.onBlockFinalized)
	}
	return p
}

// onBlockFinalized deletes the now-unnecessary undo journal for every
// height newly covered by finality and prunes the temp region — spec: the
// undo journal is "deleted when the block is finalized", and temp-region
// entries "older than finalizedHeight are pruned".
func (p *Processor) onBlockFinalized(ev events.BlockFinalized) {
	p.mu.Lock()
	from := p.prunedThrough + 1
	p.prunedThrough = ev.Height
	p.mu.Unlock()

	for h := from; h <= ev.Height; h++ {
		blk, err := p.chain.GetBlockByHeight(h)
		if err != nil {
			continue
		}
		if err := p.chain.DeleteUndoJournal(blk.ID()); err != nil {
			logger.WithField("height", h).WithField("err", err).Warn("failed to delete undo journal for finalized block")
		}
	}
	if err := p.chain.PruneTemp(ev.Height); err != nil {
		logger.WithField("err", err).Warn("failed to prune temp region")
	}
}

// Init ensures genesis is persisted (or matches what's already there) and
// replays any blocks left in the temp region by an interrupted sync swap.
func (p *Processor) Init(genesis *core.Block) error {
	if err := p.chain.Bootstrap(genesis); err != nil {
		return err
	}
	if p.bftMgr != nil {
		if err := p.bftMgr.Replay(genesis.Header); err != nil {
			return err
		}
	}
	p.refreshValidatorSet()
	pending, err := p.chain.TempBlocks()
	if err != nil {
		return err
	}
	for _, blk := range pending {
		if blk.Header.Height != p.chain.Height()+1 {
			continue
		}
		if err := p.ProcessValidated(blk); err != nil {
			logger.WithField("height", blk.Header.Height).WithField("err", err).Warn("discarding unresumable temp block at startup")
		}
	}
	return nil
}

// enter moves the state machine from Idle to target, returning a
// KindValidation "busy" error if another block is already in flight.
func (p *Processor) enter(target State) error {
	p.mu.Lock()
	if p.state != StateIdle {
		current := p.state
		p.mu.Unlock()
		return errs.Validation("processor: busy (state=%s)", current)
	}
	p.state = target
	p.mu.Unlock()
	return nil
}

func (p *Processor) transition(target State) {
	p.mu.Lock()
	p.state = target
	p.mu.Unlock()
}

func (p *Processor) leaveIdle() {
	p.mu.Lock()
	p.state = StateIdle
	p.mu.Unlock()
}

// refreshValidatorSet recomputes the active ValidatorSet from current
// delegate accounts and pushes it to the BFT Manager and every subscriber
// (including this Processor's own validate path) via ValidatorsChanged.
// Called at boot and at every round boundary crossed during apply.
func (p *Processor) refreshValidatorSet() {
	size := p.cfg.ValidatorSetSize
	if size <= 0 {
		return
	}
	accounts, err := p.chain.AllDelegateAccounts()
	if err != nil {
		logger.WithField("err", err).Warn("failed to load delegate accounts for validator set refresh")
		return
	}
	vs := core.ComputeValidatorSet(accounts, size)
	if p.bftMgr != nil {
		p.bftMgr.SetActiveValidators(vs)
	}
	p.publish(events.ValidatorsChanged{Set: vs})
}

// isRoundBoundary reports whether height starts a new validator round.
func (p *Processor) isRoundBoundary(height uint64) bool {
	if p.cfg.RoundLength <= 0 {
		return false
	}
	return height%uint64(p.cfg.RoundLength) == 0
}

func (p *Processor) penalize(origin Origin, severity int) {
	if p.penalizer == nil {
		return
	}
	if peerID, ok := origin.PeerID(); ok {
		p.penalizer.Penalize(peerID, severity)
	}
}

func (p *Processor) publish(event any) {
	if p.bus != nil {
		p.bus.Publish(event)
	}
}
