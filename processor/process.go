package processor

import (
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
)

// Process runs the full pipeline: validate → fork-choice → verify → apply →
// broadcast. Concurrent calls while a block is already in flight return a
// KindValidation "busy" error instead of blocking.
func (p *Processor) Process(block *core.Block, origin Origin) error {
	if err := p.enter(StateValidating); err != nil {
		return err
	}
	defer p.leaveIdle()

	if err := p.validate(block); err != nil {
		p.penalize(origin, PenaltyMinor)
		return err
	}

	syncEv, err := p.dispatchForkChoice(block, origin, p.finalizedHeight())
	if syncEv != nil {
		// Return to Idle before publishing: the Synchronizer's handler
		// runs inline on this goroutine and calls back into
		// DeleteLastBlock/ProcessValidated, which must see StateIdle.
		p.leaveIdle()
		p.publish(*syncEv)
		return err
	}
	if err != nil {
		return err
	}

	p.transition(StateVerifying)
	p.transition(StateApplying)
	if err := p.apply(block); err != nil {
		p.penalize(origin, PenaltyMinor)
		return err
	}
	return nil
}

// ProcessValidated skips the validate stage — used by the Synchronizer for
// blocks a peer has already vouched for as part of a verified chain
// segment. Fork-choice and verify/apply still run in full.
func (p *Processor) ProcessValidated(block *core.Block) error {
	if err := p.enter(StateVerifying); err != nil {
		return err
	}
	defer p.leaveIdle()

	syncEv, err := p.dispatchForkChoice(block, Local(), p.finalizedHeight())
	if syncEv != nil {
		p.leaveIdle()
		p.publish(*syncEv)
		return err
	}
	if err != nil {
		return err
	}

	p.transition(StateApplying)
	return p.apply(block)
}

func (p *Processor) finalizedHeight() uint64 {
	if p.bftMgr == nil {
		return 0
	}
	return p.bftMgr.FinalizedHeight()
}

// DeleteLastBlock reverts the current tip, restoring accounts and module
// state from its undo journal, and emits DeleteBlock so the Pool re-admits
// its transactions. Refuses to delete at or below finalizedHeight: that
// would discard state the network has already committed to permanently.
func (p *Processor) DeleteLastBlock() error {
	if err := p.enter(StateApplying); err != nil {
		return err
	}
	defer p.leaveIdle()

	tip := p.chain.Tip()
	if tip == nil {
		return errs.Validation("processor: cannot delete last block: chain is empty")
	}
	if tip.Header.Height <= p.finalizedHeight() {
		return errs.IrrecoverableFork("processor: refusing to delete finalized block at height %d", tip.Header.Height)
	}
	parent, err := p.chain.GetBlockByID(tip.Header.PreviousBlockID)
	if err != nil {
		return err
	}
	if err := p.chain.DeleteLastBlock(parent); err != nil {
		return err
	}
	p.publish(events.DeleteBlock{Block: tip})
	return nil
}
