package processor

import (
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/vm"
)

// apply opens a fresh StateStore, runs verify against it (so verify sees
// exactly the state apply is about to mutate from), applies every
// transaction in order (advancing each sender's nonce), runs each module's afterBlockApply, and commits
// the StateStore and block atomically. On success it records the block
// with the BFT Finality Manager and emits NewBlock.
func (p *Processor) apply(block *core.Block) error {
	store := p.chain.NewStateStore()

	if err := p.VerifyTransactions(block, block.Payload, store); err != nil {
		return err
	}

	for _, tx := range block.Payload {
		ctx := &vm.Context{State: store, Block: block, Tx: tx, Bus: p.bus}
		if err := p.registry.Apply(ctx, tx); err != nil {
			return errs.Verification("processor: apply tx %s: %v", tx.ID(), err)
		}
		sender, err := store.GetAccount(tx.SenderPublicKey.Address())
		if err != nil {
			return err
		}
		sender.Nonce++
		if err := store.PutAccount(sender); err != nil {
			return err
		}
	}
	if err := p.registry.AfterBlockApply(&vm.Context{State: store, Block: block, Bus: p.bus}); err != nil {
		return err
	}

	if err := p.chain.CommitBlock(block, store); err != nil {
		return err
	}
	if p.isRoundBoundary(block.Header.Height + 1) {
		p.refreshValidatorSet()
	}

	if p.bftMgr != nil {
		if err := p.bftMgr.Process(block.Header); err != nil {
			logger.WithField("height", block.Header.Height).WithField("err", err).Error("bft rejected a committed block header; chain and finality state have diverged")
		}
	}

	p.publish(events.NewBlock{Block: block})
	p.publish(events.BroadcastBlock{Block: block})
	return nil
}
