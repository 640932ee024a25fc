package processor

import (
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/vm"
)

// VerifyTransactions runs the verify stage: nonce sequencing, fee policy,
// and module-defined preconditions, against store. It never mutates
// persisted state — store absorbs nothing beyond its own in-memory reads,
// since module Verify implementations only read through it.
func (p *Processor) VerifyTransactions(block *core.Block, txs []*core.Transaction, store *chain.StateStore) error {
	expected := make(map[crypto.Address]uint64)
	for _, tx := range txs {
		sender := tx.SenderPublicKey.Address()
		acct, err := store.GetAccount(sender)
		if err != nil {
			return err
		}
		want, seen := expected[sender]
		if !seen {
			want = acct.Nonce
		}
		if tx.Nonce != want {
			return errs.Verification("processor: tx %s nonce %d, expected %d", tx.ID(), tx.Nonce, want)
		}
		expected[sender] = want + 1

		if minFee := p.cfg.FeePolicy.MinFee(tx); tx.Fee < minFee {
			return errs.Verification("processor: tx %s fee %d below minimum %d", tx.ID(), tx.Fee, minFee)
		}

		ctx := &vm.Context{State: store, Block: block, Tx: tx, Bus: p.bus}
		if err := p.registry.Verify(ctx, tx); err != nil {
			return err
		}
	}
	return nil
}
