package sync

import (
	"context"

	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/processor"
)

// FastChainSwitchingMechanism handles a small one- or two-block
// reorganization. The common ancestor is expected within two forging
// rounds, so it searches the local chain directly instead of sampling
// peers for a reference tip the way BlockSynchronizationMechanism does.
type FastChainSwitchingMechanism struct {
	chain     *chain.Chain
	processor *processor.Processor
	peers     PeerSource
	penalizer processor.PeerPenalizer
	cfg       Config
}

func NewFastChainSwitchingMechanism(c *chain.Chain, proc *processor.Processor, peers PeerSource, penalizer processor.PeerPenalizer, cfg Config) *FastChainSwitchingMechanism {
	return &FastChainSwitchingMechanism{chain: c, processor: proc, peers: peers, penalizer: penalizer, cfg: cfg.withDefaults()}
}

func (m *FastChainSwitchingMechanism) Name() string { return "fast_chain_switch" }

func (m *FastChainSwitchingMechanism) IsValidFor(req events.SyncRequired) bool {
	return req.Hint == events.HintFastChainSwitch
}

func (m *FastChainSwitchingMechanism) Run(ctx context.Context, req events.SyncRequired) error {
	bound := uint64(2 * m.cfg.RoundLength)

	tip := m.chain.Tip()
	if tip == nil {
		return errs.Validation("sync: fast-chain-switch with empty local chain")
	}
	if req.Block.Header.Height > tip.Header.Height && req.Block.Header.Height-tip.Header.Height > bound {
		return errs.IrrecoverableFork("sync: fast-chain-switch distance exceeds %d (2 rounds)", bound)
	}

	common, err := m.findCommonAncestor(ctx, req.PeerID, bound)
	if err != nil {
		m.penalize(req.PeerID)
		return err
	}

	for m.chain.Height() > common {
		if err := m.processor.DeleteLastBlock(); err != nil {
			m.penalize(req.PeerID)
			return errs.WrapStorage(err, "sync: revert to common ancestor %d", common)
		}
	}

	return applyForward(ctx, m.chain, m.processor, m.peers, req.PeerID, m.cfg, req.Block.Header.Height)
}

// findCommonAncestor searches back from the local tip at most bound blocks,
// the "bounded-depth search (≤ two rounds of validators)" the mechanism is
// named for — a full reference-peer sample would be overkill for a
// one- or two-block reorg.
func (m *FastChainSwitchingMechanism) findCommonAncestor(ctx context.Context, peerID string, bound uint64) (uint64, error) {
	height := m.chain.Height()
	floor := uint64(0)
	if height > bound {
		floor = height - bound
	}
	for h := height; h >= floor; h-- {
		local, err := m.chain.GetBlockByHeight(h)
		if err != nil {
			return 0, err
		}
		id, ok, err := m.peers.HasBlockID(ctx, peerID, h)
		if err != nil {
			return 0, err
		}
		if ok && id == local.ID() {
			return h, nil
		}
		if h == 0 {
			break
		}
	}
	return 0, errs.IrrecoverableFork("sync: no common ancestor found for peer %s within bound %d", peerID, bound)
}

func (m *FastChainSwitchingMechanism) penalize(peerID string) {
	if m.penalizer != nil {
		m.penalizer.Penalize(peerID, processor.PenaltyFork)
	}
}
