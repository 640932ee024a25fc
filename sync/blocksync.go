package sync

import (
	"context"
	"sort"

	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/processor"
)

// BlockSynchronizationMechanism catches the node up when its tip is far
// behind the network: pick a reference peer by quorum agreement, find the
// highest block both chains share, revert to it, and replay forward in
// bounded chunks. Grounded on the teacher's network.Syncer request/response
// loop (GetBlocksRequest/BlocksResponse via peer.Send); the reference-peer
// selection and common-block probing steps have no teacher analogue, since
// the teacher synced against a single fixed peer.
type BlockSynchronizationMechanism struct {
	chain     *chain.Chain
	processor *processor.Processor
	peers     PeerSource
	penalizer processor.PeerPenalizer
	cfg       Config
}

func NewBlockSynchronizationMechanism(c *chain.Chain, proc *processor.Processor, peers PeerSource, penalizer processor.PeerPenalizer, cfg Config) *BlockSynchronizationMechanism {
	return &BlockSynchronizationMechanism{chain: c, processor: proc, peers: peers, penalizer: penalizer, cfg: cfg.withDefaults()}
}

func (m *BlockSynchronizationMechanism) Name() string { return "block_sync" }

func (m *BlockSynchronizationMechanism) IsValidFor(req events.SyncRequired) bool {
	return req.Hint == events.HintBlockSync
}

func (m *BlockSynchronizationMechanism) Run(ctx context.Context, req events.SyncRequired) error {
	tips, err := m.peers.SampleTips(ctx, m.cfg.SampleSize)
	if err != nil {
		return errs.WrapStorage(err, "sync: sample peer tips")
	}
	ref, ok := selectReferencePeer(tips, m.cfg.Quorum)
	if !ok {
		return errs.Validation("sync: no quorum of %d peers agreed on a tip", m.cfg.Quorum)
	}

	common, err := m.highestCommonBlock(ctx, ref.PeerID)
	if err != nil {
		return errs.WrapStorage(err, "sync: find common block with %s", ref.PeerID)
	}

	for m.chain.Height() > common {
		if err := m.processor.DeleteLastBlock(); err != nil {
			m.penalize(ref.PeerID)
			return errs.WrapStorage(err, "sync: revert to common block %d", common)
		}
	}

	return applyForward(ctx, m.chain, m.processor, m.peers, ref.PeerID, m.cfg, ref.Height)
}

// highestCommonBlock walks the local chain backward in cfg.ProbeStride
// hops, asking the peer whether it holds the same block id at each
// candidate height, and returns the highest one that matches. Falls back
// to genesis (always common) if nothing matches.
func (m *BlockSynchronizationMechanism) highestCommonBlock(ctx context.Context, peerID string) (uint64, error) {
	stride := uint64(m.cfg.ProbeStride)
	for h := m.chain.Height(); ; {
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
		if h < stride {
			return 0, nil
		}
		h -= stride
	}
}

func (m *BlockSynchronizationMechanism) penalize(peerID string) {
	if m.penalizer != nil {
		m.penalizer.Penalize(peerID, processor.PenaltyFork)
	}
}

// selectReferencePeer groups tips by agreement and requires at least quorum
// peers reporting the same tip id; among the largest such group it picks
// the median maxHeightPrevoted reporter as the reference peer.
func selectReferencePeer(tips []PeerTip, quorum int) (PeerTip, bool) {
	groups := make(map[crypto.Hash][]PeerTip)
	for _, t := range tips {
		groups[t.TipID] = append(groups[t.TipID], t)
	}
	var best []PeerTip
	for _, g := range groups {
		if len(g) >= quorum && len(g) > len(best) {
			best = g
		}
	}
	if best == nil {
		return PeerTip{}, false
	}
	sort.Slice(best, func(i, j int) bool { return best[i].MaxHeightPrevoted < best[j].MaxHeightPrevoted })
	return best[len(best)/2], true
}
