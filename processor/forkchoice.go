package processor

import (
	"bytes"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
)

// decision is the fork-choice table's verdict for a candidate block
// compared against the current tip.
type decision int

const (
	decisionAppend decision = iota
	decisionReplaceTip
	decisionSyncFastChainSwitch
	decisionSyncBlockSync
	decisionDiscardIrrecoverable
	decisionDiscardStale
)

// forkChoice evaluates block against the current tip and finalized height,
// in the order the table in spec §4.1 requires: each row's condition short
// circuits the ones after it.
func (p *Processor) forkChoice(block *core.Block, tip *core.Block, finalizedHeight uint64) decision {
	if tip == nil || block.Header.PreviousBlockID == tip.ID() {
		return decisionAppend
	}
	if block.Header.Height == tip.Header.Height &&
		block.Header.PreviousBlockID == tip.Header.PreviousBlockID &&
		tiebreakWins(block, tip) {
		return decisionReplaceTip
	}
	if block.Header.Height == tip.Header.Height+1 &&
		block.Header.PreviousBlockID != tip.ID() &&
		block.Header.GeneratorPublicKey == tip.Header.GeneratorPublicKey {
		return decisionSyncFastChainSwitch
	}
	if block.Header.Height > tip.Header.Height+1 {
		return decisionSyncBlockSync
	}
	if block.Header.Height <= finalizedHeight {
		return decisionDiscardIrrecoverable
	}
	return decisionDiscardStale
}

// tiebreakWins reports whether candidate beats incumbent for the same
// (height, previousBlockId) slot: higher maxHeightPrevoted wins, ties
// broken by lower id lexicographically. Deterministic across every node
// evaluating the same two candidates.
func tiebreakWins(candidate, incumbent *core.Block) bool {
	if candidate.Header.Asset.MaxHeightPrevoted != incumbent.Header.Asset.MaxHeightPrevoted {
		return candidate.Header.Asset.MaxHeightPrevoted > incumbent.Header.Asset.MaxHeightPrevoted
	}
	cid, iid := candidate.ID(), incumbent.ID()
	return bytes.Compare(cid[:], iid[:]) < 0
}

// dispatchForkChoice evaluates the fork-choice table and acts on it.
// decisionSyncFastChainSwitch/decisionSyncBlockSync return the SyncRequired
// event to the caller instead of publishing it here: the Synchronizer's
// handler runs synchronously on the publisher's goroutine (events/bus.go)
// and calls straight back into DeleteLastBlock/ProcessValidated, which
// would observe this Process()/ProcessValidated() call as still in flight
// and reject with "busy" — Process/ProcessValidated must leaveIdle() first
// and only then publish what this returns.
func (p *Processor) dispatchForkChoice(block *core.Block, origin Origin, finalizedHeight uint64) (*events.SyncRequired, error) {
	tip := p.chain.Tip()
	peerID, _ := origin.PeerID()

	switch p.forkChoice(block, tip, finalizedHeight) {
	case decisionAppend:
		return nil, nil
	case decisionReplaceTip:
		parent, err := p.chain.GetBlockByID(tip.Header.PreviousBlockID)
		if err != nil {
			return nil, err
		}
		if err := p.chain.DeleteLastBlock(parent); err != nil {
			return nil, err
		}
		p.publish(events.DeleteBlock{Block: tip})
		return nil, nil
	case decisionSyncFastChainSwitch:
		ev := events.SyncRequired{Block: block, PeerID: peerID, Hint: events.HintFastChainSwitch}
		return &ev, errs.RecoverableFork("processor: fast-chain-switch required for block %s", block.ID())
	case decisionSyncBlockSync:
		ev := events.SyncRequired{Block: block, PeerID: peerID, Hint: events.HintBlockSync}
		return &ev, errs.RecoverableFork("processor: block-sync required for block %s", block.ID())
	case decisionDiscardIrrecoverable:
		p.penalize(origin, PenaltyFork)
		return nil, errs.IrrecoverableFork("processor: block %s at or below finalized height %d", block.ID(), finalizedHeight)
	default:
		return nil, errs.Validation("processor: discarding stale/duplicate block %s", block.ID())
	}
}
