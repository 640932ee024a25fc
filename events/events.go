package events

import (
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
)

// SyncMechanismHint tells the Synchronizer which mechanism the Processor's
// fork-choice table believes applies, without binding it to one — the
// Synchronizer still asks each registered mechanism isValidFor.
type SyncMechanismHint string

const (
	HintBlockSync       SyncMechanismHint = "block_sync"
	HintFastChainSwitch SyncMechanismHint = "fast_chain_switch"
)

// NewBlock fires once a block has been applied and committed.
type NewBlock struct {
	Block *core.Block
}

// DeleteBlock fires when a block is reverted via deleteLastBlock.
type DeleteBlock struct {
	Block *core.Block
}

// ValidatorsChanged fires at each round boundary once the new validator set
// has been computed.
type ValidatorsChanged struct {
	Set core.ValidatorSet
}

// BlockFinalized fires whenever the BFT Finality Manager's finalizedHeight
// advances.
type BlockFinalized struct {
	Height uint64
}

// SyncRequired fires when the Processor's fork-choice table determines the
// local tip has diverged from the network and recovery must run.
type SyncRequired struct {
	Block  *core.Block
	PeerID string
	Hint   SyncMechanismHint
}

// BroadcastBlock fires when a locally forged or sync-applied block should be
// announced to peers.
type BroadcastBlock struct {
	Block *core.Block
}

// TransactionRemoved fires when the Pool drops a transaction — on
// inclusion, expiry, or a nonce made stale by a state change.
type TransactionRemoved struct {
	TxID   crypto.Hash
	Reason string
}
