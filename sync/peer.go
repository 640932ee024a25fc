package sync

import (
	"context"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
)

// PeerTip is one peer's self-reported chain head, sampled when picking a
// reference peer for BlockSynchronizationMechanism.
type PeerTip struct {
	PeerID            string
	TipID             crypto.Hash
	MaxHeightPrevoted uint64
	Height            uint64
}

// PeerSource is the narrow slice of Transport both mechanisms need: tip
// sampling, common-block probing, and forward block fetch. Grounded on the
// teacher's network.Syncer request/response pair (GetBlocksRequest/
// BlocksResponse exchanged over peer.Send), generalized into an interface
// so this package has no import-time dependency on the transport
// implementation — network.Transport implements it.
type PeerSource interface {
	// SampleTips asks up to n peers for their current tip id and
	// maxHeightPrevoted, used to pick a reference peer by quorum agreement.
	SampleTips(ctx context.Context, n int) ([]PeerTip, error)
	// HasBlockID asks peerID whether it has a block at height and, if so,
	// its id — used to probe backward for the highest block both chains share.
	HasBlockID(ctx context.Context, peerID string, height uint64) (crypto.Hash, bool, error)
	// BlocksFrom fetches up to limit blocks starting at fromHeight from peerID.
	BlocksFrom(ctx context.Context, peerID string, fromHeight uint64, limit int) ([]*core.Block, error)
}
