// Package network is the Transport boundary adapter: it turns inbound wire
// messages into Processor.Process/Pool.Admit calls and turns the rest of the
// node's outbound intent (broadcast a new block, probe a peer for sync) into
// wire messages. Nothing outside this package knows a socket exists.
package network

import (
	"encoding/json"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
)

// MsgType labels a network message. Names mirror the operator-facing RPC
// surface's peer-facing counterparts: postBlock, postTransaction,
// postTransactionsAnnouncement, getBlocksFromId, getHighestCommonBlock,
// getTransactions.
type MsgType string

const (
	MsgHello MsgType = "hello"

	MsgPostBlock                    MsgType = "post_block"
	MsgPostTransaction              MsgType = "post_transaction"
	MsgPostTransactionsAnnouncement MsgType = "post_transactions_announcement"
	MsgGetBlocks                    MsgType = "get_blocks_from_id"
	MsgBlocks                       MsgType = "blocks"
	MsgGetHighestCommonBlock        MsgType = "get_highest_common_block"
	MsgCommonBlock                  MsgType = "common_block"
	MsgGetTransactions              MsgType = "get_transactions"
	MsgTransactions                 MsgType = "transactions"
	MsgGetTip                       MsgType = "get_tip"
	MsgTip                          MsgType = "tip"
)

// Message is the envelope for all P2P communication. ID correlates a
// response back to the request that triggered it; it is empty for
// fire-and-forget messages (hello, postBlock, postTransaction,
// postTransactionsAnnouncement).
type Message struct {
	ID      string          `json:"id,omitempty"`
	Type    MsgType         `json:"type"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// HelloPayload announces a peer's identity and current tip on connect.
type HelloPayload struct {
	NodeID string `json:"node_id"`
	Height uint64 `json:"height"`
}

// GetBlocksRequest asks a peer for up to Limit blocks starting at
// FromHeight (inclusive), climbing upward. Named for the getBlocksFromId
// peer RPC even though the wire request addresses by height, matching
// sync.PeerSource.BlocksFrom's own addressing.
type GetBlocksRequest struct {
	FromHeight uint64 `json:"from_height"`
	Limit      int    `json:"limit"`
}

// BlocksResponse carries a batch of blocks in ascending height order.
type BlocksResponse struct {
	Blocks []*core.Block `json:"blocks"`
}

// GetHighestCommonBlockRequest probes whether the peer has a block at
// Height and, if so, what its id is — one step of the backward probe for the
// highest block both chains share.
type GetHighestCommonBlockRequest struct {
	Height uint64 `json:"height"`
}

// CommonBlockResponse answers a GetHighestCommonBlockRequest.
type CommonBlockResponse struct {
	Found bool        `json:"found"`
	ID    crypto.Hash `json:"id"`
}

// GetTransactionsRequest asks a peer for the full bodies of the transactions
// named by ID — used after a postTransactionsAnnouncement names ids the
// local pool does not have.
type GetTransactionsRequest struct {
	IDs []crypto.Hash `json:"ids"`
}

// TransactionsResponse answers a GetTransactionsRequest.
type TransactionsResponse struct {
	Transactions []*core.Transaction `json:"transactions"`
}

// TransactionsAnnouncement names transactions the sender has pooled,
// without sending their bodies, so the receiver can request only what it is
// missing.
type TransactionsAnnouncement struct {
	IDs []crypto.Hash `json:"ids"`
}

// TipResponse answers a GetTip request with the peer's self-reported chain
// head and BFT-derived prevote watermark.
type TipResponse struct {
	ID                crypto.Hash `json:"id"`
	Height            uint64      `json:"height"`
	MaxHeightPrevoted uint64      `json:"max_height_prevoted"`
}
