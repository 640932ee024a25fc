package network

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/pool"
	"github.com/soliduschain/node/processor"
)

// penaltyBanThreshold is the cumulative PeerPenalizer.Penalize severity at
// which Transport disconnects a peer outright. PenaltyFork (100) bans on the
// first strike; ten PenaltyMinor (10) strikes ban too.
const penaltyBanThreshold = 100

// Transport is the node's Transport boundary adapter: it owns the Node's
// socket layer and is the one place inbound wire messages become
// Processor.Process/Pool.Admit calls, and outbound node events become
// broadcasts. It implements sync.PeerSource (so the Synchronizer can probe
// peers without an import-time dependency on this package) and
// processor.PeerPenalizer (so a bad block can cost its sender standing).
type Transport struct {
	node  *Node
	chain *chain.Chain
	proc  *processor.Processor
	pool  *pool.Pool

	mu      sync.Mutex
	strikes map[string]int
}

// New wires a Transport to its collaborators and registers every inbound
// handler. Call node.Start separately once the rest of the node is ready to
// receive traffic.
func New(node *Node, c *chain.Chain, proc *processor.Processor, p *pool.Pool, bus *events.Bus) *Transport {
	t := &Transport{
		node:    node,
		chain:   c,
		proc:    proc,
		pool:    p,
		strikes: make(map[string]int),
	}
	node.Handle(MsgHello, t.handleHello)
	node.Handle(MsgPostBlock, t.handlePostBlock)
	node.Handle(MsgPostTransaction, t.handlePostTransaction)
	node.Handle(MsgPostTransactionsAnnouncement, t.handlePostTransactionsAnnouncement)
	node.Handle(MsgGetBlocks, t.handleGetBlocksFromID)
	node.Handle(MsgGetHighestCommonBlock, t.handleGetHighestCommonBlock)
	node.Handle(MsgGetTransactions, t.handleGetTransactions)
	node.Handle(MsgGetTip, t.handleGetTip)

	if bus != nil {
		bus.Subscribe(t.onBroadcastBlock)
	}
	return t
}

// Penalize implements processor.PeerPenalizer: accumulate severity and
// disconnect once a peer crosses the ban threshold.
func (t *Transport) Penalize(peerID string, severity int) {
	t.mu.Lock()
	t.strikes[peerID] += severity
	ban := t.strikes[peerID] >= penaltyBanThreshold
	if ban {
		delete(t.strikes, peerID)
	}
	t.mu.Unlock()

	if ban {
		logger.WithField("peer", peerID).Warn("peer exceeded penalty threshold, disconnecting")
		t.node.RemovePeer(peerID)
	}
}

func (t *Transport) onBroadcastBlock(ev events.BroadcastBlock) {
	raw, err := marshalPayload(ev.Block)
	if err != nil {
		logger.WithField("err", err).Warn("marshal block for broadcast")
		return
	}
	t.node.Broadcast(Message{Type: MsgPostBlock, Payload: raw})
}

func (t *Transport) handleHello(peer *Peer, msg Message) {
	var hello HelloPayload
	if err := json.Unmarshal(msg.Payload, &hello); err != nil {
		logger.WithField("peer", peer.ID).WithField("err", err).Warn("malformed hello")
	}
}

func (t *Transport) handlePostBlock(peer *Peer, msg Message) {
	var block core.Block
	if err := json.Unmarshal(msg.Payload, &block); err != nil {
		t.Penalize(peer.ID, processor.PenaltyMinor)
		return
	}
	if err := t.proc.Process(&block, processor.FromPeer(peer.ID)); err != nil {
		if errs.IsKind(err, errs.KindValidation) || errs.IsKind(err, errs.KindVerification) || errs.IsKind(err, errs.KindSchema) {
			t.Penalize(peer.ID, processor.PenaltyMinor)
		}
		logger.WithField("peer", peer.ID).WithField("height", block.Header.Height).WithField("err", err).Debug("postBlock rejected")
	}
}

func (t *Transport) handlePostTransaction(peer *Peer, msg Message) {
	var tx core.Transaction
	if err := json.Unmarshal(msg.Payload, &tx); err != nil {
		t.Penalize(peer.ID, processor.PenaltyMinor)
		return
	}
	if err := t.pool.Admit(&tx); err != nil {
		logger.WithField("peer", peer.ID).WithField("err", err).Debug("postTransaction rejected")
		return
	}
	t.relayAnnouncement(peer.ID, []crypto.Hash{tx.ID()})
}

func (t *Transport) handlePostTransactionsAnnouncement(peer *Peer, msg Message) {
	var ann TransactionsAnnouncement
	if err := json.Unmarshal(msg.Payload, &ann); err != nil {
		t.Penalize(peer.ID, processor.PenaltyMinor)
		return
	}
	missing := make([]crypto.Hash, 0, len(ann.IDs))
	for _, id := range ann.IDs {
		if _, ok := t.pool.Get(id); !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) == 0 {
		return
	}
	raw, err := marshalPayload(GetTransactionsRequest{IDs: missing})
	if err != nil {
		return
	}

	// Node.readLoop starts each handler on its own goroutine, so blocking
	// here for the round trip does not stall this peer's reads or the rest
	// of the node.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	resp, err := t.roundTrip(ctx, peer, Message{Type: MsgGetTransactions, Payload: raw})
	if err != nil {
		logger.WithField("peer", peer.ID).WithField("err", err).Warn("fetch announced transactions")
		return
	}
	var txResp TransactionsResponse
	if err := json.Unmarshal(resp.Payload, &txResp); err != nil {
		return
	}
	admitted := make([]crypto.Hash, 0, len(txResp.Transactions))
	for _, tx := range txResp.Transactions {
		if err := t.pool.Admit(tx); err != nil {
			logger.WithField("peer", peer.ID).WithField("err", err).Debug("announced transaction rejected")
			continue
		}
		admitted = append(admitted, tx.ID())
	}
	if len(admitted) > 0 {
		t.relayAnnouncement(peer.ID, admitted)
	}
}

func (t *Transport) handleGetBlocksFromID(peer *Peer, msg Message) {
	var req GetBlocksRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		t.respondError(peer, msg.ID, MsgBlocks)
		return
	}
	if req.Limit <= 0 || req.Limit > 500 {
		req.Limit = 100
	}

	blocks := make([]*core.Block, 0, req.Limit)
	for h := req.FromHeight; h < req.FromHeight+uint64(req.Limit); h++ {
		b, err := t.chain.GetBlockByHeight(h)
		if err != nil {
			break
		}
		blocks = append(blocks, b)
	}
	t.respond(peer, msg.ID, MsgBlocks, BlocksResponse{Blocks: blocks})
}

func (t *Transport) handleGetHighestCommonBlock(peer *Peer, msg Message) {
	var req GetHighestCommonBlockRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		t.respondError(peer, msg.ID, MsgCommonBlock)
		return
	}
	b, err := t.chain.GetBlockByHeight(req.Height)
	if err != nil {
		t.respond(peer, msg.ID, MsgCommonBlock, CommonBlockResponse{Found: false})
		return
	}
	t.respond(peer, msg.ID, MsgCommonBlock, CommonBlockResponse{Found: true, ID: b.ID()})
}

func (t *Transport) handleGetTransactions(peer *Peer, msg Message) {
	var req GetTransactionsRequest
	if err := json.Unmarshal(msg.Payload, &req); err != nil {
		t.respondError(peer, msg.ID, MsgTransactions)
		return
	}
	txs := make([]*core.Transaction, 0, len(req.IDs))
	for _, id := range req.IDs {
		if tx, ok := t.pool.Get(id); ok {
			txs = append(txs, tx)
		}
	}
	t.respond(peer, msg.ID, MsgTransactions, TransactionsResponse{Transactions: txs})
}

func (t *Transport) handleGetTip(peer *Peer, msg Message) {
	tip := t.chain.Tip()
	resp := TipResponse{}
	if tip != nil {
		resp = TipResponse{ID: tip.ID(), Height: tip.Header.Height, MaxHeightPrevoted: tip.Header.Asset.MaxHeightPrevoted}
	}
	t.respond(peer, msg.ID, MsgTip, resp)
}

// relayAnnouncement gossips tx ids to every peer except the one that sent
// them, so admitted transactions propagate without re-sending full bodies.
func (t *Transport) relayAnnouncement(fromPeerID string, ids []crypto.Hash) {
	raw, err := marshalPayload(TransactionsAnnouncement{IDs: ids})
	if err != nil {
		return
	}
	for _, p := range t.node.Peers() {
		if p.ID == fromPeerID {
			continue
		}
		_ = p.Send(Message{Type: MsgPostTransactionsAnnouncement, Payload: raw})
	}
}

func (t *Transport) respond(peer *Peer, id string, typ MsgType, v any) {
	if id == "" {
		return
	}
	raw, err := marshalPayload(v)
	if err != nil {
		return
	}
	_ = peer.Send(Message{ID: id, Type: typ, Payload: raw})
}

func (t *Transport) respondError(peer *Peer, id string, typ MsgType) {
	t.Penalize(peer.ID, processor.PenaltyMinor)
	t.respond(peer, id, typ, struct{}{})
}
