package network

import (
	"context"
	"encoding/json"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/sync"
)

// roundTrip sends msg to peer and blocks for its correlated reply until ctx
// is done, surfacing a KindTimeout error on expiry — matching the rest of
// the node's convention that sync chunk / peer RPCs are retried with
// backoff rather than treated as fatal.
func (t *Transport) roundTrip(ctx context.Context, peer *Peer, msg Message) (Message, error) {
	ch, cancel, err := peer.request(msg)
	if err != nil {
		return Message{}, err
	}
	defer cancel()

	select {
	case resp, ok := <-ch:
		if !ok {
			return Message{}, errs.Timeout("network: peer %s closed mid-request", peer.ID)
		}
		return resp, nil
	case <-ctx.Done():
		return Message{}, errs.Timeout("network: request to %s timed out: %v", peer.ID, ctx.Err())
	}
}

// SampleTips asks up to n connected peers for their current tip, implementing
// sync.PeerSource. Peers that time out or error are skipped rather than
// failing the whole sample — BlockSynchronizationMechanism only needs
// quorum agreement among however many respond.
func (t *Transport) SampleTips(ctx context.Context, n int) ([]sync.PeerTip, error) {
	peers := t.node.Peers()
	if len(peers) > n {
		peers = peers[:n]
	}

	tips := make([]sync.PeerTip, 0, len(peers))
	for _, p := range peers {
		resp, err := t.roundTrip(ctx, p, Message{Type: MsgGetTip})
		if err != nil {
			logger.WithField("peer", p.ID).WithField("err", err).Debug("sampleTips: peer did not respond")
			continue
		}
		var tr TipResponse
		if err := json.Unmarshal(resp.Payload, &tr); err != nil {
			continue
		}
		tips = append(tips, sync.PeerTip{
			PeerID:            p.ID,
			TipID:             tr.ID,
			MaxHeightPrevoted: tr.MaxHeightPrevoted,
			Height:            tr.Height,
		})
	}
	return tips, nil
}

// HasBlockID implements sync.PeerSource's common-block probe step.
func (t *Transport) HasBlockID(ctx context.Context, peerID string, height uint64) (crypto.Hash, bool, error) {
	p := t.node.Peer(peerID)
	if p == nil {
		return crypto.Hash{}, false, errPeerNotFound(peerID)
	}
	raw, err := marshalPayload(GetHighestCommonBlockRequest{Height: height})
	if err != nil {
		return crypto.Hash{}, false, err
	}
	resp, err := t.roundTrip(ctx, p, Message{Type: MsgGetHighestCommonBlock, Payload: raw})
	if err != nil {
		return crypto.Hash{}, false, err
	}
	var cr CommonBlockResponse
	if err := json.Unmarshal(resp.Payload, &cr); err != nil {
		return crypto.Hash{}, false, errs.WrapSchema(err, "network: decode common block response from %s", peerID)
	}
	return cr.ID, cr.Found, nil
}

// BlocksFrom implements sync.PeerSource's forward fetch.
func (t *Transport) BlocksFrom(ctx context.Context, peerID string, fromHeight uint64, limit int) ([]*core.Block, error) {
	p := t.node.Peer(peerID)
	if p == nil {
		return nil, errPeerNotFound(peerID)
	}
	raw, err := marshalPayload(GetBlocksRequest{FromHeight: fromHeight, Limit: limit})
	if err != nil {
		return nil, err
	}
	resp, err := t.roundTrip(ctx, p, Message{Type: MsgGetBlocks, Payload: raw})
	if err != nil {
		return nil, err
	}
	var br BlocksResponse
	if err := json.Unmarshal(resp.Payload, &br); err != nil {
		return nil, errs.WrapSchema(err, "network: decode blocks response from %s", peerID)
	}
	return br.Blocks, nil
}
