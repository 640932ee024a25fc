package rpc

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/soliduschain/node/bft"
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/forger"
	"github.com/soliduschain/node/indexer"
	"github.com/soliduschain/node/pool"
	"github.com/soliduschain/node/vm"
)

// maxHeightRange bounds getBlockByHeightRange so a single request cannot
// force the node to serialize an unbounded slice of blocks.
const maxHeightRange = 500

// PeerLister is the subset of network.Node that getConnectedPeers needs.
// Defined here rather than imported so rpc has no compile-time dependency
// on the transport implementation.
type PeerLister interface {
	Peers() []PeerInfo
}

// PeerInfo is one connected peer, as reported by a PeerLister.
type PeerInfo struct {
	ID   string
	Addr string
}

// SyncStatus reports whether a sync mechanism is currently running, for
// getNodeInfo's "syncing" field.
type SyncStatus interface {
	IsActive() bool
}

// Info is the node's static identity, set once at boot.
type Info struct {
	NodeID         string
	Version        string
	ChainID        string
	NetworkVersion string
}

// Handler holds every collaborator the operator surface reads from or
// writes through. Nothing here owns consensus state; it borrows references
// assembled by cmd/node at startup.
type Handler struct {
	info Info

	chain    *chain.Chain
	pool     *pool.Pool
	forger   *forger.Forger
	bftMgr   *bft.Manager
	registry *vm.Registry
	idx      *indexer.Indexer
	peers    PeerLister
	sync     SyncStatus

	mu         sync.RWMutex
	validators core.ValidatorSet
}

// NewHandler assembles a Handler. peers and sync may be nil (getConnectedPeers
// and getNodeInfo's syncing field degrade gracefully).
func NewHandler(info Info, c *chain.Chain, p *pool.Pool, f *forger.Forger, bftMgr *bft.Manager, registry *vm.Registry, idx *indexer.Indexer, peers PeerLister, sync SyncStatus, bus *events.Bus) *Handler {
	h := &Handler{
		info:     info,
		chain:    c,
		pool:     p,
		forger:   f,
		bftMgr:   bftMgr,
		registry: registry,
		idx:      idx,
		peers:    peers,
		sync:     sync,
	}
	if bus != nil {
		bus.Subscribe(h.onValidatorsChanged)
	}
	return h
}

func (h *Handler) onValidatorsChanged(ev events.ValidatorsChanged) {
	h.mu.Lock()
	h.validators = ev.Set
	h.mu.Unlock()
}

// Dispatch routes an RPC request to the correct method.
func (h *Handler) Dispatch(req Request) Response {
	switch req.Method {
	case "getNodeInfo":
		return h.getNodeInfo(req)
	case "getValidators":
		return h.getValidators(req)
	case "updateForgingStatus":
		return h.updateForgingStatus(req)
	case "getAccount":
		return h.getAccount(req)
	case "getAccounts":
		return h.getAccounts(req)
	case "getBlockById":
		return h.getBlockByID(req)
	case "getBlockByHeight":
		return h.getBlockByHeight(req)
	case "getBlockByHeightRange":
		return h.getBlockByHeightRange(req)
	case "getLastBlock":
		return h.getLastBlock(req)
	case "getTransactionById":
		return h.getTransactionByID(req)
	case "getTransactionByIds":
		return h.getTransactionByIDs(req)
	case "postTransaction":
		return h.postTransaction(req)
	case "getSchema":
		return h.getSchema(req)
	case "getConnectedPeers":
		return h.getConnectedPeers(req)
	default:
		return errResponse(req.ID, CodeMethodNotFound, fmt.Sprintf("method %q not found", req.Method))
	}
}

func (h *Handler) getNodeInfo(req Request) Response {
	tip := h.chain.Tip()
	var tipID crypto.Hash
	if tip != nil {
		tipID = tip.ID()
	}
	syncing := false
	if h.sync != nil {
		syncing = h.sync.IsActive()
	}
	return okResponse(req.ID, map[string]any{
		"node_id":             h.info.NodeID,
		"version":             h.info.Version,
		"chain_id":            h.info.ChainID,
		"network_version":     h.info.NetworkVersion,
		"height":              h.chain.Height(),
		"tip_id":              tipID,
		"finalized_height":    h.bftMgr.FinalizedHeight(),
		"max_height_prevoted": h.bftMgr.PreVotedConfirmedHeight(),
		"syncing":             syncing,
	})
}

func (h *Handler) getValidators(req Request) Response {
	h.mu.RLock()
	vs := h.validators
	h.mu.RUnlock()
	return okResponse(req.ID, vs.All())
}

func (h *Handler) updateForgingStatus(req Request) Response {
	var params struct {
		Address  string `json:"address"`
		Password string `json:"password"`
		Forging  bool   `json:"forging"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	addr, err := crypto.AddressFromHex(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, "address: "+err.Error())
	}
	if h.forger == nil {
		return errResponse(req.ID, CodeInternalError, "forging not enabled on this node")
	}
	if err := h.forger.UpdateForgingStatus(addr, params.Password, params.Forging); err != nil {
		return errResponse(req.ID, CodeRejected, err.Error())
	}
	return okResponse(req.ID, map[string]any{"address": params.Address, "forging": params.Forging})
}

func (h *Handler) getAccount(req Request) Response {
	var params struct {
		Address string `json:"address"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	addr, err := crypto.AddressFromHex(params.Address)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, "address: "+err.Error())
	}
	acc, err := h.chain.GetAccount(addr)
	if err != nil {
		return errFromErrs(req.ID, err)
	}
	return okResponse(req.ID, acc)
}

func (h *Handler) getAccounts(req Request) Response {
	var params struct {
		Addresses []string `json:"addresses"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	out := make([]*core.Account, 0, len(params.Addresses))
	for _, s := range params.Addresses {
		addr, err := crypto.AddressFromHex(s)
		if err != nil {
			return errResponse(req.ID, CodeInvalidParams, "address: "+err.Error())
		}
		acc, err := h.chain.GetAccount(addr)
		if err != nil {
			if errs.IsKind(err, errs.KindNotFound) {
				continue
			}
			return errFromErrs(req.ID, err)
		}
		out = append(out, acc)
	}
	return okResponse(req.ID, out)
}

func (h *Handler) getBlockByID(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	id, err := crypto.HashFromHex(params.ID)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, "id: "+err.Error())
	}
	block, err := h.chain.GetBlockByID(id)
	if err != nil {
		return errFromErrs(req.ID, err)
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBlockByHeight(req Request) Response {
	var params struct {
		Height uint64 `json:"height"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	block, err := h.chain.GetBlockByHeight(params.Height)
	if err != nil {
		return errFromErrs(req.ID, err)
	}
	return okResponse(req.ID, block)
}

func (h *Handler) getBlockByHeightRange(req Request) Response {
	var params struct {
		From uint64 `json:"from"`
		To   uint64 `json:"to"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if params.To < params.From {
		return errResponse(req.ID, CodeInvalidParams, "to must be >= from")
	}
	if params.To-params.From+1 > maxHeightRange {
		return errResponse(req.ID, CodeInvalidParams, fmt.Sprintf("range too large, max %d heights", maxHeightRange))
	}
	blocks := make([]*core.Block, 0, params.To-params.From+1)
	for height := params.From; height <= params.To; height++ {
		block, err := h.chain.GetBlockByHeight(height)
		if err != nil {
			if errs.IsKind(err, errs.KindNotFound) {
				break
			}
			return errFromErrs(req.ID, err)
		}
		blocks = append(blocks, block)
	}
	return okResponse(req.ID, blocks)
}

func (h *Handler) getLastBlock(req Request) Response {
	tip := h.chain.Tip()
	if tip == nil {
		return errResponse(req.ID, CodeNotFound, "chain not bootstrapped")
	}
	return okResponse(req.ID, tip)
}

func (h *Handler) getTransactionByID(req Request) Response {
	var params struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	id, err := crypto.HashFromHex(params.ID)
	if err != nil {
		return errResponse(req.ID, CodeInvalidParams, "id: "+err.Error())
	}
	tx, found, err := h.findTransaction(id)
	if err != nil {
		return errFromErrs(req.ID, err)
	}
	if !found {
		return errResponse(req.ID, CodeNotFound, "transaction not found")
	}
	return okResponse(req.ID, tx)
}

func (h *Handler) getTransactionByIDs(req Request) Response {
	var params struct {
		IDs []string `json:"ids"`
	}
	if err := json.Unmarshal(req.Params, &params); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	out := make([]*core.Transaction, 0, len(params.IDs))
	for _, s := range params.IDs {
		id, err := crypto.HashFromHex(s)
		if err != nil {
			return errResponse(req.ID, CodeInvalidParams, "id: "+err.Error())
		}
		tx, found, err := h.findTransaction(id)
		if err != nil {
			return errFromErrs(req.ID, err)
		}
		if found {
			out = append(out, tx)
		}
	}
	return okResponse(req.ID, out)
}

// findTransaction checks the pool first (cheap, covers the common "did my
// submission land yet" query) then falls back to the committed-transaction
// index.
func (h *Handler) findTransaction(id crypto.Hash) (*core.Transaction, bool, error) {
	if h.pool != nil {
		if tx, ok := h.pool.Get(id); ok {
			return tx, true, nil
		}
	}
	if h.idx == nil {
		return nil, false, nil
	}
	loc, found, err := h.idx.Locate(id)
	if err != nil || !found {
		return nil, false, err
	}
	block, err := h.chain.GetBlockByID(loc.BlockID)
	if err != nil {
		return nil, false, err
	}
	for _, tx := range block.Payload {
		if tx.ID() == id {
			return tx, true, nil
		}
	}
	return nil, false, nil
}

func (h *Handler) postTransaction(req Request) Response {
	var tx core.Transaction
	if err := json.Unmarshal(req.Params, &tx); err != nil {
		return errResponse(req.ID, CodeInvalidParams, err.Error())
	}
	if err := h.pool.Admit(&tx); err != nil {
		return errResponse(req.ID, CodeRejected, err.Error())
	}
	return okResponse(req.ID, map[string]any{"id": tx.ID()})
}

func (h *Handler) getSchema(req Request) Response {
	schema := h.registry.ComposeSchema()
	return okResponse(req.ID, schema.Modules())
}

func (h *Handler) getConnectedPeers(req Request) Response {
	if h.peers == nil {
		return okResponse(req.ID, []PeerInfo{})
	}
	return okResponse(req.ID, h.peers.Peers())
}

func errFromErrs(id any, err error) Response {
	if errs.IsKind(err, errs.KindNotFound) {
		return errResponse(id, CodeNotFound, err.Error())
	}
	return errResponse(id, CodeInternalError, err.Error())
}
