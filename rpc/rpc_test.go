package rpc

import (
	"encoding/json"
	"testing"

	"github.com/soliduschain/node/bft"
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/forger"
	"github.com/soliduschain/node/indexer"
	"github.com/soliduschain/node/internal/testutil"
	"github.com/soliduschain/node/pool"
	"github.com/soliduschain/node/processor"
	"github.com/soliduschain/node/slot"
	"github.com/soliduschain/node/vm"
	"github.com/soliduschain/node/vm/modules/economy"
	"github.com/soliduschain/node/wallet"
)

type alwaysIdle struct{}

func (alwaysIdle) IsActive() bool { return false }

type fakePeers struct{ peers []PeerInfo }

func (f fakePeers) Peers() []PeerInfo { return f.peers }

type rpcHarness struct {
	handler *Handler
	chain   *chain.Chain
	pool    *pool.Pool
	proc    *processor.Processor
	wallet  *wallet.Store
	addr    crypto.Address
}

func newRPCHarness(t *testing.T) *rpcHarness {
	t.Helper()
	db := testutil.NewDB()
	c, err := chain.Open(db)
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	registry := vm.NewRegistry()
	if err := registry.Register(economy.New()); err != nil {
		t.Fatalf("register economy: %v", err)
	}
	bus := events.NewBus()
	bftMgr := bft.New(db, bus, 1)
	clock := slot.NewClock(0, 10)
	proc := processor.New(c, bftMgr, registry, bus, clock, processor.Config{MaxPayloadLength: 1 << 20}, nil)

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate delegate key: %v", err)
	}
	addr := pub.Address()

	genesis := core.NewBlock(0, 0, crypto.Hash{}, pub, core.BlockAsset{}, nil)
	if err := proc.Init(genesis); err != nil {
		t.Fatalf("init: %v", err)
	}

	p := pool.New(pool.Config{MaxPerSender: 4, MaxGlobal: 100, MaxPayloadSize: 1 << 20}, c, bus, nil)
	ws := wallet.New(db)
	if _, err := ws.Import(priv, "pw"); err != nil {
		t.Fatalf("import delegate key: %v", err)
	}
	fCfg := forger.Config{WaitThreshold: 2, BlockTime: 10, OnionLength: 10, RoundLength: 1, MaxPayloadLength: 1 << 20}
	f := forger.New(c, bftMgr, proc, p, clock, fCfg, ws, alwaysIdle{}, bus)
	idx := indexer.New(db, bus)

	info := Info{NodeID: "node-a", Version: "test", ChainID: "test-chain", NetworkVersion: "1.0"}
	peers := fakePeers{peers: []PeerInfo{{ID: "peer-1", Addr: "127.0.0.1:9001"}}}
	handler := NewHandler(info, c, p, f, bftMgr, registry, idx, peers, alwaysIdle{}, bus)

	return &rpcHarness{handler: handler, chain: c, pool: p, proc: proc, wallet: ws, addr: addr}
}

func call(t *testing.T, h *Handler, method string, params any) Response {
	t.Helper()
	raw, err := json.Marshal(params)
	if err != nil {
		t.Fatalf("marshal params: %v", err)
	}
	return h.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: method, Params: raw})
}

func TestGetNodeInfoReportsHeightAndIdentity(t *testing.T) {
	h := newRPCHarness(t)
	resp := call(t, h.handler, "getNodeInfo", struct{}{})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	m, ok := resp.Result.(map[string]any)
	if !ok {
		t.Fatalf("expected map result, got %T", resp.Result)
	}
	if m["node_id"] != "node-a" {
		t.Fatalf("unexpected node_id: %v", m["node_id"])
	}
	if m["height"] != uint64(0) {
		t.Fatalf("expected height 0, got %v", m["height"])
	}
}

func TestGetAccountNotFoundReturnsCodeNotFound(t *testing.T) {
	h := newRPCHarness(t)
	_, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	resp := call(t, h.handler, "getAccount", map[string]string{"address": pub.Address().Hex()})
	if resp.Error == nil {
		t.Fatal("expected error for unknown account")
	}
	if resp.Error.Code != CodeNotFound {
		t.Fatalf("expected CodeNotFound, got %d", resp.Error.Code)
	}
}

func TestUpdateForgingStatusUnlocksDelegate(t *testing.T) {
	h := newRPCHarness(t)
	resp := call(t, h.handler, "updateForgingStatus", map[string]any{
		"address":  h.addr.Hex(),
		"password": "pw",
		"forging":  true,
	})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	if !h.handler.forger.IsForging(h.addr) {
		t.Fatal("expected delegate to be forging after updateForgingStatus")
	}
}

func TestUpdateForgingStatusRejectsWrongPassword(t *testing.T) {
	h := newRPCHarness(t)
	resp := call(t, h.handler, "updateForgingStatus", map[string]any{
		"address":  h.addr.Hex(),
		"password": "wrong",
		"forging":  true,
	})
	if resp.Error == nil {
		t.Fatal("expected error for wrong password")
	}
	if resp.Error.Code != CodeRejected {
		t.Fatalf("expected CodeRejected, got %d", resp.Error.Code)
	}
}

func TestPostTransactionAdmitsThenGetTransactionByIdFindsIt(t *testing.T) {
	h := newRPCHarness(t)
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	_, recipientPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate recipient key: %v", err)
	}
	asset, err := json.Marshal(economy.TransferAsset{Recipient: recipientPub.Address(), Amount: 1})
	if err != nil {
		t.Fatalf("marshal asset: %v", err)
	}
	tx := &core.Transaction{
		ModuleID:        economy.ModuleID,
		AssetID:         economy.AssetTransfer,
		Fee:             1000,
		SenderPublicKey: pub,
		Asset:           asset,
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	raw, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}

	postResp := h.handler.Dispatch(Request{JSONRPC: "2.0", ID: 1, Method: "postTransaction", Params: raw})
	if postResp.Error != nil {
		t.Fatalf("postTransaction failed: %+v", postResp.Error)
	}

	getResp := call(t, h.handler, "getTransactionById", map[string]string{"id": tx.ID().Hex()})
	if getResp.Error != nil {
		t.Fatalf("getTransactionById failed: %+v", getResp.Error)
	}
	got, ok := getResp.Result.(*core.Transaction)
	if !ok {
		t.Fatalf("expected *core.Transaction result, got %T", getResp.Result)
	}
	if got.ID() != tx.ID() {
		t.Fatal("returned transaction id mismatch")
	}
}

func TestGetConnectedPeersReturnsWiredPeers(t *testing.T) {
	h := newRPCHarness(t)
	resp := call(t, h.handler, "getConnectedPeers", struct{}{})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	peers, ok := resp.Result.([]PeerInfo)
	if !ok {
		t.Fatalf("expected []PeerInfo, got %T", resp.Result)
	}
	if len(peers) != 1 || peers[0].ID != "peer-1" {
		t.Fatalf("unexpected peers: %+v", peers)
	}
}

func TestGetSchemaListsRegisteredModules(t *testing.T) {
	h := newRPCHarness(t)
	resp := call(t, h.handler, "getSchema", struct{}{})
	if resp.Error != nil {
		t.Fatalf("unexpected error: %+v", resp.Error)
	}
	schemas, ok := resp.Result.([]core.ModuleSchema)
	if !ok {
		t.Fatalf("expected []core.ModuleSchema, got %T", resp.Result)
	}
	if len(schemas) != 1 || schemas[0].ModuleID != economy.ModuleID {
		t.Fatalf("unexpected schema: %+v", schemas)
	}
}
