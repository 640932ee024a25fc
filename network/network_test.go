package network

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/soliduschain/node/bft"
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/internal/testutil"
	"github.com/soliduschain/node/pool"
	"github.com/soliduschain/node/processor"
	"github.com/soliduschain/node/slot"
	"github.com/soliduschain/node/vm"
	"github.com/soliduschain/node/vm/modules/economy"
)

type harness struct {
	node      *Node
	transport *Transport
	chain     *chain.Chain
	proc      *processor.Processor
	pool      *pool.Pool
}

func newNetHarness(t *testing.T) *harness {
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

	_, genesisPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate genesis key: %v", err)
	}
	genesis := core.NewBlock(0, 0, crypto.Hash{}, genesisPub, core.BlockAsset{}, nil)
	if err := proc.Init(genesis); err != nil {
		t.Fatalf("init: %v", err)
	}

	p := pool.New(pool.Config{MaxPerSender: 4, MaxGlobal: 100, MaxPayloadSize: 1 << 20}, c, bus, nil)

	node := NewNode("node", "127.0.0.1:0")
	if err := node.Start(); err != nil {
		t.Fatalf("start node: %v", err)
	}
	t.Cleanup(node.Stop)

	transport := New(node, c, proc, p, bus)
	return &harness{node: node, transport: transport, chain: c, proc: proc, pool: p}
}

// connect dials from -> to, registering the outbound peer under to's
// listen address (so a.transport.<PeerSource method>(..., to.node.Addr())
// addresses it directly), and waits for to's side to observe the inbound
// connection. Inbound peers are keyed by their ephemeral remote address, not
// the dialer's listen address, so callers that need to address the inbound
// side read it back from to.node.Peers() themselves.
func connect(t *testing.T, from, to *harness) {
	t.Helper()
	before := len(to.node.Peers())
	if _, err := from.node.AddPeer(to.node.Addr(), to.node.Addr()); err != nil {
		t.Fatalf("connect: %v", err)
	}
	waitFor(t, func() bool { return len(to.node.Peers()) > before })
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}

func forgeBlock(t *testing.T, h *harness, priv crypto.PrivKey, pub crypto.PubKey, height uint64) *core.Block {
	t.Helper()
	tip := h.chain.Tip()
	block := core.NewBlock(height, uint32(height)*10, tip.ID(), pub, core.BlockAsset{}, nil)
	if _, err := block.Header.Sign(priv); err != nil {
		t.Fatalf("sign block: %v", err)
	}
	if err := h.proc.ProcessValidated(block); err != nil {
		t.Fatalf("process block %d: %v", height, err)
	}
	return block
}

func TestSampleTipsReportsRemoteHeight(t *testing.T) {
	a := newNetHarness(t)
	b := newNetHarness(t)
	connect(t, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	tips, err := a.transport.SampleTips(ctx, 5)
	if err != nil {
		t.Fatalf("sampleTips: %v", err)
	}
	if len(tips) != 1 {
		t.Fatalf("expected 1 tip, got %d", len(tips))
	}
	if tips[0].Height != 0 {
		t.Fatalf("expected remote height 0, got %d", tips[0].Height)
	}
	if tips[0].TipID != b.chain.Tip().ID() {
		t.Fatal("expected remote tip id to match b's genesis id")
	}
}

func TestBlocksFromFetchesRemoteBlocks(t *testing.T) {
	a := newNetHarness(t)
	b := newNetHarness(t)
	connect(t, a, b)

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	forgeBlock(t, b, priv, pub, 1)
	forgeBlock(t, b, priv, pub, 2)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	blocks, err := a.transport.BlocksFrom(ctx, b.node.Addr(), 1, 10)
	if err != nil {
		t.Fatalf("blocksFrom: %v", err)
	}
	if len(blocks) != 2 {
		t.Fatalf("expected 2 blocks, got %d", len(blocks))
	}
	if blocks[0].Header.Height != 1 || blocks[1].Header.Height != 2 {
		t.Fatalf("unexpected heights: %d, %d", blocks[0].Header.Height, blocks[1].Header.Height)
	}
}

func TestHasBlockIDProbesCommonHeight(t *testing.T) {
	a := newNetHarness(t)
	b := newNetHarness(t)
	connect(t, a, b)

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	forgeBlock(t, b, priv, pub, 1)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	id, found, err := a.transport.HasBlockID(ctx, b.node.Addr(), 1)
	if err != nil {
		t.Fatalf("hasBlockID: %v", err)
	}
	if !found {
		t.Fatal("expected height 1 to be found")
	}
	want, _ := b.chain.GetBlockByHeight(1)
	if id != want.ID() {
		t.Fatal("returned id does not match remote block")
	}

	_, found, err = a.transport.HasBlockID(ctx, b.node.Addr(), 50)
	if err != nil {
		t.Fatalf("hasBlockID (absent): %v", err)
	}
	if found {
		t.Fatal("expected height 50 to be absent")
	}
}

func TestPostTransactionAdmitsAndRelays(t *testing.T) {
	a := newNetHarness(t)
	b := newNetHarness(t)
	c := newNetHarness(t)
	connect(t, a, b)
	connect(t, b, c)

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate sender key: %v", err)
	}
	recipientPriv, recipientPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate recipient key: %v", err)
	}
	_ = recipientPriv

	asset, err := json.Marshal(economy.TransferAsset{Recipient: recipientPub.Address(), Amount: 1})
	if err != nil {
		t.Fatalf("marshal asset: %v", err)
	}
	tx := &core.Transaction{
		ModuleID:        economy.ModuleID,
		AssetID:         economy.AssetTransfer,
		Nonce:           0,
		Fee:             1000,
		SenderPublicKey: pub,
		Asset:           asset,
	}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign tx: %v", err)
	}

	raw, err := marshalPayload(tx)
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}
	peerAtoB := a.node.Peer(b.node.Addr())
	if peerAtoB == nil {
		t.Fatal("expected a to be connected to b")
	}
	if err := peerAtoB.Send(Message{Type: MsgPostTransaction, Payload: raw}); err != nil {
		t.Fatalf("send postTransaction: %v", err)
	}

	waitFor(t, func() bool {
		_, ok := b.pool.Get(tx.ID())
		return ok
	})
	waitFor(t, func() bool {
		_, ok := c.pool.Get(tx.ID())
		return ok
	})
}

func TestPenalizeDisconnectsOverThreshold(t *testing.T) {
	a := newNetHarness(t)
	b := newNetHarness(t)
	connect(t, a, b)

	peers := b.node.Peers()
	if len(peers) != 1 {
		t.Fatalf("expected 1 inbound peer on b, got %d", len(peers))
	}
	peerID := peers[0].ID
	b.transport.Penalize(peerID, penaltyBanThreshold)

	waitFor(t, func() bool { return b.node.Peer(peerID) == nil })
}
