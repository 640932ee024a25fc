package sync

import (
	"context"
	"testing"

	"github.com/soliduschain/node/bft"
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/internal/testutil"
	"github.com/soliduschain/node/processor"
	"github.com/soliduschain/node/slot"
	"github.com/soliduschain/node/vm"
	"github.com/soliduschain/node/vm/modules/economy"
)

func newSyncTestProcessor(t *testing.T) (*processor.Processor, *chain.Chain, crypto.PrivKey) {
	t.Helper()
	db := testutil.NewDB()
	c, err := chain.Open(db)
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	signer, _, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	genesis := core.NewBlock(0, 0, crypto.Hash{}, crypto.PubKey{}, core.BlockAsset{}, nil)

	registry := vm.NewRegistry()
	if err := registry.Register(economy.New()); err != nil {
		t.Fatalf("register economy: %v", err)
	}
	bus := events.NewBus()
	bftMgr := bft.New(db, bus, 2)
	clock := slot.NewClock(0, 10)
	cfg := processor.Config{MaxPayloadLength: 1 << 20}

	p := processor.New(c, bftMgr, registry, bus, clock, cfg, nil)
	if err := p.Init(genesis); err != nil {
		t.Fatalf("init: %v", err)
	}
	return p, c, signer
}

func buildSignedBlock(t *testing.T, c *chain.Chain, signer crypto.PrivKey, height uint64, timestamp uint32, previousBlockID crypto.Hash) *core.Block {
	t.Helper()
	pub, err := signer.Public()
	if err != nil {
		t.Fatalf("derive public key: %v", err)
	}
	blk := core.NewBlock(height, timestamp, previousBlockID, pub, core.BlockAsset{}, nil)
	if _, err := blk.Header.Sign(signer); err != nil {
		t.Fatalf("sign: %v", err)
	}
	return blk
}

func mustProcess(t *testing.T, p *processor.Processor, blk *core.Block) {
	t.Helper()
	if err := p.Process(blk, processor.Local()); err != nil {
		t.Fatalf("process height %d: %v", blk.Header.Height, err)
	}
}

// fakePeerSource is a hand-wired PeerSource stand-in for network.Transport.
type fakePeerSource struct {
	tips     []PeerTip
	blockIDs map[uint64]crypto.Hash
	forward  map[uint64][]*core.Block
}

func (f *fakePeerSource) SampleTips(ctx context.Context, n int) ([]PeerTip, error) {
	return f.tips, nil
}

func (f *fakePeerSource) HasBlockID(ctx context.Context, peerID string, height uint64) (crypto.Hash, bool, error) {
	id, ok := f.blockIDs[height]
	return id, ok, nil
}

func (f *fakePeerSource) BlocksFrom(ctx context.Context, peerID string, fromHeight uint64, limit int) ([]*core.Block, error) {
	blocks, ok := f.forward[fromHeight]
	if !ok {
		return nil, nil
	}
	if len(blocks) > limit {
		blocks = blocks[:limit]
	}
	return blocks, nil
}

func TestSelectReferencePeerRequiresQuorum(t *testing.T) {
	tipA := crypto.Hash{0xAA}
	tips := []PeerTip{
		{PeerID: "p1", TipID: tipA, MaxHeightPrevoted: 10},
		{PeerID: "p2", TipID: tipA, MaxHeightPrevoted: 12},
		{PeerID: "p3", TipID: crypto.Hash{0xBB}, MaxHeightPrevoted: 50},
	}
	ref, ok := selectReferencePeer(tips, 2)
	if !ok {
		t.Fatal("expected a reference peer to be found")
	}
	if ref.TipID != tipA {
		t.Fatalf("expected the quorum group's tip, got %x", ref.TipID)
	}

	if _, ok := selectReferencePeer(tips, 3); ok {
		t.Fatal("expected no reference peer when no group reaches quorum")
	}
}

func TestBlockSyncRevertsAndReappliesFromReferencePeer(t *testing.T) {
	proc, c, signer := newSyncTestProcessor(t)
	genesisID := c.Tip().ID()

	a1 := buildSignedBlock(t, c, signer, 1, 10, genesisID)
	mustProcess(t, proc, a1)
	a2 := buildSignedBlock(t, c, signer, 2, 20, a1.ID())
	mustProcess(t, proc, a2)

	b2 := buildSignedBlock(t, c, signer, 2, 21, a1.ID())
	b3 := buildSignedBlock(t, c, signer, 3, 31, b2.ID())

	peers := &fakePeerSource{
		tips: []PeerTip{{PeerID: "peer1", TipID: b3.ID(), MaxHeightPrevoted: 3, Height: 3}},
		blockIDs: map[uint64]crypto.Hash{
			0: genesisID,
			1: a1.ID(),
			2: b2.ID(),
			3: b3.ID(),
		},
		forward: map[uint64][]*core.Block{2: {b2, b3}},
	}

	mech := NewBlockSynchronizationMechanism(c, proc, peers, nil, Config{Quorum: 1, SampleSize: 1, ProbeStride: 1, ChunkSize: 10})
	req := events.SyncRequired{Block: b2, PeerID: "peer1", Hint: events.HintBlockSync}
	if err := mech.Run(context.Background(), req); err != nil {
		t.Fatalf("run: %v", err)
	}
	if c.Height() != 3 {
		t.Fatalf("expected height 3, got %d", c.Height())
	}
	if c.Tip().ID() != b3.ID() {
		t.Fatal("expected tip to be the peer's block 3")
	}
}

func TestFastChainSwitchReorgsOneBlock(t *testing.T) {
	proc, c, signer := newSyncTestProcessor(t)
	genesisID := c.Tip().ID()

	a1 := buildSignedBlock(t, c, signer, 1, 10, genesisID)
	mustProcess(t, proc, a1)

	b1 := buildSignedBlock(t, c, signer, 1, 11, genesisID)

	peers := &fakePeerSource{
		blockIDs: map[uint64]crypto.Hash{0: genesisID},
		forward:  map[uint64][]*core.Block{1: {b1}},
	}

	mech := NewFastChainSwitchingMechanism(c, proc, peers, nil, Config{RoundLength: 2, ChunkSize: 10})
	req := events.SyncRequired{Block: b1, PeerID: "peer1", Hint: events.HintFastChainSwitch}
	if err := mech.Run(context.Background(), req); err != nil {
		t.Fatalf("run: %v", err)
	}
	if c.Tip().ID() != b1.ID() {
		t.Fatal("expected tip to be the peer's competing block 1")
	}
}

func TestFastChainSwitchRejectsDistanceBeyondBound(t *testing.T) {
	proc, c, _ := newSyncTestProcessor(t)
	farBlock := core.NewBlock(5, 50, crypto.Hash{0x99}, crypto.PubKey{1}, core.BlockAsset{}, nil)

	mech := NewFastChainSwitchingMechanism(c, proc, &fakePeerSource{}, nil, Config{RoundLength: 1})
	req := events.SyncRequired{Block: farBlock, PeerID: "peer1", Hint: events.HintFastChainSwitch}
	err := mech.Run(context.Background(), req)
	var forkErr *errs.ForkError
	if !errorsAsFork(err, &forkErr) || !forkErr.Irrecoverable {
		t.Fatalf("expected an irrecoverable fork error, got %v", err)
	}
}

func errorsAsFork(err error, target **errs.ForkError) bool {
	fe, ok := err.(*errs.ForkError)
	if !ok {
		return false
	}
	*target = fe
	return true
}

type stubMechanism struct {
	name   string
	hint   events.SyncMechanismHint
	called int
	err    error
}

func (s *stubMechanism) Name() string { return s.name }
func (s *stubMechanism) IsValidFor(req events.SyncRequired) bool {
	return req.Hint == s.hint
}
func (s *stubMechanism) Run(ctx context.Context, req events.SyncRequired) error {
	s.called++
	return s.err
}

func TestSynchronizerDispatchesToMatchingMechanismInOrder(t *testing.T) {
	bus := events.NewBus()
	fast := &stubMechanism{name: "fast", hint: events.HintFastChainSwitch}
	block := &stubMechanism{name: "block", hint: events.HintBlockSync}
	s := New(bus, fast, block)

	bus.Publish(events.SyncRequired{Hint: events.HintBlockSync, PeerID: "p1"})

	if fast.called != 0 || block.called != 1 {
		t.Fatalf("expected only block mechanism to run, fast=%d block=%d", fast.called, block.called)
	}
	if s.IsActive() {
		t.Fatal("expected synchronizer to be idle after dispatch completes")
	}
}
