package pool

import (
	"testing"
	"time"

	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/internal/testutil"
)

func newTestChain(t *testing.T) *chain.Chain {
	t.Helper()
	c, err := chain.Open(testutil.NewDB())
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	genesis := core.NewBlock(0, 0, crypto.Hash{}, crypto.PubKey{}, core.BlockAsset{}, nil)
	if err := c.Bootstrap(genesis); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	return c
}

func signedTx(t *testing.T, priv crypto.PrivKey, pub crypto.PubKey, nonce, fee uint64) *core.Transaction {
	t.Helper()
	tx := &core.Transaction{ModuleID: 2, AssetID: 0, Nonce: nonce, Fee: fee, SenderPublicKey: pub, Asset: []byte(`{}`)}
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("sign tx: %v", err)
	}
	return tx
}

func defaultConfig() Config {
	return Config{MaxPerSender: 4, MaxGlobal: 100, ReplaceFactor: 1.1, ExpiryInterval: time.Hour, MaxPayloadSize: 1 << 20}
}

func TestAdmitRejectsStaleNonce(t *testing.T) {
	c := newTestChain(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	acct, _ := c.NewStateStore().GetAccount(pub.Address())
	acct.Nonce = 5
	store := c.NewStateStore()
	_ = store.PutAccount(acct)
	blk := core.NewBlock(1, 1, c.Tip().ID(), crypto.PubKey{}, core.BlockAsset{}, nil)
	if err := c.CommitBlock(blk, store); err != nil {
		t.Fatalf("commit: %v", err)
	}

	p := New(defaultConfig(), c, events.NewBus(), nil)
	tx := signedTx(t, priv, pub, 3, 10)
	if err := p.Admit(tx); err == nil {
		t.Fatal("expected rejection of stale nonce")
	}
}

func TestAdmitAndSelectRespectsNonceOrder(t *testing.T) {
	c := newTestChain(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	p := New(defaultConfig(), c, events.NewBus(), nil)

	tx0 := signedTx(t, priv, pub, 0, 100)
	tx1 := signedTx(t, priv, pub, 1, 100)
	if err := p.Admit(tx1); err != nil {
		t.Fatalf("admit tx1: %v", err)
	}
	if err := p.Admit(tx0); err != nil {
		t.Fatalf("admit tx0: %v", err)
	}

	selected := p.Select(1 << 20)
	if len(selected) != 2 {
		t.Fatalf("expected 2 selected, got %d", len(selected))
	}
	if selected[0].Nonce != 0 || selected[1].Nonce != 1 {
		t.Fatalf("expected nonce-ordered selection, got %d, %d", selected[0].Nonce, selected[1].Nonce)
	}
}

func TestAdmitRejectsDuplicateID(t *testing.T) {
	c := newTestChain(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	p := New(defaultConfig(), c, events.NewBus(), nil)

	tx := signedTx(t, priv, pub, 0, 100)
	if err := p.Admit(tx); err != nil {
		t.Fatalf("admit: %v", err)
	}
	if err := p.Admit(tx); err == nil {
		t.Fatal("expected duplicate rejection")
	}
}

func TestNewBlockRemovesIncludedTransaction(t *testing.T) {
	c := newTestChain(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	bus := events.NewBus()
	p := New(defaultConfig(), c, bus, nil)

	tx := signedTx(t, priv, pub, 0, 100)
	if err := p.Admit(tx); err != nil {
		t.Fatalf("admit: %v", err)
	}

	blk := core.NewBlock(1, 1, c.Tip().ID(), crypto.PubKey{}, core.BlockAsset{}, []*core.Transaction{tx})
	bus.Publish(events.NewBlock{Block: blk})

	if _, ok := p.Get(tx.ID()); ok {
		t.Fatal("expected included transaction to be removed from pool")
	}
}

func TestDeleteBlockReAdmitsTransaction(t *testing.T) {
	c := newTestChain(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	bus := events.NewBus()
	p := New(defaultConfig(), c, bus, nil)

	tx := signedTx(t, priv, pub, 0, 100)
	blk := core.NewBlock(1, 1, c.Tip().ID(), crypto.PubKey{}, core.BlockAsset{}, []*core.Transaction{tx})
	bus.Publish(events.DeleteBlock{Block: blk})

	if _, ok := p.Get(tx.ID()); !ok {
		t.Fatal("expected reverted transaction to be re-admitted")
	}
}

func TestSweepExpiredEvictsOldTransactions(t *testing.T) {
	c := newTestChain(t)
	priv, pub, _ := crypto.GenerateKeyPair()
	cfg := defaultConfig()
	cfg.ExpiryInterval = time.Nanosecond
	p := New(cfg, c, events.NewBus(), nil)

	tx := signedTx(t, priv, pub, 0, 100)
	if err := p.Admit(tx); err != nil {
		t.Fatalf("admit: %v", err)
	}
	time.Sleep(time.Millisecond)
	p.SweepExpired()

	if _, ok := p.Get(tx.ID()); ok {
		t.Fatal("expected expired transaction to be evicted")
	}
}
