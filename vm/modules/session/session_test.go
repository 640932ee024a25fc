package session

import (
	"encoding/json"
	"testing"

	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/internal/testutil"
	"github.com/soliduschain/node/vm"
)

func newCtx(t *testing.T) (*vm.Context, crypto.Address) {
	t.Helper()
	c, err := chain.Open(testutil.NewDB())
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}
	genesis := core.NewBlock(0, 0, crypto.Hash{}, crypto.PubKey{}, core.BlockAsset{}, nil)
	if err := c.Bootstrap(genesis); err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	_, hostPub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate host key: %v", err)
	}
	store := c.NewStateStore()
	tx := &core.Transaction{ModuleID: ModuleID, SenderPublicKey: hostPub}
	return &vm.Context{State: store, Block: genesis, Tx: tx}, hostPub.Address()
}

func TestOpenLocksStakesFromEachPlayer(t *testing.T) {
	ctx, host := newCtx(t)

	_, p1Pub, _ := crypto.GenerateKeyPair()
	p1 := p1Pub.Address()
	acct, err := ctx.State.GetAccount(p1)
	if err != nil {
		t.Fatalf("get p1: %v", err)
	}
	acct.Balance = 50
	if err := ctx.State.PutAccount(acct); err != nil {
		t.Fatalf("fund p1: %v", err)
	}

	m := New()
	asset, _ := json.Marshal(OpenAsset{SessionID: "s1", Stakes: map[crypto.Address]uint64{p1: 50}})
	if err := m.Verify(ctx, asset); err != nil {
		t.Fatalf("verify open: %v", err)
	}
	if err := m.Apply(ctx, asset); err != nil {
		t.Fatalf("apply open: %v", err)
	}

	p1After, err := ctx.State.GetAccount(p1)
	if err != nil {
		t.Fatalf("get p1 after: %v", err)
	}
	if p1After.Balance != 0 {
		t.Fatalf("expected p1 balance drained to 0, got %d", p1After.Balance)
	}

	s, err := getSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Pot != 50 || s.Host != host {
		t.Fatalf("unexpected session state: %+v", s)
	}
}

func TestResultRejectsRewardSumAboveCap(t *testing.T) {
	ctx, _ := newCtx(t)
	_, p1Pub, _ := crypto.GenerateKeyPair()
	p1 := p1Pub.Address()
	acct, _ := ctx.State.GetAccount(p1)
	acct.Balance = 100
	_ = ctx.State.PutAccount(acct)

	m := New()
	openAsset, _ := json.Marshal(OpenAsset{SessionID: "s1", Stakes: map[crypto.Address]uint64{p1: 100}})
	if err := m.Apply(ctx, openAsset); err != nil {
		t.Fatalf("apply open: %v", err)
	}

	ctx.Tx.AssetID = AssetResult
	resultAsset, _ := json.Marshal(ResultAsset{SessionID: "s1", Rewards: map[crypto.Address]uint64{p1: 500}})
	if err := m.Verify(ctx, resultAsset); !errs.IsKind(err, errs.KindVerification) {
		t.Fatalf("expected verification error for over-cap reward, got %v", err)
	}
}

func TestResultPaysOutAndClosesSession(t *testing.T) {
	ctx, _ := newCtx(t)
	_, p1Pub, _ := crypto.GenerateKeyPair()
	p1 := p1Pub.Address()
	acct, _ := ctx.State.GetAccount(p1)
	acct.Balance = 100
	_ = ctx.State.PutAccount(acct)

	m := New()
	openAsset, _ := json.Marshal(OpenAsset{SessionID: "s1", Stakes: map[crypto.Address]uint64{p1: 100}})
	if err := m.Apply(ctx, openAsset); err != nil {
		t.Fatalf("apply open: %v", err)
	}

	ctx.Tx.AssetID = AssetResult
	resultAsset, _ := json.Marshal(ResultAsset{SessionID: "s1", Rewards: map[crypto.Address]uint64{p1: 80}})
	if err := m.Verify(ctx, resultAsset); err != nil {
		t.Fatalf("verify result: %v", err)
	}
	if err := m.Apply(ctx, resultAsset); err != nil {
		t.Fatalf("apply result: %v", err)
	}

	p1After, err := ctx.State.GetAccount(p1)
	if err != nil {
		t.Fatalf("get p1 after: %v", err)
	}
	if p1After.Balance != 80 {
		t.Fatalf("expected p1 balance 80, got %d", p1After.Balance)
	}

	s, err := getSession(ctx, "s1")
	if err != nil {
		t.Fatalf("get session: %v", err)
	}
	if s.Open || !s.Finalized {
		t.Fatalf("expected session closed and finalized, got %+v", s)
	}
}
