package forger

import (
	"encoding/json"
	"testing"

	"github.com/soliduschain/node/bft"
	"github.com/soliduschain/node/chain"
	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/events"
	"github.com/soliduschain/node/internal/testutil"
	"github.com/soliduschain/node/pool"
	"github.com/soliduschain/node/processor"
	"github.com/soliduschain/node/slot"
	"github.com/soliduschain/node/storage"
	"github.com/soliduschain/node/vm"
	"github.com/soliduschain/node/vm/modules/economy"
	"github.com/soliduschain/node/wallet"
)

type alwaysIdle struct{}

func (alwaysIdle) IsActive() bool { return false }

type alwaysBusy struct{}

func (alwaysBusy) IsActive() bool { return true }

func seedDelegate(t *testing.T, db storage.DB, addr crypto.Address, pub crypto.PubKey, weight uint64) {
	t.Helper()
	acct := &core.Account{
		Address:   addr,
		PublicKey: pub,
		Delegate:  &core.DelegateInfo{Username: "d1", VoteWeight: weight},
	}
	raw, err := json.Marshal(acct)
	if err != nil {
		t.Fatalf("marshal delegate account: %v", err)
	}
	if err := db.Set(storage.AccountKey(addr.Bytes()), raw); err != nil {
		t.Fatalf("seed delegate account: %v", err)
	}
}

func newHarness(t *testing.T) (*Forger, *processor.Processor, *chain.Chain, crypto.Address, *wallet.Store) {
	t.Helper()
	db := testutil.NewDB()
	c, err := chain.Open(db)
	if err != nil {
		t.Fatalf("open chain: %v", err)
	}

	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate delegate key: %v", err)
	}
	addr := pub.Address()
	seedDelegate(t, db, addr, pub, 100)

	registry := vm.NewRegistry()
	if err := registry.Register(economy.New()); err != nil {
		t.Fatalf("register economy: %v", err)
	}
	bus := events.NewBus()
	bftMgr := bft.New(db, bus, 1)
	clock := slot.NewClock(0, 10)
	procCfg := processor.Config{MaxPayloadLength: 1 << 20, RoundLength: 1, ValidatorSetSize: 1}
	proc := processor.New(c, bftMgr, registry, bus, clock, procCfg, nil)

	genesisPriv, genesisPub, _ := crypto.GenerateKeyPair()
	_ = genesisPriv
	genesis := core.NewBlock(0, 0, crypto.Hash{}, genesisPub, core.BlockAsset{}, nil)
	if err := proc.Init(genesis); err != nil {
		t.Fatalf("init: %v", err)
	}

	p := pool.New(pool.Config{MaxPerSender: 4, MaxGlobal: 100, MaxPayloadSize: 1 << 20}, c, bus, nil)

	ws := wallet.New(db)
	if _, err := ws.Import(priv, "pw"); err != nil {
		t.Fatalf("import delegate key: %v", err)
	}

	cfg := Config{WaitThreshold: 2, BlockTime: 10, OnionLength: 10, RoundLength: 1, MaxPayloadLength: 1 << 20, MinPendingTxs: 0}
	f := New(c, bftMgr, proc, p, clock, cfg, ws, alwaysIdle{}, bus)
	return f, proc, c, addr, ws
}

func TestConfigValidateRejectsWaitThresholdAboveBlockTime(t *testing.T) {
	cfg := Config{WaitThreshold: 10, BlockTime: 10}
	if err := cfg.Validate(); !errs.IsKind(err, errs.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestUpdateForgingStatusUnlocksAndWipes(t *testing.T) {
	f, _, _, addr, _ := newHarness(t)
	if f.IsForging(addr) {
		t.Fatal("expected delegate to start locked")
	}
	if err := f.UpdateForgingStatus(addr, "pw", true); err != nil {
		t.Fatalf("enable forging: %v", err)
	}
	if !f.IsForging(addr) {
		t.Fatal("expected delegate to be unlocked")
	}
	if err := f.UpdateForgingStatus(addr, "", false); err != nil {
		t.Fatalf("disable forging: %v", err)
	}
	if f.IsForging(addr) {
		t.Fatal("expected delegate to be wiped from memory")
	}
}

func TestUpdateForgingStatusRejectsWrongPassword(t *testing.T) {
	f, _, _, addr, _ := newHarness(t)
	if err := f.UpdateForgingStatus(addr, "wrong", true); !errs.IsKind(err, errs.KindKey) {
		t.Fatalf("expected key error, got %v", err)
	}
}

func TestTickForgesAssignedSlot(t *testing.T) {
	f, _, c, addr, _ := newHarness(t)
	if err := f.UpdateForgingStatus(addr, "pw", true); err != nil {
		t.Fatalf("enable forging: %v", err)
	}

	if err := f.Tick(15); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if c.Height() != 1 {
		t.Fatalf("expected height 1 after forging, got %d", c.Height())
	}
	if c.Tip().Header.GeneratorPublicKey.Address() != addr {
		t.Fatal("expected the unlocked delegate to be the tip's generator")
	}
}

func TestTickSkipsWhileSynchronizerActive(t *testing.T) {
	f, _, c, addr, ws := newHarness(t)
	f.sync = alwaysBusy{}
	_ = ws
	if err := f.UpdateForgingStatus(addr, "pw", true); err != nil {
		t.Fatalf("enable forging: %v", err)
	}
	if err := f.Tick(15); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if c.Height() != 0 {
		t.Fatal("expected no block forged while synchronizer active")
	}
}

func TestTickSkipsBeforeWaitThresholdWithEmptyPool(t *testing.T) {
	f, _, c, addr, _ := newHarness(t)
	if err := f.UpdateForgingStatus(addr, "pw", true); err != nil {
		t.Fatalf("enable forging: %v", err)
	}
	// slot 1 starts at t=10; waitThreshold=2, pool empty, MinPendingTxs=0
	// so the gate only trips if MinPendingTxs > 0 — raise it to force the
	// wait-threshold branch to matter.
	f.cfg.MinPendingTxs = 1
	if err := f.Tick(11); err != nil {
		t.Fatalf("tick: %v", err)
	}
	if c.Height() != 0 {
		t.Fatal("expected no block forged before the wait threshold elapsed")
	}
}
