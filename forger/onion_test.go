package forger

import (
	"testing"

	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/internal/testutil"
)

func TestLoadOrCreateOnionMintsOnFirstUse(t *testing.T) {
	db := testutil.NewDB()
	_, pub, _ := crypto.GenerateKeyPair()
	addr := pub.Address()

	st, err := loadOrCreateOnion(db, addr, 5)
	if err != nil {
		t.Fatalf("load or create: %v", err)
	}
	if st.nextIdx != 0 {
		t.Fatalf("expected a fresh watermark of 0, got %d", st.nextIdx)
	}
	if st.onion.Length() != 5 {
		t.Fatalf("expected onion length 5, got %d", st.onion.Length())
	}
}

func TestLoadOrCreateOnionRestoresSeedAcrossReload(t *testing.T) {
	db := testutil.NewDB()
	_, pub, _ := crypto.GenerateKeyPair()
	addr := pub.Address()

	first, err := loadOrCreateOnion(db, addr, 5)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	checkpoint := first.onion.Checkpoint()

	second, err := loadOrCreateOnion(db, addr, 5)
	if err != nil {
		t.Fatalf("second load: %v", err)
	}
	if second.onion.Checkpoint() != checkpoint {
		t.Fatal("expected the persisted onion to be restored identically")
	}
}

func TestRevealAdvancesWatermarkAndPersistsIt(t *testing.T) {
	db := testutil.NewDB()
	_, pub, _ := crypto.GenerateKeyPair()
	addr := pub.Address()

	st, err := loadOrCreateOnion(db, addr, 5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := st.reveal(db, addr, 0); err != nil {
		t.Fatalf("reveal 0: %v", err)
	}
	if st.nextIdx != 1 {
		t.Fatalf("expected watermark 1, got %d", st.nextIdx)
	}

	used, err := loadUsedIndex(db, addr)
	if err != nil {
		t.Fatalf("load used index: %v", err)
	}
	if used != 1 {
		t.Fatalf("expected persisted watermark 1, got %d", used)
	}
}

func TestRevealRefusesIndexBelowWatermark(t *testing.T) {
	db := testutil.NewDB()
	_, pub, _ := crypto.GenerateKeyPair()
	addr := pub.Address()

	st, err := loadOrCreateOnion(db, addr, 5)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if _, err := st.reveal(db, addr, 2); err != nil {
		t.Fatalf("reveal 2: %v", err)
	}
	if _, err := st.reveal(db, addr, 1); !errs.IsKind(err, errs.KindKey) {
		t.Fatalf("expected a key error reusing an earlier index, got %v", err)
	}
}

func TestLoadOrCreateOnionRestoresWatermarkAfterRestart(t *testing.T) {
	db := testutil.NewDB()
	_, pub, _ := crypto.GenerateKeyPair()
	addr := pub.Address()

	first, err := loadOrCreateOnion(db, addr, 5)
	if err != nil {
		t.Fatalf("first load: %v", err)
	}
	if _, err := first.reveal(db, addr, 3); err != nil {
		t.Fatalf("reveal 3: %v", err)
	}

	restarted, err := loadOrCreateOnion(db, addr, 5)
	if err != nil {
		t.Fatalf("reload after restart: %v", err)
	}
	if restarted.nextIdx != 4 {
		t.Fatalf("expected restart to restore watermark 4, got %d", restarted.nextIdx)
	}
	if _, err := restarted.reveal(db, addr, 3); !errs.IsKind(err, errs.KindKey) {
		t.Fatalf("expected restart-restored watermark to refuse index 3, got %v", err)
	}
}
