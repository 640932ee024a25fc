package storage_test

import (
	"testing"

	"github.com/soliduschain/node/internal/testutil"
	"github.com/soliduschain/node/storage"
)

func TestMemDBRoundTripAndIteration(t *testing.T) {
	db := testutil.NewMemDB()
	if err := db.Set(storage.AccountKey([]byte("alice")), []byte("1")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := db.Set(storage.AccountKey([]byte("bob")), []byte("2")); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if err := db.Set(storage.ChainTipKey(), []byte("tip")); err != nil {
		t.Fatalf("Set: %v", err)
	}

	it := db.NewIterator(storage.AccountPrefix())
	defer it.Release()
	count := 0
	for it.Next() {
		count++
	}
	if count != 2 {
		t.Fatalf("expected 2 account keys, got %d", count)
	}

	if _, err := db.Get([]byte("does-not-exist")); err == nil {
		t.Fatal("expected NotFound error for missing key")
	}
}

func TestBatchAtomicity(t *testing.T) {
	db := testutil.NewMemDB()
	_ = db.Set(storage.BlockByHeightKey(1), []byte("old"))

	batch := db.NewBatch()
	batch.Set(storage.BlockByHeightKey(1), []byte("new"))
	batch.Delete(storage.BlockByHeightKey(1))
	batch.Set(storage.BlockByHeightKey(2), []byte("two"))
	if err := batch.Write(); err != nil {
		t.Fatalf("Write: %v", err)
	}

	if _, err := db.Get(storage.BlockByHeightKey(1)); err == nil {
		t.Fatal("expected height 1 to be deleted by the batch")
	}
	v, err := db.Get(storage.BlockByHeightKey(2))
	if err != nil || string(v) != "two" {
		t.Fatalf("expected height 2 = two, got %q, err=%v", v, err)
	}
}
