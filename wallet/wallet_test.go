package wallet

import (
	"testing"

	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/internal/testutil"
)

func TestImportAndUnlockRoundTrips(t *testing.T) {
	s := New(testutil.NewDB())
	priv, pub, err := crypto.GenerateKeyPair()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	addr, err := s.Import(priv, "correct horse")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if addr != pub.Address() {
		t.Fatalf("expected address %s, got %s", pub.Address(), addr)
	}

	unlocked, err := s.Unlock(addr, "correct horse")
	if err != nil {
		t.Fatalf("unlock: %v", err)
	}
	unlockedPub, err := unlocked.Public()
	if err != nil {
		t.Fatalf("derive public from unlocked: %v", err)
	}
	if unlockedPub != pub {
		t.Fatal("unlocked key does not match the imported key")
	}
}

func TestUnlockRejectsWrongPassword(t *testing.T) {
	s := New(testutil.NewDB())
	priv, _, _ := crypto.GenerateKeyPair()
	addr, err := s.Import(priv, "correct horse")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := s.Unlock(addr, "wrong password"); !errs.IsKind(err, errs.KindKey) {
		t.Fatalf("expected KindKey error for wrong password, got %v", err)
	}
}

func TestUnlockUnknownAddressFails(t *testing.T) {
	s := New(testutil.NewDB())
	_, pub, _ := crypto.GenerateKeyPair()
	if _, err := s.Unlock(pub.Address(), "anything"); !errs.IsKind(err, errs.KindKey) {
		t.Fatalf("expected KindKey error for unknown address, got %v", err)
	}
}

func TestListReturnsImportedAddresses(t *testing.T) {
	s := New(testutil.NewDB())
	priv1, pub1, _ := crypto.GenerateKeyPair()
	priv2, pub2, _ := crypto.GenerateKeyPair()
	if _, err := s.Import(priv1, "pw1"); err != nil {
		t.Fatalf("import 1: %v", err)
	}
	if _, err := s.Import(priv2, "pw2"); err != nil {
		t.Fatalf("import 2: %v", err)
	}

	got := s.List()
	if len(got) != 2 {
		t.Fatalf("expected 2 addresses, got %d", len(got))
	}
	seen := map[crypto.Address]bool{}
	for _, a := range got {
		seen[a] = true
	}
	if !seen[pub1.Address()] || !seen[pub2.Address()] {
		t.Fatal("expected both imported addresses to be listed")
	}
}
