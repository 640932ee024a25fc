package slot

import (
	"testing"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
)

func TestSlotAtAndBoundaries(t *testing.T) {
	c := NewClock(1000, 10)
	if got := c.SlotAt(999); got != 0 {
		t.Fatalf("SlotAt before genesis = %d, want 0", got)
	}
	if got := c.SlotAt(1000); got != 0 {
		t.Fatalf("SlotAt(genesis) = %d, want 0", got)
	}
	if got := c.SlotAt(1015); got != 1 {
		t.Fatalf("SlotAt(1015) = %d, want 1", got)
	}
	if !c.InSlot(1005, 0) {
		t.Fatal("expected 1005 to be in slot 0")
	}
	if c.InSlot(1010, 0) {
		t.Fatal("1010 should be the start of slot 1, not inside slot 0")
	}
}

func TestRoundArithmetic(t *testing.T) {
	if RoundOf(23, 5) != 4 {
		t.Fatalf("RoundOf(23,5) = %d, want 4", RoundOf(23, 5))
	}
	if IndexInRound(23, 5) != 3 {
		t.Fatalf("IndexInRound(23,5) = %d, want 3", IndexInRound(23, 5))
	}
}

func TestForgerForSlotWraps(t *testing.T) {
	var a, b crypto.Address
	a[0] = 1
	b[0] = 2
	vs := core.NewValidatorSet([]crypto.Address{a, b})
	f0, ok := ForgerForSlot(vs, 0)
	if !ok || f0 != a {
		t.Fatalf("slot 0 forger = %x, want %x", f0, a)
	}
	f2, ok := ForgerForSlot(vs, 2)
	if !ok || f2 != a {
		t.Fatalf("slot 2 forger = %x, want %x (wrap)", f2, a)
	}
}
