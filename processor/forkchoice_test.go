package processor

import (
	"testing"

	"github.com/soliduschain/node/core"
	"github.com/soliduschain/node/crypto"
)

func header(height uint64, prev crypto.Hash, prevoted uint64) *core.Block {
	return core.NewBlock(height, uint32(height*10), prev, crypto.PubKey{1}, core.BlockAsset{MaxHeightPrevoted: prevoted}, nil)
}

func TestForkChoiceAppendsWhenLinksToTip(t *testing.T) {
	p := &Processor{}
	tip := header(5, crypto.Hash{0xAA}, 3)
	candidate := header(6, tip.ID(), 4)
	if got := p.forkChoice(candidate, tip, 0); got != decisionAppend {
		t.Fatalf("expected append, got %v", got)
	}
}

func TestForkChoiceReplacesOnHigherPrevoteTiebreak(t *testing.T) {
	p := &Processor{}
	parent := crypto.Hash{0x01}
	tip := header(5, parent, 2)
	candidate := header(5, parent, 9)
	if got := p.forkChoice(candidate, tip, 0); got != decisionReplaceTip {
		t.Fatalf("expected replace, got %v", got)
	}
}

func TestForkChoiceRequestsBlockSyncWhenFarAhead(t *testing.T) {
	p := &Processor{}
	tip := header(5, crypto.Hash{0x01}, 2)
	candidate := header(9, crypto.Hash{0x02}, 2)
	if got := p.forkChoice(candidate, tip, 0); got != decisionSyncBlockSync {
		t.Fatalf("expected block-sync, got %v", got)
	}
}

func TestForkChoiceDiscardsBelowFinalized(t *testing.T) {
	p := &Processor{}
	tip := header(10, crypto.Hash{0x01}, 2)
	candidate := header(3, crypto.Hash{0x02}, 2)
	if got := p.forkChoice(candidate, tip, 5); got != decisionDiscardIrrecoverable {
		t.Fatalf("expected irrecoverable discard, got %v", got)
	}
}

func TestTiebreakPrefersLowerIDOnEqualPrevote(t *testing.T) {
	a := header(5, crypto.Hash{0x01}, 3)
	b := header(5, crypto.Hash{0x01}, 3)
	aID, bID := a.ID(), b.ID()
	winner, loser := a, b
	if string(bID[:]) < string(aID[:]) {
		winner, loser = b, a
	}
	if !tiebreakWins(winner, loser) {
		t.Fatal("expected lexicographically-lower id to win the tiebreak")
	}
	if tiebreakWins(loser, winner) {
		t.Fatal("expected higher id to lose the tiebreak")
	}
}
