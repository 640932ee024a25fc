package core

import (
	"bytes"
	"sort"

	"github.com/soliduschain/node/crypto"
)

// ValidatorSet is the ordered list of delegate addresses authorized to forge
// during one round. It rotates every N blocks (N == len(delegates)) and is
// recomputed deterministically from account votes at each round boundary.
type ValidatorSet struct {
	delegates []crypto.Address
}

// NewValidatorSet wraps an already-ordered delegate list.
func NewValidatorSet(delegates []crypto.Address) ValidatorSet {
	out := make([]crypto.Address, len(delegates))
	copy(out, delegates)
	return ValidatorSet{delegates: out}
}

// Len is the round length N.
func (vs ValidatorSet) Len() int { return len(vs.delegates) }

// At returns the i'th delegate in rotation order.
func (vs ValidatorSet) At(i int) crypto.Address { return vs.delegates[i] }

// All returns a copy of the ordered delegate list.
func (vs ValidatorSet) All() []crypto.Address {
	out := make([]crypto.Address, len(vs.delegates))
	copy(out, vs.delegates)
	return out
}

// ForgerForSlot returns the delegate assigned to slot, wrapping modulo the
// round length.
func (vs ValidatorSet) ForgerForSlot(slot uint64) crypto.Address {
	return vs.delegates[int(slot%uint64(len(vs.delegates)))]
}

// IndexOf returns the rotation index of addr, or -1 if addr is not a member.
func (vs ValidatorSet) IndexOf(addr crypto.Address) int {
	for i, d := range vs.delegates {
		if d == addr {
			return i
		}
	}
	return -1
}

// ComputeValidatorSet derives the round's validator set deterministically
// from accounts: delegates are ranked by (VoteWeight desc, Address asc) and
// the top size are taken. Ties on vote weight are broken by address so
// every node computes the identical rotation.
func ComputeValidatorSet(accounts []*Account, size int) ValidatorSet {
	candidates := make([]*Account, 0, len(accounts))
	for _, a := range accounts {
		if a.Delegate != nil {
			candidates = append(candidates, a)
		}
	}
	sort.Slice(candidates, func(i, j int) bool {
		wi, wj := candidates[i].Delegate.VoteWeight, candidates[j].Delegate.VoteWeight
		if wi != wj {
			return wi > wj
		}
		return bytes.Compare(candidates[i].Address[:], candidates[j].Address[:]) < 0
	})
	if len(candidates) > size {
		candidates = candidates[:size]
	}
	addrs := make([]crypto.Address, len(candidates))
	for i, a := range candidates {
		addrs[i] = a.Address
	}
	return NewValidatorSet(addrs)
}
