package core

import "github.com/soliduschain/node/crypto"

// Vote records a stake delegation from an account to a delegate.
type Vote struct {
	DelegateAddress crypto.Address
	Amount          uint64
}

// DelegateInfo is present on accounts that have registered as a delegate
// candidate for the validator set.
type DelegateInfo struct {
	Username   string
	VoteWeight uint64
}

// Account is the base account record. Fields beyond address/balance/nonce
// are contributed by modules at boot (see SchemaRegistry); Delegate and
// Votes are carried here because the core ValidatorSet computation depends
// on them directly.
type Account struct {
	Address   crypto.Address
	Balance   uint64
	Nonce     uint64
	PublicKey crypto.PubKey
	Delegate  *DelegateInfo
	Votes     []Vote
}

// Clone returns a deep copy, used by chain.StateStore's copy-on-write
// snapshots and the undo journal.
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	if a.Delegate != nil {
		d := *a.Delegate
		out.Delegate = &d
	}
	if a.Votes != nil {
		out.Votes = make([]Vote, len(a.Votes))
		copy(out.Votes, a.Votes)
	}
	return &out
}

// NewAccount returns a zero-value account for address.
func NewAccount(address crypto.Address) *Account {
	return &Account{Address: address}
}
