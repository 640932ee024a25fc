package forger

import (
	"encoding/json"

	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/storage"
)

// onionState tracks one delegate's hash-onion chain plus the restart-safe
// watermark: one past the highest layer index already consumed.
type onionState struct {
	onion    *crypto.Onion
	nextIdx  int // the reveal index Tick will use next
}

type persistedOnion struct {
	Seed   [32]byte `json:"seed"`
	Length int      `json:"length"`
}

// loadOrCreateOnion restores a delegate's onion seed from db, or mints a
// fresh one if none exists yet. The seed is stored as plain JSON; it is not
// encrypted. The consumed-index watermark is
// read from storage.ForgerUsedIndexKey so forging below it is refused even
// across a restart.
func loadOrCreateOnion(db storage.DB, address crypto.Address, length int) (*onionState, error) {
	if length <= 0 {
		return nil, errs.Validation("forger: config.OnionLength must be positive")
	}

	onion, err := loadOnion(db, address, length)
	if err != nil {
		if !errs.IsKind(err, errs.KindNotFound) {
			return nil, err
		}
		onion, err = crypto.GenerateOnion(length)
		if err != nil {
			return nil, errs.Key("forger: generate onion for %s: %v", address, err)
		}
		if err := saveOnion(db, address, onion); err != nil {
			return nil, err
		}
	}

	used, err := loadUsedIndex(db, address)
	if err != nil {
		return nil, err
	}
	return &onionState{onion: onion, nextIdx: used}, nil
}

func loadOnion(db storage.DB, address crypto.Address, length int) (*crypto.Onion, error) {
	raw, err := db.Get(storage.ForgerOnionKey(address.Bytes()))
	if err != nil {
		return nil, err
	}
	var p persistedOnion
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, errs.WrapSchema(err, "forger: decode onion for %s", address)
	}
	if p.Length != length {
		return nil, errs.Key("forger: configured onion length %d does not match persisted length %d for %s", length, p.Length, address)
	}
	return crypto.OnionFromSeed(p.Seed, p.Length)
}

func saveOnion(db storage.DB, address crypto.Address, onion *crypto.Onion) error {
	raw, err := json.Marshal(persistedOnion{Seed: onion.Seed(), Length: onion.Length()})
	if err != nil {
		return errs.WrapSchema(err, "forger: encode onion for %s", address)
	}
	if err := db.Set(storage.ForgerOnionKey(address.Bytes()), raw); err != nil {
		return errs.WrapStorage(err, "forger: persist onion for %s", address)
	}
	return nil
}

func loadUsedIndex(db storage.DB, address crypto.Address) (int, error) {
	raw, err := db.Get(storage.ForgerUsedIndexKey(address.Bytes()))
	if err != nil {
		if errs.IsKind(err, errs.KindNotFound) {
			return 0, nil
		}
		return 0, err
	}
	var used int
	if err := json.Unmarshal(raw, &used); err != nil {
		return 0, errs.WrapSchema(err, "forger: decode used onion index for %s", address)
	}
	return used, nil
}

// reveal returns the preimage for reveal index idx and, on success,
// persists idx+1 as the new watermark before the caller signs anything —
// the spec's "recording the used index persistently before signing".
// Any index below the recorded watermark (that is, at or below the last
// index used) is refused.
func (o *onionState) reveal(db storage.DB, address crypto.Address, idx int) ([32]byte, error) {
	if idx < o.nextIdx {
		return [32]byte{}, errs.Key("forger: refusing to reuse onion index %d (minimum is %d) for %s", idx, o.nextIdx, address)
	}
	layer, err := o.onion.LayerForIndex(idx)
	if err != nil {
		return [32]byte{}, errs.Key("forger: onion exhausted for %s: %v", address, err)
	}
	raw, err := json.Marshal(idx + 1)
	if err != nil {
		return [32]byte{}, errs.WrapSchema(err, "forger: encode used onion index for %s", address)
	}
	if err := db.Set(storage.ForgerUsedIndexKey(address.Bytes()), raw); err != nil {
		return [32]byte{}, errs.WrapStorage(err, "forger: persist used onion index for %s", address)
	}
	o.nextIdx = idx + 1
	return layer, nil
}
