// Package wallet manages delegate key material at rest: importing a raw
// private key under a password and unlocking it back into memory. Signing
// is left to the caller. It never keeps a decrypted key around longer than the
// caller holds the returned crypto.PrivKey.
package wallet

import (
	"encoding/json"

	"github.com/soliduschain/node/crypto"
	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/log"
	"github.com/soliduschain/node/storage"
)

var logger = log.Component("wallet")

// Store is a password-encrypted keystore for delegate private keys,
// persisted one blob per address under storage.WalletKeystoreKey.
type Store struct {
	db storage.DB
}

// New wraps db as a keystore. No state is loaded eagerly: keys are decrypted
// on demand by Unlock and never cached.
func New(db storage.DB) *Store {
	return &Store{db: db}
}

// Import encrypts priv under password and persists it, keyed by the
// corresponding address. Overwrites any existing keystore for that address.
func (s *Store) Import(priv crypto.PrivKey, password string) (crypto.Address, error) {
	pub, err := priv.Public()
	if err != nil {
		return crypto.Address{}, errs.Key("wallet: derive public key: %v", err)
	}
	addr := pub.Address()
	blob, err := crypto.SealWithPassword(priv, password)
	if err != nil {
		return crypto.Address{}, errs.Key("wallet: seal key for %s: %v", addr, err)
	}
	raw, err := json.Marshal(blob)
	if err != nil {
		return crypto.Address{}, errs.WrapSchema(err, "wallet: encode keystore for %s", addr)
	}
	if err := s.db.Set(storage.WalletKeystoreKey(addr.Bytes()), raw); err != nil {
		return crypto.Address{}, errs.WrapStorage(err, "wallet: persist keystore for %s", addr)
	}
	logger.WithField("address", addr).Info("imported delegate keystore")
	return addr, nil
}

// Unlock decrypts the keystore for address using password. Returns a
// KindKey error on a missing keystore or a wrong password — the caller
// (typically the Forger) is expected to treat both as "forging disabled
// for this delegate" rather than fatal.
func (s *Store) Unlock(address crypto.Address, password string) (crypto.PrivKey, error) {
	raw, err := s.db.Get(storage.WalletKeystoreKey(address.Bytes()))
	if err != nil {
		return nil, errs.Key("wallet: no keystore for %s", address)
	}
	var blob crypto.EncryptedBlob
	if err := json.Unmarshal(raw, &blob); err != nil {
		return nil, errs.WrapSchema(err, "wallet: decode keystore for %s", address)
	}
	plaintext, err := crypto.OpenWithPassword(blob, password)
	if err != nil {
		return nil, errs.Key("wallet: unlock %s: %v", address, err)
	}
	return crypto.PrivKeyFromBytes(plaintext)
}

// Has reports whether a keystore is persisted for address, without
// attempting to decrypt it.
func (s *Store) Has(address crypto.Address) bool {
	_, err := s.db.Get(storage.WalletKeystoreKey(address.Bytes()))
	return err == nil
}

// List returns every address with a persisted keystore.
func (s *Store) List() []crypto.Address {
	it := s.db.NewIterator(storage.WalletKeystorePrefix())
	defer it.Release()
	var out []crypto.Address
	prefix := storage.WalletKeystorePrefix()
	for it.Next() {
		addr, err := crypto.AddressFromBytes(it.Key()[len(prefix):])
		if err != nil {
			continue
		}
		out = append(out, addr)
	}
	return out
}
