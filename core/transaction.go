package core

import (
	"fmt"

	"github.com/soliduschain/node/crypto"
)

// Transaction is the fixed envelope every application module's asset rides
// inside: (moduleID, assetID, nonce, fee, senderPublicKey, signatures[],
// asset). Asset itself is opaque at this layer — it is interpreted by the
// module registered for (ModuleID, AssetID); see vm.Module.
type Transaction struct {
	ModuleID        uint32
	AssetID         uint32
	Nonce           uint64
	Fee             uint64
	SenderPublicKey crypto.PubKey
	Signatures      []crypto.Signature
	Asset           []byte
}

// SigningBytes encodes every field except Signatures, in canonical tag
// order.
func (tx *Transaction) SigningBytes() []byte {
	enc := crypto.NewEncoder(96 + len(tx.Asset))
	enc.Fixed32(tx.ModuleID)
	enc.Fixed32(tx.AssetID)
	enc.Fixed64(tx.Nonce)
	enc.Fixed64(tx.Fee)
	enc.Bytes32(tx.SenderPublicKey)
	enc.LengthPrefixed(tx.Asset)
	return enc.Bytes()
}

// Bytes encodes the full transaction including its signature list.
func (tx *Transaction) Bytes() []byte {
	enc := crypto.NewEncoder(160 + len(tx.Asset))
	enc.Raw(tx.SigningBytes())
	enc.Uvarint(uint64(len(tx.Signatures)))
	for _, sig := range tx.Signatures {
		enc.Bytes64(sig)
	}
	return enc.Bytes()
}

// ID is the 32-byte hash of the fully encoded, signed transaction.
func (tx *Transaction) ID() crypto.Hash {
	return crypto.Hash256(tx.Bytes())
}

// Sign appends a signature over SigningBytes using priv. Multisig accounts
// accumulate additional signatures by calling Sign once per cosigner.
func (tx *Transaction) Sign(priv crypto.PrivKey) error {
	sig, err := crypto.Sign(priv, tx.SigningBytes())
	if err != nil {
		return fmt.Errorf("core: sign transaction: %w", err)
	}
	tx.Signatures = append(tx.Signatures, sig)
	return nil
}

// VerifyPrimarySignature checks the first signature against SenderPublicKey
// — the single-signer case. Multisig accounts are verified by the owning
// module against the account's registered cosigner keys, since core has no
// account lookup.
func (tx *Transaction) VerifyPrimarySignature() bool {
	if len(tx.Signatures) == 0 {
		return false
	}
	return crypto.VerifySignature(tx.SenderPublicKey, tx.SigningBytes(), tx.Signatures[0])
}

// FeePerByte is the fee policy's rate term: Fee divided by the encoded
// transaction's byte size.
func (tx *Transaction) FeePerByte() float64 {
	size := len(tx.Bytes())
	if size == 0 {
		return 0
	}
	return float64(tx.Fee) / float64(size)
}

// Size returns the encoded byte length, used against maxPayloadLength and
// fee-per-byte policy.
func (tx *Transaction) Size() int {
	return len(tx.Bytes())
}
