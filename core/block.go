// Package core defines the chain's data model (Block, Header, Transaction,
// Account, ValidatorSet) and the deterministic wire encoding they share.
// These types carry no storage or consensus logic of their own — that lives
// in chain, bft, and processor, which operate on values of these types.
package core

import (
	"fmt"

	"github.com/soliduschain/node/crypto"
)

// BlockAsset is the opaque-to-transport, fixed-to-consensus header payload
// carrying the BFT Finality Manager's declared votes.
type BlockAsset struct {
	MaxHeightPreviouslyForged uint64
	MaxHeightPrevoted         uint64
}

// Header is a block's fixed-size envelope. Height is strictly increasing
// from 0; PreviousBlockID is the zero Hash only for genesis.
type Header struct {
	Version            uint32
	Height             uint64
	Timestamp          uint32
	PreviousBlockID    crypto.Hash
	GeneratorPublicKey crypto.PubKey
	TransactionRoot    crypto.Hash
	Signature          crypto.Signature
	Asset              BlockAsset
}

// SigningBytes encodes every header field except Signature, in canonical tag
// order — the bytes the generator signs and verifiers re-derive.
func (h Header) SigningBytes() []byte {
	enc := crypto.NewEncoder(160)
	enc.Fixed32(h.Version)
	enc.Fixed64(h.Height)
	enc.Fixed32(h.Timestamp)
	enc.Bytes32(h.PreviousBlockID)
	enc.Bytes32(h.GeneratorPublicKey)
	enc.Bytes32(h.TransactionRoot)
	enc.Fixed64(h.Asset.MaxHeightPreviouslyForged)
	enc.Fixed64(h.Asset.MaxHeightPrevoted)
	return enc.Bytes()
}

// Bytes encodes the full header including its signature — the bytes hashed
// to form the block id.
func (h Header) Bytes() []byte {
	enc := crypto.NewEncoder(224)
	enc.Raw(h.SigningBytes())
	enc.Bytes64(h.Signature)
	return enc.Bytes()
}

// ID is the 32-byte hash of the fully encoded header.
func (h Header) ID() crypto.Hash {
	return crypto.Hash256(h.Bytes())
}

// Sign populates Signature over SigningBytes using priv, and returns the
// resulting header id.
func (h *Header) Sign(priv crypto.PrivKey) (crypto.Hash, error) {
	sig, err := crypto.Sign(priv, h.SigningBytes())
	if err != nil {
		return crypto.Hash{}, fmt.Errorf("core: sign header: %w", err)
	}
	h.Signature = sig
	return h.ID(), nil
}

// VerifySignature checks Signature against GeneratorPublicKey.
func (h Header) VerifySignature() bool {
	return crypto.VerifySignature(h.GeneratorPublicKey, h.SigningBytes(), h.Signature)
}

// Block is a header plus its ordered transaction payload.
type Block struct {
	Header  Header
	Payload []*Transaction
}

// ID returns the block's header id.
func (b *Block) ID() crypto.Hash { return b.Header.ID() }

// ComputeTransactionRoot hashes the ordered transaction ids into a single
// root: a length-prefixed concatenation of ids, hashed once. Empty payloads
// hash a fixed sentinel so an empty block still has a well-defined root.
func ComputeTransactionRoot(txs []*Transaction) crypto.Hash {
	if len(txs) == 0 {
		return crypto.Hash256([]byte("empty-transaction-root"))
	}
	enc := crypto.NewEncoder(32 * len(txs))
	for _, tx := range txs {
		id := tx.ID()
		enc.LengthPrefixed(id[:])
	}
	return crypto.Hash256(enc.Bytes())
}

// VerifyIntegrity recomputes the transaction root from Payload and compares
// it against the header's declared root.
func (b *Block) VerifyIntegrity() bool {
	return ComputeTransactionRoot(b.Payload) == b.Header.TransactionRoot
}

// NewBlock builds an unsigned block with its transaction root populated from
// txs; the caller signs the header (via Header.Sign) once Asset is set.
func NewBlock(height uint64, timestamp uint32, previousBlockID crypto.Hash, generator crypto.PubKey, asset BlockAsset, txs []*Transaction) *Block {
	return &Block{
		Header: Header{
			Version:            1,
			Height:             height,
			Timestamp:          timestamp,
			PreviousBlockID:    previousBlockID,
			GeneratorPublicKey: generator,
			TransactionRoot:    ComputeTransactionRoot(txs),
			Asset:              asset,
		},
		Payload: txs,
	}
}
