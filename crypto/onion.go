package crypto

import (
	"crypto/rand"
	"fmt"

	"golang.org/x/crypto/sha3"
)

// Onion is a precomputed reverse hash chain h_0, h_1=H(h_0), ..., h_L used
// once per forged block to prove the forger did not reuse a layer (and
// therefore did not double-forge after a restart). Keccak-256 is used here
// deliberately instead of Hash256's SHA-256, so an onion preimage can never
// be confused with a block or transaction id.
type Onion struct {
	layers [][32]byte // layers[0] is the seed h_0, layers[len-1] is h_L (the public checkpoint)
}

// GenerateOnion builds a fresh chain of length+1 layers (h_0..h_length) from
// random seed material.
func GenerateOnion(length int) (*Onion, error) {
	if length <= 0 {
		return nil, fmt.Errorf("crypto: onion length must be positive, got %d", length)
	}
	seed := make([]byte, 32)
	if _, err := rand.Read(seed); err != nil {
		return nil, fmt.Errorf("crypto: onion seed: %w", err)
	}
	layers := make([][32]byte, length+1)
	copy(layers[0][:], seed)
	for i := 1; i < len(layers); i++ {
		layers[i] = keccak256(layers[i-1][:])
	}
	return &Onion{layers: layers}, nil
}

// OnionFromSeed rebuilds the chain deterministically from a previously
// generated seed, so a persisted (encrypted) seed is enough to restore an
// onion across a restart without storing every layer.
func OnionFromSeed(seed [32]byte, length int) (*Onion, error) {
	if length <= 0 {
		return nil, fmt.Errorf("crypto: onion length must be positive, got %d", length)
	}
	layers := make([][32]byte, length+1)
	layers[0] = seed
	for i := 1; i < len(layers); i++ {
		layers[i] = keccak256(layers[i-1][:])
	}
	return &Onion{layers: layers}, nil
}

// Seed returns h_0, the secret a keystore must encrypt to persist this
// onion; every other layer can be rederived from it via OnionFromSeed.
func (o *Onion) Seed() [32]byte {
	return o.layers[0]
}

func keccak256(data []byte) [32]byte {
	var out [32]byte
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	h.Sum(out[:0])
	return out
}

// Checkpoint returns h_L, the outermost layer a node publishes so peers can
// verify future reveals without trusting the forger.
func (o *Onion) Checkpoint() [32]byte {
	return o.layers[len(o.layers)-1]
}

// Length returns L, the number of reveal steps available (layers 0..L-1 can
// each be revealed once, proving knowledge of the preimage of the layer
// above it).
func (o *Onion) Length() int {
	return len(o.layers) - 1
}

// LayerForIndex returns the preimage to reveal for the given 0-based reveal
// index (index 0 reveals layers[L-1], the preimage of the checkpoint;
// index L-1 reveals layers[0], the seed). Forging at height h uses
// LayerForIndex(round(h)) per spec: "pre-image h_{L-round(h)}".
func (o *Onion) LayerForIndex(index int) ([32]byte, error) {
	L := o.Length()
	if index < 0 || index >= L {
		return [32]byte{}, fmt.Errorf("crypto: onion: index %d out of range [0,%d)", index, L)
	}
	return o.layers[L-1-index], nil
}

// VerifyReveal checks that preimage hashes forward to expected in exactly
// one Keccak-256 step — the check a peer runs on a freshly forged block's
// revealed onion layer against the previously recorded layer (or the
// published checkpoint, for the first reveal).
func VerifyReveal(preimage, expected [32]byte) bool {
	return keccak256(preimage[:]) == expected
}
