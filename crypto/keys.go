package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"fmt"
)

// PrivKey is an ed25519 private key (64 bytes: seed || public key).
type PrivKey []byte

// GenerateKeyPair produces a fresh ed25519 keypair.
func GenerateKeyPair() (PrivKey, PubKey, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, PubKey{}, fmt.Errorf("crypto: generate keypair: %w", err)
	}
	pk, err := PubKeyFromBytes(pub)
	if err != nil {
		return nil, PubKey{}, err
	}
	return PrivKey(priv), pk, nil
}

// Public derives the public key half of priv.
func (priv PrivKey) Public() (PubKey, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return PubKey{}, ErrBadLength
	}
	pub := ed25519.PrivateKey(priv).Public().(ed25519.PublicKey)
	return PubKeyFromBytes(pub)
}

// Address derives the 20-byte account address from a public key: the first
// 20 bytes of its SHA-256 digest.
func (p PubKey) Address() Address {
	sum := Hash256Bytes(p[:])
	var a Address
	copy(a[:], sum[:len(a)])
	return a
}

// PrivKeyFromBytes validates and wraps an ed25519 private key.
func PrivKeyFromBytes(b []byte) (PrivKey, error) {
	if len(b) != ed25519.PrivateKeySize {
		return nil, ErrBadLength
	}
	out := make(PrivKey, len(b))
	copy(out, b)
	return out, nil
}
