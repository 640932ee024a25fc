package crypto

import "crypto/ed25519"

// Sign produces a 64-byte ed25519 signature over data.
func Sign(priv PrivKey, data []byte) (Signature, error) {
	if len(priv) != ed25519.PrivateKeySize {
		return Signature{}, ErrBadLength
	}
	sig := ed25519.Sign(ed25519.PrivateKey(priv), data)
	return SignatureFromBytes(sig)
}

// VerifySignature reports whether sig is a valid ed25519 signature over data
// under pub.
func VerifySignature(pub PubKey, data []byte, sig Signature) bool {
	return ed25519.Verify(ed25519.PublicKey(pub[:]), data, sig[:])
}
