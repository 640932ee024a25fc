package crypto

import "crypto/sha256"

// Hash256 computes the SHA-256 digest used for block and transaction ids.
// Kept distinct from the Keccak-256 used by the hash-onion chain (onion.go)
// so a leaked onion preimage can never be mistaken for a block id.
func Hash256(data []byte) Hash {
	return Hash(sha256.Sum256(data))
}

// Hash256Bytes is the raw-byte form, for callers building further digests.
func Hash256Bytes(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}
