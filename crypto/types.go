// Package crypto holds the fixed-size identifier/key types used across the
// node (block ids, addresses, public keys, signatures), the deterministic
// wire codec built on top of them, and the cryptographic primitives
// (hashing, ed25519 signing, hash-onion chains) the rest of the module
// depends on.
package crypto

import (
	"encoding/base64"
	"encoding/hex"
	"errors"
)

// Hash is a 32-byte digest: block ids and transaction ids alike.
type Hash [32]byte

// Address is the 20-byte account identifier derived from a public key.
type Address [20]byte

// PubKey is a 32-byte ed25519 public key.
type PubKey [32]byte

// Signature is a 64-byte ed25519 signature.
type Signature [64]byte

var (
	ErrBadLength = errors.New("crypto: wrong byte length")
)

func (h Hash) Bytes() []byte    { return h[:] }
func (h Hash) Hex() string      { return hex.EncodeToString(h[:]) }
func (h Hash) String() string   { return h.Hex() }
func (h Hash) IsZero() bool     { return h == Hash{} }
func (h Hash) Base64() string   { return base64.StdEncoding.EncodeToString(h[:]) }

func (a Address) Bytes() []byte  { return a[:] }
func (a Address) Hex() string    { return hex.EncodeToString(a[:]) }
func (a Address) String() string { return a.Hex() }
func (a Address) IsZero() bool   { return a == Address{} }
func (a Address) Base64() string { return base64.StdEncoding.EncodeToString(a[:]) }

func (p PubKey) Bytes() []byte  { return p[:] }
func (p PubKey) Hex() string    { return hex.EncodeToString(p[:]) }
func (p PubKey) String() string { return p.Hex() }
func (p PubKey) IsZero() bool   { return p == PubKey{} }

func (s Signature) Bytes() []byte  { return s[:] }
func (s Signature) Hex() string    { return hex.EncodeToString(s[:]) }
func (s Signature) String() string { return s.Hex() }
func (s Signature) IsZero() bool   { return s == Signature{} }

// HashFromBytes copies src into a Hash, requiring an exact 32-byte length.
func HashFromBytes(src []byte) (Hash, error) {
	var h Hash
	if len(src) != len(h) {
		return h, ErrBadLength
	}
	copy(h[:], src)
	return h, nil
}

// AddressFromBytes copies src into an Address, requiring an exact 20-byte length.
func AddressFromBytes(src []byte) (Address, error) {
	var a Address
	if len(src) != len(a) {
		return a, ErrBadLength
	}
	copy(a[:], src)
	return a, nil
}

// PubKeyFromBytes copies src into a PubKey, requiring an exact 32-byte length.
func PubKeyFromBytes(src []byte) (PubKey, error) {
	var p PubKey
	if len(src) != len(p) {
		return p, ErrBadLength
	}
	copy(p[:], src)
	return p, nil
}

// SignatureFromBytes copies src into a Signature, requiring an exact 64-byte length.
func SignatureFromBytes(src []byte) (Signature, error) {
	var s Signature
	if len(src) != len(s) {
		return s, ErrBadLength
	}
	copy(s[:], src)
	return s, nil
}

// MarshalJSON/UnmarshalJSON render these fixed-size types as hex strings in
// JSON documents (local storage records, config files), rather than as
// arrays of small integers. MarshalText/UnmarshalText back them so the same
// types also work as map keys (encoding/json only consults TextMarshaler for
// non-string map key kinds, not MarshalJSON) — session and market records
// key their stake/reward maps by Address for exactly this reason.

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.Hex()), nil }
func (h *Hash) UnmarshalText(b []byte) error {
	v, err := HashFromHex(string(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

func (h Hash) MarshalJSON() ([]byte, error) { return []byte(`"` + h.Hex() + `"`), nil }
func (h *Hash) UnmarshalJSON(b []byte) error {
	v, err := HashFromHex(trimQuotes(b))
	if err != nil {
		return err
	}
	*h = v
	return nil
}

func (a Address) MarshalText() ([]byte, error) { return []byte(a.Hex()), nil }
func (a *Address) UnmarshalText(b []byte) error {
	v, err := AddressFromHex(string(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (a Address) MarshalJSON() ([]byte, error) { return []byte(`"` + a.Hex() + `"`), nil }
func (a *Address) UnmarshalJSON(b []byte) error {
	v, err := AddressFromHex(trimQuotes(b))
	if err != nil {
		return err
	}
	*a = v
	return nil
}

func (p PubKey) MarshalText() ([]byte, error) { return []byte(p.Hex()), nil }
func (p *PubKey) UnmarshalText(b []byte) error {
	v, err := PubKeyFromHex(string(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (p PubKey) MarshalJSON() ([]byte, error) { return []byte(`"` + p.Hex() + `"`), nil }
func (p *PubKey) UnmarshalJSON(b []byte) error {
	v, err := PubKeyFromHex(trimQuotes(b))
	if err != nil {
		return err
	}
	*p = v
	return nil
}

func (s Signature) MarshalText() ([]byte, error) { return []byte(s.Hex()), nil }
func (s *Signature) UnmarshalText(b []byte) error {
	b2, err := hex.DecodeString(string(b))
	if err != nil {
		return err
	}
	v, err := SignatureFromBytes(b2)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func (s Signature) MarshalJSON() ([]byte, error) { return []byte(`"` + s.Hex() + `"`), nil }
func (s *Signature) UnmarshalJSON(b []byte) error {
	b2, err := hex.DecodeString(trimQuotes(b))
	if err != nil {
		return err
	}
	v, err := SignatureFromBytes(b2)
	if err != nil {
		return err
	}
	*s = v
	return nil
}

func trimQuotes(b []byte) string {
	if len(b) >= 2 && b[0] == '"' && b[len(b)-1] == '"' {
		return string(b[1 : len(b)-1])
	}
	return string(b)
}

// HashFromHex, AddressFromHex, PubKeyFromHex parse the hex encodings used in
// config files, logs and the operator RPC surface, which parses and returns
// ids in this same hex form, not base64.
func HashFromHex(s string) (Hash, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		var z Hash
		return z, err
	}
	return HashFromBytes(b)
}

func AddressFromHex(s string) (Address, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		var z Address
		return z, err
	}
	return AddressFromBytes(b)
}

func PubKeyFromHex(s string) (PubKey, error) {
	b, err := hex.DecodeString(s)
	if err != nil {
		var z PubKey
		return z, err
	}
	return PubKeyFromBytes(b)
}
