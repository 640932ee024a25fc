package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const keystoreIterations = 210_000

// EncryptedBlob is the persisted shape of any password-sealed secret this
// node holds at rest: a delegate's private key or a forging onion seed.
type EncryptedBlob struct {
	Salt       []byte
	Nonce      []byte
	CipherText []byte
}

// SealWithPassword encrypts plaintext under a key derived from password via
// pbkdf2 (210,000 iterations, SHA-256) and AES-GCM, the same construction
// used to protect an operator's delegate keystore file.
func SealWithPassword(plaintext []byte, password string) (EncryptedBlob, error) {
	salt := make([]byte, 16)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return EncryptedBlob{}, fmt.Errorf("crypto: keystore salt: %w", err)
	}
	gcm, err := newGCM(password, salt)
	if err != nil {
		return EncryptedBlob{}, err
	}
	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return EncryptedBlob{}, fmt.Errorf("crypto: keystore nonce: %w", err)
	}
	return EncryptedBlob{
		Salt:       salt,
		Nonce:      nonce,
		CipherText: gcm.Seal(nil, nonce, plaintext, nil),
	}, nil
}

// OpenWithPassword reverses SealWithPassword, returning a Key error
// (wrapped by the caller) on a wrong password or corrupted blob.
func OpenWithPassword(blob EncryptedBlob, password string) ([]byte, error) {
	gcm, err := newGCM(password, blob.Salt)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, blob.Nonce, blob.CipherText, nil)
	if err != nil {
		return nil, fmt.Errorf("crypto: keystore: wrong password or corrupted blob")
	}
	return plaintext, nil
}

func newGCM(password string, salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key([]byte(password), salt, keystoreIterations, 32, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("crypto: keystore cipher: %w", err)
	}
	return cipher.NewGCM(block)
}
