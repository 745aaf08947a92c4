package accesstoken

import (
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
)

// Encryptor encrypts and decrypts access token secrets at rest with
// ChaCha20-Poly1305, keyed by a 32-byte key derived from the configured
// ACCESS_TOKEN_AES_KEY value.
type Encryptor struct {
	aead []byte // derived key, fed to chacha20poly1305.New lazily per call
}

// NewEncryptor derives a 32-byte AEAD key from keyMaterial via SHA-256, so
// operators can configure any passphrase length.
func NewEncryptor(keyMaterial string) *Encryptor {
	key := sha256.Sum256([]byte(keyMaterial))
	return &Encryptor{aead: key[:]}
}

// Seal encrypts plaintext, returning nonce||ciphertext.
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(e.aead)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD cipher: %w", err)
	}

	nonce := make([]byte, aead.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	return aead.Seal(nonce, nonce, plaintext, nil), nil
}

// Open decrypts a nonce||ciphertext value produced by Seal.
func (e *Encryptor) Open(sealed []byte) ([]byte, error) {
	aead, err := chacha20poly1305.New(e.aead)
	if err != nil {
		return nil, fmt.Errorf("creating AEAD cipher: %w", err)
	}

	if len(sealed) < aead.NonceSize() {
		return nil, fmt.Errorf("sealed value too short")
	}
	nonce, ciphertext := sealed[:aead.NonceSize()], sealed[aead.NonceSize():]

	plaintext, err := aead.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decrypting: %w", err)
	}
	return plaintext, nil
}
