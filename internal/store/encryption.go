package store

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/hkdf"
)

// MinCredentialKeyLen is the shortest accepted credential key.
const MinCredentialKeyLen = 16

var (
	// ErrInvalidKey is returned when the credential key is too short.
	ErrInvalidKey = errors.New("invalid credential key")
	// ErrDecryptionFailed is returned when ciphertext cannot be opened.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Encryptor seals and opens values stored at rest.
type Encryptor interface {
	Encrypt(plaintext []byte) ([]byte, error)
	Decrypt(ciphertext []byte) ([]byte, error)
}

// KeyEncryptor is an Encryptor using XChaCha20-Poly1305 with a key derived
// from the credential key by HKDF-SHA256.
//
// Ciphertext layout:
//
//	[nonce (24 bytes)][sealed data + tag]
type KeyEncryptor struct {
	aead cipher.AEAD
}

var _ Encryptor = (*KeyEncryptor)(nil)

// NewKeyEncryptor derives the data key from credentialKey.
func NewKeyEncryptor(credentialKey string) (*KeyEncryptor, error) {
	if len(credentialKey) < MinCredentialKeyLen {
		return nil, fmt.Errorf("%w: must be at least %d characters", ErrInvalidKey, MinCredentialKeyLen)
	}

	key := make([]byte, chacha20poly1305.KeySize)
	kdf := hkdf.New(sha256.New, []byte(credentialKey), nil, []byte("mcpgateway connection-config v1"))
	if _, err := io.ReadFull(kdf, key); err != nil {
		return nil, fmt.Errorf("failed to derive key: %w", err)
	}

	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	return &KeyEncryptor{aead: aead}, nil
}

func (e *KeyEncryptor) Encrypt(plaintext []byte) ([]byte, error) {
	nonce := make([]byte, e.aead.NonceSize(), e.aead.NonceSize()+len(plaintext)+e.aead.Overhead())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("failed to generate nonce: %w", err)
	}
	return e.aead.Seal(nonce, nonce, plaintext, nil), nil
}

func (e *KeyEncryptor) Decrypt(ciphertext []byte) ([]byte, error) {
	n := e.aead.NonceSize()
	if len(ciphertext) < n+e.aead.Overhead() {
		return nil, fmt.Errorf("%w: ciphertext too short", ErrDecryptionFailed)
	}
	plaintext, err := e.aead.Open(nil, ciphertext[:n], ciphertext[n:], nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDecryptionFailed, err)
	}
	return plaintext, nil
}
