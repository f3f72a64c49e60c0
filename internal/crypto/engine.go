// Package crypto implements the content encryption engine and the
// plaintext integrity digest.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32
	// NonceSize is the GCM nonce length in bytes.
	NonceSize = 12
)

var (
	// ErrInvalidKey is returned when key material has the wrong length.
	ErrInvalidKey = errors.New("invalid key material")
	// ErrDecryptionFailed is returned when authentication fails or the
	// blob is malformed. No partial plaintext is ever returned.
	ErrDecryptionFailed = errors.New("decryption failed")
)

// Engine encrypts and decrypts document content with AES-256-GCM.
// Blob layout is nonce || ciphertext||tag, so a stored blob carries
// everything Decrypt needs besides the key.
type Engine struct{}

// Encrypt seals plaintext with a fresh random nonce and returns the
// complete blob. The caller owns the key and should zero it after use.
func (Engine) Encrypt(plaintext, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, NonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("generating nonce: %w", err)
	}

	// Seal appends ciphertext+tag to the nonce slice, producing the
	// final blob in one allocation.
	return gcm.Seal(nonce, nonce, plaintext, nil), nil
}

// Decrypt opens a blob produced by Encrypt. It fails closed: any tag
// mismatch or truncation yields ErrDecryptionFailed.
func (Engine) Decrypt(blob, key []byte) ([]byte, error) {
	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	if len(blob) < NonceSize+gcm.Overhead() {
		return nil, fmt.Errorf("blob too short: %w", ErrDecryptionFailed)
	}

	nonce, sealed := blob[:NonceSize], blob[NonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("opening ciphertext: %w", ErrDecryptionFailed)
	}
	return plaintext, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("key is %d bytes, want %d: %w", len(key), KeySize, ErrInvalidKey)
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("creating GCM: %w", err)
	}
	return gcm, nil
}

// ZeroKey overwrites key material in place. Callers use it to discard
// data keys as soon as an operation completes.
func ZeroKey(key []byte) {
	for i := range key {
		key[i] = 0
	}
}
