package crypto

import (
	"bytes"
	"crypto/rand"
	"errors"
	"testing"
)

func testKey(t *testing.T) []byte {
	t.Helper()
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return key
}

func TestEngine_RoundTrip(t *testing.T) {
	t.Parallel()
	e := Engine{}
	key := testKey(t)

	inputs := [][]byte{
		[]byte("hello world"),
		{},
		bytes.Repeat([]byte{0xAB}, 1<<20),
	}

	for _, plaintext := range inputs {
		blob, err := e.Encrypt(plaintext, key)
		if err != nil {
			t.Fatalf("Encrypt() error = %v", err)
		}

		got, err := e.Decrypt(blob, key)
		if err != nil {
			t.Fatalf("Decrypt() error = %v", err)
		}
		if !bytes.Equal(got, plaintext) {
			t.Errorf("round trip mismatch: got %d bytes, want %d", len(got), len(plaintext))
		}
	}
}

func TestEngine_FreshNoncePerOperation(t *testing.T) {
	t.Parallel()
	e := Engine{}
	key := testKey(t)
	plaintext := []byte("same input")

	a, err := e.Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}
	b, err := e.Encrypt(plaintext, key)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if bytes.Equal(a[:NonceSize], b[:NonceSize]) {
		t.Error("nonce was reused across encryptions")
	}
	if bytes.Equal(a, b) {
		t.Error("identical blobs for two encryptions of the same plaintext")
	}
}

func TestEngine_TamperedBlobFailsClosed(t *testing.T) {
	t.Parallel()
	e := Engine{}
	key := testKey(t)

	blob, err := e.Encrypt([]byte("sensitive content"), key)
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	// Flip one bit in every region of the blob: nonce, ciphertext, tag.
	for _, i := range []int{0, NonceSize + 1, len(blob) - 1} {
		mutated := append([]byte(nil), blob...)
		mutated[i] ^= 0x01

		if _, err := e.Decrypt(mutated, key); !errors.Is(err, ErrDecryptionFailed) {
			t.Errorf("Decrypt(mutated byte %d) error = %v, want ErrDecryptionFailed", i, err)
		}
	}
}

func TestEngine_WrongKey(t *testing.T) {
	t.Parallel()
	e := Engine{}

	blob, err := e.Encrypt([]byte("content"), testKey(t))
	if err != nil {
		t.Fatalf("Encrypt() error = %v", err)
	}

	if _, err := e.Decrypt(blob, testKey(t)); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt() with wrong key error = %v, want ErrDecryptionFailed", err)
	}
}

func TestEngine_InvalidKeySize(t *testing.T) {
	t.Parallel()
	e := Engine{}

	if _, err := e.Encrypt([]byte("x"), make([]byte, 16)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Encrypt() with short key error = %v, want ErrInvalidKey", err)
	}
	if _, err := e.Decrypt(make([]byte, 64), make([]byte, 31)); !errors.Is(err, ErrInvalidKey) {
		t.Errorf("Decrypt() with short key error = %v, want ErrInvalidKey", err)
	}
}

func TestEngine_TruncatedBlob(t *testing.T) {
	t.Parallel()
	e := Engine{}

	if _, err := e.Decrypt([]byte{0x01, 0x02}, testKey(t)); !errors.Is(err, ErrDecryptionFailed) {
		t.Errorf("Decrypt(truncated) error = %v, want ErrDecryptionFailed", err)
	}
}

func TestZeroKey(t *testing.T) {
	t.Parallel()
	key := testKey(t)
	ZeroKey(key)
	if !bytes.Equal(key, make([]byte, KeySize)) {
		t.Error("key material was not zeroed")
	}
}
