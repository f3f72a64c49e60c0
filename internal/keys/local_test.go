package keys

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"docvault/internal/crypto"
)

func TestLocalProvider_Setup(t *testing.T) {
	dir := t.TempDir()
	p := NewLocalProvider(filepath.Join(dir, "keys"))

	if p.IsConfigured() {
		t.Error("IsConfigured() = true before Setup")
	}

	if err := p.Setup("correct horse battery staple"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if !p.IsConfigured() {
		t.Error("IsConfigured() = false after Setup")
	}

	// Recipient is plaintext, identity is not
	pubData, err := os.ReadFile(p.publicKeyPath)
	if err != nil {
		t.Fatalf("reading public key: %v", err)
	}
	if !bytes.HasPrefix(pubData, []byte("age1")) {
		t.Errorf("public key = %q, want age recipient", pubData)
	}

	privData, err := os.ReadFile(p.privateKeyPath)
	if err != nil {
		t.Fatalf("reading private key: %v", err)
	}
	if bytes.Contains(privData, []byte("AGE-SECRET-KEY")) {
		t.Error("private key stored in plaintext")
	}
}

func TestLocalProvider_KeyRoundTrip(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider(t.TempDir())

	if err := p.Setup("passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	keyID, key, err := p.GetOrCreateKey(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateKey() error = %v", err)
	}
	if len(key) != crypto.KeySize {
		t.Fatalf("len(key) = %d, want %d", len(key), crypto.KeySize)
	}
	issued := append([]byte(nil), key...)

	// The wrapped key on disk must not contain the plaintext key
	dekData, err := os.ReadFile(p.dekPath(keyID))
	if err != nil {
		t.Fatalf("reading wrapped key: %v", err)
	}
	if bytes.Contains(dekData, issued) {
		t.Error("plaintext data key found in wrapped key file")
	}

	if err := p.Unlock("passphrase"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	got, err := p.GetKey(ctx, keyID)
	if err != nil {
		t.Fatalf("GetKey() error = %v", err)
	}
	if !bytes.Equal(got, issued) {
		t.Error("GetKey() returned different key material")
	}
}

func TestLocalProvider_GetKey_Locked(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider(t.TempDir())

	if err := p.Setup("passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	keyID, _, err := p.GetOrCreateKey(ctx)
	if err != nil {
		t.Fatalf("GetOrCreateKey() error = %v", err)
	}

	if _, err := p.GetKey(ctx, keyID); err == nil {
		t.Error("GetKey() expected error while keystore is locked")
	}
}

func TestLocalProvider_Unlock_WrongPassphrase(t *testing.T) {
	p := NewLocalProvider(t.TempDir())

	if err := p.Setup("right"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}

	if err := p.Unlock("wrong"); err == nil {
		t.Error("Unlock() expected error for wrong passphrase")
	}
}

func TestLocalProvider_GetKey_NotFound(t *testing.T) {
	ctx := context.Background()
	p := NewLocalProvider(t.TempDir())

	if err := p.Setup("passphrase"); err != nil {
		t.Fatalf("Setup() error = %v", err)
	}
	if err := p.Unlock("passphrase"); err != nil {
		t.Fatalf("Unlock() error = %v", err)
	}

	if _, err := p.GetKey(ctx, "nonexistent"); err == nil {
		t.Error("GetKey() expected error for unknown key id")
	}
}

func TestLocalProvider_GetOrCreateKey_NotConfigured(t *testing.T) {
	p := NewLocalProvider(t.TempDir())

	if _, _, err := p.GetOrCreateKey(context.Background()); err == nil {
		t.Error("GetOrCreateKey() expected error before Setup")
	}
}
