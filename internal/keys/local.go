package keys

import (
	"bytes"
	"context"
	"crypto/rand"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"filippo.io/age"
	"github.com/google/uuid"

	"docvault/internal/crypto"
	"docvault/internal/docs"
)

// LocalProvider implements the KeyProvider interface with envelope
// encryption backed by filippo.io/age X25519 keys. Each document gets a
// fresh random data key, wrapped to the keystore's recipient and stored
// as a file under the key directory:
//
//	<keyDir>/
//	  docvault.pub    (recipient, plaintext)
//	  docvault.key    (identity, passphrase-encrypted with scrypt)
//	  dek/
//	    <keyID>.dek   (wrapped data keys)
//
// Wrapping only needs the recipient, so uploads work without the
// passphrase. Unwrapping requires Unlock to load the identity.
type LocalProvider struct {
	keyDir         string
	publicKeyPath  string
	privateKeyPath string
	dekDir         string

	mu       sync.RWMutex
	identity age.Identity // nil until Unlock
}

// NewLocalProvider creates a local keystore rooted at keyDir.
func NewLocalProvider(keyDir string) *LocalProvider {
	return &LocalProvider{
		keyDir:         keyDir,
		publicKeyPath:  filepath.Join(keyDir, "docvault.pub"),
		privateKeyPath: filepath.Join(keyDir, "docvault.key"),
		dekDir:         filepath.Join(keyDir, "dek"),
	}
}

// Setup generates a new X25519 key pair, stores the recipient in
// plaintext, and encrypts the identity with the passphrase using age's
// scrypt-based passphrase encryption.
func (p *LocalProvider) Setup(passphrase string) error {
	identity, err := age.GenerateX25519Identity()
	if err != nil {
		return fmt.Errorf("generating key pair: %w", err)
	}

	if err := os.MkdirAll(p.keyDir, 0700); err != nil {
		return fmt.Errorf("creating key directory: %w", err)
	}
	if err := os.MkdirAll(p.dekDir, 0700); err != nil {
		return fmt.Errorf("creating data key directory: %w", err)
	}

	// Write recipient in plaintext.
	if err := os.WriteFile(p.publicKeyPath, []byte(identity.Recipient().String()+"\n"), 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}

	// Encrypt identity with passphrase and write it.
	privFile, err := os.OpenFile(p.privateKeyPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("creating private key file: %w", err)
	}
	defer privFile.Close()

	recipient, err := age.NewScryptRecipient(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt recipient: %w", err)
	}

	w, err := age.Encrypt(privFile, recipient)
	if err != nil {
		return fmt.Errorf("creating encrypted writer: %w", err)
	}

	if _, err := io.WriteString(w, identity.String()+"\n"); err != nil {
		return fmt.Errorf("writing encrypted private key: %w", err)
	}

	if err := w.Close(); err != nil {
		return fmt.Errorf("finalizing encrypted private key: %w", err)
	}

	return nil
}

// Unlock decrypts the identity using the passphrase so GetKey can
// unwrap data keys.
func (p *LocalProvider) Unlock(passphrase string) error {
	privData, err := os.ReadFile(p.privateKeyPath)
	if err != nil {
		return fmt.Errorf("reading private key file: %w", err)
	}

	scryptIdentity, err := age.NewScryptIdentity(passphrase)
	if err != nil {
		return fmt.Errorf("creating scrypt identity: %w", err)
	}

	decReader, err := age.Decrypt(bytes.NewReader(privData), scryptIdentity)
	if err != nil {
		return fmt.Errorf("decrypting private key: %w", err)
	}

	keyData, err := io.ReadAll(decReader)
	if err != nil {
		return fmt.Errorf("reading decrypted private key: %w", err)
	}

	identities, err := age.ParseIdentities(bytes.NewReader(keyData))
	if err != nil {
		return fmt.Errorf("parsing private key: %w", err)
	}

	if len(identities) == 0 {
		return fmt.Errorf("no identities found in private key")
	}

	p.mu.Lock()
	p.identity = identities[0]
	p.mu.Unlock()
	return nil
}

// IsConfigured returns true if both key files exist.
func (p *LocalProvider) IsConfigured() bool {
	if _, err := os.Stat(p.publicKeyPath); err != nil {
		return false
	}
	if _, err := os.Stat(p.privateKeyPath); err != nil {
		return false
	}
	return true
}

// GetOrCreateKey generates a fresh random data key, wraps it to the
// keystore recipient, and persists the wrapped form. The plaintext key
// is only returned to the caller, never written to disk.
func (p *LocalProvider) GetOrCreateKey(context.Context) (string, []byte, error) {
	recipient, err := p.loadRecipient()
	if err != nil {
		return "", nil, fmt.Errorf("loading public key: %w", err)
	}

	key := make([]byte, crypto.KeySize)
	if _, err := rand.Read(key); err != nil {
		return "", nil, fmt.Errorf("generating data key: %w", err)
	}

	keyID := uuid.New().String()

	if err := os.MkdirAll(p.dekDir, 0700); err != nil {
		return "", nil, fmt.Errorf("creating data key directory: %w", err)
	}

	dekFile, err := os.OpenFile(p.dekPath(keyID), os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0600)
	if err != nil {
		return "", nil, fmt.Errorf("creating data key file: %w", err)
	}
	defer dekFile.Close()

	w, err := age.Encrypt(dekFile, recipient)
	if err != nil {
		return "", nil, fmt.Errorf("creating encrypted writer: %w", err)
	}
	if _, err := w.Write(key); err != nil {
		return "", nil, fmt.Errorf("writing wrapped data key: %w", err)
	}
	if err := w.Close(); err != nil {
		return "", nil, fmt.Errorf("finalizing wrapped data key: %w", err)
	}

	return keyID, key, nil
}

// GetKey unwraps a previously issued data key. The keystore must be
// unlocked first.
func (p *LocalProvider) GetKey(_ context.Context, keyID string) ([]byte, error) {
	p.mu.RLock()
	identity := p.identity
	p.mu.RUnlock()

	if identity == nil {
		return nil, fmt.Errorf("keystore is locked")
	}

	dekData, err := os.ReadFile(p.dekPath(keyID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("key %s not found", keyID)
		}
		return nil, fmt.Errorf("reading wrapped data key: %w", err)
	}

	decReader, err := age.Decrypt(bytes.NewReader(dekData), identity)
	if err != nil {
		return nil, fmt.Errorf("unwrapping data key: %w", err)
	}

	key, err := io.ReadAll(decReader)
	if err != nil {
		return nil, fmt.Errorf("reading data key: %w", err)
	}

	if len(key) != crypto.KeySize {
		return nil, fmt.Errorf("data key %s has invalid length %d", keyID, len(key))
	}
	return key, nil
}

func (p *LocalProvider) dekPath(keyID string) string {
	return filepath.Join(p.dekDir, keyID+".dek")
}

// loadRecipient reads the recipient from disk and parses it.
func (p *LocalProvider) loadRecipient() (age.Recipient, error) {
	pubData, err := os.ReadFile(p.publicKeyPath)
	if err != nil {
		return nil, fmt.Errorf("reading public key: %w", err)
	}

	recipients, err := age.ParseRecipients(bytes.NewReader(pubData))
	if err != nil {
		return nil, fmt.Errorf("parsing public key: %w", err)
	}

	if len(recipients) == 0 {
		return nil, fmt.Errorf("no recipients found in public key file")
	}

	return recipients[0], nil
}

// Compile-time check that LocalProvider implements docs.KeyProvider
var _ docs.KeyProvider = (*LocalProvider)(nil)
