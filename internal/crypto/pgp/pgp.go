// Package pgp implements XEP-0027 message decryption on top of a local
// OpenPGP keyring.
package pgp

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/armor"

	"github.com/jwhitfield/parley/internal/logging"
)

// Manager manages PGP decryption
type Manager struct {
	mu      sync.RWMutex
	keyring openpgp.EntityList
}

// NewManager creates a new PGP manager
func NewManager() *Manager {
	return &Manager{}
}

// LoadKeyring reads a secret keyring from disk. Both armored and binary
// keyrings are accepted.
func (m *Manager) LoadKeyring(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open keyring: %w", err)
	}
	defer f.Close()

	keyring, err := openpgp.ReadArmoredKeyRing(f)
	if err != nil {
		if _, serr := f.Seek(0, io.SeekStart); serr != nil {
			return fmt.Errorf("failed to rewind keyring: %w", serr)
		}
		keyring, err = openpgp.ReadKeyRing(f)
		if err != nil {
			return fmt.Errorf("failed to read keyring: %w", err)
		}
	}

	m.mu.Lock()
	m.keyring = keyring
	m.mu.Unlock()

	logging.Info("loaded PGP keyring with %d keys from %s", len(keyring), path)
	return nil
}

// HasKeys reports whether any keys are loaded.
func (m *Manager) HasKeys() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.keyring) > 0
}

// Decrypt decrypts an inline-PGP payload received from a peer. The payload
// is the armor body only, as carried in the jabber:x:encrypted extension.
// ok is false when decryption fails for any reason; the caller falls back
// to the plaintext body.
func (m *Manager) Decrypt(peer, ciphertext string) (string, bool) {
	m.mu.RLock()
	keyring := m.keyring
	m.mu.RUnlock()

	if len(keyring) == 0 || ciphertext == "" {
		return "", false
	}

	armored := ciphertext
	if !strings.Contains(armored, "BEGIN PGP MESSAGE") {
		armored = "-----BEGIN PGP MESSAGE-----\n\n" + strings.TrimSpace(ciphertext) + "\n-----END PGP MESSAGE-----"
	}

	block, err := armor.Decode(strings.NewReader(armored))
	if err != nil {
		logging.Debug("failed to decode PGP armor from %s: %v", peer, err)
		return "", false
	}

	md, err := openpgp.ReadMessage(block.Body, keyring, nil, nil)
	if err != nil {
		logging.Debug("failed to read PGP message from %s: %v", peer, err)
		return "", false
	}

	plain, err := io.ReadAll(md.UnverifiedBody)
	if err != nil {
		logging.Debug("failed to decrypt PGP message from %s: %v", peer, err)
		return "", false
	}

	return string(plain), true
}
