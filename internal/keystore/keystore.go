// Package keystore persists subscriber key material as PEM files on
// disk and handles passphrase-protected key backups.
//
// Files live at {dir}/{connection}/: the three private keys, the bank
// public keys once fetched, and a state file with the connection
// metadata.
package keystore

import (
	"crypto/rsa"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/sirosfoundation/go-ebics/pkg/ebics"
	"github.com/sirosfoundation/go-ebics/pkg/security"
)

// ErrNotFound is returned when no connection with the given name
// exists in the store.
var ErrNotFound = errors.New("connection not found")

const (
	signatureKeyFile      = "signature.key"
	authenticationKeyFile = "authentication.key"
	encryptionKeyFile     = "encryption.key"
	bankAuthKeyFile       = "bank_authentication.pub"
	bankEncKeyFile        = "bank_encryption.pub"
	stateFile             = "state.json"
)

// Store is a file-based keystore with an in-memory cache.
type Store struct {
	dir   string
	mu    sync.RWMutex
	cache map[string]*ebics.Subscriber
}

// NewStore opens a keystore rooted at dir, creating it if needed.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating key directory: %w", err)
	}
	return &Store{
		dir:   dir,
		cache: make(map[string]*ebics.Subscriber),
	}, nil
}

type connectionState struct {
	URL       string `json:"url"`
	HostID    string `json:"hostID"`
	PartnerID string `json:"partnerID"`
	UserID    string `json:"userID"`
	SystemID  string `json:"systemID,omitempty"`
	IniState  string `json:"iniState"`
	HiaState  string `json:"hiaState"`
}

// Save writes a subscriber snapshot to disk and refreshes the cache.
func (s *Store) Save(name string, sub *ebics.Subscriber) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := filepath.Join(s.dir, name)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("creating connection directory: %w", err)
	}

	for file, key := range map[string]*rsa.PrivateKey{
		signatureKeyFile:      sub.SignatureKey,
		authenticationKeyFile: sub.AuthenticationKey,
		encryptionKeyFile:     sub.EncryptionKey,
	} {
		pemData, err := security.MarshalPrivateKeyPEM(key)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, file), pemData, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", file, err)
		}
	}

	for file, key := range map[string]*rsa.PublicKey{
		bankAuthKeyFile: sub.BankAuthenticationKey,
		bankEncKeyFile:  sub.BankEncryptionKey,
	} {
		if key == nil {
			continue
		}
		pemData, err := security.MarshalPublicKeyPEM(key)
		if err != nil {
			return err
		}
		if err := os.WriteFile(filepath.Join(dir, file), pemData, 0o600); err != nil {
			return fmt.Errorf("writing %s: %w", file, err)
		}
	}

	state, err := json.MarshalIndent(connectionState{
		URL:       sub.URL,
		HostID:    sub.HostID,
		PartnerID: sub.PartnerID,
		UserID:    sub.UserID,
		SystemID:  sub.SystemID,
		IniState:  sub.IniState.String(),
		HiaState:  sub.HiaState.String(),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("marshaling connection state: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, stateFile), state, 0o600); err != nil {
		return fmt.Errorf("writing state file: %w", err)
	}

	copied := *sub
	s.cache[name] = &copied
	return nil
}

// Load reads a subscriber snapshot, preferring the cache.
func (s *Store) Load(name string) (*ebics.Subscriber, error) {
	s.mu.RLock()
	if sub, ok := s.cache[name]; ok {
		s.mu.RUnlock()
		copied := *sub
		return &copied, nil
	}
	s.mu.RUnlock()

	sub, err := s.loadFromDisk(name)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.cache[name] = sub
	s.mu.Unlock()
	copied := *sub
	return &copied, nil
}

// List returns the names of all stored connections.
func (s *Store) List() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("reading key directory: %w", err)
	}
	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			names = append(names, entry.Name())
		}
	}
	return names, nil
}

func (s *Store) loadFromDisk(name string) (*ebics.Subscriber, error) {
	dir := filepath.Join(s.dir, name)
	stateData, err := os.ReadFile(filepath.Join(dir, stateFile))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("reading state file: %w", err)
	}
	var state connectionState
	if err := json.Unmarshal(stateData, &state); err != nil {
		return nil, fmt.Errorf("parsing state file: %w", err)
	}

	sub := &ebics.Subscriber{
		URL:       state.URL,
		HostID:    state.HostID,
		PartnerID: state.PartnerID,
		UserID:    state.UserID,
		SystemID:  state.SystemID,
		IniState:  parseKeyState(state.IniState),
		HiaState:  parseKeyState(state.HiaState),
	}

	sub.SignatureKey, err = loadPrivateKey(filepath.Join(dir, signatureKeyFile))
	if err != nil {
		return nil, err
	}
	sub.AuthenticationKey, err = loadPrivateKey(filepath.Join(dir, authenticationKeyFile))
	if err != nil {
		return nil, err
	}
	sub.EncryptionKey, err = loadPrivateKey(filepath.Join(dir, encryptionKeyFile))
	if err != nil {
		return nil, err
	}

	sub.BankAuthenticationKey, err = loadOptionalPublicKey(filepath.Join(dir, bankAuthKeyFile))
	if err != nil {
		return nil, err
	}
	sub.BankEncryptionKey, err = loadOptionalPublicKey(filepath.Join(dir, bankEncKeyFile))
	if err != nil {
		return nil, err
	}
	return sub, nil
}

func loadPrivateKey(path string) (*rsa.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	key, err := security.LoadPrivateKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return key, nil
}

func loadOptionalPublicKey(path string) (*rsa.PublicKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading %s: %w", filepath.Base(path), err)
	}
	key, err := security.LoadPublicKeyPEM(data)
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", filepath.Base(path), err)
	}
	return key, nil
}

func parseKeyState(s string) ebics.KeyState {
	switch s {
	case "sent":
		return ebics.StateSent
	case "not-sent":
		return ebics.StateNotSent
	default:
		return ebics.StateUnknown
	}
}
