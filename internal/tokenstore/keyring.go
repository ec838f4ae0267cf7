package tokenstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/99designs/keyring"
)

const serviceName = "mailsync"

// KeyringStore keeps values in the OS keyring. Keyring items have no expiry,
// so each value is wrapped in an envelope carrying one.
type KeyringStore struct {
	ring keyring.Keyring
	now  func() time.Time
}

type envelope struct {
	Value     string    `json:"value"`
	ExpiresAt time.Time `json:"expires_at"`
}

// KeyringOptions selects the keyring backend
type KeyringOptions struct {
	// FileDir is used by the encrypted file backend
	FileDir string
	// FileOnly restricts the keyring to the file backend (headless hosts, tests)
	FileOnly bool
	// FilePassword encrypts the file backend
	FilePassword string
}

// NewKeyringStore opens the keyring
func NewKeyringStore(opts KeyringOptions) (*KeyringStore, error) {
	backends := []keyring.BackendType{
		keyring.KeychainBackend,
		keyring.SecretServiceBackend,
		keyring.WinCredBackend,
		keyring.PassBackend,
		keyring.FileBackend,
	}
	if opts.FileOnly {
		backends = []keyring.BackendType{keyring.FileBackend}
	}

	password := opts.FilePassword
	if password == "" {
		password = serviceName + "-file-key"
	}

	ring, err := keyring.Open(keyring.Config{
		ServiceName:              serviceName,
		AllowedBackends:          backends,
		FileDir:                  opts.FileDir,
		FilePasswordFunc:         keyring.FixedStringPrompt(password),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open keyring: %w", err)
	}

	return &KeyringStore{ring: ring, now: time.Now}, nil
}

// Get returns the value for key, removing it if expired
func (s *KeyringStore) Get(ctx context.Context, key string) (string, error) {
	item, err := s.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("failed to get key %q: %w", key, err)
	}

	var env envelope
	if err := json.Unmarshal(item.Data, &env); err != nil {
		return "", fmt.Errorf("failed to decode key %q: %w", key, err)
	}

	if !s.now().Before(env.ExpiresAt) {
		if err := s.Delete(ctx, key); err != nil {
			return "", err
		}
		return "", ErrNotFound
	}
	return env.Value, nil
}

// Set stores value under key until ttl elapses
func (s *KeyringStore) Set(_ context.Context, key, value string, ttl time.Duration) error {
	data, err := json.Marshal(envelope{Value: value, ExpiresAt: s.now().Add(ttl).UTC()})
	if err != nil {
		return fmt.Errorf("failed to encode key %q: %w", key, err)
	}

	err = s.ring.Set(keyring.Item{
		Key:   key,
		Data:  data,
		Label: serviceName + " " + key,
	})
	if err != nil {
		return fmt.Errorf("failed to set key %q: %w", key, err)
	}
	return nil
}

// Delete removes key
func (s *KeyringStore) Delete(_ context.Context, key string) error {
	err := s.ring.Remove(key)
	if err != nil && !errors.Is(err, keyring.ErrKeyNotFound) && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("failed to delete key %q: %w", key, err)
	}
	return nil
}
