package config

import (
	"errors"
	"fmt"
	"path/filepath"

	"github.com/99designs/keyring"
)

const keyringService = "mailsift"

// Credential keys used in the keyring.
const (
	KeyIMAPPassword = "imap-password"
	KeySMTPPassword = "smtp-password"
)

// Secrets looks up stored credentials by key.
type Secrets interface {
	// Get returns the secret for key, or "" and no error when none is stored.
	Get(key string) (string, error)
}

// Keyring stores credentials in the OS keyring.
type Keyring struct {
	ring keyring.Keyring
}

var _ Secrets = (*Keyring)(nil)

// OpenKeyring opens the OS keyring. The encrypted-file backend, used when no
// system keyring is available, keeps its files under dataDir.
func OpenKeyring(dataDir string) (*Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: keyringService,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  filepath.Join(dataDir, "credentials"),
		FilePasswordFunc:         keyring.FixedStringPrompt("mailsift-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return &Keyring{ring: ring}, nil
}

// Get retrieves a credential.
func (k *Keyring) Get(key string) (string, error) {
	item, err := k.ring.Get(key)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", key, err)
	}
	return string(item.Data), nil
}

// Set stores a credential.
func (k *Keyring) Set(key, value string) error {
	err := k.ring.Set(keyring.Item{
		Key:   key,
		Data:  []byte(value),
		Label: "mailsift " + key,
	})
	if err != nil {
		return fmt.Errorf("setting credential %q: %w", key, err)
	}
	return nil
}

// Delete removes a credential.
func (k *Keyring) Delete(key string) error {
	if err := k.ring.Remove(key); err != nil {
		return fmt.Errorf("deleting credential %q: %w", key, err)
	}
	return nil
}

// ResolveSecrets fills empty passwords from secrets. Passwords already set
// by the file or the environment win.
func (c *Config) ResolveSecrets(secrets Secrets) error {
	fill := func(dst *string, key string) error {
		if *dst != "" {
			return nil
		}
		v, err := secrets.Get(key)
		if err != nil {
			return err
		}
		*dst = v
		return nil
	}
	if err := fill(&c.Mailbox.Password, KeyIMAPPassword); err != nil {
		return err
	}
	if c.Notify.Channel == ChannelSMTP && c.Notify.SMTP.Username != "" {
		return fill(&c.Notify.SMTP.Password, KeySMTPPassword)
	}
	return nil
}
