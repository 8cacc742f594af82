package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const (
	serviceName = "support-widget"
	keyringKey  = "intercom-access-token"
)

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
			keyring.FileBackend,
		},
		FileDir:                  "~/.config/support-widget/credentials",
		FilePasswordFunc:         keyring.FixedStringPrompt("support-widget-file-key"),
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// KeyringSource reads the token from the system keyring. A missing entry is
// reported as an empty token so that a Chain can fall through.
type KeyringSource struct {
	open func() (keyring.Keyring, error)
}

func NewKeyringSource() *KeyringSource {
	return &KeyringSource{open: openKeyring}
}

// NewKeyringSourceWith wraps an already opened keyring.
func NewKeyringSourceWith(ring keyring.Keyring) *KeyringSource {
	return &KeyringSource{open: func() (keyring.Keyring, error) { return ring, nil }}
}

func (k *KeyringSource) Token() (string, error) {
	ring, err := k.open()
	if err != nil {
		return "", err
	}
	item, err := ring.Get(keyringKey)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("getting credential %q: %w", keyringKey, err)
	}
	return string(item.Data), nil
}

// Set stores the token in the keyring.
func (k *KeyringSource) Set(token string) error {
	ring, err := k.open()
	if err != nil {
		return err
	}
	if err := ring.Set(keyring.Item{Key: keyringKey, Data: []byte(token)}); err != nil {
		return fmt.Errorf("setting credential %q: %w", keyringKey, err)
	}
	return nil
}

// Delete removes the token from the keyring.
func (k *KeyringSource) Delete() error {
	ring, err := k.open()
	if err != nil {
		return err
	}
	if err := ring.Remove(keyringKey); err != nil {
		return fmt.Errorf("deleting credential %q: %w", keyringKey, err)
	}
	return nil
}
