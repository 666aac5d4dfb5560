package identity

import (
	"errors"
	"strings"

	"github.com/tyler-smith/go-bip39"
)

var (
	ErrInvalidMnemonic  = errors.New("invalid recovery phrase")
	ErrMnemonicRequired = errors.New("recovery phrase is required")
)

// ExportRecoveryPhrase encodes the device secret key as a 24-word mnemonic.
// Importing it on a reinstalled device reproduces the identical keypair, so
// envelopes wrapped to the old installation stay unwrappable.
func (d *DeviceIdentity) ExportRecoveryPhrase() (string, error) {
	pair, err := d.GetOrCreateKeyPair()
	if err != nil {
		return "", err
	}
	return bip39.NewMnemonic(pair.SecretKey)
}

// ImportRecoveryPhrase replaces the device keypair with the one encoded in
// the phrase, persisting it before returning.
func (d *DeviceIdentity) ImportRecoveryPhrase(mnemonic string) (KeyPair, error) {
	mnemonic = strings.TrimSpace(mnemonic)
	if mnemonic == "" {
		return KeyPair{}, ErrMnemonicRequired
	}
	if !bip39.IsMnemonicValid(mnemonic) {
		return KeyPair{}, ErrInvalidMnemonic
	}
	entropy, err := bip39.EntropyFromMnemonic(mnemonic)
	if err != nil {
		return KeyPair{}, ErrInvalidMnemonic
	}
	if len(entropy) != KeySize {
		return KeyPair{}, ErrInvalidMnemonic
	}

	pair, err := pairFromSecret(entropy)
	if err != nil {
		return KeyPair{}, err
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.store.Set(secretStorageKey, pair.SecretKey); err != nil {
		return KeyPair{}, err
	}
	d.pair = &pair
	return clonePair(pair), nil
}
