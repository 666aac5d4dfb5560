// Package identity owns the long-lived X25519 device keypair. The secret key
// never leaves the secure store; only the 32-byte public value crosses device
// boundaries (as a base64 pairing code, usually rendered as a QR).
package identity

import (
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"

	"github.com/mr-tron/base58/base58"
	"golang.org/x/crypto/blake2b"
	"golang.org/x/crypto/curve25519"

	"duet/go-core/internal/securestore"
)

const (
	// KeySize is the byte length of both halves of a device keypair.
	KeySize = 32

	secretStorageKey = "duet/device/secret-key/v1"
)

var (
	ErrInvalidPublicKey = errors.New("invalid device public key")
	ErrKeygenFailed     = errors.New("device key generation failed")
)

type KeyPair struct {
	PublicKey []byte
	SecretKey []byte
}

// DeviceIdentity caches the device keypair in memory and persists it through
// the secure store. One instance per process; constructing several in one
// test simulates several devices.
type DeviceIdentity struct {
	mu    sync.Mutex
	store securestore.Store
	pair  *KeyPair
}

func NewDeviceIdentity(store securestore.Store) *DeviceIdentity {
	return &DeviceIdentity{store: store}
}

// GetOrCreateKeyPair returns the cached keypair, loading it from the secure
// store or generating a fresh one as needed. The mutex makes the
// generate-then-persist path single-flight; two cold-start callers cannot
// each persist a different keypair.
func (d *DeviceIdentity) GetOrCreateKeyPair() (KeyPair, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.pair != nil {
		return clonePair(*d.pair), nil
	}

	// A read failure is handled like absence: regenerating keeps the app
	// usable at the cost of orphaning prior pairings, which re-pairing
	// recovers; blocking on storage does not recover at all.
	secret, ok, _ := d.store.Get(secretStorageKey)
	if ok && len(secret) == KeySize {
		pair, err := pairFromSecret(secret)
		if err != nil {
			return KeyPair{}, err
		}
		d.pair = &pair
		return clonePair(pair), nil
	}
	// Absent, or present with the wrong length. A malformed stored key would
	// fail every future exchange silently, so regenerate and overwrite.
	pair, err := generatePair()
	if err != nil {
		return KeyPair{}, err
	}
	if err := d.store.Set(secretStorageKey, pair.SecretKey); err != nil {
		return KeyPair{}, fmt.Errorf("persist device key: %w", err)
	}
	d.pair = &pair
	return clonePair(pair), nil
}

// PublicKeyEncoded returns the base64 pairing code carrying only the public key.
func (d *DeviceIdentity) PublicKeyEncoded() (string, error) {
	pair, err := d.GetOrCreateKeyPair()
	if err != nil {
		return "", err
	}
	return base64.StdEncoding.EncodeToString(pair.PublicKey), nil
}

// Fingerprint is a short non-secret handle for logs and device registries.
func (d *DeviceIdentity) Fingerprint() (string, error) {
	pair, err := d.GetOrCreateKeyPair()
	if err != nil {
		return "", err
	}
	return FingerprintOf(pair.PublicKey)
}

func FingerprintOf(publicKey []byte) (string, error) {
	if len(publicKey) != KeySize {
		return "", ErrInvalidPublicKey
	}
	h := blake2b.Sum256(publicKey)
	return "dev1" + base58.Encode(h[:8]), nil
}

// DecodePublicKey parses a pairing code back into a raw public key.
func DecodePublicKey(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	if len(raw) != KeySize {
		return nil, ErrInvalidPublicKey
	}
	return raw, nil
}

func generatePair() (KeyPair, error) {
	secret := make([]byte, KeySize)
	if _, err := rand.Read(secret); err != nil {
		// Key security depends entirely on randomness quality; never fall
		// back to a weaker source.
		return KeyPair{}, fmt.Errorf("%w: %v", ErrKeygenFailed, err)
	}
	return pairFromSecret(secret)
}

func pairFromSecret(secret []byte) (KeyPair, error) {
	public, err := curve25519.X25519(secret, curve25519.Basepoint)
	if err != nil {
		return KeyPair{}, fmt.Errorf("%w: %v", ErrKeygenFailed, err)
	}
	return KeyPair{
		PublicKey: public,
		SecretKey: append([]byte(nil), secret...),
	}, nil
}

func clonePair(p KeyPair) KeyPair {
	return KeyPair{
		PublicKey: append([]byte(nil), p.PublicKey...),
		SecretKey: append([]byte(nil), p.SecretKey...),
	}
}
