package couplekey

import (
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"

	"duet/go-core/internal/securestore"
)

const (
	keyStoragePrefix     = "duet/couple-key/v1/"
	versionStoragePrefix = "duet/couple-key-version/v1/"

	// initialVersion covers keys written before explicit version tracking.
	initialVersion = 1
)

var ErrInvalidCoupleID = errors.New("invalid couple id")

// Store persists the authoritative couple key and its rotation version per
// couple id in secure storage. The bulk-encryption layer reads from here and
// tags each record with the version active at encryption time.
type Store struct {
	kv securestore.Store
}

func NewStore(kv securestore.Store) *Store {
	return &Store{kv: kv}
}

func (s *Store) Save(coupleID string, key []byte, version int) error {
	if coupleID == "" {
		return ErrInvalidCoupleID
	}
	if len(key) != KeySize {
		return ErrInvalidKeySize
	}
	if version < initialVersion {
		return fmt.Errorf("invalid couple key version %d", version)
	}
	if err := s.kv.Set(keyStoragePrefix+coupleID, key); err != nil {
		return err
	}
	return s.kv.Set(versionStoragePrefix+coupleID, []byte(strconv.Itoa(version)))
}

// Load returns the stored key, or ok=false when it is absent. A stored value
// of the wrong length is treated as absent rather than handed to callers.
func (s *Store) Load(coupleID string) ([]byte, bool, error) {
	if coupleID == "" {
		return nil, false, ErrInvalidCoupleID
	}
	key, ok, err := s.kv.Get(keyStoragePrefix + coupleID)
	if err != nil {
		return nil, false, err
	}
	if !ok || len(key) != KeySize {
		return nil, false, nil
	}
	return key, true, nil
}

// LoadVersion returns the stored rotation version, defaulting to 1 when the
// marker is missing or unreadable.
func (s *Store) LoadVersion(coupleID string) (int, error) {
	if coupleID == "" {
		return 0, ErrInvalidCoupleID
	}
	raw, ok, err := s.kv.Get(versionStoragePrefix + coupleID)
	if err != nil {
		return 0, err
	}
	if !ok {
		return initialVersion, nil
	}
	version, err := strconv.Atoi(string(raw))
	if err != nil || version < initialVersion {
		return initialVersion, nil
	}
	return version, nil
}

// Clear removes the key and its version marker. Both deletions are
// individually idempotent, so a retry after a partial failure converges on
// fully-cleared state.
func (s *Store) Clear(coupleID string) error {
	if coupleID == "" {
		return ErrInvalidCoupleID
	}
	if err := s.kv.Delete(keyStoragePrefix + coupleID); err != nil {
		return err
	}
	return s.kv.Delete(versionStoragePrefix + coupleID)
}

// Rotate generates a fresh random couple key, persists it one version above
// the current one, and returns both. Re-wrapping the new key for every
// paired device is the caller's responsibility; this layer does not know the
// device set.
func (s *Store) Rotate(coupleID string) ([]byte, int, error) {
	key := make([]byte, KeySize)
	if _, err := rand.Read(key); err != nil {
		return nil, 0, err
	}
	current, err := s.LoadVersion(coupleID)
	if err != nil {
		return nil, 0, err
	}
	next := current + 1
	if err := s.Save(coupleID, key, next); err != nil {
		return nil, 0, err
	}
	return key, next, nil
}
