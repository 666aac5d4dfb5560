package couplekey

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/curve25519"

	"duet/go-core/internal/identity"
)

var (
	ErrInvalidPeerKey = errors.New("invalid peer public key")
	ErrExchange       = errors.New("key exchange failed")
)

// DeriveCoupleKeyFromPeer computes the X25519 shared secret between our
// secret key and the peer's public key, then derives the couple key. Both
// devices of a pairing call this with each other's public key and arrive at
// the same 32 bytes; the key itself never transits any channel.
func DeriveCoupleKeyFromPeer(own identity.KeyPair, peerPublic []byte) ([]byte, error) {
	if len(peerPublic) != KeySize {
		return nil, ErrInvalidPeerKey
	}
	shared, err := curve25519.X25519(own.SecretKey, peerPublic)
	if err != nil {
		// curve25519 rejects low-order points; that is a malformed or
		// hostile peer key, not a "no key yet" condition.
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	return DeriveKey(shared, coupleKeyInfo), nil
}
