// Package couplekey implements the shared-secret lifecycle between two
// paired devices: ECDH key agreement, wrapping the couple key for additional
// devices, durable storage, and rotation. The backend only ever sees public
// keys and wrapped envelopes.
package couplekey

import "crypto/sha256"

// KeySize is the byte length of a couple key and of every curve25519 value.
const KeySize = 32

// Domain-separation strings. Changing either is a protocol break and must
// come with a version bump in the string itself.
const (
	coupleKeyInfo = "duet/couple-key/v1"
	wrapKeyInfo   = "duet/key-wrap/v1"
)

// DeriveKey turns a raw ECDH shared secret into a 32-byte symmetric key with
// a single domain-separated hash pass. Both sides of an exchange run this
// independently and must get identical bytes, so the construction is frozen:
// sha256(domainInfo || sharedSecret). Each raw shared secret is unique to one
// device pair and is never fed in under a second domain string for an
// unrelated purpose.
func DeriveKey(sharedSecret []byte, domainInfo string) []byte {
	h := sha256.New()
	h.Write([]byte(domainInfo))
	h.Write(sharedSecret)
	return h.Sum(nil)
}
