package couplekey

import (
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/chacha20poly1305"
	"golang.org/x/crypto/curve25519"
	"golang.org/x/crypto/hkdf"

	"duet/go-core/internal/identity"
)

const EnvelopeVersion = 1

var (
	ErrInvalidKeySize  = errors.New("couple key must be exactly 32 bytes")
	ErrInvalidEnvelope = errors.New("invalid wrapped-key envelope")
	ErrUnwrapFailed    = errors.New("envelope was not wrapped for this device")
)

// Envelope carries a couple key wrapped for one specific target device.
// Every field is safe to store or relay in the clear; only the holder of the
// target device's secret key can open it.
type Envelope struct {
	Version         uint8  `json:"version"`
	SenderPublicKey []byte `json:"sender_public_key"`
	Nonce           []byte `json:"nonce"`
	Ciphertext      []byte `json:"ciphertext"`
}

func ValidateEnvelope(env Envelope) error {
	if env.Version != EnvelopeVersion {
		return ErrInvalidEnvelope
	}
	if len(env.SenderPublicKey) != KeySize {
		return ErrInvalidEnvelope
	}
	if len(env.Nonce) != chacha20poly1305.NonceSizeX || len(env.Ciphertext) == 0 {
		return ErrInvalidEnvelope
	}
	return nil
}

// WrapForDevice encrypts the couple key for the device owning targetPublic.
// The wrap key is derived from the static DH between our secret key and the
// target's public key, so successful decryption also authenticates the
// sender. Each call draws a fresh nonce; retried wraps are safe and all
// unwrap to the same key.
func WrapForDevice(own identity.KeyPair, coupleKey, targetPublic []byte) (Envelope, error) {
	if len(coupleKey) != KeySize {
		return Envelope{}, ErrInvalidKeySize
	}
	if len(targetPublic) != KeySize {
		return Envelope{}, ErrInvalidPeerKey
	}
	aead, err := wrapAEAD(own.SecretKey, targetPublic)
	if err != nil {
		return Envelope{}, err
	}
	nonce := make([]byte, chacha20poly1305.NonceSizeX)
	if _, err := rand.Read(nonce); err != nil {
		return Envelope{}, err
	}
	return Envelope{
		Version:         EnvelopeVersion,
		SenderPublicKey: append([]byte(nil), own.PublicKey...),
		Nonce:           nonce,
		Ciphertext:      aead.Seal(nil, nonce, coupleKey, nil),
	}, nil
}

// UnwrapEnvelope recovers the couple key from an envelope wrapped for this
// device. Authentication failure or a wrong-length plaintext both return
// ErrUnwrapFailed and no bytes; callers treat that as "not addressed to us",
// never as a partial result.
func UnwrapEnvelope(own identity.KeyPair, env Envelope) ([]byte, error) {
	if err := ValidateEnvelope(env); err != nil {
		return nil, err
	}
	aead, err := wrapAEAD(own.SecretKey, env.SenderPublicKey)
	if err != nil {
		return nil, err
	}
	plain, err := aead.Open(nil, env.Nonce, env.Ciphertext, nil)
	if err != nil {
		return nil, ErrUnwrapFailed
	}
	if len(plain) != KeySize {
		return nil, ErrUnwrapFailed
	}
	return plain, nil
}

func wrapAEAD(secretKey, peerPublic []byte) (cipher.AEAD, error) {
	shared, err := curve25519.X25519(secretKey, peerPublic)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExchange, err)
	}
	wrapKey := make([]byte, KeySize)
	if _, err := io.ReadFull(hkdf.New(sha256.New, shared, nil, []byte(wrapKeyInfo)), wrapKey); err != nil {
		return nil, err
	}
	return chacha20poly1305.NewX(wrapKey)
}
