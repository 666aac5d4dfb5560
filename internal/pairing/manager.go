// Package pairing orchestrates the couple-key lifecycle for the app layer:
// the initial two-device exchange, enrolling additional devices, accepting
// wrapped envelopes, rotation with redistribution, and unpairing.
package pairing

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
	"time"

	"duet/go-core/internal/couplekey"
	"duet/go-core/internal/identity"
	"duet/go-core/internal/platform/metrics"
	"duet/go-core/internal/platform/ratelimiter"
	"duet/go-core/internal/securestore"
	"duet/go-core/pkg/models"
)

var (
	ErrNotPaired     = errors.New("no couple key for this couple id")
	ErrThrottled     = errors.New("unwrap attempts throttled for this sender")
	ErrDeviceUnknown = errors.New("device is not registered")
)

type Options struct {
	Logger *slog.Logger
	// Per-sender unwrap attempt budget; zero values disable throttling.
	UnwrapRPS   float64
	UnwrapBurst int
}

// Manager ties the device identity, the couple-key store, and the peer
// device registry together. The registry holds public keys only and is
// persisted so a restart does not shrink the redistribution set.
type Manager struct {
	mu       sync.Mutex
	device   *identity.DeviceIdentity
	keys     *couplekey.Store
	registry deviceRegistry
	limiter  *ratelimiter.AttemptLimiter
	log      *slog.Logger
	now      func() time.Time
}

func NewManager(device *identity.DeviceIdentity, keys *couplekey.Store, kv securestore.Store, opts Options) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		device:   device,
		keys:     keys,
		registry: deviceRegistry{kv: kv},
		limiter:  ratelimiter.New(opts.UnwrapRPS, opts.UnwrapBurst, 0),
		log:      logger,
		now:      time.Now,
	}
}

// PairingCode returns this device's public key as the base64 payload the app
// renders into a QR code.
func (m *Manager) PairingCode() (string, error) {
	return m.device.PublicKeyEncoded()
}

// Pair completes the initial exchange with the partner device whose pairing
// code was scanned. Both devices run this with each other's code and end up
// with the identical stored key. Re-running Pair after a rotation is a no-op
// returning the current key, so a second scan cannot regress the version.
func (m *Manager) Pair(coupleID, peerCode string) (key []byte, version int, err error) {
	peerPublic, err := identity.DecodePublicKey(strings.TrimSpace(peerCode))
	if err != nil {
		return nil, 0, err
	}
	if existing, ok, err := m.keys.Load(coupleID); err != nil {
		return nil, 0, err
	} else if ok {
		v, err := m.keys.LoadVersion(coupleID)
		if err != nil {
			return nil, 0, err
		}
		if _, err := m.registerDevice("partner", peerPublic); err != nil {
			return nil, 0, err
		}
		return existing, v, nil
	}

	own, err := m.device.GetOrCreateKeyPair()
	if err != nil {
		return nil, 0, err
	}
	key, err = couplekey.DeriveCoupleKeyFromPeer(own, peerPublic)
	if err != nil {
		return nil, 0, err
	}
	if err := m.keys.Save(coupleID, key, 1); err != nil {
		return nil, 0, err
	}
	if _, err := m.registerDevice("partner", peerPublic); err != nil {
		return nil, 0, err
	}
	metrics.PairingsTotal.Inc()
	m.log.Info("couple paired", "couple_id", coupleID)
	return key, 1, nil
}

// EnrollDevice wraps the current couple key for a new device that published
// its pairing code, registers it for future redistribution, and returns the
// envelope to hand to the transport layer.
func (m *Manager) EnrollDevice(coupleID, name, code string) (couplekey.Envelope, error) {
	targetPublic, err := identity.DecodePublicKey(strings.TrimSpace(code))
	if err != nil {
		return couplekey.Envelope{}, err
	}
	key, ok, err := m.keys.Load(coupleID)
	if err != nil {
		return couplekey.Envelope{}, err
	}
	if !ok {
		return couplekey.Envelope{}, ErrNotPaired
	}
	own, err := m.device.GetOrCreateKeyPair()
	if err != nil {
		return couplekey.Envelope{}, err
	}
	env, err := couplekey.WrapForDevice(own, key, targetPublic)
	if err != nil {
		return couplekey.Envelope{}, err
	}
	device, err := m.registerDevice(name, targetPublic)
	if err != nil {
		return couplekey.Envelope{}, err
	}
	metrics.EnvelopesWrappedTotal.Inc()
	m.log.Info("device enrolled", "couple_id", coupleID, "device", device.Fingerprint)
	return env, nil
}

// AcceptEnvelope unwraps a key envelope addressed to this device and stores
// the key under the version the distribution layer delivered alongside it.
// An envelope meant for another device fails closed without touching the
// stored key.
func (m *Manager) AcceptEnvelope(coupleID string, env couplekey.Envelope, version int) error {
	sender, err := identity.FingerprintOf(env.SenderPublicKey)
	if err != nil {
		return couplekey.ErrInvalidEnvelope
	}
	if !m.limiter.Allow(sender, m.now()) {
		metrics.UnwrapThrottledTotal.Inc()
		return ErrThrottled
	}
	own, err := m.device.GetOrCreateKeyPair()
	if err != nil {
		return err
	}
	key, err := couplekey.UnwrapEnvelope(own, env)
	if err != nil {
		if errors.Is(err, couplekey.ErrUnwrapFailed) {
			metrics.UnwrapFailuresTotal.Inc()
			m.log.Warn("envelope not addressed to this device", "couple_id", coupleID, "sender", sender)
		}
		return err
	}
	if version < 1 {
		version = 1
	}
	if err := m.keys.Save(coupleID, key, version); err != nil {
		return err
	}
	if _, err := m.registerDevice("partner", env.SenderPublicKey); err != nil {
		return err
	}
	m.log.Info("couple key accepted", "couple_id", coupleID, "version", version, "sender", sender)
	return nil
}

// Rotate replaces the couple key and wraps the new key for every registered
// device, returning the envelopes keyed by device fingerprint for the
// transport layer to distribute.
func (m *Manager) Rotate(coupleID string) (int, map[string]couplekey.Envelope, error) {
	if _, ok, err := m.keys.Load(coupleID); err != nil {
		return 0, nil, err
	} else if !ok {
		return 0, nil, ErrNotPaired
	}
	key, version, err := m.keys.Rotate(coupleID)
	if err != nil {
		return 0, nil, err
	}
	metrics.RotationsTotal.Inc()

	own, err := m.device.GetOrCreateKeyPair()
	if err != nil {
		return 0, nil, err
	}
	m.mu.Lock()
	devices, err := m.registry.load()
	m.mu.Unlock()
	if err != nil {
		return 0, nil, err
	}

	envelopes := make(map[string]couplekey.Envelope, len(devices))
	for _, d := range devices {
		env, err := couplekey.WrapForDevice(own, key, d.PublicKey)
		if err != nil {
			return 0, nil, fmt.Errorf("rewrap for %s: %w", d.Fingerprint, err)
		}
		envelopes[d.Fingerprint] = env
		metrics.EnvelopesWrappedTotal.Inc()
	}
	m.log.Info("couple key rotated", "couple_id", coupleID, "version", version, "devices", len(envelopes))
	return version, envelopes, nil
}

// Unpair clears the stored key, its version marker, and the device registry.
func (m *Manager) Unpair(coupleID string) error {
	if err := m.keys.Clear(coupleID); err != nil {
		return err
	}
	m.mu.Lock()
	err := m.registry.clear()
	m.mu.Unlock()
	if err != nil {
		return err
	}
	m.log.Info("couple unpaired", "couple_id", coupleID)
	return nil
}

// CurrentKey hands the resolved key and version to the bulk-encryption
// layer: exactly 32 bytes, or explicitly absent.
func (m *Manager) CurrentKey(coupleID string) (key []byte, version int, ok bool, err error) {
	key, ok, err = m.keys.Load(coupleID)
	if err != nil || !ok {
		return nil, 0, false, err
	}
	version, err = m.keys.LoadVersion(coupleID)
	if err != nil {
		return nil, 0, false, err
	}
	return key, version, true, nil
}

// Devices lists the registered peer devices.
func (m *Manager) Devices() ([]models.Device, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices, err := m.registry.load()
	if err != nil {
		return nil, err
	}
	out := make([]models.Device, 0, len(devices))
	for _, d := range devices {
		out = append(out, models.CloneDevice(d))
	}
	return out, nil
}

// RemoveDevice drops a device from the redistribution set. It does not
// revoke the key material the device already holds; callers rotate after
// removal to lock it out of future versions.
func (m *Manager) RemoveDevice(fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	devices, err := m.registry.load()
	if err != nil {
		return err
	}
	if _, ok := devices[fingerprint]; !ok {
		return ErrDeviceUnknown
	}
	delete(devices, fingerprint)
	return m.registry.save(devices)
}

func (m *Manager) registerDevice(name string, publicKey []byte) (models.Device, error) {
	fingerprint, err := identity.FingerprintOf(publicKey)
	if err != nil {
		return models.Device{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		name = "device"
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	devices, err := m.registry.load()
	if err != nil {
		return models.Device{}, err
	}
	if existing, ok := devices[fingerprint]; ok {
		return models.CloneDevice(existing), nil
	}
	device := models.Device{
		Fingerprint: fingerprint,
		Name:        name,
		PublicKey:   append([]byte(nil), publicKey...),
		AddedAt:     m.now().UTC(),
	}
	devices[fingerprint] = device
	if err := m.registry.save(devices); err != nil {
		return models.Device{}, err
	}
	return models.CloneDevice(device), nil
}
