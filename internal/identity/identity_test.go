package identity

import (
	"bytes"
	"errors"
	"strings"
	"sync"
	"testing"

	"duet/go-core/internal/securestore"
)

func TestGetOrCreateKeyPairIsIdempotent(t *testing.T) {
	d := NewDeviceIdentity(securestore.NewMemoryStore())
	first, err := d.GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	if len(first.PublicKey) != KeySize || len(first.SecretKey) != KeySize {
		t.Fatalf("unexpected key sizes: %d/%d", len(first.PublicKey), len(first.SecretKey))
	}
	second, err := d.GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("second call failed: %v", err)
	}
	if !bytes.Equal(first.SecretKey, second.SecretKey) || !bytes.Equal(first.PublicKey, second.PublicKey) {
		t.Fatal("repeated calls must return the same keypair")
	}
}

func TestKeyPairSurvivesRestart(t *testing.T) {
	store := securestore.NewMemoryStore()
	first, err := NewDeviceIdentity(store).GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	second, err := NewDeviceIdentity(store).GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	if !bytes.Equal(first.SecretKey, second.SecretKey) {
		t.Fatal("keypair must survive a process restart")
	}
}

func TestCorruptStoredKeyIsRegenerated(t *testing.T) {
	store := securestore.NewMemoryStore()
	if err := store.Set(secretStorageKey, []byte("short")); err != nil {
		t.Fatalf("seed corrupt value: %v", err)
	}
	pair, err := NewDeviceIdentity(store).GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("expected regeneration, got %v", err)
	}
	stored, ok, err := store.Get(secretStorageKey)
	if err != nil || !ok {
		t.Fatalf("regenerated key not persisted: %v", err)
	}
	if !bytes.Equal(stored, pair.SecretKey) || len(stored) != KeySize {
		t.Fatal("store must hold the regenerated 32-byte secret")
	}
}

func TestConcurrentColdStartGeneratesOneKeyPair(t *testing.T) {
	d := NewDeviceIdentity(securestore.NewMemoryStore())
	const goroutines = 8
	pairs := make([]KeyPair, goroutines)
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			pair, err := d.GetOrCreateKeyPair()
			if err != nil {
				t.Errorf("concurrent call failed: %v", err)
				return
			}
			pairs[i] = pair
		}(i)
	}
	wg.Wait()
	for i := 1; i < goroutines; i++ {
		if !bytes.Equal(pairs[0].SecretKey, pairs[i].SecretKey) {
			t.Fatal("concurrent cold start produced divergent keypairs")
		}
	}
}

func TestPublicKeyEncodedRoundtrip(t *testing.T) {
	d := NewDeviceIdentity(securestore.NewMemoryStore())
	code, err := d.PublicKeyEncoded()
	if err != nil {
		t.Fatalf("encode failed: %v", err)
	}
	decoded, err := DecodePublicKey(code)
	if err != nil {
		t.Fatalf("decode failed: %v", err)
	}
	pair, _ := d.GetOrCreateKeyPair()
	if !bytes.Equal(decoded, pair.PublicKey) {
		t.Fatal("decoded public key mismatch")
	}
}

func TestDecodePublicKeyRejectsMalformedInput(t *testing.T) {
	cases := []string{"", "not base64!!!", "QUJD", strings.Repeat("A", 100)}
	for _, input := range cases {
		if _, err := DecodePublicKey(input); !errors.Is(err, ErrInvalidPublicKey) {
			t.Fatalf("input %q: expected ErrInvalidPublicKey, got %v", input, err)
		}
	}
}

func TestFingerprintIsStableAndPublicOnly(t *testing.T) {
	d := NewDeviceIdentity(securestore.NewMemoryStore())
	fp1, err := d.Fingerprint()
	if err != nil {
		t.Fatalf("fingerprint failed: %v", err)
	}
	fp2, _ := d.Fingerprint()
	if fp1 != fp2 {
		t.Fatal("fingerprint must be deterministic")
	}
	if !strings.HasPrefix(fp1, "dev1") {
		t.Fatalf("unexpected fingerprint format: %q", fp1)
	}
	if _, err := FingerprintOf([]byte("short")); !errors.Is(err, ErrInvalidPublicKey) {
		t.Fatalf("expected ErrInvalidPublicKey, got %v", err)
	}
}

func TestRecoveryPhraseRoundtrip(t *testing.T) {
	d := NewDeviceIdentity(securestore.NewMemoryStore())
	original, err := d.GetOrCreateKeyPair()
	if err != nil {
		t.Fatalf("generate failed: %v", err)
	}
	phrase, err := d.ExportRecoveryPhrase()
	if err != nil {
		t.Fatalf("export failed: %v", err)
	}
	if got := len(strings.Fields(phrase)); got != 24 {
		t.Fatalf("expected 24-word phrase, got %d words", got)
	}

	// Fresh install: empty store, restore from phrase.
	restored := NewDeviceIdentity(securestore.NewMemoryStore())
	pair, err := restored.ImportRecoveryPhrase(phrase)
	if err != nil {
		t.Fatalf("import failed: %v", err)
	}
	if !bytes.Equal(pair.SecretKey, original.SecretKey) || !bytes.Equal(pair.PublicKey, original.PublicKey) {
		t.Fatal("restored keypair must match the exported one")
	}
}

func TestImportRecoveryPhraseRejectsGarbage(t *testing.T) {
	d := NewDeviceIdentity(securestore.NewMemoryStore())
	if _, err := d.ImportRecoveryPhrase("   "); !errors.Is(err, ErrMnemonicRequired) {
		t.Fatalf("expected ErrMnemonicRequired, got %v", err)
	}
	if _, err := d.ImportRecoveryPhrase("correct horse battery staple"); !errors.Is(err, ErrInvalidMnemonic) {
		t.Fatalf("expected ErrInvalidMnemonic, got %v", err)
	}
}
