// duet-keytool is a local development tool for exercising the couple-key
// subsystem: generate a device identity, print the pairing code, pair from a
// peer's code, enroll devices, rotate, and move envelopes around by hand.
// It talks to the encrypted file store only; there is no network surface.
package main

import (
	"bufio"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"log/slog"
	"os"

	"duet/go-core/internal/config"
	"duet/go-core/internal/couplekey"
	"duet/go-core/internal/identity"
	"duet/go-core/internal/pairing"
	"duet/go-core/internal/platform/privacylog"
	"duet/go-core/internal/securestore"
)

func main() {
	configPath := flag.String("config", "", "Path to duet.yaml (optional)")
	coupleID := flag.String("couple", "", "Couple identifier")
	peerCode := flag.String("peer", "", "Peer pairing code (base64 public key)")
	name := flag.String("name", "device", "Device name for enroll")
	version := flag.Int("key-version", 1, "Key version delivered with an envelope")
	flag.Parse()

	cfg := config.LoadFromPath(*configPath)
	passphrase := cfg.Passphrase()
	if passphrase == "" {
		log.Fatalf("store passphrase env %s is empty", cfg.Store.PassphraseEnv)
	}

	store := securestore.NewFileStore(cfg.Store.Path, passphrase)
	device := identity.NewDeviceIdentity(store)
	logger := slog.New(privacylog.WrapHandler(slog.NewTextHandler(os.Stderr, nil)))
	manager := pairing.NewManager(device, couplekey.NewStore(store), store, pairing.Options{
		Logger:      logger,
		UnwrapRPS:   cfg.Limits.UnwrapRPS,
		UnwrapBurst: cfg.Limits.UnwrapBurst,
	})

	switch flag.Arg(0) {
	case "code":
		code, err := manager.PairingCode()
		exitOn(err)
		fmt.Println(code)
	case "pair":
		requireCouple(*coupleID)
		_, v, err := manager.Pair(*coupleID, *peerCode)
		exitOn(err)
		fmt.Printf("paired, key version %d\n", v)
	case "enroll":
		requireCouple(*coupleID)
		env, err := manager.EnrollDevice(*coupleID, *name, *peerCode)
		exitOn(err)
		exitOn(json.NewEncoder(os.Stdout).Encode(env))
	case "accept":
		requireCouple(*coupleID)
		var env couplekey.Envelope
		exitOn(json.NewDecoder(bufio.NewReader(os.Stdin)).Decode(&env))
		exitOn(manager.AcceptEnvelope(*coupleID, env, *version))
		fmt.Println("accepted")
	case "rotate":
		requireCouple(*coupleID)
		v, envelopes, err := manager.Rotate(*coupleID)
		exitOn(err)
		fmt.Fprintf(os.Stderr, "rotated to version %d\n", v)
		exitOn(json.NewEncoder(os.Stdout).Encode(envelopes))
	case "unpair":
		requireCouple(*coupleID)
		exitOn(manager.Unpair(*coupleID))
		fmt.Println("unpaired")
	case "status":
		requireCouple(*coupleID)
		_, v, ok, err := manager.CurrentKey(*coupleID)
		exitOn(err)
		if !ok {
			fmt.Println("not paired")
			return
		}
		fmt.Printf("paired, key version %d\n", v)
		devices, err := manager.Devices()
		exitOn(err)
		for _, d := range devices {
			fmt.Printf("  %s  %s\n", d.Fingerprint, d.Name)
		}
	case "export-phrase":
		phrase, err := device.ExportRecoveryPhrase()
		exitOn(err)
		fmt.Println(phrase)
	case "import-phrase":
		sc := bufio.NewScanner(os.Stdin)
		sc.Scan()
		_, err := device.ImportRecoveryPhrase(sc.Text())
		exitOn(err)
		fmt.Println("device identity restored")
	default:
		fmt.Fprintln(os.Stderr, "usage: duet-keytool [flags] code|pair|enroll|accept|rotate|unpair|status|export-phrase|import-phrase")
		os.Exit(2)
	}
}

func requireCouple(coupleID string) {
	if coupleID == "" {
		log.Fatal("-couple is required")
	}
}

func exitOn(err error) {
	if err != nil {
		log.Fatalf("duet-keytool: %v", err)
	}
}
