// Package config loads the key-subsystem settings from an optional yaml file
// merged with DUET_* environment overrides. The store passphrase is never
// written to the file; the file names the env var that carries it.
package config

import (
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

type Config struct {
	Store  StoreConfig  `yaml:"store"`
	Limits LimitsConfig `yaml:"limits"`
}

type StoreConfig struct {
	// Path of the encrypted key store file.
	Path string `yaml:"path"`
	// PassphraseEnv names the env var holding the store passphrase.
	PassphraseEnv string `yaml:"passphraseEnv"`
}

type LimitsConfig struct {
	UnwrapRPS   float64 `yaml:"unwrapRps"`
	UnwrapBurst int     `yaml:"unwrapBurst"`
}

func Default() Config {
	return Config{
		Store: StoreConfig{
			Path:          "data/keystore.duet",
			PassphraseEnv: "DUET_STORE_PASSPHRASE",
		},
		Limits: LimitsConfig{
			UnwrapRPS:   1,
			UnwrapBurst: 5,
		},
	}
}

// LoadFromPath reads the config file when present, falling back to defaults,
// and applies env overrides last. A missing or unparsable file is not an
// error; the subsystem must come up with defaults on first launch.
func LoadFromPath(configPath string) Config {
	cfg := Default()

	candidates := make([]string, 0, 2)
	if configPath != "" {
		candidates = append(candidates, configPath)
	} else {
		candidates = append(candidates, "configs/duet.yaml")
	}

	for _, path := range candidates {
		data, err := os.ReadFile(path)
		if err != nil {
			continue
		}
		var parsed Config
		if err := yaml.Unmarshal(data, &parsed); err != nil {
			continue
		}
		merge(&cfg, parsed)
		break
	}

	applyEnvOverrides(&cfg)
	return cfg
}

// Passphrase resolves the store passphrase from the configured env var.
func (c Config) Passphrase() string {
	return os.Getenv(c.Store.PassphraseEnv)
}

func merge(dst *Config, src Config) {
	if src.Store.Path != "" {
		dst.Store.Path = src.Store.Path
	}
	if src.Store.PassphraseEnv != "" {
		dst.Store.PassphraseEnv = src.Store.PassphraseEnv
	}
	if src.Limits.UnwrapRPS > 0 {
		dst.Limits.UnwrapRPS = src.Limits.UnwrapRPS
	}
	if src.Limits.UnwrapBurst > 0 {
		dst.Limits.UnwrapBurst = src.Limits.UnwrapBurst
	}
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DUET_STORE_PATH"); v != "" {
		cfg.Store.Path = v
	}
	if v := os.Getenv("DUET_STORE_PASSPHRASE_ENV"); v != "" {
		cfg.Store.PassphraseEnv = v
	}
	if v := os.Getenv("DUET_UNWRAP_RPS"); v != "" {
		if parsed, err := strconv.ParseFloat(v, 64); err == nil && parsed > 0 {
			cfg.Limits.UnwrapRPS = parsed
		}
	}
	if v := os.Getenv("DUET_UNWRAP_BURST"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			cfg.Limits.UnwrapBurst = parsed
		}
	}
}
