package config

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	envPrefix  = "GAP_"
	envConfig  = "GAP_CONFIG"
	keyDivider = "."
)

// legacyEnv maps the validator's older variable names onto config keys. A
// scale converts the old unit; the new variable wins when both are set.
var legacyEnv = []struct {
	name, replacement, key string
	scale                  int64
}{
	{name: "GAP_MAX_JSONL_MB", replacement: "GAP_MAX_CONTROLS_BYTES", key: "max_controls_bytes", scale: mib},
	{name: "GAP_MAX_JSONL_LINES", replacement: "GAP_MAX_CONTROLS_RECORDS", key: "max_controls_records", scale: 1},
}

// Load builds a Config by layering defaults, an optional file, and env vars.
// Order of precedence (low -> high):
//  1. defaults (New())
//  2. YAML file named by GAP_CONFIG
//  3. env (prefix GAP_, e.g. GAP_MAX_VIDEO_BYTES), including the legacy
//     GAP_MAX_JSONL_MB and GAP_MAX_JSONL_LINES names
func Load(_ context.Context) (*Config, error) {
	base := New()
	k := koanf.New(keyDivider)

	if path := os.Getenv(envConfig); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrLoadConfig, path, err)
		}
	}

	// GAP_MAX_VIDEO_BYTES -> max_video_bytes. Keys stay flat.
	envProvider := env.Provider(envPrefix, keyDivider, func(s string) string {
		if s == envConfig || isLegacy(s) {
			return ""
		}
		return strings.ToLower(strings.TrimPrefix(s, envPrefix))
	})
	if err := k.Load(envProvider, nil); err != nil {
		return nil, fmt.Errorf("%w: env: %w", ErrLoadConfig, err)
	}

	if err := loadLegacyEnv(k); err != nil {
		return nil, err
	}

	cfg := *base
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrLoadConfig, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func isLegacy(name string) bool {
	for _, l := range legacyEnv {
		if l.name == name {
			return true
		}
	}
	return false
}

func loadLegacyEnv(k *koanf.Koanf) error {
	for _, l := range legacyEnv {
		raw, ok := os.LookupEnv(l.name)
		if !ok {
			continue
		}
		if _, set := os.LookupEnv(l.replacement); set {
			continue
		}
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s: %w", ErrLoadConfig, l.name, err)
		}
		if err := k.Set(l.key, n*l.scale); err != nil {
			return fmt.Errorf("%w: %s: %w", ErrLoadConfig, l.name, err)
		}
	}
	return nil
}
