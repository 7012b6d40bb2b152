package testsupport

import (
	"path/filepath"
	"testing"

	"clipforge/internal/config"
)

// ConfigOption allows callers to customize the generated test configuration.
type ConfigOption func(*config.Config)

// NewConfig produces a config seeded with unique temp directories per test.
// It defaults common fields and applies any provided options.
func NewConfig(t testing.TB, opts ...ConfigOption) *config.Config {
	t.Helper()

	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "data")
	cfg.Paths.StagingDir = filepath.Join(base, "staging")
	cfg.Paths.CacheDir = filepath.Join(base, "cache")
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Gateway.Bind = "127.0.0.1:0"
	cfg.Gateway.Token = "test-token"

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithToken overrides the gateway bearer token on the test config.
func WithToken(token string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Gateway.Token = token
	}
}

// WithCacheTTLHours overrides the clip cache retention window.
func WithCacheTTLHours(hours int) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Acquire.CacheTTLHours = hours
	}
}
