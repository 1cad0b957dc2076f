package testsupport

import (
	"os"
	"path/filepath"
	"testing"

	"snatcher/internal/config"
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
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Paths.APIBind = "127.0.0.1:0"
	cfg.Profile.NarrativePath = filepath.Join(base, "narrative.txt")

	for _, opt := range opts {
		opt(&cfg)
	}

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	return &cfg
}

// WithNarrative writes the candidate narrative into the test config's profile path.
func WithNarrative(t testing.TB, text string) ConfigOption {
	return func(cfg *config.Config) {
		t.Helper()
		if err := os.WriteFile(cfg.Profile.NarrativePath, []byte(text), 0o644); err != nil {
			t.Fatalf("write narrative: %v", err)
		}
	}
}

// WithThresholds overrides the gating and notify thresholds.
func WithThresholds(gating, notify float64) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Matching.GatingThreshold = gating
		cfg.Matching.NotifyThreshold = notify
	}
}
