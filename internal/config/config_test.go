package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"snatcher/internal/config"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "absent.toml")

	cfg, resolved, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if exists {
		t.Fatal("exists should be false for a missing file")
	}
	if resolved == "" {
		t.Fatal("resolved path empty")
	}
	if cfg.Matching.GatingThreshold != 0.6 || cfg.Matching.NotifyThreshold != 0.65 {
		t.Fatalf("thresholds = %v / %v", cfg.Matching.GatingThreshold, cfg.Matching.NotifyThreshold)
	}
	if cfg.Matching.CosineWeight != 0.3 {
		t.Fatalf("cosine weight = %v", cfg.Matching.CosineWeight)
	}
	if cfg.Approval.WindowHours != 48 || cfg.Approval.HardExpiryHours != 336 {
		t.Fatalf("approval = %+v", cfg.Approval)
	}
	if cfg.Workflow.Workers != 4 || cfg.Workflow.RetryMaxAttempts != 5 {
		t.Fatalf("workflow = %+v", cfg.Workflow)
	}
}

func TestLoadAppliesFileValuesAndNormalizes(t *testing.T) {
	base := t.TempDir()
	path := writeConfig(t, `
[paths]
data_dir = "`+filepath.Join(base, "data")+`"
log_dir = "`+filepath.Join(base, "logs")+`"

[matching]
gating_threshold = 0.7

[resource]
mac_address = "AA-BB-CC-DD-EE-FF"
idle_seconds = 0

[logging]
format = "JSON"
`)

	cfg, _, exists, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !exists {
		t.Fatal("config file should exist")
	}
	if cfg.Matching.GatingThreshold != 0.7 {
		t.Fatalf("gating = %v", cfg.Matching.GatingThreshold)
	}
	if cfg.Resource.IdleSeconds != 300 {
		t.Fatalf("idle not defaulted: %d", cfg.Resource.IdleSeconds)
	}
	if cfg.Logging.Format != "json" {
		t.Fatalf("format not normalized: %q", cfg.Logging.Format)
	}
	if !filepath.IsAbs(cfg.Paths.DataDir) {
		t.Fatalf("data dir not absolute: %q", cfg.Paths.DataDir)
	}
}

func TestLoadRejectsInvalidValues(t *testing.T) {
	cases := map[string]string{
		"bad threshold": "[matching]\ngating_threshold = 1.5\n",
		"bad mac":       "[resource]\nmac_address = \"not-a-mac\"\n",
		"bad expiry":    "[approval]\nwindow_hours = 48\nhard_expiry_hours = 24\n",
		"bad format":    "[logging]\nformat = \"xml\"\n",
	}
	for name, content := range cases {
		path := writeConfig(t, content)
		if _, _, _, err := config.Load(path); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("SNATCHER_TELEGRAM_TOKEN", "tok-123")
	t.Setenv("SNATCHER_TELEGRAM_CHAT_ID", "4242")
	t.Setenv("SNATCHER_GENERATOR_API_KEY", "key-abc")
	t.Setenv("SNATCHER_RESOURCE_MAC", "aa:bb:cc:dd:ee:ff")

	path := filepath.Join(t.TempDir(), "absent.toml")
	cfg, _, _, err := config.Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Notifications.TelegramToken != "tok-123" || cfg.Notifications.TelegramChatID != 4242 {
		t.Fatalf("telegram overrides = %+v", cfg.Notifications)
	}
	if cfg.Generator.APIKey != "key-abc" {
		t.Fatalf("generator key = %q", cfg.Generator.APIKey)
	}
	if cfg.Resource.MACAddress != "aa:bb:cc:dd:ee:ff" {
		t.Fatalf("mac = %q", cfg.Resource.MACAddress)
	}
}

func TestCreateSampleParses(t *testing.T) {
	target := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(target); err != nil {
		t.Fatalf("create sample: %v", err)
	}
	data, err := os.ReadFile(target)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	for _, section := range []string{"[paths]", "[matching]", "[resource]", "[approval]", "[workflow]"} {
		if !strings.Contains(string(data), section) {
			t.Errorf("sample missing %s", section)
		}
	}
	if _, _, _, err := config.Load(target); err != nil {
		t.Fatalf("sample does not load: %v", err)
	}
}

func TestEnsureDirectories(t *testing.T) {
	base := t.TempDir()
	cfg := config.Default()
	cfg.Paths.DataDir = filepath.Join(base, "nested", "data")
	cfg.Paths.LogDir = filepath.Join(base, "nested", "logs")

	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("ensure directories: %v", err)
	}
	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.LogDir} {
		info, err := os.Stat(dir)
		if err != nil || !info.IsDir() {
			t.Fatalf("dir %s missing: %v", dir, err)
		}
	}
}
