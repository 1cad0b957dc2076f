package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/joho/godotenv"
	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir string `toml:"data_dir"`
	LogDir  string `toml:"log_dir"`
	APIBind string `toml:"api_bind"`
}

// Profile points at the candidate assets the scorers and generator consume.
type Profile struct {
	NarrativePath string `toml:"narrative_path"`
	ContactName   string `toml:"contact_name"`
}

// Matching holds scoring thresholds and the fast-scorer embedding endpoint.
type Matching struct {
	GatingThreshold float64 `toml:"gating_threshold"`
	NotifyThreshold float64 `toml:"notify_threshold"`
	CosineWeight    float64 `toml:"cosine_weight"`
	EmbeddingsURL   string  `toml:"embeddings_url"`
	EmbeddingsModel string  `toml:"embeddings_model"`
}

// Resource describes the exclusive deep-scoring host and its power lifecycle.
type Resource struct {
	MACAddress    string `toml:"mac_address"`
	BroadcastAddr string `toml:"broadcast_addr"`
	ProbeURL      string `toml:"probe_url"`
	SleepURL      string `toml:"sleep_url"`
	WakeAttempts  int    `toml:"wake_attempts"`
	SettleSeconds int    `toml:"settle_seconds"`
	IdleSeconds   int    `toml:"idle_seconds"`
}

// Reasoner configures the deep-scoring model endpoint.
type Reasoner struct {
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Generator configures the letter-drafting model endpoint.
type Generator struct {
	APIKey         string `toml:"api_key"`
	BaseURL        string `toml:"base_url"`
	Model          string `toml:"model"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Ingest configures posting retrieval.
type Ingest struct {
	RequestTimeout int    `toml:"request_timeout"`
	UserAgent      string `toml:"user_agent"`
}

// Notifications contains reviewer notification channel settings.
type Notifications struct {
	TelegramToken  string `toml:"telegram_token"`
	TelegramChatID int64  `toml:"telegram_chat_id"`
	WebhookURL     string `toml:"webhook_url"`
	RequestTimeout int    `toml:"request_timeout"`
}

// Approval configures the human decision gate.
type Approval struct {
	WindowHours          int `toml:"window_hours"`
	HardExpiryHours      int `toml:"hard_expiry_hours"`
	SweepIntervalSeconds int `toml:"sweep_interval_seconds"`
}

// Workflow contains daemon timing and retry settings.
type Workflow struct {
	PollInterval       int `toml:"poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	Workers            int `toml:"workers"`
	RetryBaseSeconds   int `toml:"retry_base_seconds"`
	RetryMaxAttempts   int `toml:"retry_max_attempts"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the pipeline.
type Config struct {
	Paths         Paths         `toml:"paths"`
	Profile       Profile       `toml:"profile"`
	Matching      Matching      `toml:"matching"`
	Resource      Resource      `toml:"resource"`
	Reasoner      Reasoner      `toml:"reasoner"`
	Generator     Generator     `toml:"generator"`
	Ingest        Ingest        `toml:"ingest"`
	Notifications Notifications `toml:"notifications"`
	Approval      Approval      `toml:"approval"`
	Workflow      Workflow      `toml:"workflow"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/snatcher/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned
// config has all path fields expanded and environment overrides applied.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	cfg.applyEnvOverrides()

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// applyEnvOverrides lets secrets come from the environment or a .env file.
func (c *Config) applyEnvOverrides() {
	_ = godotenv.Load()

	if v := strings.TrimSpace(os.Getenv("SNATCHER_TELEGRAM_TOKEN")); v != "" {
		c.Notifications.TelegramToken = v
	}
	if v := strings.TrimSpace(os.Getenv("SNATCHER_TELEGRAM_CHAT_ID")); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			c.Notifications.TelegramChatID = id
		}
	}
	if v := strings.TrimSpace(os.Getenv("SNATCHER_GENERATOR_API_KEY")); v != "" {
		c.Generator.APIKey = v
	}
	if v := strings.TrimSpace(os.Getenv("SNATCHER_RESOURCE_MAC")); v != "" {
		c.Resource.MACAddress = v
	}
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("snatcher.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}
