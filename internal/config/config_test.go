package config_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/pelletier/go-toml/v2"

	"reelsmith/internal/config"
)

func TestLoadDefaultConfigUsesEnvKeysAndExpandsPaths(t *testing.T) {
	t.Setenv("REELSMITH_PROVIDER_KEY_ID", "test-key-id")
	t.Setenv("REELSMITH_PROVIDER_KEY_SECRET", "test-key-secret")
	tempHome := t.TempDir()
	t.Setenv("HOME", tempHome)

	cfg, resolved, exists, err := config.Load("")
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if resolved == "" {
		t.Fatal("expected resolved path")
	}
	if exists {
		t.Fatal("expected config file to be absent in temp HOME")
	}

	wantStaging := filepath.Join(tempHome, ".local", "share", "reelsmith", "staging")
	if cfg.Paths.StagingDir != wantStaging {
		t.Fatalf("unexpected staging dir: got %q want %q", cfg.Paths.StagingDir, wantStaging)
	}
	if cfg.Provider.AccessKeyID != "test-key-id" {
		t.Fatalf("expected provider key id from env, got %q", cfg.Provider.AccessKeyID)
	}
	if cfg.Provider.AccessKeySecret != "test-key-secret" {
		t.Fatalf("expected provider key secret from env, got %q", cfg.Provider.AccessKeySecret)
	}
	if cfg.Provider.BaseURL != config.Default().Provider.BaseURL {
		t.Fatalf("unexpected provider base url: %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.TokenSafetyMargin != 60 {
		t.Fatalf("unexpected token safety margin: %d", cfg.Provider.TokenSafetyMargin)
	}
	if cfg.Queue.HeartbeatInterval != config.Default().Queue.HeartbeatInterval {
		t.Fatalf("unexpected heartbeat interval: %d", cfg.Queue.HeartbeatInterval)
	}
	if cfg.Queue.HeartbeatTimeout != config.Default().Queue.HeartbeatTimeout {
		t.Fatalf("unexpected heartbeat timeout: %d", cfg.Queue.HeartbeatTimeout)
	}
	if cfg.Logging.Format != "console" {
		t.Fatalf("unexpected logging format: %q", cfg.Logging.Format)
	}
	if err := cfg.EnsureDirectories(); err != nil {
		t.Fatalf("EnsureDirectories failed: %v", err)
	}

	for _, dir := range []string{cfg.Paths.DataDir, cfg.Paths.StagingDir, cfg.Paths.LogDir, cfg.Storage.RootDir} {
		info, err := os.Stat(dir)
		if err != nil {
			t.Fatalf("expected directory %q to exist: %v", dir, err)
		}
		if !info.IsDir() {
			t.Fatalf("expected %q to be directory", dir)
		}
	}
}

func TestLoadCustomPath(t *testing.T) {
	tempDir := t.TempDir()
	configPath := filepath.Join(tempDir, "reelsmith.toml")

	type payload struct {
		Provider struct {
			AccessKeyID     string `toml:"access_key_id"`
			AccessKeySecret string `toml:"access_key_secret"`
			BaseURL         string `toml:"base_url"`
			PollInterval    int    `toml:"poll_interval"`
		} `toml:"provider"`
		Queue struct {
			HeartbeatInterval int `toml:"heartbeat_interval"`
			HeartbeatTimeout  int `toml:"heartbeat_timeout"`
		} `toml:"queue"`
		Composer struct {
			WaitBudget int `toml:"wait_budget"`
		} `toml:"composer"`
	}
	custom := payload{}
	custom.Provider.AccessKeyID = "abc"
	custom.Provider.AccessKeySecret = "xyz"
	custom.Provider.BaseURL = "https://example.com/generation/"
	custom.Provider.PollInterval = 3
	custom.Queue.HeartbeatInterval = 20
	custom.Queue.HeartbeatTimeout = 200
	custom.Composer.WaitBudget = 600
	data, err := toml.Marshal(custom)
	if err != nil {
		t.Fatalf("marshal custom config: %v", err)
	}
	if err := os.WriteFile(configPath, data, 0o644); err != nil {
		t.Fatalf("write custom config: %v", err)
	}

	cfg, resolved, exists, err := config.Load(configPath)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if !exists {
		t.Fatal("expected exists to be true")
	}
	if resolved != configPath {
		t.Fatalf("unexpected resolved path: got %q want %q", resolved, configPath)
	}
	if cfg.Provider.BaseURL != "https://example.com/generation" {
		t.Fatalf("expected trailing slash trimmed, got %q", cfg.Provider.BaseURL)
	}
	if cfg.Provider.PollInterval != 3 {
		t.Fatalf("expected poll interval 3, got %d", cfg.Provider.PollInterval)
	}
	if cfg.Queue.HeartbeatInterval != 20 {
		t.Fatalf("expected heartbeat interval 20, got %d", cfg.Queue.HeartbeatInterval)
	}
	if cfg.Queue.HeartbeatTimeout != 200 {
		t.Fatalf("expected heartbeat timeout 200, got %d", cfg.Queue.HeartbeatTimeout)
	}
	if cfg.Composer.WaitBudget != 600 {
		t.Fatalf("expected wait budget 600, got %d", cfg.Composer.WaitBudget)
	}
	if cfg.Provider.MaxPollAttempts != config.Default().Provider.MaxPollAttempts {
		t.Fatalf("expected default max poll attempts, got %d", cfg.Provider.MaxPollAttempts)
	}
}

func TestCreateSample(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sample.toml")
	if err := config.CreateSample(path); err != nil {
		t.Fatalf("CreateSample failed: %v", err)
	}

	contents, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read sample: %v", err)
	}
	if !strings.Contains(string(contents), "[provider]") {
		t.Fatalf("sample config missing provider section: %s", contents)
	}

	var cfg config.Config
	if err := toml.Unmarshal(contents, &cfg); err != nil {
		t.Fatalf("unmarshal sample: %v", err)
	}
}

func TestValidateDetectsInvalidValues(t *testing.T) {
	cfg := config.Default()
	cfg.Queue.HeartbeatTimeout = cfg.Queue.HeartbeatInterval
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when heartbeat timeout <= interval")
	}

	cfg = config.Default()
	cfg.Provider.BaseURL = "ftp://example.com"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for non-http provider base url")
	}

	cfg = config.Default()
	cfg.Provider.TokenSafetyMargin = cfg.Provider.TokenTTLSeconds
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when safety margin >= token ttl")
	}

	cfg = config.Default()
	cfg.Provider.RetryMaxMillis = cfg.Provider.RetryBaseMillis - 1
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error when retry cap below base")
	}

	cfg = config.Default()
	cfg.Logging.Level = "verbose"
	if err := cfg.Validate(); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestRequireProviderCredentials(t *testing.T) {
	cfg := config.Default()
	if err := cfg.RequireProviderCredentials(); err == nil {
		t.Fatal("expected error for missing credentials")
	}
	cfg.Provider.AccessKeyID = "id"
	cfg.Provider.AccessKeySecret = "secret"
	if err := cfg.RequireProviderCredentials(); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}
