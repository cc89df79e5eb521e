package testsupport

import (
	"path/filepath"
	"testing"

	"reelsmith/internal/config"
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
	cfg.Paths.LogDir = filepath.Join(base, "logs")
	cfg.Storage.RootDir = filepath.Join(base, "media")
	cfg.Provider.AccessKeyID = "test-key-id"
	cfg.Provider.AccessKeySecret = "test-key-secret"

	// Tight intervals so tests never sit in real poll loops.
	cfg.Queue.PollInterval = 1
	cfg.Queue.ErrorRetryInterval = 1
	cfg.Queue.HeartbeatInterval = 1
	cfg.Queue.HeartbeatTimeout = 5

	for _, opt := range opts {
		opt(&cfg)
	}

	return &cfg
}

// WithProviderBaseURL points the generation client at a test server.
func WithProviderBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Provider.BaseURL = url
	}
}

// WithDownloaderBaseURL points the fetcher client at a test server.
func WithDownloaderBaseURL(url string) ConfigOption {
	return func(cfg *config.Config) {
		cfg.Downloader.BaseURL = url
	}
}
