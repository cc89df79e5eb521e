package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeQueue()
	c.normalizeProvider()
	c.normalizeDownloader()
	c.normalizeAnalysis()
	c.normalizeComposer()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if c.Paths.StagingDir, err = expandPath(c.Paths.StagingDir); err != nil {
		return fmt.Errorf("paths.staging_dir: %w", err)
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Storage.RootDir) == "" {
		c.Storage.RootDir = defaultStorageDir
	}
	if c.Storage.RootDir, err = expandPath(c.Storage.RootDir); err != nil {
		return fmt.Errorf("storage.root_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeQueue() {
	if c.Queue.PollInterval <= 0 {
		c.Queue.PollInterval = defaultQueuePollInterval
	}
	if c.Queue.ErrorRetryInterval <= 0 {
		c.Queue.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Queue.HeartbeatInterval <= 0 {
		c.Queue.HeartbeatInterval = defaultHeartbeatInterval
	}
	if c.Queue.HeartbeatTimeout <= 0 {
		c.Queue.HeartbeatTimeout = defaultHeartbeatTimeout
	}
	if c.Queue.PipelineConcurrency <= 0 {
		c.Queue.PipelineConcurrency = defaultPipelineConcurrency
	}
	if c.Queue.SceneConcurrency <= 0 {
		c.Queue.SceneConcurrency = defaultSceneConcurrency
	}
	if c.Queue.CompositeConcurrency <= 0 {
		c.Queue.CompositeConcurrency = defaultCompositeConcurrency
	}
}

func (c *Config) normalizeProvider() {
	c.Provider.BaseURL = strings.TrimRight(strings.TrimSpace(c.Provider.BaseURL), "/")
	if c.Provider.BaseURL == "" {
		c.Provider.BaseURL = defaultProviderBaseURL
	}
	c.Provider.AccessKeyID = strings.TrimSpace(c.Provider.AccessKeyID)
	if c.Provider.AccessKeyID == "" {
		if value, ok := os.LookupEnv("REELSMITH_PROVIDER_KEY_ID"); ok {
			c.Provider.AccessKeyID = strings.TrimSpace(value)
		}
	}
	c.Provider.AccessKeySecret = strings.TrimSpace(c.Provider.AccessKeySecret)
	if c.Provider.AccessKeySecret == "" {
		if value, ok := os.LookupEnv("REELSMITH_PROVIDER_KEY_SECRET"); ok {
			c.Provider.AccessKeySecret = strings.TrimSpace(value)
		}
	}
	if c.Provider.TokenTTLSeconds <= 0 {
		c.Provider.TokenTTLSeconds = defaultProviderTokenTTL
	}
	if c.Provider.TokenSafetyMargin <= 0 {
		c.Provider.TokenSafetyMargin = defaultProviderTokenMargin
	}
	if c.Provider.RequestTimeout <= 0 {
		c.Provider.RequestTimeout = defaultProviderRequestTimeout
	}
	if c.Provider.PollInterval <= 0 {
		c.Provider.PollInterval = defaultProviderPollInterval
	}
	if c.Provider.MaxPollAttempts <= 0 {
		c.Provider.MaxPollAttempts = defaultProviderMaxPollAttempts
	}
	if c.Provider.RetryBaseMillis <= 0 {
		c.Provider.RetryBaseMillis = defaultProviderRetryBaseMillis
	}
	if c.Provider.RetryMaxMillis <= 0 {
		c.Provider.RetryMaxMillis = defaultProviderRetryMaxMillis
	}
	if c.Provider.RetryAttempts <= 0 {
		c.Provider.RetryAttempts = defaultProviderRetryAttempts
	}
}

func (c *Config) normalizeDownloader() {
	c.Downloader.BaseURL = strings.TrimRight(strings.TrimSpace(c.Downloader.BaseURL), "/")
	if c.Downloader.BaseURL == "" {
		c.Downloader.BaseURL = defaultDownloaderBaseURL
	}
	if c.Downloader.RequestTimeout <= 0 {
		c.Downloader.RequestTimeout = defaultDownloaderTimeout
	}
}

func (c *Config) normalizeAnalysis() {
	if c.Analysis.FrameIntervalSec <= 0 {
		c.Analysis.FrameIntervalSec = defaultFrameIntervalSec
	}
	if c.Analysis.MaxFrames <= 0 {
		c.Analysis.MaxFrames = defaultMaxFrames
	}
	if c.Analysis.MinSceneSeconds <= 0 {
		c.Analysis.MinSceneSeconds = defaultMinSceneSeconds
	}
}

func (c *Config) normalizeComposer() {
	if c.Composer.WaitPollInterval <= 0 {
		c.Composer.WaitPollInterval = defaultComposerWaitPollInterval
	}
	if c.Composer.WaitBudget <= 0 {
		c.Composer.WaitBudget = defaultComposerWaitBudget
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	switch c.Logging.Format {
	case "", "console":
		c.Logging.Format = "console"
	case "json":
	default:
		c.Logging.Format = "console"
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if c.Notifications.RequestTimeout <= 0 {
		c.Notifications.RequestTimeout = defaultNotifyRequestTimeout
	}
}
