package config

import (
	"fmt"
	"strings"
)

// Validate checks that the configuration is internally consistent. It assumes
// normalize has already run.
func (c *Config) Validate() error {
	var problems []string

	if strings.TrimSpace(c.Paths.DataDir) == "" {
		problems = append(problems, "paths.data_dir is required")
	}
	if strings.TrimSpace(c.Paths.StagingDir) == "" {
		problems = append(problems, "paths.staging_dir is required")
	}

	if c.Queue.HeartbeatTimeout <= c.Queue.HeartbeatInterval {
		problems = append(problems, fmt.Sprintf(
			"queue.heartbeat_timeout (%d) must be greater than queue.heartbeat_interval (%d)",
			c.Queue.HeartbeatTimeout, c.Queue.HeartbeatInterval))
	}

	if !strings.HasPrefix(c.Provider.BaseURL, "http://") && !strings.HasPrefix(c.Provider.BaseURL, "https://") {
		problems = append(problems, fmt.Sprintf("provider.base_url %q must start with http:// or https://", c.Provider.BaseURL))
	}
	if c.Provider.TokenSafetyMargin >= c.Provider.TokenTTLSeconds {
		problems = append(problems, fmt.Sprintf(
			"provider.token_safety_margin (%d) must be less than provider.token_ttl_seconds (%d)",
			c.Provider.TokenSafetyMargin, c.Provider.TokenTTLSeconds))
	}
	if c.Provider.RetryMaxMillis < c.Provider.RetryBaseMillis {
		problems = append(problems, fmt.Sprintf(
			"provider.retry_max_millis (%d) must not be less than provider.retry_base_millis (%d)",
			c.Provider.RetryMaxMillis, c.Provider.RetryBaseMillis))
	}

	if !strings.HasPrefix(c.Downloader.BaseURL, "http://") && !strings.HasPrefix(c.Downloader.BaseURL, "https://") {
		problems = append(problems, fmt.Sprintf("downloader.base_url %q must start with http:// or https://", c.Downloader.BaseURL))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		problems = append(problems, fmt.Sprintf("logging.level %q must be one of debug, info, warn, error", c.Logging.Level))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration:\n  - %s", strings.Join(problems, "\n  - "))
	}
	return nil
}

// RequireProviderCredentials reports an error when the generation provider
// credentials are missing. Called by paths that actually talk to the provider
// so that purely local commands work without keys.
func (c *Config) RequireProviderCredentials() error {
	var missing []string
	if strings.TrimSpace(c.Provider.AccessKeyID) == "" {
		missing = append(missing, "provider.access_key_id")
	}
	if strings.TrimSpace(c.Provider.AccessKeySecret) == "" {
		missing = append(missing, "provider.access_key_secret")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing provider credentials: %s", strings.Join(missing, ", "))
	}
	return nil
}
