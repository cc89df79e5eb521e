package generation

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/logging"
)

const userAgent = "Reelsmith-Go/0.1.0"

// Status is the neutral 4-state model provider vocabularies map onto.
type Status string

const (
	StatusPending    Status = "pending"
	StatusProcessing Status = "processing"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
)

// Terminal reports whether the status ends a poll cycle.
func (s Status) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}

// Client talks to the external video-generation provider. Construct one per
// process and inject it; it carries the shared token cache.
type Client struct {
	baseURL   string
	keyID     string
	keySecret string

	httpClient    *http.Client
	logger        *slog.Logger
	tokens        *tokenCache
	pollInterval  time.Duration
	maxPollTicks  int
	retryBase     time.Duration
	retryMax      time.Duration
	retryAttempts int

	now   func() time.Time
	sleep func(context.Context, time.Duration) error
}

// NewClient builds a provider client from configuration.
func NewClient(cfg *config.Config, logger *slog.Logger) *Client {
	if logger == nil {
		logger = logging.NewNop()
	}
	timeout := time.Duration(cfg.Provider.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 45 * time.Second
	}

	client := &Client{
		baseURL:       strings.TrimRight(cfg.Provider.BaseURL, "/"),
		keyID:         cfg.Provider.AccessKeyID,
		keySecret:     cfg.Provider.AccessKeySecret,
		httpClient:    &http.Client{Timeout: timeout},
		logger:        logger.With(logging.String(logging.FieldComponent, "generation")),
		pollInterval:  time.Duration(cfg.Provider.PollInterval) * time.Second,
		maxPollTicks:  cfg.Provider.MaxPollAttempts,
		retryBase:     time.Duration(cfg.Provider.RetryBaseMillis) * time.Millisecond,
		retryMax:      time.Duration(cfg.Provider.RetryMaxMillis) * time.Millisecond,
		retryAttempts: cfg.Provider.RetryAttempts,
		now:           time.Now,
		sleep:         sleepCtx,
	}
	client.tokens = newTokenCache(
		time.Duration(cfg.Provider.TokenTTLSeconds)*time.Second,
		time.Duration(cfg.Provider.TokenSafetyMargin)*time.Second,
	)
	return client
}

// InvalidateCredentials discards the cached bearer token so the next request
// generates a fresh one.
func (c *Client) InvalidateCredentials() {
	c.tokens.invalidate()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
