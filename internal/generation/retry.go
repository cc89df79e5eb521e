package generation

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"reelsmith/internal/services"
)

// retryableStatuses are the transient provider responses worth another try.
var retryableStatuses = map[int]bool{
	http.StatusTooManyRequests:    true,
	http.StatusBadGateway:         true,
	http.StatusServiceUnavailable: true,
	http.StatusGatewayTimeout:     true,
}

// doWithRetry executes one logical HTTP call with the tiered retry policy:
// retryable statuses and transient network signatures back off base×2^attempt
// capped at the maximum; everything else returns on the first response.
func (c *Client) doWithRetry(ctx context.Context, operation string, build func() (*http.Request, error)) (*http.Response, error) {
	attempts := c.retryAttempts
	if attempts <= 0 {
		attempts = 1
	}

	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		if attempt > 0 {
			if err := c.sleep(ctx, c.backoffDelay(attempt-1)); err != nil {
				return nil, err
			}
		}

		req, err := build()
		if err != nil {
			return nil, fmt.Errorf("build %s request: %w", operation, err)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			if ctx.Err() != nil {
				return nil, services.Wrap(services.ErrTimeout, "generation", operation, "request context expired", err)
			}
			if !isRetryableNetErr(err) {
				return nil, services.Wrap(services.ErrProviderPermanent, "generation", operation, "provider request failed", err)
			}
			lastErr = err
			continue
		}
		if retryableStatuses[resp.StatusCode] {
			detail := readErrorBody(resp)
			resp.Body.Close()
			lastErr = fmt.Errorf("provider returned %d%s", resp.StatusCode, detail)
			continue
		}
		return resp, nil
	}

	marker := services.ErrProviderTransient
	if isTimeoutErr(lastErr) {
		marker = services.ErrTimeout
	}
	return nil, services.Wrap(marker, "generation", operation, fmt.Sprintf("retry budget exhausted after %d attempts", attempts), lastErr)
}

func (c *Client) backoffDelay(attempt int) time.Duration {
	base := c.retryBase
	if base <= 0 {
		base = 500 * time.Millisecond
	}
	delay := base << attempt
	if c.retryMax > 0 && delay > c.retryMax {
		delay = c.retryMax
	}
	return delay
}

func isRetryableNetErr(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if isTimeoutErr(err) {
		return true
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.ECONNREFUSED) {
		return true
	}
	message := err.Error()
	return strings.Contains(message, "connection reset") || strings.Contains(message, "EOF")
}

func isTimeoutErr(err error) bool {
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
