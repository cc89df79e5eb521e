package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
	"time"

	"reelsmith/internal/services"
)

// tokenCache holds the process-wide bearer credential. A token is reused
// until fewer than safetyMargin of its validity remains.
type tokenCache struct {
	mu           sync.Mutex
	token        string
	expiresAt    time.Time
	ttl          time.Duration
	safetyMargin time.Duration
}

func newTokenCache(ttl, safetyMargin time.Duration) *tokenCache {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	if safetyMargin <= 0 || safetyMargin >= ttl {
		safetyMargin = time.Minute
	}
	return &tokenCache{ttl: ttl, safetyMargin: safetyMargin}
}

func (t *tokenCache) invalidate() {
	t.mu.Lock()
	t.token = ""
	t.expiresAt = time.Time{}
	t.mu.Unlock()
}

// bearerToken returns the cached token, generating a new one only when the
// remaining validity has dropped below the safety margin.
func (c *Client) bearerToken(ctx context.Context) (string, error) {
	c.tokens.mu.Lock()
	defer c.tokens.mu.Unlock()

	if c.tokens.token != "" && c.now().Add(c.tokens.safetyMargin).Before(c.tokens.expiresAt) {
		return c.tokens.token, nil
	}

	token, expiresIn, err := c.generateToken(ctx)
	if err != nil {
		return "", err
	}
	ttl := c.tokens.ttl
	if expiresIn > 0 {
		ttl = expiresIn
	}
	c.tokens.token = token
	c.tokens.expiresAt = c.now().Add(ttl)
	return token, nil
}

func (c *Client) generateToken(ctx context.Context) (string, time.Duration, error) {
	if strings.TrimSpace(c.keyID) == "" || strings.TrimSpace(c.keySecret) == "" {
		return "", 0, services.Wrap(services.ErrConfiguration, "generation", "token", "provider credentials are not configured", nil)
	}

	payload, err := json.Marshal(map[string]string{
		"access_key_id":     c.keyID,
		"access_key_secret": c.keySecret,
	})
	if err != nil {
		return "", 0, fmt.Errorf("encode token request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, "token", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/auth/token", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return "", 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		drainBody(resp)
		return "", 0, services.Wrap(services.ErrProviderPermanent, "generation", "token", "provider rejected the configured credentials", nil)
	}
	if resp.StatusCode >= 300 {
		detail := readErrorBody(resp)
		return "", 0, services.Wrap(services.ErrProviderTransient, "generation", "token", fmt.Sprintf("token endpoint returned %d%s", resp.StatusCode, detail), nil)
	}

	var body struct {
		Token     string `json:"token"`
		ExpiresIn int    `json:"expires_in"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", 0, services.Wrap(services.ErrProviderPermanent, "generation", "token", "decoding token response failed", err)
	}
	if strings.TrimSpace(body.Token) == "" {
		return "", 0, services.Wrap(services.ErrProviderPermanent, "generation", "token", "token endpoint returned no token", nil)
	}
	return body.Token, time.Duration(body.ExpiresIn) * time.Second, nil
}

func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 2048))
}

func readErrorBody(resp *http.Response) string {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := strings.TrimSpace(string(data))
	if detail == "" {
		return ""
	}
	return ": " + detail
}
