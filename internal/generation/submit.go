package generation

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"reelsmith/internal/services"
)

// Submit sends one generation request and returns the provider task id.
// An accepted response without a task id is a permanent failure; it never
// enters the polling budget.
func (c *Client) Submit(ctx context.Context, request Request) (string, error) {
	if err := request.Validate(); err != nil {
		return "", err
	}

	token, err := c.bearerToken(ctx)
	if err != nil {
		return "", err
	}

	payload, err := json.Marshal(buildSubmitRequest(request))
	if err != nil {
		return "", fmt.Errorf("encode submit request: %w", err)
	}

	resp, err := c.doWithRetry(ctx, "submit", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/videos/generations", bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+token)
		return req, nil
	})
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		drainBody(resp)
		c.InvalidateCredentials()
		return "", services.Wrap(services.ErrProviderPermanent, "generation", "submit", "provider rejected credentials", nil)
	case resp.StatusCode >= 400:
		detail := readErrorBody(resp)
		return "", services.Wrap(services.ErrProviderPermanent, "generation", "submit", fmt.Sprintf("submission rejected with %d%s", resp.StatusCode, detail), nil)
	}

	var body struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
		Data    struct {
			TaskID string `json:"task_id"`
		} `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", services.Wrap(services.ErrProviderPermanent, "generation", "submit", "decoding submission response failed", err)
	}
	if body.Code != 0 {
		return "", services.Wrap(services.ErrProviderPermanent, "generation", "submit", fmt.Sprintf("provider declined submission: %s", body.Message), nil)
	}

	taskID := strings.TrimSpace(body.Data.TaskID)
	if taskID == "" {
		return "", services.Wrap(services.ErrProviderPermanent, "generation", "submit", "accepted submission carried no task id", nil)
	}
	return taskID, nil
}
