package generation

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"reelsmith/internal/services"
)

// FetchResult streams the finished clip from the URL the provider published.
// Result URLs are pre-signed and need no bearer token.
func (c *Client) FetchResult(ctx context.Context, resultURL string) (io.ReadCloser, error) {
	if strings.TrimSpace(resultURL) == "" {
		return nil, services.Wrap(services.ErrValidation, "generation", "result", "result url is empty", nil)
	}

	resp, err := c.doWithRetry(ctx, "result", func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, resultURL, nil)
		if err != nil {
			return nil, err
		}
		req.Header.Set("User-Agent", userAgent)
		return req, nil
	})
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		detail := readErrorBody(resp)
		resp.Body.Close()
		marker := services.ErrProviderPermanent
		if resp.StatusCode == http.StatusNotFound {
			marker = services.ErrNotFound
		}
		return nil, services.Wrap(marker, "generation", "result", fmt.Sprintf("fetching result failed with %d%s", resp.StatusCode, detail), nil)
	}
	return resp.Body, nil
}
