package fetcher

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
	"reelsmith/internal/services"
)

const userAgent = "Reelsmith-Go/0.1.0"

// Metadata describes a post as reported by the download service.
type Metadata struct {
	Shortcode    string  `json:"shortcode"`
	Caption      string  `json:"caption"`
	Author       string  `json:"author"`
	LikeCount    int64   `json:"likeCount"`
	CommentCount int64   `json:"commentCount"`
	ViewCount    int64   `json:"viewCount"`
	ThumbnailURL string  `json:"thumbnailUrl"`
	DurationSec  float64 `json:"duration"`
}

// Download is the fetched source media plus the identifying headers the
// service echoes back.
type Download struct {
	Shortcode string
	Filename  string
	Data      []byte
}

// Client calls the download service over HTTP.
type Client struct {
	baseURL string
	http    *http.Client
}

// NewClient builds a client from the configured downloader settings.
func NewClient(cfg *config.Config) *Client {
	timeout := time.Duration(cfg.Downloader.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 120 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.Downloader.BaseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

// Fetch downloads the source video for a shortcode.
func (c *Client) Fetch(ctx context.Context, shortcode string) (*Download, error) {
	shortcode = strings.TrimSpace(shortcode)
	if shortcode == "" {
		return nil, services.Wrap(services.ErrValidation, "fetcher", "fetch", "shortcode is empty", nil)
	}

	resp, err := c.post(ctx, "/download", map[string]string{"shortcode": shortcode})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "fetch"); err != nil {
		return nil, err
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, services.Wrap(services.ErrProviderTransient, "fetcher", "fetch", "reading download body failed", err)
	}
	if len(data) == 0 {
		return nil, services.Wrap(services.ErrProviderPermanent, "fetcher", "fetch", fmt.Sprintf("download for %s returned no data", shortcode), nil)
	}

	download := &Download{
		Shortcode: resp.Header.Get("X-Shortcode"),
		Filename:  resp.Header.Get("X-Filename"),
		Data:      data,
	}
	if download.Shortcode == "" {
		download.Shortcode = shortcode
	}
	if download.Filename == "" {
		download.Filename = shortcode + ".mp4"
	}
	return download, nil
}

// FetchMetadata retrieves post metadata for a shortcode.
func (c *Client) FetchMetadata(ctx context.Context, shortcode string) (*Metadata, error) {
	shortcode = strings.TrimSpace(shortcode)
	if shortcode == "" {
		return nil, services.Wrap(services.ErrValidation, "fetcher", "metadata", "shortcode is empty", nil)
	}

	resp, err := c.post(ctx, "/metadata", map[string]string{"shortcode": shortcode})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if err := checkStatus(resp, "metadata"); err != nil {
		return nil, err
	}

	var meta Metadata
	if err := json.NewDecoder(resp.Body).Decode(&meta); err != nil {
		return nil, services.Wrap(services.ErrProviderPermanent, "fetcher", "metadata", "decoding metadata response failed", err)
	}
	if meta.Shortcode == "" {
		meta.Shortcode = shortcode
	}
	return &meta, nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]string) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		marker := services.ErrProviderTransient
		if errors.Is(err, context.Canceled) {
			marker = services.ErrInternal
		} else if isTimeout(err) {
			marker = services.ErrTimeout
		}
		return nil, services.Wrap(marker, "fetcher", strings.TrimPrefix(path, "/"), "download service unreachable", err)
	}
	return resp, nil
}

func checkStatus(resp *http.Response, operation string) error {
	if resp.StatusCode < 300 {
		return nil
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
	detail := strings.TrimSpace(string(body))
	message := fmt.Sprintf("download service returned %d", resp.StatusCode)
	if detail != "" {
		message = fmt.Sprintf("%s: %s", message, detail)
	}

	marker := services.ErrProviderPermanent
	switch {
	case resp.StatusCode == http.StatusNotFound:
		marker = services.ErrNotFound
	case resp.StatusCode == http.StatusTooManyRequests, resp.StatusCode >= 500:
		marker = services.ErrProviderTransient
	}
	return services.Wrap(marker, "fetcher", operation, message, nil)
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	return errors.Is(err, context.DeadlineExceeded)
}
