package fetcher_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelsmith/internal/fetcher"
	"reelsmith/internal/services"
	"reelsmith/internal/testsupport"
)

func newClient(t *testing.T, handler http.Handler) *fetcher.Client {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return fetcher.NewClient(testsupport.NewConfig(t, testsupport.WithDownloaderBaseURL(server.URL)))
}

func TestFetchReturnsBytesAndHeaders(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/download" {
			t.Errorf("unexpected request %s %s", r.Method, r.URL.Path)
		}
		var body map[string]string
		if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body["shortcode"] != "ABC123" {
			t.Errorf("unexpected body %v (%v)", body, err)
		}
		w.Header().Set("X-Shortcode", "ABC123")
		w.Header().Set("X-Filename", "ABC123.mp4")
		w.Write([]byte("video-bytes"))
	}))

	download, err := client.Fetch(context.Background(), "ABC123")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if string(download.Data) != "video-bytes" {
		t.Fatalf("unexpected data %q", download.Data)
	}
	if download.Shortcode != "ABC123" || download.Filename != "ABC123.mp4" {
		t.Fatalf("unexpected identity headers: %+v", download)
	}
}

func TestFetchDefaultsFilenameWhenHeaderMissing(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("data"))
	}))

	download, err := client.Fetch(context.Background(), "XYZ")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if download.Filename != "XYZ.mp4" || download.Shortcode != "XYZ" {
		t.Fatalf("expected defaulted identity, got %+v", download)
	}
}

func TestFetchEmptyBodyIsPermanent(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))

	_, err := client.Fetch(context.Background(), "EMPTY")
	if !errors.Is(err, services.ErrProviderPermanent) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}

func TestFetchRejectsEmptyShortcode(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))

	_, err := client.Fetch(context.Background(), "  ")
	if !errors.Is(err, services.ErrValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestFetchMapsStatusCodes(t *testing.T) {
	cases := []struct {
		status int
		marker error
	}{
		{http.StatusNotFound, services.ErrNotFound},
		{http.StatusBadGateway, services.ErrProviderTransient},
		{http.StatusTooManyRequests, services.ErrProviderTransient},
		{http.StatusUnprocessableEntity, services.ErrProviderPermanent},
	}
	for _, tc := range cases {
		client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))
		_, err := client.Fetch(context.Background(), "ANY")
		if !errors.Is(err, tc.marker) {
			t.Fatalf("status %d: expected %v, got %v", tc.status, tc.marker, err)
		}
	}
}

func TestFetchMetadataDecodesResponse(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/metadata" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"caption":      "sunset reel",
			"author":       "someone",
			"likeCount":    1200,
			"commentCount": 34,
			"viewCount":    56000,
			"thumbnailUrl": "https://cdn.example/thumb.jpg",
			"duration":     17.5,
		})
	}))

	meta, err := client.FetchMetadata(context.Background(), "META1")
	if err != nil {
		t.Fatalf("FetchMetadata: %v", err)
	}
	if meta.Caption != "sunset reel" || meta.Author != "someone" {
		t.Fatalf("unexpected metadata %+v", meta)
	}
	if meta.LikeCount != 1200 || meta.ViewCount != 56000 || meta.DurationSec != 17.5 {
		t.Fatalf("unexpected counters %+v", meta)
	}
	if meta.Shortcode != "META1" {
		t.Fatalf("expected shortcode backfill, got %q", meta.Shortcode)
	}
}

func TestFetchMetadataBadJSONIsPermanent(t *testing.T) {
	client := newClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not-json"))
	}))

	_, err := client.FetchMetadata(context.Background(), "BAD")
	if !errors.Is(err, services.ErrProviderPermanent) {
		t.Fatalf("expected permanent failure, got %v", err)
	}
}
