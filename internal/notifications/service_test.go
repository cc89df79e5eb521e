package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"reelsmith/internal/config"
	"reelsmith/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyPipelineCompleted(context.Background(), "ABC123", 4); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(svc notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "ingested",
			notify: func(svc notifications.Service) error {
				return svc.NotifyIngested(context.Background(), "ABC123")
			},
			expectTitle:   "Reelsmith - Ingested",
			expectMessage: "Queued for processing: ABC123",
			expectTags:    "reelsmith,ingest,queued",
		},
		{
			name: "pipeline completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyPipelineCompleted(context.Background(), "ABC123", 4)
			},
			expectTitle:   "Reelsmith - Analyzed",
			expectMessage: "Pipeline complete: ABC123 (4 scenes)",
			expectTags:    "reelsmith,pipeline,completed",
		},
		{
			name: "pipeline failed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyPipelineFailed(context.Background(), "ABC123", "download stalled")
			},
			expectTitle:    "Reelsmith - Pipeline Failed",
			expectMessage:  "Pipeline failed: ABC123\ndownload stalled",
			expectTags:     "reelsmith,pipeline,failed",
			expectPriority: "high",
		},
		{
			name: "composite completed",
			notify: func(svc notifications.Service) error {
				return svc.NotifyCompositeCompleted(context.Background(), "ABC123", "composites/42.mp4")
			},
			expectTitle:    "Reelsmith - Composite Ready",
			expectMessage:  "Composite ready: ABC123\nArtifact: composites/42.mp4",
			expectTags:     "reelsmith,composite,completed",
			expectPriority: "high",
		},
		{
			name: "composite failed names the scene",
			notify: func(svc notifications.Service) error {
				return svc.NotifyCompositeFailed(context.Background(), "ABC123", "scene-1", "generation rejected")
			},
			expectTitle:    "Reelsmith - Composite Failed",
			expectMessage:  "Composite failed: ABC123 (scene scene-1)\ngeneration rejected",
			expectTags:     "reelsmith,composite,failed",
			expectPriority: "high",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("token refresh failed"), "generation")
			},
			expectTitle:    "Reelsmith - Error",
			expectMessage:  "Error with generation: token refresh failed",
			expectTags:     "reelsmith,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceSurfacesServerErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "topic quota exceeded", http.StatusTooManyRequests)
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	svc := notifications.NewService(&cfg)
	err := svc.TestNotification(context.Background())
	if err == nil {
		t.Fatal("expected error for non-2xx response")
	}
}
