package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"reelsmith/internal/config"
)

const userAgent = "Reelsmith-Go/0.1.0"

// Service defines the notification surface exposed to workflow components.
type Service interface {
	NotifyIngested(ctx context.Context, shortcode string) error
	NotifyPipelineCompleted(ctx context.Context, shortcode string, scenes int) error
	NotifyPipelineFailed(ctx context.Context, shortcode, reason string) error
	NotifyCompositeCompleted(ctx context.Context, shortcode, resultKey string) error
	NotifyCompositeFailed(ctx context.Context, shortcode, sceneID, reason string) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	client := &http.Client{Timeout: timeout}
	return &ntfyService{
		endpoint: topic,
		client:   client,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyIngested(ctx context.Context, shortcode string) error {
	shortcode = strings.TrimSpace(shortcode)
	data := payload{
		title:   "Reelsmith - Ingested",
		message: fmt.Sprintf("Queued for processing: %s", shortcode),
		tags:    []string{"reelsmith", "ingest", "queued"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPipelineCompleted(ctx context.Context, shortcode string, scenes int) error {
	shortcode = strings.TrimSpace(shortcode)
	data := payload{
		title:   "Reelsmith - Analyzed",
		message: fmt.Sprintf("Pipeline complete: %s (%d scenes)", shortcode, scenes),
		tags:    []string{"reelsmith", "pipeline", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyPipelineFailed(ctx context.Context, shortcode, reason string) error {
	shortcode = strings.TrimSpace(shortcode)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	data := payload{
		title:    "Reelsmith - Pipeline Failed",
		message:  fmt.Sprintf("Pipeline failed: %s\n%s", shortcode, reason),
		tags:     []string{"reelsmith", "pipeline", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCompositeCompleted(ctx context.Context, shortcode, resultKey string) error {
	shortcode = strings.TrimSpace(shortcode)
	message := fmt.Sprintf("Composite ready: %s", shortcode)
	if resultKey = strings.TrimSpace(resultKey); resultKey != "" {
		message = fmt.Sprintf("%s\nArtifact: %s", message, resultKey)
	}
	data := payload{
		title:    "Reelsmith - Composite Ready",
		message:  message,
		tags:     []string{"reelsmith", "composite", "completed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCompositeFailed(ctx context.Context, shortcode, sceneID, reason string) error {
	shortcode = strings.TrimSpace(shortcode)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "unknown"
	}
	message := fmt.Sprintf("Composite failed: %s", shortcode)
	if sceneID = strings.TrimSpace(sceneID); sceneID != "" {
		message = fmt.Sprintf("%s (scene %s)", message, sceneID)
	}
	message = fmt.Sprintf("%s\n%s", message, reason)
	data := payload{
		title:    "Reelsmith - Composite Failed",
		message:  message,
		tags:     []string{"reelsmith", "composite", "failed"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	var builder strings.Builder
	builder.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		builder.WriteString(" with ")
		builder.WriteString(contextLabel)
	}
	builder.WriteString(": ")
	if err != nil {
		builder.WriteString(strings.TrimSpace(err.Error()))
	} else {
		builder.WriteString("unknown")
	}

	data := payload{
		title:    "Reelsmith - Error",
		message:  builder.String(),
		tags:     []string{"reelsmith", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Reelsmith - Test",
		message:  "Notification system test",
		tags:     []string{"reelsmith", "test"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

type noopService struct{}

func (noopService) NotifyIngested(context.Context, string) error                   { return nil }
func (noopService) NotifyPipelineCompleted(context.Context, string, int) error     { return nil }
func (noopService) NotifyPipelineFailed(context.Context, string, string) error     { return nil }
func (noopService) NotifyCompositeCompleted(context.Context, string, string) error { return nil }
func (noopService) NotifyCompositeFailed(context.Context, string, string, string) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
