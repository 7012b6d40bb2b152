package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"clipforge/internal/config"
)

const userAgent = "Clipforge-Go/0.1.0"

// Service defines the notification surface exposed to the run pipeline.
type Service interface {
	NotifyRunDispatched(ctx context.Context, recipeName string, runID int64, clipCount int) error
	NotifyRunSkipped(ctx context.Context, recipeName, reason string) error
	NotifyRunCompleted(ctx context.Context, recipeName string, runID int64, outputPath string) error
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

func (n *ntfyService) NotifyRunDispatched(ctx context.Context, recipeName string, runID int64, clipCount int) error {
	recipeName = strings.TrimSpace(recipeName)
	data := payload{
		title:   "Clipforge - Run Started",
		message: fmt.Sprintf("Dispatched run %d for %s with %d clips", runID, recipeName, clipCount),
		tags:    []string{"clipforge", "run", "started"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunSkipped(ctx context.Context, recipeName, reason string) error {
	recipeName = strings.TrimSpace(recipeName)
	reason = strings.TrimSpace(reason)
	if reason == "" {
		reason = "nothing to do"
	}
	data := payload{
		title:    "Clipforge - Run Skipped",
		message:  fmt.Sprintf("Skipped %s: %s", recipeName, reason),
		tags:     []string{"clipforge", "run", "skipped"},
		priority: "low",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyRunCompleted(ctx context.Context, recipeName string, runID int64, outputPath string) error {
	recipeName = strings.TrimSpace(recipeName)
	outputPath = strings.TrimSpace(outputPath)
	message := fmt.Sprintf("Compilation ready for %s (run %d)", recipeName, runID)
	if outputPath != "" {
		message = fmt.Sprintf("%s\nFile: %s", message, outputPath)
	}
	data := payload{
		title:    "Clipforge - Run Complete",
		message:  message,
		tags:     []string{"clipforge", "run", "completed"},
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
		title:    "Clipforge - Error",
		message:  builder.String(),
		tags:     []string{"clipforge", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Clipforge - Test",
		message:  "Notification system test",
		tags:     []string{"clipforge", "test"},
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

func (noopService) NotifyRunDispatched(context.Context, string, int64, int) error  { return nil }
func (noopService) NotifyRunSkipped(context.Context, string, string) error         { return nil }
func (noopService) NotifyRunCompleted(context.Context, string, int64, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error               { return nil }
func (noopService) TestNotification(context.Context) error                         { return nil }
