package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"scout/internal/config"
)

const userAgent = "Scout-Go/0.1.0"

// Service defines the notification surface exposed to scout components.
type Service interface {
	NotifySourceDeactivated(ctx context.Context, sourceName string, failures int) error
	NotifyItemHeld(ctx context.Context, itemTitle, reason string) error
	NotifyItemPublished(ctx context.Context, itemTitle string) error
	NotifyCycleError(ctx context.Context, sourceName string, err error) error
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
		endpoint:     topic,
		client:       client,
		sourceHealth: cfg.Notifications.SourceHealth,
		review:       cfg.Notifications.Review,
		errors:       cfg.Notifications.Errors,
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint     string
	client       *http.Client
	sourceHealth bool
	review       bool
	errors       bool
}

func (n *ntfyService) NotifySourceDeactivated(ctx context.Context, sourceName string, failures int) error {
	if !n.sourceHealth {
		return nil
	}
	sourceName = strings.TrimSpace(sourceName)
	data := payload{
		title:    "Scout - Source Deactivated",
		message:  fmt.Sprintf("Source %s deactivated after %d consecutive failures", sourceName, failures),
		tags:     []string{"scout", "source", "deactivated"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyItemHeld(ctx context.Context, itemTitle, reason string) error {
	if !n.review {
		return nil
	}
	itemTitle = strings.TrimSpace(itemTitle)
	message := fmt.Sprintf("Held for review: %s", itemTitle)
	if reason = strings.TrimSpace(reason); reason != "" {
		message = fmt.Sprintf("%s\nReason: %s", message, reason)
	}
	data := payload{
		title:   "Scout - Review Needed",
		message: message,
		tags:    []string{"scout", "review", "hold"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyItemPublished(ctx context.Context, itemTitle string) error {
	if !n.review {
		return nil
	}
	itemTitle = strings.TrimSpace(itemTitle)
	data := payload{
		title:   "Scout - Published",
		message: fmt.Sprintf("Published: %s", itemTitle),
		tags:    []string{"scout", "publish", "completed"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyCycleError(ctx context.Context, sourceName string, err error) error {
	if !n.errors {
		return nil
	}
	sourceName = strings.TrimSpace(sourceName)
	message := fmt.Sprintf("Check cycle failed for %s", sourceName)
	if err != nil {
		message = fmt.Sprintf("%s: %s", message, strings.TrimSpace(err.Error()))
	}
	data := payload{
		title:   "Scout - Cycle Failed",
		message: message,
		tags:    []string{"scout", "cycle", "error"},
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	if !n.errors {
		return nil
	}
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
		title:    "Scout - Error",
		message:  builder.String(),
		tags:     []string{"scout", "error", "alert"},
		priority: "high",
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	data := payload{
		title:    "Scout - Test",
		message:  "Notification system test",
		tags:     []string{"scout", "test"},
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

func (noopService) NotifySourceDeactivated(context.Context, string, int) error { return nil }
func (noopService) NotifyItemHeld(context.Context, string, string) error       { return nil }
func (noopService) NotifyItemPublished(context.Context, string) error          { return nil }
func (noopService) NotifyCycleError(context.Context, string, error) error      { return nil }
func (noopService) NotifyError(context.Context, error, string) error           { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
