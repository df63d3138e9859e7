package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"captioner/internal/config"
)

const (
	userAgent      = "captioner/0.1.0"
	defaultTimeout = 10 * time.Second
	errorBodyLimit = 2048
)

// Service defines the notification surface exposed to the caption runner.
type Service interface {
	NotifyCaptionCompleted(ctx context.Context, source, outputPath string, frames int, elapsed time.Duration) error
	NotifyError(ctx context.Context, err error, context string) error
	TestNotification(ctx context.Context) error
}

// NewService returns an ntfy publisher for the configured topic URL, or a
// service that drops everything when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil || strings.TrimSpace(cfg.Notifications.NtfyTopic) == "" {
		return noopService{}
	}
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &ntfyService{
		topicURL:  strings.TrimSpace(cfg.Notifications.NtfyTopic),
		client:    &http.Client{Timeout: timeout},
		completed: cfg.Notifications.Completed,
		errors:    cfg.Notifications.Errors,
	}
}

// message is one ntfy publish. Headers follow ntfy's HTTP publishing API.
type message struct {
	title    string
	body     string
	tags     []string
	priority string
}

func (m message) headers() http.Header {
	h := http.Header{}
	h.Set("User-Agent", userAgent)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Title", m.title)
	if len(m.tags) > 0 {
		h.Set("Tags", strings.Join(m.tags, ","))
	}
	if m.priority != "" {
		h.Set("Priority", m.priority)
	}
	return h
}

type ntfyService struct {
	topicURL  string
	client    *http.Client
	completed bool
	errors    bool
}

func (n *ntfyService) NotifyCaptionCompleted(ctx context.Context, source, outputPath string, frames int, elapsed time.Duration) error {
	if !n.completed {
		return nil
	}
	lines := []string{"Here is your captioned video: " + filepath.Base(strings.TrimSpace(outputPath))}
	if source = strings.TrimSpace(source); source != "" {
		lines = append(lines, "Source: "+source)
	}
	lines = append(lines, fmt.Sprintf("%d frames in %s", frames, max(elapsed.Round(time.Second), 0)))
	return n.publish(ctx, message{
		title: "Captioner - Complete",
		body:  strings.Join(lines, "\n"),
		tags:  []string{"captioner", "caption", "completed"},
	})
}

func (n *ntfyService) NotifyError(ctx context.Context, err error, subject string) error {
	if !n.errors {
		return nil
	}
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	body := "Error: " + reason
	if subject = strings.TrimSpace(subject); subject != "" {
		body = fmt.Sprintf("Error with %s: %s", subject, reason)
	}
	return n.publish(ctx, message{
		title:    "Captioner - Error",
		body:     body,
		tags:     []string{"captioner", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.publish(ctx, message{
		title:    "Captioner - Test",
		body:     "Notification system test",
		tags:     []string{"captioner", "test"},
		priority: "low",
	})
}

func (n *ntfyService) publish(ctx context.Context, m message) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.topicURL, strings.NewReader(m.body))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header = m.headers()

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))
	if resp.StatusCode >= http.StatusMultipleChoices {
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	return nil
}

type noopService struct{}

func (noopService) NotifyCaptionCompleted(context.Context, string, string, int, time.Duration) error {
	return nil
}
func (noopService) NotifyError(context.Context, error, string) error { return nil }
func (noopService) TestNotification(context.Context) error           { return nil }
