package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"tubefront/internal/config"
)

const userAgent = "tubefront/1.0"

// Failure describes a download that did not reach the caller.
type Failure struct {
	JobID string
	URL   string
	Title string
	Kind  string
	Err   error
}

// Completion describes a delivered download.
type Completion struct {
	JobID    string
	Title    string
	Filename string
	Bytes    int64
	Elapsed  time.Duration
}

// Service defines the notification surface used by the download pipeline.
type Service interface {
	NotifyDownloadFailed(ctx context.Context, f Failure) error
	NotifyDownloadCompleted(ctx context.Context, c Completion) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := cfg.NotificationTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint:        topic,
		client:          &http.Client{Timeout: timeout},
		notifyCompleted: cfg.Notifications.NotifyCompleted,
	}
}

// Enabled reports whether svc actually sends anything.
func Enabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint        string
	client          *http.Client
	notifyCompleted bool
}

func (n *ntfyService) NotifyDownloadFailed(ctx context.Context, f Failure) error {
	subject := strings.TrimSpace(f.Title)
	if subject == "" {
		subject = strings.TrimSpace(f.URL)
	}
	var builder strings.Builder
	fmt.Fprintf(&builder, "Download failed: %s", subject)
	if f.Kind != "" {
		fmt.Fprintf(&builder, "\nKind: %s", f.Kind)
	}
	if f.Err != nil {
		fmt.Fprintf(&builder, "\nError: %s", strings.TrimSpace(f.Err.Error()))
	}
	if f.JobID != "" {
		fmt.Fprintf(&builder, "\nJob: %s", f.JobID)
	}

	tags := []string{"tubefront", "download", "failed"}
	priority := "default"
	if f.Kind == "catalog_fetch" || f.Kind == "internal" {
		// Probe failures are usually expired cookies or a broken extractor.
		tags = append(tags, "warning")
		priority = "high"
	}
	return n.send(ctx, payload{
		title:    "tubefront - Download Failed",
		message:  builder.String(),
		tags:     tags,
		priority: priority,
	})
}

func (n *ntfyService) NotifyDownloadCompleted(ctx context.Context, c Completion) error {
	if !n.notifyCompleted {
		return nil
	}
	name := strings.TrimSpace(c.Filename)
	if name == "" {
		name = strings.TrimSpace(c.Title)
	}
	message := fmt.Sprintf("Delivered: %s (%d bytes in %s)", name, c.Bytes, c.Elapsed.Round(time.Second))
	return n.send(ctx, payload{
		title:   "tubefront - Download Complete",
		message: message,
		tags:    []string{"tubefront", "download", "completed"},
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "tubefront - Test",
		message:  "Notification system test",
		tags:     []string{"tubefront", "test"},
		priority: "low",
	})
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

func (noopService) NotifyDownloadFailed(context.Context, Failure) error       { return nil }
func (noopService) NotifyDownloadCompleted(context.Context, Completion) error { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
