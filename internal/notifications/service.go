package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"hipot/internal/config"
	"hipot/internal/outcome"
)

const userAgent = "hipot-station/1.0"

// Service is the notification surface used by the daemon and CLI.
type Service interface {
	NotifyBatchFinished(ctx context.Context, report outcome.Report) error
	TestNotification(ctx context.Context) error
}

// NewService builds an ntfy-backed service, or a no-op when no topic is
// configured.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	return &ntfyService{
		endpoint:   topic,
		notifyPass: cfg.Notifications.NotifyPass,
		client:     &http.Client{Timeout: cfg.NotificationTimeout()},
	}
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint   string
	notifyPass bool
	client     *http.Client
}

func (n *ntfyService) NotifyBatchFinished(ctx context.Context, report outcome.Report) error {
	data, ok := batchPayload(report, n.notifyPass)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:   "Hipot - Test",
		message: "Test notification from the hipot station",
		tags:    []string{"hipot", "test"},
	})
}

// batchPayload formats report. ok is false when nothing should be sent.
func batchPayload(report outcome.Report, notifyPass bool) (payload, bool) {
	passed, failed, _ := report.Counts()
	switch {
	case report.Stopped:
		return payload{
			title:    "Hipot - Emergency Stop",
			message:  fmt.Sprintf("Batch %s stopped after %d passed, %d failed", shortRun(report.RunID), passed, failed),
			tags:     []string{"hipot", "stop", "rotating_light"},
			priority: "urgent",
		}, true
	case report.Fault:
		return payload{
			title:    "Hipot - Fault",
			message:  faultMessage(report),
			tags:     []string{"hipot", "fault", "warning"},
			priority: "high",
		}, true
	case notifyPass:
		return payload{
			title:   "Hipot - Batch Passed",
			message: fmt.Sprintf("Batch %s passed: %d cavities in %s", shortRun(report.RunID), passed, report.Duration().Round(100*time.Millisecond)),
			tags:    []string{"hipot", "pass", "white_check_mark"},
		}, true
	default:
		return payload{}, false
	}
}

func faultMessage(report outcome.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Batch %s faulted", shortRun(report.RunID))
	for _, test := range []outcome.Test{outcome.Continuity, outcome.Hypot} {
		failures := report.Failures(test)
		if len(failures) == 0 {
			continue
		}
		parts := make([]string, len(failures))
		for i, n := range failures {
			parts[i] = fmt.Sprintf("%d", n)
		}
		fmt.Fprintf(&b, "\n%s failed: cavity %s", test, strings.Join(parts, ", "))
	}
	return b.String()
}

func shortRun(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
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

func (noopService) NotifyBatchFinished(context.Context, outcome.Report) error { return nil }
func (noopService) TestNotification(context.Context) error                    { return nil }
