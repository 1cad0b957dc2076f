// Package notifications delivers curator-facing messages about pipeline
// events. Delivery failures are reported to callers but must never fail the
// transition that triggered them.
package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"snatcher/internal/config"
	"snatcher/internal/records"
)

const userAgent = "snatcher/0.1"

// Service defines the notification surface exposed to pipeline components.
type Service interface {
	NotifyAwaitingDecision(ctx context.Context, rec *records.Record) error
	NotifyReminder(ctx context.Context, rec *records.Record, deadline time.Time) error
	NotifyExpired(ctx context.Context, rec *records.Record) error
	NotifyDraftFailed(ctx context.Context, rec *records.Record, cause string) error
	NotifyError(ctx context.Context, err error, contextLabel string) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service from configuration. Telegram and
// webhook channels fan out when both are configured; with neither, a noop
// implementation is returned.
func NewService(cfg *config.Config) (Service, error) {
	var channels []Service

	if strings.TrimSpace(cfg.Notifications.TelegramToken) != "" {
		tg, err := newTelegramService(cfg)
		if err != nil {
			return nil, fmt.Errorf("init telegram notifications: %w", err)
		}
		channels = append(channels, tg)
	}
	if strings.TrimSpace(cfg.Notifications.WebhookURL) != "" {
		channels = append(channels, newWebhookService(cfg))
	}

	switch len(channels) {
	case 0:
		return noopService{}, nil
	case 1:
		return channels[0], nil
	default:
		return multiService(channels), nil
	}
}

type payload struct {
	title   string
	message string
}

func awaitingDecisionPayload(rec *records.Record) payload {
	var b strings.Builder
	fmt.Fprintf(&b, "Draft ready: %s at %s\n", rec.Title, rec.Company)
	if rec.CombinedScore != nil {
		fmt.Fprintf(&b, "Combined score: %.3f\n", *rec.CombinedScore)
	}
	if deadline := rec.DecisionDeadline; deadline != nil {
		fmt.Fprintf(&b, "Decide by: %s\n", deadline.Format(time.RFC1123))
	}
	b.WriteString("Reply with approve, reject, or edit.")
	return payload{title: "Snatcher - Awaiting Decision", message: b.String()}
}

func reminderPayload(rec *records.Record, deadline time.Time) payload {
	return payload{
		title: "Snatcher - Decision Overdue",
		message: fmt.Sprintf("Still awaiting a decision on %s at %s (deadline was %s).",
			rec.Title, rec.Company, deadline.Format(time.RFC1123)),
	}
}

func expiredPayload(rec *records.Record) payload {
	return payload{
		title:   "Snatcher - Application Expired",
		message: fmt.Sprintf("No decision arrived for %s at %s; the application has expired.", rec.Title, rec.Company),
	}
}

func draftFailedPayload(rec *records.Record, cause string) payload {
	return payload{
		title:   "Snatcher - Draft Failed",
		message: fmt.Sprintf("Letter generation failed for %s at %s: %s", rec.Title, rec.Company, cause),
	}
}

func errorPayload(err error, contextLabel string) payload {
	var b strings.Builder
	b.WriteString("Error")
	if contextLabel = strings.TrimSpace(contextLabel); contextLabel != "" {
		b.WriteString(" with ")
		b.WriteString(contextLabel)
	}
	b.WriteString(": ")
	if err != nil {
		b.WriteString(strings.TrimSpace(err.Error()))
	} else {
		b.WriteString("unknown")
	}
	return payload{title: "Snatcher - Error", message: b.String()}
}

func testPayload() payload {
	return payload{title: "Snatcher - Test", message: "Notification system test"}
}

// webhookService posts plain-text messages to a single webhook endpoint,
// ntfy-compatible via the Title header.
type webhookService struct {
	endpoint string
	client   *http.Client
}

func newWebhookService(cfg *config.Config) *webhookService {
	timeout := time.Duration(cfg.Notifications.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &webhookService{
		endpoint: strings.TrimSpace(cfg.Notifications.WebhookURL),
		client:   &http.Client{Timeout: timeout},
	}
}

func (w *webhookService) send(ctx context.Context, data payload) error {
	if w == nil || w.client == nil {
		return nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build webhook request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}

	resp, err := w.client.Do(req)
	if err != nil {
		return fmt.Errorf("send webhook notification: %w", err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("webhook returned %s", resp.Status)
	}
	return nil
}

func (w *webhookService) NotifyAwaitingDecision(ctx context.Context, rec *records.Record) error {
	return w.send(ctx, awaitingDecisionPayload(rec))
}

func (w *webhookService) NotifyReminder(ctx context.Context, rec *records.Record, deadline time.Time) error {
	return w.send(ctx, reminderPayload(rec, deadline))
}

func (w *webhookService) NotifyExpired(ctx context.Context, rec *records.Record) error {
	return w.send(ctx, expiredPayload(rec))
}

func (w *webhookService) NotifyDraftFailed(ctx context.Context, rec *records.Record, cause string) error {
	return w.send(ctx, draftFailedPayload(rec, cause))
}

func (w *webhookService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	return w.send(ctx, errorPayload(err, contextLabel))
}

func (w *webhookService) TestNotification(ctx context.Context) error {
	return w.send(ctx, testPayload())
}

// multiService fans a notification out to every configured channel and
// reports the first failure.
type multiService []Service

func (m multiService) each(fn func(Service) error) error {
	var first error
	for _, svc := range m {
		if err := fn(svc); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func (m multiService) NotifyAwaitingDecision(ctx context.Context, rec *records.Record) error {
	return m.each(func(s Service) error { return s.NotifyAwaitingDecision(ctx, rec) })
}

func (m multiService) NotifyReminder(ctx context.Context, rec *records.Record, deadline time.Time) error {
	return m.each(func(s Service) error { return s.NotifyReminder(ctx, rec, deadline) })
}

func (m multiService) NotifyExpired(ctx context.Context, rec *records.Record) error {
	return m.each(func(s Service) error { return s.NotifyExpired(ctx, rec) })
}

func (m multiService) NotifyDraftFailed(ctx context.Context, rec *records.Record, cause string) error {
	return m.each(func(s Service) error { return s.NotifyDraftFailed(ctx, rec, cause) })
}

func (m multiService) NotifyError(ctx context.Context, err error, contextLabel string) error {
	return m.each(func(s Service) error { return s.NotifyError(ctx, err, contextLabel) })
}

func (m multiService) TestNotification(ctx context.Context) error {
	return m.each(func(s Service) error { return s.TestNotification(ctx) })
}

type noopService struct{}

func (noopService) NotifyAwaitingDecision(context.Context, *records.Record) error    { return nil }
func (noopService) NotifyReminder(context.Context, *records.Record, time.Time) error { return nil }
func (noopService) NotifyExpired(context.Context, *records.Record) error             { return nil }
func (noopService) NotifyDraftFailed(context.Context, *records.Record, string) error { return nil }
func (noopService) NotifyError(context.Context, error, string) error                 { return nil }
func (noopService) TestNotification(context.Context) error                           { return nil }

// Noop returns a Service that discards everything. Exposed for tests and CLI
// one-shots.
func Noop() Service { return noopService{} }
