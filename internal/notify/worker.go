package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/studieo-app/studieo-api/internal/mailtmpl"
)

const (
	consumerGroup = "mail-delivery"
	consumerName  = "studieo-api"
)

// Worker consumes queued events and hands each one to the mail sender
// webhook. Delivery failures are logged and acknowledged anyway: the
// sender is best-effort by contract and a poison event must not wedge
// the stream.
type Worker struct {
	client     *redis.Client
	stream     string
	templates  *mailtmpl.Loader
	webhookURL string
	httpClient *http.Client
}

// NewWorker creates a new delivery worker
func NewWorker(dispatcher *RedisDispatcher, templates *mailtmpl.Loader, webhookURL string, timeout time.Duration) *Worker {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	return &Worker{
		client:     dispatcher.Client(),
		stream:     dispatcher.Stream(),
		templates:  templates,
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Start begins consuming in a goroutine
func (w *Worker) Start(ctx context.Context) {
	go w.run(ctx)
}

func (w *Worker) run(ctx context.Context) {
	slog.Info("notification worker started", "stream", w.stream)

	// Create the consumer group at the stream head; BUSYGROUP means it
	// already exists
	err := w.client.XGroupCreateMkStream(ctx, w.stream, consumerGroup, "$").Err()
	if err != nil && !isBusyGroup(err) {
		slog.Error("failed to create consumer group", "error", err)
		return
	}

	for {
		select {
		case <-ctx.Done():
			slog.Info("notification worker stopped")
			return
		default:
		}

		streams, err := w.client.XReadGroup(ctx, &redis.XReadGroupArgs{
			Group:    consumerGroup,
			Consumer: consumerName,
			Streams:  []string{w.stream, ">"},
			Count:    16,
			Block:    5 * time.Second,
		}).Result()

		if err != nil {
			if errors.Is(err, redis.Nil) || errors.Is(err, context.Canceled) {
				continue
			}
			slog.Error("failed to read notification stream", "error", err)
			time.Sleep(time.Second)
			continue
		}

		for _, stream := range streams {
			for _, msg := range stream.Messages {
				w.deliver(ctx, msg)

				if err := w.client.XAck(ctx, w.stream, consumerGroup, msg.ID).Err(); err != nil {
					slog.Error("failed to ack notification", "error", err, "msg_id", msg.ID)
				}
			}
		}
	}
}

// deliver renders and posts a single event. Errors are logged only.
func (w *Worker) deliver(ctx context.Context, msg redis.XMessage) {
	payload, ok := msg.Values["payload"].(string)
	if !ok {
		slog.Error("notification message missing payload", "msg_id", msg.ID)
		return
	}

	var ev Event
	if err := json.Unmarshal([]byte(payload), &ev); err != nil {
		slog.Error("failed to unmarshal notification event", "error", err, "msg_id", msg.ID)
		return
	}

	tmpl := w.templates.Get(string(ev.Type))
	if tmpl == nil {
		slog.Error("no mail template for event", "type", ev.Type, "msg_id", msg.ID)
		return
	}

	subject, body, err := tmpl.Render(&ev)
	if err != nil {
		slog.Error("failed to render mail template", "error", err, "type", ev.Type)
		return
	}

	if err := w.post(ctx, ev.Recipient.Email, subject, body); err != nil {
		slog.Error("failed to deliver notification",
			"error", err,
			"type", ev.Type,
			"application_id", ev.ApplicationID,
		)
		return
	}

	slog.Info("notification delivered", "type", ev.Type, "application_id", ev.ApplicationID)
}

// post sends one rendered mail to the sender webhook
func (w *Worker) post(ctx context.Context, to, subject, body string) error {
	payload, err := json.Marshal(map[string]string{
		"to":      to,
		"subject": subject,
		"body":    body,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal mail payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.webhookURL, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create mail request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("mail request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return fmt.Errorf("mail sender returned HTTP %d", resp.StatusCode)
	}

	return nil
}

func isBusyGroup(err error) bool {
	return err != nil && len(err.Error()) >= 9 && err.Error()[:9] == "BUSYGROUP"
}
