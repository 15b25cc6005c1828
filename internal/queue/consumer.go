package queue

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Handler processes one message body.  A returned error rejects the
// message without requeueing it.
type Handler func(ctx context.Context, body []byte) error

// Consumer drains queues and dispatches each message to its handler.
type Consumer struct {
	url      string
	handlers map[string]Handler
	logger   *slog.Logger
}

// NewConsumer returns a consumer for the broker at url.  handlers maps a
// queue name to the handler of its messages.
func NewConsumer(url string, handlers map[string]Handler, logger *slog.Logger) *Consumer {
	if logger == nil {
		logger = slog.Default()
	}
	return &Consumer{url: url, handlers: handlers, logger: logger}
}

// Run connects, declares every queue and consumes until ctx is done.  It
// reconnects with exponential backoff (capped at 30s) and only returns
// once ctx is cancelled.
func (c *Consumer) Run(ctx context.Context) error {
	backoff := time.Second
	for {
		conn, err := amqp.Dial(c.url)
		if err != nil {
			c.logger.Warn("consumer: dial broker failed", "error", err, "retry_in", backoff)
			if !sleep(ctx, backoff) {
				return ctx.Err()
			}
			if backoff < 30*time.Second {
				backoff *= 2
			}
			continue
		}
		backoff = time.Second

		err = c.consume(ctx, conn)
		_ = conn.Close()
		if ctx.Err() != nil {
			return ctx.Err()
		}
		c.logger.Warn("consumer: consume loop ended, reconnecting", "error", err)
		if !sleep(ctx, 2*time.Second) {
			return ctx.Err()
		}
	}
}

func sleep(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}

func (c *Consumer) consume(ctx context.Context, conn *amqp.Connection) error {
	ch, err := conn.Channel()
	if err != nil {
		return fmt.Errorf("channel open: %w", err)
	}
	defer func() { _ = ch.Close() }()

	if err := ch.Qos(50, 0, false); err != nil {
		c.logger.Warn("consumer: set QoS failed", "error", err)
	}

	var wg sync.WaitGroup
	errs := make(chan error, len(c.handlers))
	for _, queue := range slices.Sorted(maps.Keys(c.handlers)) {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			return fmt.Errorf("queue declare %s: %w", queue, err)
		}
		msgs, err := ch.Consume(queue, "", false, false, false, false, nil)
		if err != nil {
			return fmt.Errorf("queue consume %s: %w", queue, err)
		}
		wg.Add(1)
		go func(queue string, msgs <-chan amqp.Delivery) {
			defer wg.Done()
			errs <- c.drain(ctx, queue, msgs)
		}(queue, msgs)
	}

	select {
	case <-ctx.Done():
		_ = ch.Close()
		wg.Wait()
		return ctx.Err()
	case err := <-errs:
		_ = ch.Close()
		wg.Wait()
		return err
	}
}

func (c *Consumer) drain(ctx context.Context, queue string, msgs <-chan amqp.Delivery) error {
	h := c.handlers[queue]
	for d := range msgs {
		if err := h(ctx, d.Body); err != nil {
			c.logger.Error("consumer: handle message failed", "queue", queue, "error", err)
			_ = d.Nack(false, false)
			continue
		}
		_ = d.Ack(false)
	}
	return errors.New("deliveries channel closed for " + queue)
}

// AuditFileHandler appends one line per audit event to audit.log inside
// dir, creating the directory when needed.
func AuditFileHandler(dir string) Handler {
	var mu sync.Mutex
	return func(_ context.Context, body []byte) error {
		var ev AuditEvent
		dec := json.NewDecoder(bytes.NewReader(body))
		dec.UseNumber()
		if err := dec.Decode(&ev); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		line := FormatAuditLine(ev)

		mu.Lock()
		defer mu.Unlock()
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("mkdir %s: %w", dir, err)
		}
		f, err := os.OpenFile(filepath.Join(dir, "audit.log"), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		if _, err := f.WriteString(line); err != nil {
			return fmt.Errorf("write log: %w", err)
		}
		return nil
	}
}

// FormatAuditLine renders an event as a single line with metadata keys in
// sorted order.
func FormatAuditLine(ev AuditEvent) string {
	var b strings.Builder
	fmt.Fprintf(&b, "[%s] %s | actor_id=%d | target_id=%d", ev.OccurredAt, ev.Action, ev.ActorID, ev.TargetID)
	for _, k := range slices.Sorted(maps.Keys(ev.Metadata)) {
		fmt.Fprintf(&b, " | %s=%v", k, ev.Metadata[k])
	}
	b.WriteByte('\n')
	return b.String()
}

// Sender delivers an e-mail synchronously.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// EmailHandler delivers queued e-mails through s.
func EmailHandler(s Sender) Handler {
	return func(ctx context.Context, body []byte) error {
		var m EmailMessage
		if err := json.Unmarshal(body, &m); err != nil {
			return fmt.Errorf("unmarshal: %w", err)
		}
		if m.To == "" {
			return errors.New("email message without recipient")
		}
		return s.Send(ctx, m.To, m.Subject, m.HTML)
	}
}
