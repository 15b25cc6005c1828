package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
)

// Publisher publishes JSON messages to durable queues on the default
// exchange.  The connection is opened lazily and reopened after a
// failure.  It is safe for concurrent use.
type Publisher struct {
	url    string
	logger *slog.Logger

	mu       sync.Mutex
	conn     *amqp.Connection
	ch       *amqp.Channel
	declared map[string]bool
}

// NewPublisher returns a publisher for the broker at url.
func NewPublisher(url string, logger *slog.Logger) *Publisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Publisher{url: url, logger: logger, declared: map[string]bool{}}
}

// encode builds a persistent JSON publishing for v.
func encode(v any, now time.Time) (amqp.Publishing, error) {
	body, err := json.Marshal(v)
	if err != nil {
		return amqp.Publishing{}, fmt.Errorf("marshal message: %w", err)
	}
	return amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		Timestamp:    now.UTC(),
		Body:         body,
	}, nil
}

func (p *Publisher) channel() (*amqp.Channel, error) {
	if p.ch != nil && !p.ch.IsClosed() {
		return p.ch, nil
	}
	p.resetLocked()
	conn, err := amqp.Dial(p.url)
	if err != nil {
		return nil, fmt.Errorf("dial broker: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("open channel: %w", err)
	}
	p.conn, p.ch = conn, ch
	return ch, nil
}

func (p *Publisher) resetLocked() {
	if p.ch != nil {
		_ = p.ch.Close()
	}
	if p.conn != nil {
		_ = p.conn.Close()
	}
	p.conn, p.ch = nil, nil
	p.declared = map[string]bool{}
}

// Publish sends v as JSON to queue.
func (p *Publisher) Publish(ctx context.Context, queue string, v any) error {
	if p == nil || p.url == "" {
		return errors.New("queue: publisher not configured")
	}
	msg, err := encode(v, time.Now())
	if err != nil {
		return err
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	ch, err := p.channel()
	if err != nil {
		return err
	}
	if !p.declared[queue] {
		if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
			p.resetLocked()
			return fmt.Errorf("declare %s: %w", queue, err)
		}
		p.declared[queue] = true
	}
	if err := ch.PublishWithContext(ctx, "", queue, false, false, msg); err != nil {
		p.resetLocked()
		return fmt.Errorf("publish %s: %w", queue, err)
	}
	return nil
}

// PublishEmail queues an e-mail for the consumer to deliver.
func (p *Publisher) PublishEmail(ctx context.Context, to, subject, html string) error {
	return p.Publish(ctx, EmailQueue, EmailMessage{
		To:       to,
		Subject:  subject,
		HTML:     html,
		QueuedAt: time.Now().UTC().Format(time.RFC3339),
	})
}

// Close closes the broker connection.
func (p *Publisher) Close() error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.resetLocked()
	return nil
}
