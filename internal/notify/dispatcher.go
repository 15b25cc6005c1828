package notify

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// Sender delivers an e-mail synchronously.
type Sender interface {
	Send(ctx context.Context, to, subject, html string) error
}

// EmailQueue hands an e-mail to a broker for later delivery.
type EmailQueue interface {
	PublishEmail(ctx context.Context, to, subject, html string) error
}

// Dispatcher is the engine's notifier.  Failures are logged and never
// returned to the caller.
type Dispatcher struct {
	sender  Sender
	queue   EmailQueue
	timeout time.Duration
	logger  *slog.Logger
	wg      sync.WaitGroup
}

// NewDispatcher returns a dispatcher.  When queue is nil asynchronous
// messages are sent from a goroutine instead of going through the broker.
func NewDispatcher(sender Sender, queue EmailQueue, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{sender: sender, queue: queue, timeout: 30 * time.Second, logger: logger}
}

// Notify sends the message now and reports whether it was delivered.
func (d *Dispatcher) Notify(ctx context.Context, to, subject, html string) bool {
	if d.sender == nil {
		d.logger.Info("notification dropped, no sender configured", "to", to, "subject", subject)
		return false
	}
	if err := d.sender.Send(ctx, to, subject, html); err != nil {
		d.logger.Warn("notification failed", "to", to, "subject", subject, "error", err)
		return false
	}
	return true
}

// NotifyAsync queues the message and returns immediately.  A message the
// broker refuses is sent directly instead.
func (d *Dispatcher) NotifyAsync(to, subject, html string) {
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if d.queue != nil {
			err := d.queue.PublishEmail(ctx, to, subject, html)
			if err == nil {
				return
			}
			d.logger.Warn("queue email failed, sending directly", "to", to, "error", err)
		}
		d.Notify(ctx, to, subject, html)
	}()
}

// Wait blocks until every NotifyAsync call has finished.
func (d *Dispatcher) Wait() { d.wg.Wait() }
