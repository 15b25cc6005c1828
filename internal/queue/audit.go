package queue

import (
	"context"
	"log/slog"
	"time"
)

// publisher is the subset of Publisher the audit log needs.
type publisher interface {
	Publish(ctx context.Context, queue string, v any) error
}

// AuditLog publishes audit events without blocking the caller.  Failures
// are logged and dropped.
type AuditLog struct {
	pub     publisher
	timeout time.Duration
	logger  *slog.Logger
}

// NewAuditLog returns an audit log publishing through pub.  With a nil
// pub events are only written to the logger.
func NewAuditLog(pub publisher, logger *slog.Logger) *AuditLog {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLog{pub: pub, timeout: 5 * time.Second, logger: logger}
}

// Append records action asynchronously.
func (a *AuditLog) Append(_ context.Context, action string, actorID, targetID uint64, metadata map[string]any) {
	ev := AuditEvent{
		Action:     action,
		ActorID:    actorID,
		TargetID:   targetID,
		Metadata:   metadata,
		OccurredAt: time.Now().UTC().Format(time.RFC3339),
	}
	if a.pub == nil {
		a.logger.Info("audit", "action", action, "actor_id", actorID, "target_id", targetID)
		return
	}
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), a.timeout)
		defer cancel()
		if err := a.pub.Publish(ctx, AuditQueue, ev); err != nil {
			a.logger.Warn("audit publish failed", "action", action, "target_id", targetID, "error", err)
		}
	}()
}
