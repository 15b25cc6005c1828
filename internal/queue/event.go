// Package queue carries audit events and outgoing e-mail over RabbitMQ.
// Publishing is best-effort; a consumer process drains both queues.
package queue

// Queue names.  Both queues are durable.
const (
	AuditQueue = "audit.events"
	EmailQueue = "notifications.email"
)

// AuditEvent records one engine action.  It contains enough information
// for the audit log without querying the primary database.
type AuditEvent struct {
	Action     string         `json:"action"`
	ActorID    uint64         `json:"actor_id"`
	TargetID   uint64         `json:"target_id"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	OccurredAt string         `json:"occurred_at"`
}

// EmailMessage is an e-mail waiting for SMTP delivery.
type EmailMessage struct {
	To       string `json:"to"`
	Subject  string `json:"subject"`
	HTML     string `json:"html"`
	QueuedAt string `json:"queued_at"`
}
