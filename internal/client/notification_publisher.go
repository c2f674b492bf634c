package client

import (
	"context"
	"encoding/json"
	"strconv"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// Publisher is the slice of *nats.Conn the notification publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

var _ Publisher = (*nats.Conn)(nil)

// NotificationPublisher publishes submission and workbook events to NATS for
// the notifications service.
//
// Subject convention: <prefix>.<event_type>, by default
// notifications.workbooks.<event_type>.
// Event types: submission_started, submission_submitted, submission_approved,
// submission_rejected, submission_deleted, workbook_completed
//
// Publishing is non-fatal: errors are logged and never returned, so a broker
// outage never fails a workbook operation.
type NotificationPublisher struct {
	nats   Publisher
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType    string         `json:"event_type"`
	CompanyID    string         `json:"company_id,omitempty"`
	ActorID      string         `json:"actor_id"`
	Recipients   []string       `json:"recipients"`
	ResourceType string         `json:"resource_type,omitempty"`
	ResourceID   string         `json:"resource_id,omitempty"`
	IsActionable bool           `json:"is_actionable,omitempty"`
	Severity     string         `json:"severity,omitempty"`
	Category     string         `json:"category,omitempty"`
	Payload      map[string]any `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil conn disables
// publishing.
func NewNotificationPublisher(conn Publisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	if prefix == "" {
		prefix = "notifications.workbooks"
	}
	return &NotificationPublisher{nats: conn, prefix: prefix, log: log}
}

// Connect dials NATS. An empty url returns a nil connection and no error.
func Connect(url, name string) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
	)
}

// PublishSubmissionEvent publishes a bundle lifecycle event.
func (p *NotificationPublisher) PublishSubmissionEvent(ctx context.Context, eventType, submissionID, companyID, actorID string, recipients []string, payload map[string]any) {
	p.publish(ctx, &NotificationEvent{
		EventType:    eventType,
		CompanyID:    companyID,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "submission",
		ResourceID:   submissionID,
		IsActionable: eventType == "submission_submitted",
		Severity:     severityFor(eventType),
		Category:     "compliance_submission",
		Payload:      payload,
	})
}

// PublishWorkbookEvent publishes a workbook event.
func (p *NotificationPublisher) PublishWorkbookEvent(ctx context.Context, eventType string, workbookID int64, companyID, actorID string, recipients []string, payload map[string]any) {
	p.publish(ctx, &NotificationEvent{
		EventType:    eventType,
		CompanyID:    companyID,
		ActorID:      actorID,
		Recipients:   recipients,
		ResourceType: "workbook",
		ResourceID:   strconv.FormatInt(workbookID, 10),
		Severity:     "info",
		Category:     "compliance_workbook",
		Payload:      payload,
	})
}

func (p *NotificationPublisher) publish(_ context.Context, event *NotificationEvent) {
	if p == nil || p.nats == nil {
		return
	}
	if len(event.Recipients) == 0 {
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := p.prefix + "." + event.EventType
	if err := p.nats.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("resource_id", event.ResourceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("resource_id", event.ResourceID).
		Int("recipients", len(event.Recipients)).
		Msg("notification: event published")
}

func severityFor(eventType string) string {
	if eventType == "submission_rejected" {
		return "warning"
	}
	return "info"
}
