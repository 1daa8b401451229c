package client

import (
	"context"
	"encoding/json"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"

	"github.com/pesio-ai/be-payroll-review/internal/review"
)

// Review event types.
const (
	// EventReviewRequiresApproval is published when a stored review has at
	// least one material judgement.
	EventReviewRequiresApproval = "review_requires_approval"
	EventReviewApproved         = "review_approved"
	EventReviewRejected         = "review_rejected"
)

// Publisher is the slice of *nats.Conn the notification publisher needs.
type Publisher interface {
	Publish(subject string, data []byte) error
}

// NotificationPublisher publishes review events to NATS for the
// notifications service.
//
// Subject convention: <prefix>.<event_type>
//
// Publishing is non-fatal: errors are logged and never returned, so a NATS
// outage never fails a review.
type NotificationPublisher struct {
	conn   Publisher
	prefix string
	log    zerolog.Logger
}

// NotificationEvent is the JSON schema published to NATS.
type NotificationEvent struct {
	EventType      string                 `json:"event_type"`
	OrganizationID string                 `json:"organization_id"`
	ActorID        string                 `json:"actor_id,omitempty"`
	ResourceType   string                 `json:"resource_type"`
	ResourceID     string                 `json:"resource_id"`
	IsActionable   bool                   `json:"is_actionable"`
	Severity       string                 `json:"severity"`
	Category       string                 `json:"category"`
	OccurredAt     time.Time              `json:"occurred_at"`
	Payload        map[string]interface{} `json:"payload,omitempty"`
}

// NewNotificationPublisher creates a publisher. A nil conn yields a
// publisher that drops every event.
func NewNotificationPublisher(conn Publisher, prefix string, log zerolog.Logger) *NotificationPublisher {
	if prefix == "" {
		prefix = "notifications.payroll"
	}
	return &NotificationPublisher{conn: conn, prefix: prefix, log: log}
}

// ConnectNATS dials the NATS server with reconnect logging. An empty url
// returns a nil connection and no error: notifications are disabled.
func ConnectNATS(url, name string, log zerolog.Logger) (*nats.Conn, error) {
	if url == "" {
		return nil, nil
	}
	return nats.Connect(url,
		nats.Name(name),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(2*time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				log.Warn().Err(err).Msg("nats: disconnected")
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			log.Info().Str("url", c.ConnectedUrl()).Msg("nats: reconnected")
		}),
	)
}

// Subject returns the full subject for an event type.
func (p *NotificationPublisher) Subject(eventType string) string {
	return p.prefix + "." + eventType
}

// PublishReviewRequiresApproval announces a session that needs sign-off.
// Sessions in any other status are ignored.
func (p *NotificationPublisher) PublishReviewRequiresApproval(ctx context.Context, s *review.Session, actorID string) {
	if p == nil || p.conn == nil || s == nil {
		return
	}
	if s.Status() != review.StatusRequiresApproval {
		return
	}

	verdict := s.Verdict()
	severity := "warning"
	if verdict.Blockers > 0 {
		severity = "critical"
	}
	p.publish(ctx, &NotificationEvent{
		EventType:      EventReviewRequiresApproval,
		OrganizationID: s.OrganizationID,
		ActorID:        actorID,
		ResourceType:   "payroll_review",
		ResourceID:     s.ID,
		IsActionable:   true,
		Severity:       severity,
		Category:       "payroll_review",
		OccurredAt:     time.Now().UTC(),
		Payload: map[string]interface{}{
			"verdict":        verdict.Status,
			"blockers_count": verdict.Blockers,
			"reviews_count":  verdict.Reviews,
			"delta_count":    len(s.Deltas),
		},
	})
}

// PublishReviewApproved announces that payroll may be finalized.
func (p *NotificationPublisher) PublishReviewApproved(ctx context.Context, s *review.Session, decidedBy string) {
	p.publishDecision(ctx, s, EventReviewApproved, decidedBy, "")
}

// PublishReviewRejected announces a rejected review. The rejection notes
// travel with the event so the payroll team can act on them.
func (p *NotificationPublisher) PublishReviewRejected(ctx context.Context, s *review.Session, decidedBy, notes string) {
	p.publishDecision(ctx, s, EventReviewRejected, decidedBy, notes)
}

func (p *NotificationPublisher) publishDecision(ctx context.Context, s *review.Session, eventType, decidedBy, notes string) {
	if p == nil || p.conn == nil || s == nil {
		return
	}

	verdict := s.Verdict()
	payload := map[string]interface{}{
		"decided_by":    decidedBy,
		"verdict":       verdict.Status,
		"flagged_count": verdict.TotalFlagged,
		"delta_count":   len(s.Deltas),
	}
	severity := "info"
	actionable := false
	if eventType == EventReviewRejected {
		severity = "warning"
		actionable = true
		payload["notes"] = notes
	}
	p.publish(ctx, &NotificationEvent{
		EventType:      eventType,
		OrganizationID: s.OrganizationID,
		ActorID:        decidedBy,
		ResourceType:   "payroll_review",
		ResourceID:     s.ID,
		IsActionable:   actionable,
		Severity:       severity,
		Category:       "payroll_review",
		OccurredAt:     time.Now().UTC(),
		Payload:        payload,
	})
}

func (p *NotificationPublisher) publish(ctx context.Context, event *NotificationEvent) {
	if err := ctx.Err(); err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: context done, event dropped")
		return
	}

	data, err := json.Marshal(event)
	if err != nil {
		p.log.Warn().Err(err).Str("event_type", event.EventType).Msg("notification: failed to marshal event")
		return
	}

	subject := p.Subject(event.EventType)
	if err := p.conn.Publish(subject, data); err != nil {
		p.log.Warn().Err(err).
			Str("subject", subject).
			Str("review_session_id", event.ResourceID).
			Msg("notification: failed to publish NATS event (non-fatal)")
		return
	}

	p.log.Debug().
		Str("subject", subject).
		Str("review_session_id", event.ResourceID).
		Msg("notification: event published")
}
