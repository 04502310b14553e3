package events

import (
	"context"
	"log/slog"
)

// NoopPublisher logs newsletter events without sending them to a broker.
// Useful for local dev before wiring a real message bus.
type NoopPublisher struct{}

// NewNoopPublisher returns a new no-op event publisher.
func NewNoopPublisher() *NoopPublisher {
	return &NoopPublisher{}
}

func (n *NoopPublisher) PublishIssuePublished(_ context.Context, issueID string) error {
	slog.Debug("event::issue_published", "issue_id", issueID)
	return nil
}

func (n *NoopPublisher) PublishSubscriberConfirmed(_ context.Context, subscriberID string) error {
	slog.Debug("event::subscriber_confirmed", "subscriber_id", subscriberID)
	return nil
}
