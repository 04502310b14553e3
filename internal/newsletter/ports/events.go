package ports

import "context"

// EventPublisher defines the contract for publishing newsletter lifecycle events.
type EventPublisher interface {
	PublishIssuePublished(ctx context.Context, issueID string) error
	PublishSubscriberConfirmed(ctx context.Context, subscriberID string) error
}
