package adapters

import (
	"context"
	"time"

	"github.com/bulletinapp/bulletin/internal/events"
	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
	"github.com/bulletinapp/bulletin/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableEventPublisher struct {
	publisher ports.EventPublisher
	metrics   *events.Metrics
}

func NewObservableEventPublisher(publisher ports.EventPublisher, metrics *events.Metrics) *ObservableEventPublisher {
	return &ObservableEventPublisher{
		publisher: publisher,
		metrics:   metrics,
	}
}

func (e *ObservableEventPublisher) PublishIssuePublished(ctx context.Context, issueID string) error {
	ctx, span := telemetry.StartSpan(ctx, "EventPublisher.PublishIssuePublished")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("issue.id", issueID),
		attribute.String("event.type", "issue.published"),
	)

	start := time.Now()
	err := e.publisher.PublishIssuePublished(ctx, issueID)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, "issue.published", duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}

func (e *ObservableEventPublisher) PublishSubscriberConfirmed(ctx context.Context, subscriberID string) error {
	ctx, span := telemetry.StartSpan(ctx, "EventPublisher.PublishSubscriberConfirmed")
	defer span.End()

	telemetry.AddSpanAttributes(span,
		attribute.String("subscriber.id", subscriberID),
		attribute.String("event.type", "subscriber.confirmed"),
	)

	start := time.Now()
	err := e.publisher.PublishSubscriberConfirmed(ctx, subscriberID)
	duration := time.Since(start).Seconds()

	e.metrics.RecordPublish(ctx, "subscriber.confirmed", duration, err == nil)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return err
	}

	telemetry.SetSpanSuccess(span)
	return nil
}
