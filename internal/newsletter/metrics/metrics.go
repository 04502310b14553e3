package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	issuesPublishedTotal metric.Int64Counter
	publishDuration      metric.Float64Histogram
	emailsDeliveredTotal metric.Int64Counter
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.issuesPublishedTotal, err = meter.Int64Counter(
		"newsletter_issues_published_total",
		metric.WithDescription("Total number of newsletter issues published"),
		metric.WithUnit("{issue}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create newsletter_issues_published_total counter: %w", err)
	}

	m.publishDuration, err = meter.Float64Histogram(
		"newsletter_publish_duration_seconds",
		metric.WithDescription("Duration of issue publish operations"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create newsletter_publish_duration histogram: %w", err)
	}

	m.emailsDeliveredTotal, err = meter.Int64Counter(
		"newsletter_emails_delivered_total",
		metric.WithDescription("Issue emails delivered to subscribers"),
		metric.WithUnit("{email}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create newsletter_emails_delivered_total counter: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordIssuePublished(ctx context.Context, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.issuesPublishedTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}

func (m *Metrics) RecordPublishDuration(ctx context.Context, durationSeconds float64) {
	m.publishDuration.Record(ctx, durationSeconds)
}

func (m *Metrics) RecordEmailDelivered(ctx context.Context, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	m.emailsDeliveredTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("status", status),
	))
}
