package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type Metrics struct {
	requestsTotal   metric.Int64Counter
	racesTotal      metric.Int64Counter
	executeDuration metric.Float64Histogram
}

func NewMetrics(meter metric.Meter) (*Metrics, error) {
	m := &Metrics{}

	var err error

	m.requestsTotal, err = meter.Int64Counter(
		"idempotent_requests_total",
		metric.WithDescription("Idempotent executions by outcome (executed or replayed)"),
		metric.WithUnit("{request}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create idempotent_requests_total counter: %w", err)
	}

	m.racesTotal, err = meter.Int64Counter(
		"idempotency_insert_races_total",
		metric.WithDescription("Duplicate-key races absorbed by replaying the winning response"),
		metric.WithUnit("{race}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create idempotency_insert_races_total counter: %w", err)
	}

	m.executeDuration, err = meter.Float64Histogram(
		"idempotent_execute_duration_seconds",
		metric.WithDescription("Duration of idempotent execute calls"),
		metric.WithUnit("s"),
	)
	if err != nil {
		return nil, fmt.Errorf("create idempotent_execute_duration histogram: %w", err)
	}

	return m, nil
}

func (m *Metrics) RecordOutcome(ctx context.Context, outcome string) {
	m.requestsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String("outcome", outcome),
	))
}

func (m *Metrics) RecordRace(ctx context.Context) {
	m.racesTotal.Add(ctx, 1)
}

func (m *Metrics) RecordExecuteDuration(ctx context.Context, durationSeconds float64) {
	m.executeDuration.Record(ctx, durationSeconds)
}
