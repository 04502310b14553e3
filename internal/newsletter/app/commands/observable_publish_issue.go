package commands

import (
	"context"
	"log/slog"
	"time"

	"github.com/bulletinapp/bulletin/internal/idempotency"
	"github.com/bulletinapp/bulletin/internal/newsletter/metrics"
	"github.com/bulletinapp/bulletin/internal/telemetry"
	"go.opentelemetry.io/otel/attribute"
)

type ObservableCommandHandler struct {
	handler CommandHandler
	logger  *slog.Logger
	metrics *metrics.Metrics
}

func NewObservableCommandHandler(handler CommandHandler, logger *slog.Logger, metrics *metrics.Metrics) *ObservableCommandHandler {
	return &ObservableCommandHandler{
		handler: handler,
		logger:  logger,
		metrics: metrics,
	}
}

func (o *ObservableCommandHandler) Handle(ctx context.Context, cmd PublishIssueCommand) (*idempotency.Response, error) {
	ctx, span := telemetry.StartSpan(ctx, "PublishIssueCommand.Handle")
	defer span.End()

	start := time.Now()
	var success bool
	defer func() {
		duration := time.Since(start).Seconds()
		o.metrics.RecordPublishDuration(ctx, duration)
		o.metrics.RecordIssuePublished(ctx, success)
	}()

	o.logger.InfoContext(ctx, "publishing newsletter issue",
		"title", cmd.Title,
		"idempotency_key", cmd.Key.String(),
	)

	resp, err := o.handler.Handle(ctx, cmd)

	if err != nil {
		telemetry.RecordSpanError(span, err)
		o.logger.ErrorContext(ctx, "failed to publish issue",
			"error", err,
			"title", cmd.Title,
		)
		return nil, err
	}

	telemetry.AddSpanAttributes(span,
		attribute.String("issue.title", cmd.Title),
		attribute.Int("response.status", resp.StatusCode),
	)

	o.logger.InfoContext(ctx, "issue publish completed",
		"title", cmd.Title,
		"status", resp.StatusCode,
	)

	success = true
	telemetry.SetSpanSuccess(span)

	return resp, nil
}
