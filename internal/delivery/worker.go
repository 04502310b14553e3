package delivery

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/bulletinapp/bulletin/internal/newsletter/metrics"
	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
)

// Worker drains the issue delivery queue in the background. Publishing an
// issue only enqueues tasks transactionally; this worker performs the
// irreversible part, sending the emails, outside any abortable
// transaction. A task is deleted only after its send succeeds, so a crash
// mid-send leaves the task claimed-but-present and it is retried; the mail
// provider may therefore see a rare duplicate, never a missing email.
type Worker struct {
	queue        ports.DeliveryQueue
	issues       ports.IssueRepository
	mailer       ports.Mailer
	logger       *slog.Logger
	metrics      *metrics.Metrics
	pollInterval time.Duration
}

func NewWorker(
	queue ports.DeliveryQueue,
	issues ports.IssueRepository,
	mailer ports.Mailer,
	logger *slog.Logger,
	m *metrics.Metrics,
	pollInterval time.Duration,
) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		queue:        queue,
		issues:       issues,
		mailer:       mailer,
		logger:       logger,
		metrics:      m,
		pollInterval: pollInterval,
	}
}

// Run processes tasks until ctx is canceled.
func (w *Worker) Run(ctx context.Context) error {
	for {
		processed, err := w.runOnce(ctx)
		if err != nil && !errors.Is(err, context.Canceled) {
			w.logger.ErrorContext(ctx, "delivery attempt failed", "error", err)
		}

		if !processed {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(w.pollInterval):
			}
			continue
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
	}
}

// runOnce claims and delivers at most one task. Returns whether a task was
// claimed, so the caller knows to idle when the queue is empty.
func (w *Worker) runOnce(ctx context.Context) (bool, error) {
	tx, task, err := w.queue.Dequeue(ctx)
	if err != nil {
		return false, err
	}
	if task == nil {
		return false, nil
	}

	issue, err := w.issues.GetByID(ctx, task.IssueID)
	if err != nil {
		_ = tx.Rollback(ctx)
		return true, err
	}

	if err := w.mailer.Send(ctx, task.Email, issue.Title, issue.HTMLContent, issue.TextContent); err != nil {
		// Roll back to release the claim; the task stays queued for retry.
		_ = tx.Rollback(ctx)
		if w.metrics != nil {
			w.metrics.RecordEmailDelivered(ctx, false)
		}
		return true, err
	}

	if err := w.queue.Complete(ctx, tx, task); err != nil {
		// Release the claim so another attempt can pick the task up; the
		// email already went out, so that retry may produce a duplicate
		// send, which the at-least-once contract allows.
		_ = tx.Rollback(ctx)
		return true, err
	}

	if w.metrics != nil {
		w.metrics.RecordEmailDelivered(ctx, true)
	}

	w.logger.DebugContext(ctx, "issue email delivered",
		"issue_id", task.IssueID,
		"recipient", task.Email,
	)

	return true, nil
}
