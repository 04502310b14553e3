package ports

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// DeliveryTask is one pending email send for a published issue.
type DeliveryTask struct {
	IssueID uuid.UUID
	Email   string
}

// DeliveryQueue is the transactional outbox feeding the delivery worker.
// Dequeue claims one task inside a fresh transaction (skipping rows locked
// by other workers); the claim is released if the transaction is rolled
// back instead of completed, so a crashed send is retried.
type DeliveryQueue interface {
	// Dequeue returns the claiming transaction and a task, or (nil, nil)
	// when the queue is empty.
	Dequeue(ctx context.Context) (pgx.Tx, *DeliveryTask, error)
	// Complete deletes the claimed task and commits the transaction.
	Complete(ctx context.Context, tx pgx.Tx, task *DeliveryTask) error
}

// Mailer delivers a single email. Implementations are expected to be
// idempotent at-most-once best effort; retries come from the queue.
type Mailer interface {
	Send(ctx context.Context, recipient, subject, htmlBody, textBody string) error
}
