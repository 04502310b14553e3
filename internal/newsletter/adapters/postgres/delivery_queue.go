package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// DeliveryQueue implements the transactional outbox over the
// issue_delivery_queue table. Claims are plain row locks: the task row is
// selected FOR UPDATE SKIP LOCKED, so concurrent workers never grab the
// same task, and an aborted worker releases its claim automatically.
type DeliveryQueue struct {
	pool *pgxpool.Pool
}

func NewDeliveryQueue(pool *pgxpool.Pool) *DeliveryQueue {
	return &DeliveryQueue{pool: pool}
}

// Dequeue claims one pending task. The returned transaction holds the row
// lock and must be completed or rolled back by the caller. Returns
// (nil, nil, nil) when the queue is empty.
func (q *DeliveryQueue) Dequeue(ctx context.Context) (pgx.Tx, *ports.DeliveryTask, error) {
	tx, err := q.pool.Begin(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("begin dequeue transaction: %w", err)
	}

	query := `
		SELECT newsletter_issue_id, subscriber_email
		FROM issue_delivery_queue
		FOR UPDATE
		SKIP LOCKED
		LIMIT 1
	`

	var task ports.DeliveryTask
	err = tx.QueryRow(ctx, query).Scan(&task.IssueID, &task.Email)
	if err != nil {
		_ = tx.Rollback(ctx)
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil, nil
		}
		return nil, nil, fmt.Errorf("select delivery task: %w", err)
	}

	return tx, &task, nil
}

// Complete deletes the claimed task and commits, releasing the lock.
func (q *DeliveryQueue) Complete(ctx context.Context, tx pgx.Tx, task *ports.DeliveryTask) error {
	query := `
		DELETE FROM issue_delivery_queue
		WHERE newsletter_issue_id = $1 AND subscriber_email = $2
	`

	if _, err := tx.Exec(ctx, query, task.IssueID, task.Email); err != nil {
		return fmt.Errorf("delete delivery task: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit delivery completion: %w", err)
	}

	return nil
}
