package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bulletinapp/bulletin/internal/newsletter/domain"
	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type IssueRepository struct {
	pool *pgxpool.Pool
}

func NewIssueRepository(pool *pgxpool.Pool) *IssueRepository {
	return &IssueRepository{pool: pool}
}

// Create inserts the issue row inside the caller's transaction.
func (r *IssueRepository) Create(ctx context.Context, tx pgx.Tx, issue domain.Issue) error {
	query := `
		INSERT INTO newsletter_issues (id, title, text_content, html_content, published_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := tx.Exec(ctx, query,
		issue.ID,
		issue.Title,
		issue.TextContent,
		issue.HTMLContent,
		issue.PublishedAt,
	)
	if err != nil {
		return fmt.Errorf("insert newsletter issue: %w", err)
	}

	return nil
}

// EnqueueDeliveries fans the issue out to every confirmed subscriber by
// inserting one delivery task per recipient, in the same transaction as
// the issue row. Emails themselves are sent later by the delivery worker;
// sending here would be an irreversible effect inside an abortable
// transaction.
func (r *IssueRepository) EnqueueDeliveries(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int64, error) {
	query := `
		INSERT INTO issue_delivery_queue (newsletter_issue_id, subscriber_email)
		SELECT $1, email
		FROM subscriptions
		WHERE status = 'confirmed'
	`

	tag, err := tx.Exec(ctx, query, issueID)
	if err != nil {
		return 0, fmt.Errorf("enqueue issue deliveries: %w", err)
	}

	return tag.RowsAffected(), nil
}

func (r *IssueRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error) {
	query := `
		SELECT id, title, text_content, html_content, published_at
		FROM newsletter_issues
		WHERE id = $1
	`

	var issue domain.Issue
	err := r.pool.QueryRow(ctx, query, id).Scan(
		&issue.ID,
		&issue.Title,
		&issue.TextContent,
		&issue.HTMLContent,
		&issue.PublishedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select newsletter issue: %w", err)
	}

	return &issue, nil
}
