package ports

import (
	"context"
	"errors"

	"github.com/bulletinapp/bulletin/internal/newsletter/domain"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// IssueRepository exposes persistence operations for newsletter issues.
// Write operations take an explicit transaction so they commit atomically
// with the idempotency row protecting them; nothing writes outside that
// scope.
type IssueRepository interface {
	Create(ctx context.Context, tx pgx.Tx, issue domain.Issue) error
	// EnqueueDeliveries inserts one delivery task per confirmed subscriber
	// for the issue, inside the same transaction as the issue row. Returns
	// the number of tasks enqueued.
	EnqueueDeliveries(ctx context.Context, tx pgx.Tx, issueID uuid.UUID) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Issue, error)
}

// SubscriberRepository exposes persistence operations for subscribers.
type SubscriberRepository interface {
	Create(ctx context.Context, tx pgx.Tx, subscriber domain.Subscriber) error
	StoreToken(ctx context.Context, tx pgx.Tx, subscriberID uuid.UUID, token string) error
	// ConfirmByToken flips the matching subscriber to confirmed and returns
	// its id. Returns ErrTokenNotFound for unknown tokens.
	ConfirmByToken(ctx context.Context, token string) (uuid.UUID, error)
	GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error)
}

var (
	// ErrNotFound is returned when the requested issue or subscriber does not exist.
	ErrNotFound = errors.New("not found")

	// ErrTokenNotFound is returned when a confirmation token matches no subscriber.
	ErrTokenNotFound = errors.New("subscription token not found")

	// ErrDuplicateEmail is returned when a subscriber with the email already exists.
	ErrDuplicateEmail = errors.New("email already subscribed")
)
