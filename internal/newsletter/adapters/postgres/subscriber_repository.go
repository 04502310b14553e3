package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bulletinapp/bulletin/internal/newsletter/domain"
	"github.com/bulletinapp/bulletin/internal/newsletter/ports"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

type SubscriberRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriberRepository(pool *pgxpool.Pool) *SubscriberRepository {
	return &SubscriberRepository{pool: pool}
}

// Create inserts a pending subscriber inside the caller's transaction.
func (r *SubscriberRepository) Create(ctx context.Context, tx pgx.Tx, subscriber domain.Subscriber) error {
	query := `
		INSERT INTO subscriptions (id, email, name, status, subscribed_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err := tx.Exec(ctx, query,
		subscriber.ID,
		subscriber.Email,
		subscriber.Name,
		subscriber.Status,
		subscriber.SubscribedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ports.ErrDuplicateEmail
		}
		return fmt.Errorf("insert subscriber: %w", err)
	}

	return nil
}

// StoreToken records the confirmation token for a subscriber in the same
// transaction as the subscriber row: a crash between the two inserts must
// not leave a subscriber who can never confirm.
func (r *SubscriberRepository) StoreToken(ctx context.Context, tx pgx.Tx, subscriberID uuid.UUID, token string) error {
	query := `
		INSERT INTO subscription_tokens (subscription_token, subscriber_id)
		VALUES ($1, $2)
	`

	if _, err := tx.Exec(ctx, query, token, subscriberID); err != nil {
		return fmt.Errorf("insert subscription token: %w", err)
	}

	return nil
}

// ConfirmByToken flips the subscriber matching the token to confirmed.
// Confirming twice with the same token is a no-op, not an error.
func (r *SubscriberRepository) ConfirmByToken(ctx context.Context, token string) (uuid.UUID, error) {
	query := `
		UPDATE subscriptions
		SET status = 'confirmed'
		WHERE id = (
			SELECT subscriber_id
			FROM subscription_tokens
			WHERE subscription_token = $1
		)
		RETURNING id
	`

	var subscriberID uuid.UUID
	err := r.pool.QueryRow(ctx, query, token).Scan(&subscriberID)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return uuid.Nil, ports.ErrTokenNotFound
		}
		return uuid.Nil, fmt.Errorf("confirm subscriber: %w", err)
	}

	return subscriberID, nil
}

func (r *SubscriberRepository) GetByEmail(ctx context.Context, email string) (*domain.Subscriber, error) {
	query := `
		SELECT id, email, name, status, subscribed_at
		FROM subscriptions
		WHERE email = $1
	`

	var subscriber domain.Subscriber
	err := r.pool.QueryRow(ctx, query, email).Scan(
		&subscriber.ID,
		&subscriber.Email,
		&subscriber.Name,
		&subscriber.Status,
		&subscriber.SubscribedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ports.ErrNotFound
		}
		return nil, fmt.Errorf("select subscriber: %w", err)
	}

	return &subscriber, nil
}
