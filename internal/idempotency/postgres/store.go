package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/bulletinapp/bulletin/internal/idempotency"
	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Store persists captured responses in the idempotency table. The primary
// key on (user_id, idempotency_key) is what makes the exactly-once
// guarantee hold under concurrent duplicate requests; application logic
// alone could not.
type Store struct {
	pool *pgxpool.Pool
}

func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Get reads the stored response for the (caller, key) pair, or nil when no
// row exists. Runs on the pool, outside any transaction, so the fast-path
// replay never pays transaction-open cost.
func (s *Store) Get(ctx context.Context, caller uuid.UUID, key idempotency.Key) (*idempotency.Response, error) {
	query := `
		SELECT response_status_code, response_headers, response_body
		FROM idempotency
		WHERE user_id = $1 AND idempotency_key = $2
	`

	var rec idempotency.Record
	err := s.pool.QueryRow(ctx, query, caller, key.String()).Scan(
		&rec.StatusCode,
		&rec.Headers,
		&rec.Body,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("select idempotency row: %w", err)
	}

	resp, err := idempotency.DecodeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("decode idempotency row: %w", err)
	}

	return resp, nil
}

// Save inserts one row inside tx so it commits atomically with the business
// writes performed in the same transaction. A unique violation on the
// (user_id, idempotency_key) pair maps to ErrDuplicateKey: the expected
// outcome of losing a first-time race, not a corruption. On success the
// returned response is decoded from the record just written.
func (s *Store) Save(ctx context.Context, tx pgx.Tx, caller uuid.UUID, key idempotency.Key, resp *idempotency.Response) (*idempotency.Response, error) {
	rec, err := resp.Encode()
	if err != nil {
		return nil, fmt.Errorf("encode response: %w", err)
	}

	query := `
		INSERT INTO idempotency (
			user_id,
			idempotency_key,
			response_status_code,
			response_headers,
			response_body,
			created_at
		)
		VALUES ($1, $2, $3, $4, $5, now())
	`

	_, err = tx.Exec(ctx, query, caller, key.String(), rec.StatusCode, rec.Headers, rec.Body)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return nil, idempotency.ErrDuplicateKey
		}
		return nil, fmt.Errorf("insert idempotency row: %w", err)
	}

	saved, err := idempotency.DecodeRecord(rec)
	if err != nil {
		return nil, fmt.Errorf("decode saved record: %w", err)
	}

	return saved, nil
}
