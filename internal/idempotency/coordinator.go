package idempotency

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bulletinapp/bulletin/internal/idempotency/metrics"
	"github.com/bulletinapp/bulletin/internal/telemetry"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel/attribute"
)

// Store persists captured responses keyed by (caller, key).
type Store interface {
	// Get returns the stored response for the pair, or nil if none exists.
	// Safe to call outside any transaction.
	Get(ctx context.Context, caller uuid.UUID, key Key) (*Response, error)

	// Save inserts exactly one row inside the caller's transaction so the
	// row commits atomically with the business writes it protects. Returns
	// ErrDuplicateKey when a row for the pair already exists, and on
	// success a response reconstructed from what was just written.
	Save(ctx context.Context, tx pgx.Tx, caller uuid.UUID, key Key, resp *Response) (*Response, error)
}

// Beginner opens storage transactions. Satisfied by *pgxpool.Pool.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Outcome reports how Execute produced its response.
type Outcome string

const (
	// OutcomeExecuted means this invocation ran compute and committed.
	OutcomeExecuted Outcome = "executed"

	// OutcomeReplayed means a previously committed response was served,
	// either from the fast path or after losing the insert race. Any side
	// effects attempted by this invocation were rolled back.
	OutcomeReplayed Outcome = "replayed"
)

// ComputeFunc runs the protected business logic. All of its side effects
// must go through tx: anything written outside the transaction cannot be
// rolled back when a concurrent duplicate wins the insert race, which
// breaks the exactly-once guarantee. Externally-irreversible work (e.g.
// calling a mail provider) must be enqueued transactionally instead.
type ComputeFunc func(ctx context.Context, tx pgx.Tx) (*Response, error)

// Coordinator gives a side-effecting operation exactly-once semantics on
// top of at-least-once HTTP delivery. The first call for a (caller, key)
// pair executes the computation and records its response; every later call
// replays the recorded response byte for byte without re-executing.
// Correctness under concurrency is delegated entirely to the storage
// layer's transaction isolation and the uniqueness constraint on the pair;
// no in-process lock is held.
type Coordinator struct {
	db      Beginner
	store   Store
	logger  *slog.Logger
	metrics *metrics.Metrics
}

// NewCoordinator wires the coordinator's dependencies. metrics may be nil.
func NewCoordinator(db Beginner, store Store, logger *slog.Logger, m *metrics.Metrics) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{db: db, store: store, logger: logger, metrics: m}
}

// Execute replays the stored response for (caller, key) if one exists,
// otherwise runs compute inside a single transaction and commits its
// writes together with the captured response. Losing the insert race to a
// concurrent duplicate rolls this invocation back and replays the winner's
// response. A failure from compute aborts without recording anything, so
// an identical retry re-attempts the business logic.
//
// The returned Outcome tells the caller whether compute's effects actually
// committed; post-commit work such as event emission must be gated on
// OutcomeExecuted, since a replayed invocation committed nothing.
func (c *Coordinator) Execute(ctx context.Context, caller uuid.UUID, key Key, compute ComputeFunc) (*Response, Outcome, error) {
	ctx, span := telemetry.StartSpan(ctx, "Idempotency.Execute")
	defer span.End()
	telemetry.AddSpanAttributes(span, attribute.String("idempotency.key", key.String()))

	start := time.Now()
	resp, outcome, err := c.execute(ctx, caller, key, compute)
	if c.metrics != nil {
		c.metrics.RecordExecuteDuration(ctx, time.Since(start).Seconds())
		if outcome != "" {
			c.metrics.RecordOutcome(ctx, string(outcome))
		}
	}

	if err != nil {
		telemetry.RecordSpanError(span, err)
		return nil, outcome, err
	}

	telemetry.AddSpanAttributes(span, attribute.String("idempotency.outcome", string(outcome)))
	telemetry.SetSpanSuccess(span)
	return resp, outcome, nil
}

func (c *Coordinator) execute(ctx context.Context, caller uuid.UUID, key Key, compute ComputeFunc) (*Response, Outcome, error) {
	// Fast path: the common retry case pays one read, no transaction.
	stored, err := c.store.Get(ctx, caller, key)
	if err != nil {
		return nil, "", fmt.Errorf("read stored response: %w", err)
	}
	if stored != nil {
		c.logger.Debug("replaying stored response", "idempotency_key", key.String(), "status", stored.StatusCode)
		return stored, OutcomeReplayed, nil
	}

	tx, err := c.db.Begin(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback(ctx)
	}()

	resp, err := compute(ctx, tx)
	if err != nil {
		return nil, "", err
	}

	saved, err := c.store.Save(ctx, tx, caller, key, resp)
	if err != nil {
		if errors.Is(err, ErrDuplicateKey) {
			winner, raceErr := c.replayWinner(ctx, tx, caller, key)
			if raceErr != nil {
				return nil, "", raceErr
			}
			if c.metrics != nil {
				c.metrics.RecordRace(ctx)
			}
			return winner, OutcomeReplayed, nil
		}
		return nil, "", fmt.Errorf("save response: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, "", fmt.Errorf("commit transaction: %w", err)
	}

	return saved, OutcomeExecuted, nil
}

// replayWinner handles the expected race where a concurrent first-time
// request inserted the row first: discard this invocation's side effects
// and serve the committed winner's response instead.
func (c *Coordinator) replayWinner(ctx context.Context, tx pgx.Tx, caller uuid.UUID, key Key) (*Response, error) {
	if err := tx.Rollback(ctx); err != nil && !errors.Is(err, pgx.ErrTxClosed) {
		return nil, fmt.Errorf("roll back after duplicate key: %w", err)
	}

	stored, err := c.store.Get(ctx, caller, key)
	if err != nil {
		return nil, fmt.Errorf("read winning response: %w", err)
	}
	if stored == nil {
		// The winner rolled back after we lost the race. Nothing committed
		// on either side, so the caller can retry from scratch.
		return nil, ErrUnexpected
	}

	c.logger.Debug("lost insert race, replaying winner", "idempotency_key", key.String())
	return stored, nil
}
