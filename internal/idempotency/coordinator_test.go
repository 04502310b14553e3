package idempotency_test

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/bulletinapp/bulletin/internal/idempotency"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTx struct {
	pgx.Tx
	committed  bool
	rolledBack bool
}

func (t *fakeTx) Commit(ctx context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.committed = true
	return nil
}

func (t *fakeTx) Rollback(ctx context.Context) error {
	if t.committed || t.rolledBack {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

type fakeBeginner struct {
	txs []*fakeTx
}

func (b *fakeBeginner) Begin(ctx context.Context) (pgx.Tx, error) {
	tx := &fakeTx{}
	b.txs = append(b.txs, tx)
	return tx, nil
}

type storeKey struct {
	caller uuid.UUID
	key    string
}

// fakeStore mimics the commit semantics of the real store: a saved response
// only becomes visible to Get once the transaction it was saved in commits.
type fakeStore struct {
	committed map[storeKey]*idempotency.Response
	pending   map[*fakeTx]map[storeKey]*idempotency.Response
	getErr    error
	saveErr   error
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		committed: make(map[storeKey]*idempotency.Response),
		pending:   make(map[*fakeTx]map[storeKey]*idempotency.Response),
	}
}

func (s *fakeStore) Get(ctx context.Context, caller uuid.UUID, key idempotency.Key) (*idempotency.Response, error) {
	if s.getErr != nil {
		return nil, s.getErr
	}
	return s.committed[storeKey{caller, key.String()}], nil
}

func (s *fakeStore) Save(ctx context.Context, tx pgx.Tx, caller uuid.UUID, key idempotency.Key, resp *idempotency.Response) (*idempotency.Response, error) {
	if s.saveErr != nil {
		return nil, s.saveErr
	}
	k := storeKey{caller, key.String()}
	if _, ok := s.committed[k]; ok {
		return nil, idempotency.ErrDuplicateKey
	}
	ft := tx.(*fakeTx)
	if s.pending[ft] == nil {
		s.pending[ft] = make(map[storeKey]*idempotency.Response)
	}
	s.pending[ft][k] = resp
	return resp, nil
}

// flush promotes pending rows of committed transactions, emulating commit
// visibility. Called by tests after Execute returns.
func (s *fakeStore) flush(b *fakeBeginner) {
	for _, tx := range b.txs {
		if !tx.committed {
			continue
		}
		for k, v := range s.pending[tx] {
			s.committed[k] = v
		}
	}
}

func mustKey(t *testing.T, raw string) idempotency.Key {
	t.Helper()
	key, err := idempotency.ParseKey(raw)
	require.NoError(t, err)
	return key
}

func okResponse() *idempotency.Response {
	return &idempotency.Response{
		StatusCode: http.StatusAccepted,
		Headers:    []idempotency.HeaderEntry{{Name: "Content-Type", Value: []byte("application/json")}},
		Body:       []byte(`{"ok":true}`),
	}
}

func TestCoordinatorExecutesOnceAndReplays(t *testing.T) {
	db := &fakeBeginner{}
	store := newFakeStore()
	coord := idempotency.NewCoordinator(db, store, nil, nil)

	caller := uuid.New()
	key := mustKey(t, "publish-attempt-1")

	var computeCalls int
	compute := func(ctx context.Context, tx pgx.Tx) (*idempotency.Response, error) {
		computeCalls++
		return okResponse(), nil
	}

	first, outcome, err := coord.Execute(context.Background(), caller, key, compute)
	require.NoError(t, err)
	assert.Equal(t, idempotency.OutcomeExecuted, outcome)
	store.flush(db)

	require.Len(t, db.txs, 1)
	assert.True(t, db.txs[0].committed, "first execution should commit")

	for i := 0; i < 3; i++ {
		replayed, outcome, err := coord.Execute(context.Background(), caller, key, compute)
		require.NoError(t, err)
		assert.Equal(t, idempotency.OutcomeReplayed, outcome)
		assert.Equal(t, first, replayed)
	}

	assert.Equal(t, 1, computeCalls, "compute must run exactly once")
	assert.Len(t, db.txs, 1, "replays must not open transactions")
}

func TestCoordinatorDistinctKeysExecuteIndependently(t *testing.T) {
	db := &fakeBeginner{}
	store := newFakeStore()
	coord := idempotency.NewCoordinator(db, store, nil, nil)

	caller := uuid.New()
	var computeCalls int
	compute := func(ctx context.Context, tx pgx.Tx) (*idempotency.Response, error) {
		computeCalls++
		return okResponse(), nil
	}

	_, _, err := coord.Execute(context.Background(), caller, mustKey(t, "key-a"), compute)
	require.NoError(t, err)
	store.flush(db)

	_, _, err = coord.Execute(context.Background(), caller, mustKey(t, "key-b"), compute)
	require.NoError(t, err)

	assert.Equal(t, 2, computeCalls)
}

func TestCoordinatorSameKeyDifferentCallers(t *testing.T) {
	db := &fakeBeginner{}
	store := newFakeStore()
	coord := idempotency.NewCoordinator(db, store, nil, nil)

	key := mustKey(t, "shared-key")
	var computeCalls int
	compute := func(ctx context.Context, tx pgx.Tx) (*idempotency.Response, error) {
		computeCalls++
		return okResponse(), nil
	}

	_, _, err := coord.Execute(context.Background(), uuid.New(), key, compute)
	require.NoError(t, err)
	store.flush(db)

	_, _, err = coord.Execute(context.Background(), uuid.New(), key, compute)
	require.NoError(t, err)

	assert.Equal(t, 2, computeCalls, "keys are scoped per caller")
}

func TestCoordinatorComputeFailureRecordsNothing(t *testing.T) {
	db := &fakeBeginner{}
	store := newFakeStore()
	coord := idempotency.NewCoordinator(db, store, nil, nil)

	caller := uuid.New()
	key := mustKey(t, "failing-attempt")
	computeErr := errors.New("downstream unavailable")

	var computeCalls int
	_, _, err := coord.Execute(context.Background(), caller, key, func(ctx context.Context, tx pgx.Tx) (*idempotency.Response, error) {
		computeCalls++
		if computeCalls == 1 {
			return nil, computeErr
		}
		return okResponse(), nil
	})
	require.ErrorIs(t, err, computeErr)
	store.flush(db)

	require.Len(t, db.txs, 1)
	assert.True(t, db.txs[0].rolledBack, "failed compute must roll back")

	// A retry with the same key re-runs the computation.
	resp, _, err := coord.Execute(context.Background(), caller, key, func(ctx context.Context, tx pgx.Tx) (*idempotency.Response, error) {
		computeCalls++
		return okResponse(), nil
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, resp.StatusCode)
	assert.Equal(t, 2, computeCalls)
}

func TestCoordinatorLostRaceReplaysWinner(t *testing.T) {
	db := &fakeBeginner{}
	store := newFakeStore()
	coord := idempotency.NewCoordinator(db, store, nil, nil)

	caller := uuid.New()
	key := mustKey(t, "raced-key")

	winner := okResponse()
	winner.Body = []byte(`{"winner":true}`)

	loser := okResponse()
	loser.Body = []byte(`{"winner":false}`)

	// The winner commits between our Get miss and our Save.
	store.saveErr = idempotency.ErrDuplicateKey

	resp, outcome, err := coord.Execute(context.Background(), caller, key, func(ctx context.Context, tx pgx.Tx) (*idempotency.Response, error) {
		// Simulate the concurrent request committing while we compute.
		store.committed[storeKey{caller, key.String()}] = winner
		return loser, nil
	})
	require.NoError(t, err)

	assert.Equal(t, idempotency.OutcomeReplayed, outcome, "losing the race is a replay, not an execution")
	assert.Equal(t, winner, resp, "loser must serve the winner's response")
	require.Len(t, db.txs, 1)
	assert.True(t, db.txs[0].rolledBack, "loser's transaction must roll back")
	assert.False(t, db.txs[0].committed)
}

func TestCoordinatorRaceWithVanishedWinner(t *testing.T) {
	db := &fakeBeginner{}
	store := newFakeStore()
	coord := idempotency.NewCoordinator(db, store, nil, nil)

	// Save reports a duplicate but no committed row is visible afterwards,
	// e.g. the concurrent holder rolled back. Nothing can be replayed.
	store.saveErr = idempotency.ErrDuplicateKey

	_, _, err := coord.Execute(context.Background(), uuid.New(), mustKey(t, "vanished"), func(ctx context.Context, tx pgx.Tx) (*idempotency.Response, error) {
		return okResponse(), nil
	})
	require.ErrorIs(t, err, idempotency.ErrUnexpected)
}

func TestCoordinatorPropagatesStoreReadError(t *testing.T) {
	db := &fakeBeginner{}
	store := newFakeStore()
	store.getErr = errors.New("connection refused")
	coord := idempotency.NewCoordinator(db, store, nil, nil)

	var computeCalls int
	_, _, err := coord.Execute(context.Background(), uuid.New(), mustKey(t, "any"), func(ctx context.Context, tx pgx.Tx) (*idempotency.Response, error) {
		computeCalls++
		return okResponse(), nil
	})
	require.Error(t, err)
	assert.Equal(t, 0, computeCalls, "compute must not run when the lookup fails")
	assert.Empty(t, db.txs)
}
