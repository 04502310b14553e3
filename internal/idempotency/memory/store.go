package memory

import (
	"context"
	"sync"

	"github.com/bulletinapp/bulletin/internal/idempotency"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

type pairKey struct {
	caller uuid.UUID
	key    string
}

// Store retains captured responses in memory for replaying duplicate
// requests. Rows are insert-once, mirroring the uniqueness constraint the
// relational store enforces. Useful for unit tests and local development;
// it offers no transactional coupling with business writes.
type Store struct {
	mu    sync.RWMutex
	items map[pairKey]idempotency.Record
}

// NewStore creates an empty in-memory store.
func NewStore() *Store {
	return &Store{items: make(map[pairKey]idempotency.Record)}
}

// Get returns the stored response for the (caller, key) pair if present.
func (s *Store) Get(_ context.Context, caller uuid.UUID, key idempotency.Key) (*idempotency.Response, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.items[pairKey{caller: caller, key: key.String()}]
	if !ok {
		return nil, nil
	}
	return idempotency.DecodeRecord(rec)
}

// Save records the response for the pair. Returns ErrDuplicateKey if a
// response was already recorded, matching the relational constraint. The
// transaction argument is ignored.
func (s *Store) Save(_ context.Context, _ pgx.Tx, caller uuid.UUID, key idempotency.Key, resp *idempotency.Response) (*idempotency.Response, error) {
	rec, err := resp.Encode()
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	pk := pairKey{caller: caller, key: key.String()}
	if _, exists := s.items[pk]; exists {
		return nil, idempotency.ErrDuplicateKey
	}
	s.items[pk] = rec

	return idempotency.DecodeRecord(rec)
}
