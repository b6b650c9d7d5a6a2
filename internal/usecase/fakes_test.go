package usecase

import (
	"context"
	"fmt"
	"sync"

	"lens/internal/domain"
	"lens/internal/port"
)

// fakeSource serves items from memory. Content returns the bytes registered
// for an item id, or an error when none exist.
type fakeSource struct {
	items   []domain.Item
	content map[string][]byte
}

func (s *fakeSource) Items(ctx context.Context) ([]domain.Item, error) {
	return s.items, nil
}

func (s *fakeSource) Content(ctx context.Context, item domain.Item) ([]byte, error) {
	b, ok := s.content[item.ID]
	if !ok {
		return nil, fmt.Errorf("no content for %s", item.ID)
	}
	return b, nil
}

// fakeStore is an in-memory VectorStore with call counters and injectable
// failures.
type fakeStore struct {
	mu        sync.Mutex
	dimension int
	records   map[string]domain.Record

	upsertCalls int
	queryCalls  int

	failUpserts int // fail this many upserts with ErrStoreUnavailable
	queryErr    error
	queryHits   []domain.Result
}

func newFakeStore() *fakeStore {
	return &fakeStore{records: make(map[string]domain.Record)}
}

func (s *fakeStore) CreateIndex(ctx context.Context, dimension int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dimension != 0 && s.dimension != dimension {
		return fmt.Errorf("%w with dimension %d", domain.ErrAlreadyExists, s.dimension)
	}
	s.dimension = dimension
	return nil
}

func (s *fakeStore) Upsert(ctx context.Context, rec domain.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.upsertCalls++
	if s.failUpserts > 0 {
		s.failUpserts--
		return domain.ErrStoreUnavailable
	}
	if s.dimension != 0 && len(rec.Vector) != s.dimension {
		return &domain.DimensionMismatchError{Want: s.dimension, Got: len(rec.Vector)}
	}
	s.records[rec.ID] = rec
	return nil
}

func (s *fakeStore) UpsertBatch(ctx context.Context, recs []domain.Record) error {
	for _, rec := range recs {
		if err := s.Upsert(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (s *fakeStore) Query(ctx context.Context, vector []float32, k int) ([]domain.Result, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.queryCalls++
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	hits := s.queryHits
	if len(hits) > k {
		hits = hits[:k]
	}
	return hits, nil
}

func (s *fakeStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.records, id)
	return nil
}

func (s *fakeStore) Count(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *fakeStore) Close() error { return nil }

// countingEncoder wraps an encoder and counts Embed calls.
type countingEncoder struct {
	port.Encoder
	mu    sync.Mutex
	calls int
	err   error
}

func (e *countingEncoder) Embed(ctx context.Context, content []byte) ([]float32, error) {
	e.mu.Lock()
	e.calls++
	err := e.err
	e.mu.Unlock()
	if err != nil {
		return nil, err
	}
	return e.Encoder.Embed(ctx, content)
}

func (e *countingEncoder) Calls() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.calls
}
