package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"go.etcd.io/bbolt"

	"lens/internal/domain"
)

var (
	bucketRecords = []byte("records")
	bucketIndex   = []byte("index")
	keyIndexMeta  = []byte("meta")
)

// BoltStore implements VectorStore on a local bbolt file. Vectors are kept in
// an in-memory cache for brute-force search; bbolt is the durable copy.
type BoltStore struct {
	db       *bbolt.DB
	minScore float64

	mu        sync.RWMutex
	dimension int
	records   map[string]candidate
}

type storedRecord struct {
	Vector   []float32         `json:"v"`
	Metadata map[string]string `json:"m,omitempty"`
}

type indexMeta struct {
	Dimension int    `json:"dimension"`
	Metric    string `json:"metric"`
}

// NewBoltStore opens (or creates) a bolt-backed store at path. minScore
// filters query results below that score; zero disables the filter.
func NewBoltStore(path string, minScore float64) (*BoltStore, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("open bolt db: %w: %v", domain.ErrStoreUnavailable, err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, b := range [][]byte{bucketRecords, bucketIndex} {
			if _, err := tx.CreateBucketIfNotExists(b); err != nil {
				return fmt.Errorf("create bucket %s: %w", b, err)
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, err
	}

	s := &BoltStore{db: db, minScore: minScore, records: make(map[string]candidate)}
	if err := s.load(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load records: %w", err)
	}
	return s, nil
}

// load reads index metadata and all records into the cache.
func (s *BoltStore) load() error {
	return s.db.View(func(tx *bbolt.Tx) error {
		if raw := tx.Bucket(bucketIndex).Get(keyIndexMeta); raw != nil {
			var meta indexMeta
			if err := json.Unmarshal(raw, &meta); err != nil {
				return err
			}
			s.dimension = meta.Dimension
		}

		return tx.Bucket(bucketRecords).ForEach(func(k, v []byte) error {
			var stored storedRecord
			if err := json.Unmarshal(v, &stored); err != nil {
				return nil // skip corrupted entries
			}
			s.records[string(k)] = candidate{id: string(k), vector: stored.Vector, metadata: stored.Metadata}
			return nil
		})
	})
}

func (s *BoltStore) CreateIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid index dimension %d", dimension)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension != 0 {
		if s.dimension == dimension {
			return nil
		}
		return fmt.Errorf("%w with dimension %d", domain.ErrAlreadyExists, s.dimension)
	}

	data, err := json.Marshal(indexMeta{Dimension: dimension, Metric: metricCosine})
	if err != nil {
		return err
	}
	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketIndex).Put(keyIndexMeta, data)
	})
	if err != nil {
		return fmt.Errorf("persist index meta: %w: %v", domain.ErrStoreUnavailable, err)
	}
	s.dimension = dimension
	return nil
}

func (s *BoltStore) Upsert(ctx context.Context, rec domain.Record) error {
	return s.UpsertBatch(ctx, []domain.Record{rec})
}

func (s *BoltStore) UpsertBatch(ctx context.Context, recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return ctxErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dimension == 0 {
		return fmt.Errorf("index not created: %w", domain.ErrStoreUnavailable)
	}
	for _, rec := range recs {
		if len(rec.Vector) != s.dimension {
			return &domain.DimensionMismatchError{Want: s.dimension, Got: len(rec.Vector)}
		}
	}

	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		for _, rec := range recs {
			data, err := json.Marshal(storedRecord{Vector: rec.Vector, Metadata: rec.Metadata})
			if err != nil {
				return err
			}
			if err := b.Put([]byte(rec.ID), data); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("upsert: %w: %v", domain.ErrStoreUnavailable, err)
	}

	for _, rec := range recs {
		s.records[rec.ID] = candidate{id: rec.ID, vector: rec.Vector, metadata: rec.Metadata}
	}
	return nil
}

func (s *BoltStore) Query(ctx context.Context, vector []float32, k int) ([]domain.Result, error) {
	if err := ctx.Err(); err != nil {
		return nil, ctxErr(err)
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, &domain.DimensionMismatchError{Want: s.dimension, Got: len(vector)}
	}
	if len(s.records) == 0 {
		return []domain.Result{}, nil
	}

	cands := make([]candidate, 0, len(s.records))
	for _, c := range s.records {
		cands = append(cands, c)
	}
	return rank(vector, cands, k, s.minScore), nil
}

func (s *BoltStore) Delete(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return ctxErr(err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketRecords).Delete([]byte(id))
	})
	if err != nil {
		return fmt.Errorf("delete: %w: %v", domain.ErrStoreUnavailable, err)
	}
	delete(s.records, id)
	return nil
}

func (s *BoltStore) Count(ctx context.Context) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records), nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}

func ctxErr(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return domain.ErrTimeout
	}
	return err
}
