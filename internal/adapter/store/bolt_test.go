package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"lens/internal/domain"
	"lens/internal/port"
)

// runStoreContract exercises the VectorStore contract shared by all
// backends.
func runStoreContract(t *testing.T, open func(t *testing.T) port.VectorStore) {
	ctx := context.Background()

	t.Run("create index twice", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.CreateIndex(ctx, 3); err != nil {
			t.Fatal(err)
		}
		// Same dimension: treated as success.
		if err := s.CreateIndex(ctx, 3); err != nil {
			t.Errorf("re-create with same config should succeed: %v", err)
		}
		// Conflicting dimension: AlreadyExists.
		if err := s.CreateIndex(ctx, 4); !errors.Is(err, domain.ErrAlreadyExists) {
			t.Errorf("expected ErrAlreadyExists, got %v", err)
		}
	})

	t.Run("empty index query", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.CreateIndex(ctx, 2); err != nil {
			t.Fatal(err)
		}
		results, err := s.Query(ctx, []float32{1, 0}, 3)
		if err != nil {
			t.Fatalf("empty index should not error: %v", err)
		}
		if len(results) != 0 {
			t.Errorf("expected empty results, got %d", len(results))
		}
	})

	t.Run("self retrieval", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.CreateIndex(ctx, 2); err != nil {
			t.Fatal(err)
		}
		rec := domain.Record{ID: "a", Vector: []float32{0.6, 0.8}, Metadata: map[string]string{"description": "thing"}}
		if err := s.Upsert(ctx, rec); err != nil {
			t.Fatal(err)
		}

		results, err := s.Query(ctx, rec.Vector, 1)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 1 {
			t.Fatalf("expected 1 result, got %d", len(results))
		}
		if results[0].ID != "a" {
			t.Errorf("expected id a, got %s", results[0].ID)
		}
		if results[0].Score < 0.9999 {
			t.Errorf("self-retrieval score should be ~1.0, got %f", results[0].Score)
		}
		if results[0].Metadata["description"] != "thing" {
			t.Errorf("metadata not returned: %v", results[0].Metadata)
		}
	})

	t.Run("upsert overwrites", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.CreateIndex(ctx, 2); err != nil {
			t.Fatal(err)
		}
		if err := s.Upsert(ctx, domain.Record{ID: "a", Vector: []float32{1, 0}}); err != nil {
			t.Fatal(err)
		}
		// Same id again: store state must be indistinguishable from a
		// single write.
		if err := s.Upsert(ctx, domain.Record{ID: "a", Vector: []float32{1, 0}}); err != nil {
			t.Fatal(err)
		}

		n, err := s.Count(ctx)
		if err != nil {
			t.Fatal(err)
		}
		if n != 1 {
			t.Errorf("expected 1 record after double upsert, got %d", n)
		}

		// Overwrite with a new vector: the old one must be gone.
		if err := s.Upsert(ctx, domain.Record{ID: "a", Vector: []float32{0, 1}, Metadata: map[string]string{"v": "2"}}); err != nil {
			t.Fatal(err)
		}
		results, err := s.Query(ctx, []float32{0, 1}, 1)
		if err != nil {
			t.Fatal(err)
		}
		if results[0].Score < 0.9999 || results[0].Metadata["v"] != "2" {
			t.Errorf("overwrite not applied: %+v", results[0])
		}
	})

	t.Run("dimension mismatch", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.CreateIndex(ctx, 2); err != nil {
			t.Fatal(err)
		}

		var dim *domain.DimensionMismatchError
		err := s.Upsert(ctx, domain.Record{ID: "a", Vector: []float32{1, 2, 3}})
		if !errors.As(err, &dim) {
			t.Errorf("expected DimensionMismatchError on upsert, got %v", err)
		}
		_, err = s.Query(ctx, []float32{1}, 3)
		if !errors.As(err, &dim) {
			t.Errorf("expected DimensionMismatchError on query, got %v", err)
		}
	})

	t.Run("k bounds results", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.CreateIndex(ctx, 2); err != nil {
			t.Fatal(err)
		}
		recs := []domain.Record{
			{ID: "a", Vector: []float32{1, 0}},
			{ID: "b", Vector: []float32{0.9, 0.1}},
			{ID: "c", Vector: []float32{0, 1}},
		}
		if err := s.UpsertBatch(ctx, recs); err != nil {
			t.Fatal(err)
		}

		results, err := s.Query(ctx, []float32{1, 0}, 2)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 2 {
			t.Errorf("expected 2 results, got %d", len(results))
		}
		// k greater than record count returns everything.
		results, err = s.Query(ctx, []float32{1, 0}, 10)
		if err != nil {
			t.Fatal(err)
		}
		if len(results) != 3 {
			t.Errorf("expected 3 results, got %d", len(results))
		}
		for i := 1; i < len(results); i++ {
			if results[i].Score > results[i-1].Score {
				t.Error("results not sorted by descending score")
			}
		}
	})

	t.Run("delete is idempotent", func(t *testing.T) {
		s := open(t)
		defer s.Close()

		if err := s.CreateIndex(ctx, 2); err != nil {
			t.Fatal(err)
		}
		if err := s.Upsert(ctx, domain.Record{ID: "a", Vector: []float32{1, 0}}); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "a"); err != nil {
			t.Fatal(err)
		}
		if err := s.Delete(ctx, "a"); err != nil {
			t.Errorf("deleting a deleted id should be a no-op: %v", err)
		}
		if err := s.Delete(ctx, "never-existed"); err != nil {
			t.Errorf("deleting an unknown id should be a no-op: %v", err)
		}

		n, _ := s.Count(ctx)
		if n != 0 {
			t.Errorf("expected 0 records, got %d", n)
		}
	})
}

func TestBoltStoreContract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) port.VectorStore {
		s, err := NewBoltStore(filepath.Join(t.TempDir(), "index.db"), 0)
		if err != nil {
			t.Fatal(err)
		}
		return s
	})
}

func TestBoltStorePersistence(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "index.db")

	s, err := NewBoltStore(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	if err := s.CreateIndex(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.Upsert(ctx, domain.Record{ID: "a", Vector: []float32{1, 0}, Metadata: map[string]string{"description": "kept"}}); err != nil {
		t.Fatal(err)
	}
	if err := s.Close(); err != nil {
		t.Fatal(err)
	}

	reopened, err := NewBoltStore(path, 0)
	if err != nil {
		t.Fatal(err)
	}
	defer reopened.Close()

	// Dimension survives reopen: conflicting create must still fail.
	if err := reopened.CreateIndex(ctx, 3); !errors.Is(err, domain.ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists after reopen, got %v", err)
	}

	results, err := reopened.Query(ctx, []float32{1, 0}, 1)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "a" || results[0].Metadata["description"] != "kept" {
		t.Errorf("record did not survive reopen: %+v", results)
	}
}

func TestBoltStoreMinScore(t *testing.T) {
	ctx := context.Background()
	s, err := NewBoltStore(filepath.Join(t.TempDir(), "index.db"), 0.9)
	if err != nil {
		t.Fatal(err)
	}
	defer s.Close()

	if err := s.CreateIndex(ctx, 2); err != nil {
		t.Fatal(err)
	}
	if err := s.UpsertBatch(ctx, []domain.Record{
		{ID: "near", Vector: []float32{1, 0}},
		{ID: "far", Vector: []float32{-1, 0}},
	}); err != nil {
		t.Fatal(err)
	}

	results, err := s.Query(ctx, []float32{1, 0}, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(results) != 1 || results[0].ID != "near" {
		t.Errorf("expected only the near record above threshold, got %+v", results)
	}
}
