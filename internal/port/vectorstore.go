package port

import (
	"context"

	"lens/internal/domain"
)

// VectorStore persists embedding records and answers k-nearest-neighbor
// queries under cosine similarity.
//
// Writes are not required to be immediately visible to concurrent queries;
// implementations may settle within a bounded time. Both bundled backends
// happen to be read-your-writes, but callers must not rely on that.
type VectorStore interface {
	// CreateIndex initializes the index with the given dimension. Calling it
	// again with the same dimension is a no-op; a conflicting dimension
	// fails with domain.ErrAlreadyExists.
	CreateIndex(ctx context.Context, dimension int) error

	// Upsert writes a record, overwriting any record with the same id.
	// Concurrent upserts to one id resolve last-write-wins. Fails with
	// *domain.DimensionMismatchError if the vector length disagrees with
	// the index dimension.
	Upsert(ctx context.Context, rec domain.Record) error

	// UpsertBatch writes several records with the same semantics as Upsert.
	UpsertBatch(ctx context.Context, recs []domain.Record) error

	// Query returns up to k records ordered by descending cosine similarity,
	// ties broken by ascending id. An empty index yields an empty slice,
	// not an error.
	Query(ctx context.Context, vector []float32, k int) ([]domain.Result, error)

	// Delete removes a record. Deleting a nonexistent id is a no-op.
	Delete(ctx context.Context, id string) error

	// Count returns the number of stored records.
	Count(ctx context.Context) (int, error)

	Close() error
}
