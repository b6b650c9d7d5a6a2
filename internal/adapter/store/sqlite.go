package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	_ "modernc.org/sqlite"

	"lens/internal/domain"
)

// SQLiteStore implements VectorStore on a SQLite file. Vectors are stored as
// little-endian float32 BLOBs and scanned brute-force at query time.
type SQLiteStore struct {
	db        *sql.DB
	indexName string
	minScore  float64
	dimension int
}

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS index_meta (
	name      TEXT PRIMARY KEY,
	dimension INTEGER NOT NULL,
	metric    TEXT NOT NULL
);
CREATE TABLE IF NOT EXISTS records (
	id       TEXT PRIMARY KEY,
	vector   BLOB NOT NULL,
	metadata TEXT
);
`

// NewSQLiteStore opens (or creates) a sqlite-backed store at path.
func NewSQLiteStore(path, indexName string, minScore float64) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w: %v", domain.ErrStoreUnavailable, err)
	}
	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w: %v", domain.ErrStoreUnavailable, err)
	}

	s := &SQLiteStore{db: db, indexName: indexName, minScore: minScore}

	var dim int
	err = db.QueryRow(`SELECT dimension FROM index_meta WHERE name = ?`, indexName).Scan(&dim)
	switch {
	case err == nil:
		s.dimension = dim
	case errors.Is(err, sql.ErrNoRows):
	default:
		db.Close()
		return nil, fmt.Errorf("read index meta: %w: %v", domain.ErrStoreUnavailable, err)
	}

	return s, nil
}

func (s *SQLiteStore) CreateIndex(ctx context.Context, dimension int) error {
	if dimension <= 0 {
		return fmt.Errorf("invalid index dimension %d", dimension)
	}
	if s.dimension != 0 {
		if s.dimension == dimension {
			return nil
		}
		return fmt.Errorf("%w with dimension %d", domain.ErrAlreadyExists, s.dimension)
	}

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_meta(name, dimension, metric) VALUES(?, ?, ?)`,
		s.indexName, dimension, metricCosine)
	if err != nil {
		return fmt.Errorf("create index: %w: %v", domain.ErrStoreUnavailable, err)
	}
	s.dimension = dimension
	return nil
}

func (s *SQLiteStore) Upsert(ctx context.Context, rec domain.Record) error {
	return s.UpsertBatch(ctx, []domain.Record{rec})
}

func (s *SQLiteStore) UpsertBatch(ctx context.Context, recs []domain.Record) error {
	if len(recs) == 0 {
		return nil
	}
	if s.dimension == 0 {
		return fmt.Errorf("index not created: %w", domain.ErrStoreUnavailable)
	}
	for _, rec := range recs {
		if len(rec.Vector) != s.dimension {
			return &domain.DimensionMismatchError{Want: s.dimension, Got: len(rec.Vector)}
		}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return storeErr("begin upsert", err)
	}
	defer tx.Rollback()

	for _, rec := range recs {
		meta, err := json.Marshal(rec.Metadata)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO records(id, vector, metadata) VALUES(?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET vector = excluded.vector, metadata = excluded.metadata`,
			rec.ID, encodeVector(rec.Vector), string(meta))
		if err != nil {
			return storeErr("upsert", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return storeErr("commit upsert", err)
	}
	return nil
}

func (s *SQLiteStore) Query(ctx context.Context, vector []float32, k int) ([]domain.Result, error) {
	if s.dimension != 0 && len(vector) != s.dimension {
		return nil, &domain.DimensionMismatchError{Want: s.dimension, Got: len(vector)}
	}

	rows, err := s.db.QueryContext(ctx, `SELECT id, vector, metadata FROM records`)
	if err != nil {
		return nil, storeErr("query", err)
	}
	defer rows.Close()

	var cands []candidate
	for rows.Next() {
		var (
			id   string
			blob []byte
			meta sql.NullString
		)
		if err := rows.Scan(&id, &blob, &meta); err != nil {
			return nil, storeErr("scan record", err)
		}
		vec, err := decodeStoredVector(blob)
		if err != nil {
			continue // skip corrupted entries
		}
		var metadata map[string]string
		if meta.Valid && meta.String != "" {
			if err := json.Unmarshal([]byte(meta.String), &metadata); err != nil {
				metadata = nil
			}
		}
		cands = append(cands, candidate{id: id, vector: vec, metadata: metadata})
	}
	if err := rows.Err(); err != nil {
		return nil, storeErr("iterate records", err)
	}
	if len(cands) == 0 {
		return []domain.Result{}, nil
	}
	return rank(vector, cands, k, s.minScore), nil
}

func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM records WHERE id = ?`, id); err != nil {
		return storeErr("delete", err)
	}
	return nil
}

func (s *SQLiteStore) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM records`).Scan(&n); err != nil {
		return 0, storeErr("count", err)
	}
	return n, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func storeErr(op string, err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%s: %w", op, domain.ErrTimeout)
	}
	return fmt.Errorf("%s: %w: %v", op, domain.ErrStoreUnavailable, err)
}

// encodeVector packs a vector as a little-endian float32 sequence; the
// length is recovered from the BLOB size on decode.
func encodeVector(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

func decodeStoredVector(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
