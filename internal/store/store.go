package store

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite" // Pure Go SQLite driver (no CGO)

	"github.com/notedex/notedex/internal/errors"
)

// VectorStore owns the index database: schema lifecycle, vector CRUD, and
// the per-file tracking table backing the staleness oracle.
//
// A process-level file lock guards the database so two notedex processes
// cannot mutate one index concurrently.
type VectorStore struct {
	mu     sync.Mutex
	db     *sql.DB
	path   string
	lock   *flock.Flock
	dim    int // 0 until the schema has been initialized
	closed bool
}

// Open opens (or creates) the index database at path.
// An empty path opens an in-memory database for testing.
func Open(path string) (*VectorStore, error) {
	var dsn string
	var lock *flock.Flock

	if path == "" {
		dsn = ":memory:"
	} else {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return nil, errors.StorageError(fmt.Sprintf("failed to create index directory %s", filepath.Dir(path)), err)
		}

		lock = flock.New(path + ".lock")
		locked, err := lock.TryLock()
		if err != nil {
			return nil, errors.StorageError("failed to acquire index lock", err)
		}
		if !locked {
			return nil, errors.New(errors.ErrCodeIndexLocked,
				fmt.Sprintf("index %s is locked by another process", path), nil).
				WithSuggestion("stop the other notedex process first")
		}

		dsn = path
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		releaseLock(lock)
		return nil, errors.StorageError("failed to open index database", err)
	}

	// Single writer to prevent lock contention.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	// WAL mode must be set via PRAGMA for modernc.org/sqlite.
	pragmas := []string{
		"PRAGMA journal_mode = WAL",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = MEMORY",
	}
	for _, pragma := range pragmas {
		if _, err := db.Exec(pragma); err != nil {
			_ = db.Close()
			releaseLock(lock)
			return nil, errors.StorageError("failed to set pragma", err)
		}
	}

	s := &VectorStore{
		db:   db,
		path: path,
		lock: lock,
	}

	// Pick up the dimension from an existing schema, if any.
	if dim, err := s.storedDimension(); err == nil && dim > 0 {
		s.dim = dim
	}

	return s, nil
}

func releaseLock(lock *flock.Flock) {
	if lock != nil {
		_ = lock.Unlock()
	}
}

// Close closes the database and releases the index lock.
// Subsequent calls are no-ops.
func (s *VectorStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	err := s.db.Close()
	releaseLock(s.lock)
	if err != nil {
		return errors.StorageError("failed to close index database", err)
	}
	return nil
}

const schemaSQL = `
CREATE TABLE IF NOT EXISTS vectors (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	file_path TEXT NOT NULL,
	content_hash TEXT NOT NULL,
	embedding BLOB NOT NULL,
	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_vectors_file_path ON vectors(file_path);

CREATE TABLE IF NOT EXISTS file_tracking (
	file_path TEXT PRIMARY KEY,
	content_hash TEXT NOT NULL,
	file_modified_at TEXT,
	embedding_count INTEGER NOT NULL,
	indexed_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS index_state (
	key TEXT PRIMARY KEY,
	value TEXT NOT NULL
);
`

// InitSchema creates the vectors and tracking tables for the given
// embedding dimension. Idempotent for the same dimension; initializing
// over an existing schema with a different dimension is rejected with a
// DimensionMismatch error (an explicit Reset is required first).
func (s *VectorStore) InitSchema(ctx context.Context, dim int) error {
	if dim <= 0 {
		return errors.ValidationError(fmt.Sprintf("embedding dimension must be positive; got %d", dim), nil)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return errors.StorageError("store is closed", nil)
	}

	if s.dim != 0 && s.dim != dim {
		return errors.DimensionMismatch(s.dim, dim)
	}

	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return errors.StorageError("failed to create schema", err)
	}
	if err := s.setStateLocked(ctx, StateKeyDimension, strconv.Itoa(dim)); err != nil {
		return err
	}

	s.dim = dim
	slog.Debug("schema_initialized", slog.Int("dimension", dim), slog.String("path", s.path))
	return nil
}

// Reset drops and recreates the schema with a new dimension.
// Used for force rebuilds and for recovering from a dimension mismatch.
func (s *VectorStore) Reset(ctx context.Context, dim int) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.StorageError("store is closed", nil)
	}

	_, err := s.db.ExecContext(ctx, `
		DROP TABLE IF EXISTS vectors;
		DROP TABLE IF EXISTS file_tracking;
		DROP TABLE IF EXISTS index_state;
	`)
	s.dim = 0
	s.mu.Unlock()

	if err != nil {
		return errors.StorageError("failed to drop schema", err)
	}

	slog.Info("index_reset", slog.String("path", s.path), slog.Int("dimension", dim))
	return s.InitSchema(ctx, dim)
}

// Dimension returns the schema's embedding dimension, or 0 when the
// schema has not been initialized.
func (s *VectorStore) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dim
}

// storedDimension reads the dimension recorded in index_state.
// Returns 0 when the schema does not exist yet.
func (s *VectorStore) storedDimension() (int, error) {
	var value string
	err := s.db.QueryRow(
		`SELECT value FROM index_state WHERE key = ?`, StateKeyDimension).Scan(&value)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(value)
}

// GetState reads a value from the index_state table.
func (s *VectorStore) GetState(ctx context.Context, key string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRowContext(ctx,
		`SELECT value FROM index_state WHERE key = ?`, key).Scan(&value)
	if err == sql.ErrNoRows {
		return "", nil
	}
	if err != nil {
		return "", errors.StorageError("failed to read index state", err)
	}
	return value, nil
}

// SetState writes a value to the index_state table.
func (s *VectorStore) SetState(ctx context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.setStateLocked(ctx, key, value)
}

func (s *VectorStore) setStateLocked(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO index_state (key, value) VALUES (?, ?)
		 ON CONFLICT(key) DO UPDATE SET value = excluded.value`, key, value)
	if err != nil {
		return errors.StorageError("failed to write index state", err)
	}
	return nil
}

// AddVectors replaces all vector rows for filePath with the given
// embeddings and upserts the tracking row, in one transaction. Readers
// observe either the old vector set or the new one, never a mix.
func (s *VectorStore) AddVectors(ctx context.Context, filePath, contentHash string, embeddings [][]float32) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.StorageError("store is closed", nil)
	}
	if s.dim == 0 {
		return 0, errors.New(errors.ErrCodeSchemaMissing, "schema not initialized", nil)
	}
	if len(embeddings) == 0 {
		return 0, errors.ValidationError("at least one embedding is required", nil)
	}
	for _, emb := range embeddings {
		if len(emb) != s.dim {
			return 0, errors.DimensionMismatch(s.dim, len(emb))
		}
	}

	// The file's mtime is captured now so the staleness oracle can
	// compare against it later. A missing file leaves the column NULL,
	// which the oracle treats as "needs update" (fail open).
	var modifiedAt sql.NullString
	if info, err := os.Stat(filePath); err == nil {
		modifiedAt = sql.NullString{String: info.ModTime().Format(time.RFC3339Nano), Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE file_path = ?`, filePath); err != nil {
		return 0, errors.StorageError("failed to delete old vectors", err)
	}

	now := time.Now().UTC().Format(time.RFC3339Nano)
	for _, emb := range embeddings {
		blob, err := encodeVector(emb)
		if err != nil {
			return 0, errors.StorageError("failed to encode vector", err)
		}
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO vectors (file_path, content_hash, embedding, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?)`,
			filePath, contentHash, blob, now, now); err != nil {
			return 0, errors.StorageError("failed to insert vector", err)
		}
	}

	if _, err := tx.ExecContext(ctx, `
		INSERT INTO file_tracking (file_path, content_hash, file_modified_at, embedding_count, indexed_at)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			content_hash = excluded.content_hash,
			file_modified_at = excluded.file_modified_at,
			embedding_count = excluded.embedding_count,
			indexed_at = excluded.indexed_at`,
		filePath, contentHash, modifiedAt, len(embeddings), now); err != nil {
		return 0, errors.StorageError("failed to upsert tracking row", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.StorageError("failed to commit vector write", err)
	}

	return len(embeddings), nil
}

// RemoveVectors deletes all vector rows and the tracking row for
// filePath. Removing a file that was never indexed returns 0, not an
// error.
func (s *VectorStore) RemoveVectors(ctx context.Context, filePath string) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return 0, errors.StorageError("store is closed", nil)
	}
	if s.dim == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, errors.StorageError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := tx.ExecContext(ctx, `DELETE FROM vectors WHERE file_path = ?`, filePath)
	if err != nil {
		return 0, errors.StorageError("failed to delete vectors", err)
	}
	removed, _ := res.RowsAffected()

	if _, err := tx.ExecContext(ctx, `DELETE FROM file_tracking WHERE file_path = ?`, filePath); err != nil {
		return 0, errors.StorageError("failed to delete tracking row", err)
	}

	if err := tx.Commit(); err != nil {
		return 0, errors.StorageError("failed to commit vector removal", err)
	}

	return int(removed), nil
}

// VectorCount returns the total number of stored vector rows.
func (s *VectorStore) VectorCount(ctx context.Context) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		return 0, nil
	}

	var count int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM vectors`).Scan(&count); err != nil {
		return 0, errors.StorageError("failed to count vectors", err)
	}
	return count, nil
}

// AllVectors returns every stored vector in insertion (row id) order.
// The searcher relies on this ordering for deterministic tie-breaks.
func (s *VectorStore) AllVectors(ctx context.Context) ([]VectorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path, content_hash, embedding FROM vectors ORDER BY id`)
	if err != nil {
		return nil, errors.StorageError("failed to query vectors", err)
	}
	defer func() { _ = rows.Close() }()

	var records []VectorRecord
	for rows.Next() {
		var rec VectorRecord
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.FilePath, &rec.ContentHash, &blob); err != nil {
			return nil, errors.StorageError("failed to scan vector row", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIndexCorrupt, err)
		}
		rec.Embedding = vec
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("failed to iterate vectors", err)
	}

	return records, nil
}

// FileVectors returns the stored vectors for a single file in insertion
// order. An empty slice means the file is not indexed.
func (s *VectorStore) FileVectors(ctx context.Context, filePath string) ([]VectorRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, file_path, content_hash, embedding FROM vectors WHERE file_path = ? ORDER BY id`, filePath)
	if err != nil {
		return nil, errors.StorageError("failed to query file vectors", err)
	}
	defer func() { _ = rows.Close() }()

	var records []VectorRecord
	for rows.Next() {
		var rec VectorRecord
		var blob []byte
		if err := rows.Scan(&rec.ID, &rec.FilePath, &rec.ContentHash, &blob); err != nil {
			return nil, errors.StorageError("failed to scan vector row", err)
		}
		vec, err := decodeVector(blob)
		if err != nil {
			return nil, errors.Wrap(errors.ErrCodeIndexCorrupt, err)
		}
		rec.Embedding = vec
		records = append(records, rec)
	}
	return records, rows.Err()
}
