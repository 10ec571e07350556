package store

import (
	"context"
	"database/sql"
	"log/slog"
	"os"
	"time"

	"github.com/notedex/notedex/internal/errors"
)

// NeedsUpdate is the staleness oracle. It reports true when filePath's
// stored vectors are out of date relative to the file on disk:
//
//   - no tracking row exists, or
//   - the file's mtime differs from the recorded one, or
//   - mtimes match but the content hash differs (catches edits made by
//     tooling that preserves timestamps).
//
// Any I/O error or an unparsable stored timestamp also reports true:
// when in doubt, re-index.
func (s *VectorStore) NeedsUpdate(ctx context.Context, filePath string) bool {
	tracked, err := s.trackedFile(ctx, filePath)
	if err != nil || tracked == nil {
		return true
	}

	info, err := os.Stat(filePath)
	if err != nil {
		return true
	}

	storedMtime, err := time.Parse(time.RFC3339Nano, tracked.FileModifiedAt)
	if err != nil {
		// NULL or corrupted timestamp: fail open.
		return true
	}

	if !info.ModTime().Equal(storedMtime) {
		return true
	}

	// Same mtime: fall back to the content hash.
	content, err := os.ReadFile(filePath)
	if err != nil {
		return true
	}

	return ContentHash(content) != tracked.ContentHash
}

// OutdatedFiles filters paths down to those whose staleness oracle
// reports true. Read-only; safe to call concurrently with writers.
func (s *VectorStore) OutdatedFiles(ctx context.Context, filePaths []string) []string {
	var outdated []string
	for _, path := range filePaths {
		if s.NeedsUpdate(ctx, path) {
			outdated = append(outdated, path)
		}
	}

	slog.Debug("outdated_files",
		slog.Int("checked", len(filePaths)),
		slog.Int("outdated", len(outdated)))
	return outdated
}

// IsIndexed reports whether a tracking row exists for filePath.
func (s *VectorStore) IsIndexed(ctx context.Context, filePath string) (bool, error) {
	tracked, err := s.trackedFile(ctx, filePath)
	if err != nil {
		return false, err
	}
	return tracked != nil, nil
}

// IndexedFiles returns the tracking rows for all indexed files, ordered
// by path.
func (s *VectorStore) IndexedFiles(ctx context.Context) ([]TrackedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.dim == 0 {
		return nil, nil
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT file_path, content_hash, COALESCE(file_modified_at, ''), embedding_count, indexed_at
		FROM file_tracking ORDER BY file_path`)
	if err != nil {
		return nil, errors.StorageError("failed to query tracking rows", err)
	}
	defer func() { _ = rows.Close() }()

	var files []TrackedFile
	for rows.Next() {
		var f TrackedFile
		var indexedAt string
		if err := rows.Scan(&f.FilePath, &f.ContentHash, &f.FileModifiedAt, &f.EmbeddingCount, &indexedAt); err != nil {
			return nil, errors.StorageError("failed to scan tracking row", err)
		}
		f.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
		files = append(files, f)
	}
	if err := rows.Err(); err != nil {
		return nil, errors.StorageError("failed to iterate tracking rows", err)
	}

	return files, nil
}

// trackedFile fetches a single tracking row, or nil when none exists.
func (s *VectorStore) trackedFile(ctx context.Context, filePath string) (*TrackedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, errors.StorageError("store is closed", nil)
	}
	if s.dim == 0 {
		return nil, nil
	}

	var f TrackedFile
	var indexedAt string
	err := s.db.QueryRowContext(ctx, `
		SELECT file_path, content_hash, COALESCE(file_modified_at, ''), embedding_count, indexed_at
		FROM file_tracking WHERE file_path = ?`, filePath).
		Scan(&f.FilePath, &f.ContentHash, &f.FileModifiedAt, &f.EmbeddingCount, &indexedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, errors.StorageError("failed to read tracking row", err)
	}

	f.IndexedAt, _ = time.Parse(time.RFC3339Nano, indexedAt)
	return &f, nil
}
