// Package store provides the persistence layer for the note index: vector
// rows, per-file tracking metadata, and the staleness oracle, all in a
// single SQLite database.
package store

import (
	"time"
)

// State keys for the index_state key-value table.
const (
	// StateKeyDimension stores the embedding dimension the schema was
	// initialized with.
	StateKeyDimension = "embedding_dimension"
	// StateKeyModel stores the embedding model name used for the index.
	StateKeyModel = "embedding_model"
)

// VectorRecord is a stored embedding row. A file may own several rows
// (one per chunk); re-indexing replaces all rows for the file.
type VectorRecord struct {
	ID          int64
	FilePath    string
	ContentHash string
	Embedding   []float32
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// TrackedFile is the per-file indexing metadata used by the staleness
// oracle. One row exists per indexed file, if and only if at least one
// vector row exists for it.
type TrackedFile struct {
	FilePath       string
	ContentHash    string
	FileModifiedAt string // RFC3339Nano; empty or garbage means "needs update"
	EmbeddingCount int
	IndexedAt      time.Time
}
