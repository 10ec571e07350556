// Package index turns note files into stored embeddings. The Indexer
// sits between the embedding provider and the vector store: it decides
// which files actually need work, chunks their content, and writes the
// results with replace semantics.
package index

import (
	"context"
	"log/slog"
	"os"
	"strings"

	"github.com/notedex/notedex/internal/embed"
	"github.com/notedex/notedex/internal/errors"
	"github.com/notedex/notedex/internal/store"
)

// maxChunkRunes caps a single embedded chunk. Notes longer than this
// are split on paragraph boundaries so each chunk stays within the
// model's useful context.
const maxChunkRunes = 2000

// Indexer coordinates embedding generation and vector persistence.
type Indexer struct {
	store    *store.VectorStore
	embedder embed.Embedder
}

// New creates an Indexer over the given store and embedder.
func New(s *store.VectorStore, e embed.Embedder) *Indexer {
	return &Indexer{store: s, embedder: e}
}

// FileError records a single file's indexing failure.
type FileError struct {
	Path string
	Err  error
}

// Result summarizes a Rebuild run.
type Result struct {
	Processed int
	Skipped   int
	Errors    []FileError
}

// IndexFile embeds content and stores the resulting vectors for path.
// Unless force is set, files the staleness oracle considers fresh are
// skipped. Returns true when the file was (re)indexed.
func (ix *Indexer) IndexFile(ctx context.Context, path string, content []byte, force bool) (bool, error) {
	if !force && !ix.store.NeedsUpdate(ctx, path) {
		slog.Debug("index_skip_fresh", slog.String("path", path))
		return false, nil
	}

	if err := ix.ensureSchema(ctx); err != nil {
		return false, err
	}

	chunks := splitChunks(string(content))
	embeddings, err := ix.embedder.EmbedBatch(ctx, chunks)
	if err != nil {
		return false, errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}

	n, err := ix.store.AddVectors(ctx, path, store.ContentHash(content), embeddings)
	if err != nil {
		return false, err
	}

	slog.Debug("file_indexed",
		slog.String("path", path),
		slog.Int("embeddings", n))
	return true, nil
}

// RemoveFile deletes path's vectors and tracking row. Removing a file
// that was never indexed is a no-op.
func (ix *Indexer) RemoveFile(ctx context.Context, path string) error {
	removed, err := ix.store.RemoveVectors(ctx, path)
	if err != nil {
		return err
	}
	if removed > 0 {
		slog.Debug("file_removed", slog.String("path", path), slog.Int("vectors", removed))
	}
	return nil
}

// Rebuild indexes the given paths. With force the schema is dropped and
// every file is reindexed; otherwise only files the staleness oracle
// flags are touched. Per-file failures are collected in the result and
// never abort the run.
func (ix *Indexer) Rebuild(ctx context.Context, paths []string, force bool) (*Result, error) {
	if force {
		dim, err := ix.discoverDimension(ctx)
		if err != nil {
			return nil, err
		}
		if err := ix.store.Reset(ctx, dim); err != nil {
			return nil, err
		}
	}

	result := &Result{}
	for _, path := range paths {
		if err := ctx.Err(); err != nil {
			return result, err
		}

		content, err := os.ReadFile(path)
		if err != nil {
			result.Errors = append(result.Errors, FileError{Path: path, Err: errors.StorageError("failed to read file", err)})
			continue
		}

		indexed, err := ix.IndexFile(ctx, path, content, force)
		if err != nil {
			slog.Warn("index_file_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
			result.Errors = append(result.Errors, FileError{Path: path, Err: err})
			continue
		}
		if indexed {
			result.Processed++
		} else {
			result.Skipped++
		}
	}

	slog.Info("rebuild_complete",
		slog.Int("processed", result.Processed),
		slog.Int("skipped", result.Skipped),
		slog.Int("errors", len(result.Errors)),
		slog.Bool("force", force))
	return result, nil
}

// ensureSchema initializes the store on first use, taking the dimension
// from a sample embedding when the provider discovers it at runtime.
func (ix *Indexer) ensureSchema(ctx context.Context) error {
	if ix.store.Dimension() != 0 {
		return nil
	}
	dim, err := ix.discoverDimension(ctx)
	if err != nil {
		return err
	}
	if err := ix.store.InitSchema(ctx, dim); err != nil {
		return err
	}
	return ix.store.SetState(ctx, store.StateKeyModel, ix.embedder.ModelName())
}

// discoverDimension returns the embedder's dimension, producing a probe
// embedding when the provider only learns it from its first response.
func (ix *Indexer) discoverDimension(ctx context.Context) (int, error) {
	if dim := ix.embedder.Dimensions(); dim > 0 {
		return dim, nil
	}
	probe, err := ix.embedder.Embed(ctx, "dimension probe")
	if err != nil {
		return 0, errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}
	if len(probe) == 0 {
		return 0, errors.New(errors.ErrCodeEmbeddingFailed, "embedder returned an empty vector", nil)
	}
	return len(probe), nil
}

// splitChunks breaks content into paragraph-aligned chunks no longer
// than maxChunkRunes. Empty content yields a single empty chunk so the
// file still gets a tracking row.
func splitChunks(content string) []string {
	if len([]rune(content)) <= maxChunkRunes {
		return []string{content}
	}

	paragraphs := strings.Split(content, "\n\n")
	var chunks []string
	var current strings.Builder
	currentRunes := 0

	flush := func() {
		if current.Len() > 0 {
			chunks = append(chunks, current.String())
			current.Reset()
			currentRunes = 0
		}
	}

	for _, para := range paragraphs {
		paraRunes := len([]rune(para))
		if currentRunes > 0 && currentRunes+paraRunes+2 > maxChunkRunes {
			flush()
		}

		// A single oversized paragraph is split hard.
		for paraRunes > maxChunkRunes {
			runes := []rune(para)
			chunks = append(chunks, string(runes[:maxChunkRunes]))
			para = string(runes[maxChunkRunes:])
			paraRunes = len([]rune(para))
		}

		if current.Len() > 0 {
			current.WriteString("\n\n")
			currentRunes += 2
		}
		current.WriteString(para)
		currentRunes += paraRunes
	}
	flush()

	if len(chunks) == 0 {
		return []string{""}
	}
	return chunks
}
