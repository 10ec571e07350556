// Package search answers similarity queries against the vector store.
// It performs an exact cosine scan over all stored vectors; result
// order is deterministic because ties fall back to vector insertion
// order.
package search

import (
	"context"
	"math"
	"sort"

	"github.com/notedex/notedex/internal/embed"
	"github.com/notedex/notedex/internal/errors"
	"github.com/notedex/notedex/internal/store"
)

// Result is a single similarity match. Score is cosine similarity in
// [-1, 1]; for normalized embeddings it is effectively [0, 1].
type Result struct {
	FilePath string
	Score    float32
}

// Searcher runs similarity queries over the store's vectors.
type Searcher struct {
	store    *store.VectorStore
	embedder embed.Embedder
}

// New creates a Searcher over the given store and embedder.
func New(s *store.VectorStore, e embed.Embedder) *Searcher {
	return &Searcher{store: s, embedder: e}
}

// Search embeds the query text and returns up to k files whose vectors
// score at or above threshold, best first.
func (s *Searcher) Search(ctx context.Context, query string, k int, threshold float32) ([]Result, error) {
	if query == "" {
		return nil, errors.ValidationError("query must not be empty", nil)
	}
	queryVec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeEmbeddingFailed, err)
	}
	return s.SearchSimilar(ctx, queryVec, k, threshold)
}

// SearchSimilar scans all stored vectors and returns up to k files
// ranked by descending cosine similarity to queryVec. The threshold
// filter applies before the k cut. A file with multiple vectors is
// scored by its best chunk. Equal scores keep insertion order.
func (s *Searcher) SearchSimilar(ctx context.Context, queryVec []float32, k int, threshold float32) ([]Result, error) {
	if dim := s.store.Dimension(); dim != 0 && len(queryVec) != dim {
		return nil, errors.DimensionMismatch(dim, len(queryVec))
	}

	records, err := s.store.AllVectors(ctx)
	if err != nil {
		return nil, err
	}

	return rankRecords(records, queryVec, k, threshold, ""), nil
}

// FindSimilarToFile returns up to k files similar to an already-indexed
// file, scored against its first stored vector. excludeSelf removes the
// file itself from the results.
func (s *Searcher) FindSimilarToFile(ctx context.Context, path string, k int, excludeSelf bool) ([]Result, error) {
	fileVecs, err := s.store.FileVectors(ctx, path)
	if err != nil {
		return nil, err
	}
	if len(fileVecs) == 0 {
		return nil, errors.NotIndexed(path)
	}

	records, err := s.store.AllVectors(ctx)
	if err != nil {
		return nil, err
	}

	exclude := ""
	if excludeSelf {
		exclude = path
	}
	return rankRecords(records, fileVecs[0].Embedding, k, 0, exclude), nil
}

// IsFileIndexed reports whether path has a tracking row.
func (s *Searcher) IsFileIndexed(ctx context.Context, path string) (bool, error) {
	return s.store.IsIndexed(ctx, path)
}

// IndexedFiles lists tracked files sorted by path.
func (s *Searcher) IndexedFiles(ctx context.Context) ([]store.TrackedFile, error) {
	return s.store.IndexedFiles(ctx)
}

// rankRecords collapses per-chunk scores to the best score per file,
// filters by threshold, and returns the top k. Records arrive in
// insertion order, which a stable sort preserves across equal scores.
func rankRecords(records []store.VectorRecord, queryVec []float32, k int, threshold float32, exclude string) []Result {
	type fileScore struct {
		order int
		score float32
	}
	best := make(map[string]*fileScore)
	var order []string

	for _, rec := range records {
		if rec.FilePath == exclude {
			continue
		}
		score := cosineSimilarity(queryVec, rec.Embedding)
		if fs, ok := best[rec.FilePath]; ok {
			if score > fs.score {
				fs.score = score
			}
			continue
		}
		best[rec.FilePath] = &fileScore{order: len(order), score: score}
		order = append(order, rec.FilePath)
	}

	results := make([]Result, 0, len(order))
	for _, path := range order {
		fs := best[path]
		if fs.score < threshold {
			continue
		}
		results = append(results, Result{FilePath: path, Score: fs.score})
	}

	sort.SliceStable(results, func(i, j int) bool {
		return results[i].Score > results[j].Score
	})

	if k > 0 && len(results) > k {
		results = results[:k]
	}
	return results
}

// cosineSimilarity computes the cosine of the angle between two vectors.
// Mismatched lengths or zero vectors score 0.
func cosineSimilarity(a, b []float32) float32 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return float32(dot / (math.Sqrt(normA) * math.Sqrt(normB)))
}
