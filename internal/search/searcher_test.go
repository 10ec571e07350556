package search

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedex/notedex/internal/embed"
	"github.com/notedex/notedex/internal/errors"
	"github.com/notedex/notedex/internal/store"
)

func newTestStore(t *testing.T, dim int) *store.VectorStore {
	t.Helper()
	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	require.NoError(t, s.InitSchema(context.Background(), dim))
	return s
}

// addFile indexes one file with the given vectors, creating the backing
// file so tracking rows get a valid mtime.
func addFile(t *testing.T, s *store.VectorStore, dir, name string, vecs ...[]float32) string {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(name), 0o644))
	_, err := s.AddVectors(context.Background(), path, store.ContentHash([]byte(name)), vecs)
	require.NoError(t, err)
	return path
}

func TestSearchSimilar_ThresholdBeforeK(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 2)
	dir := t.TempDir()

	// Cosine against query {1, 0}: 0.9-ish, 0.6-ish, 0.3-ish.
	high := addFile(t, s, dir, "high.md", []float32{0.9, 0.436})
	mid := addFile(t, s, dir, "mid.md", []float32{0.6, 0.8})
	addFile(t, s, dir, "low.md", []float32{0.3, 0.954})

	searcher := New(s, embed.NewStaticEmbedder())
	results, err := searcher.SearchSimilar(ctx, []float32{1, 0}, 2, 0.5)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, high, results[0].FilePath)
	assert.Equal(t, mid, results[1].FilePath)
	assert.Greater(t, results[0].Score, results[1].Score)
	for _, r := range results {
		assert.GreaterOrEqual(t, r.Score, float32(0.5))
	}
}

func TestSearchSimilar_ThresholdCanEmptyResults(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 2)
	addFile(t, s, t.TempDir(), "a.md", []float32{0, 1})

	searcher := New(s, embed.NewStaticEmbedder())
	results, err := searcher.SearchSimilar(ctx, []float32{1, 0}, 10, 0.9)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSearchSimilar_TiesKeepInsertionOrder(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 2)
	dir := t.TempDir()

	// Identical vectors: scores tie exactly.
	first := addFile(t, s, dir, "first.md", []float32{1, 0})
	second := addFile(t, s, dir, "second.md", []float32{1, 0})
	third := addFile(t, s, dir, "third.md", []float32{1, 0})

	searcher := New(s, embed.NewStaticEmbedder())
	results, err := searcher.SearchSimilar(ctx, []float32{1, 0}, 0, 0)
	require.NoError(t, err)

	require.Len(t, results, 3)
	assert.Equal(t, []string{first, second, third},
		[]string{results[0].FilePath, results[1].FilePath, results[2].FilePath})
}

func TestSearchSimilar_BestChunkScoresFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 2)
	dir := t.TempDir()

	// Multi-chunk file: one poor chunk, one perfect chunk.
	multi := addFile(t, s, dir, "multi.md", []float32{0, 1}, []float32{1, 0})
	addFile(t, s, dir, "single.md", []float32{0.7, 0.714})

	searcher := New(s, embed.NewStaticEmbedder())
	results, err := searcher.SearchSimilar(ctx, []float32{1, 0}, 0, 0)
	require.NoError(t, err)

	require.Len(t, results, 2)
	assert.Equal(t, multi, results[0].FilePath)
	assert.InDelta(t, 1.0, float64(results[0].Score), 1e-5)
}

func TestSearchSimilar_DimensionMismatch(t *testing.T) {
	s := newTestStore(t, 4)
	searcher := New(s, embed.NewStaticEmbedder())

	_, err := searcher.SearchSimilar(context.Background(), []float32{1, 0}, 5, 0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeDimensionMismatch, errors.GetCode(err))
}

func TestFindSimilarToFile(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t, 2)
	dir := t.TempDir()

	anchor := addFile(t, s, dir, "anchor.md", []float32{1, 0})
	near := addFile(t, s, dir, "near.md", []float32{0.95, 0.312})
	far := addFile(t, s, dir, "far.md", []float32{0, 1})

	searcher := New(s, embed.NewStaticEmbedder())

	t.Run("excludes self", func(t *testing.T) {
		results, err := searcher.FindSimilarToFile(ctx, anchor, 10, true)
		require.NoError(t, err)
		require.Len(t, results, 2)
		assert.Equal(t, near, results[0].FilePath)
		assert.Equal(t, far, results[1].FilePath)
	})

	t.Run("includes self when asked", func(t *testing.T) {
		results, err := searcher.FindSimilarToFile(ctx, anchor, 10, false)
		require.NoError(t, err)
		require.Len(t, results, 3)
		assert.Equal(t, anchor, results[0].FilePath)
	})

	t.Run("unindexed file is a typed error", func(t *testing.T) {
		_, err := searcher.FindSimilarToFile(ctx, filepath.Join(dir, "ghost.md"), 5, true)
		require.Error(t, err)
		assert.Equal(t, errors.ErrCodeNotIndexed, errors.GetCode(err))
	})
}

func TestSearch_EmbedsQueryText(t *testing.T) {
	ctx := context.Background()
	s, err := store.Open("")
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	embedder := embed.NewStaticEmbedder()
	require.NoError(t, s.InitSchema(ctx, embedder.Dimensions()))

	dir := t.TempDir()
	goVec, err := embedder.Embed(ctx, "go concurrency channels goroutines")
	require.NoError(t, err)
	cookVec, err := embedder.Embed(ctx, "sourdough bread baking recipe")
	require.NoError(t, err)

	goNote := addFile(t, s, dir, "go.md", goVec)
	addFile(t, s, dir, "bread.md", cookVec)

	searcher := New(s, embedder)
	results, err := searcher.Search(ctx, "go concurrency channels goroutines", 1, 0)
	require.NoError(t, err)

	require.Len(t, results, 1)
	assert.Equal(t, goNote, results[0].FilePath)

	_, err = searcher.Search(ctx, "", 1, 0)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidInput, errors.GetCode(err))
}

func TestCosineSimilarity(t *testing.T) {
	tests := []struct {
		name string
		a, b []float32
		want float32
	}{
		{"identical", []float32{1, 0}, []float32{1, 0}, 1},
		{"orthogonal", []float32{1, 0}, []float32{0, 1}, 0},
		{"opposite", []float32{1, 0}, []float32{-1, 0}, -1},
		{"zero vector", []float32{0, 0}, []float32{1, 0}, 0},
		{"length mismatch", []float32{1}, []float32{1, 0}, 0},
		{"scale invariant", []float32{2, 0}, []float32{5, 0}, 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, float64(tt.want), float64(cosineSimilarity(tt.a, tt.b)), 1e-6)
		})
	}
}
