package service

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/notedex/notedex/internal/config"
	"github.com/notedex/notedex/internal/errors"
)

func testService(t *testing.T, strategy config.IndexStrategy) (*Service, string) {
	t.Helper()
	root := t.TempDir()

	cfg := config.NewConfig()
	cfg.Paths.Root = root
	cfg.Index.Strategy = strategy
	cfg.Index.BatchTimeout = time.Hour // tests drain explicitly
	cfg.Embeddings.Provider = "static"
	cfg.Embeddings.CacheSize = 16

	s, err := New(context.Background(), cfg)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s, root
}

func writeNote(t *testing.T, root, name, content string) string {
	t.Helper()
	path := filepath.Join(root, name)
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestEnqueueOrIndex_ImmediateIsSynchronous(t *testing.T) {
	ctx := context.Background()
	s, root := testService(t, config.StrategyImmediate)
	path := writeNote(t, root, "note.md", "go generics type parameters")

	require.NoError(t, s.EnqueueOrIndex(ctx, path, nil, "add"))

	indexed, err := s.searcher.IsFileIndexed(ctx, path)
	require.NoError(t, err)
	assert.True(t, indexed)
}

func TestEnqueueOrIndex_ImmediateSurfacesFailures(t *testing.T) {
	ctx := context.Background()
	s, root := testService(t, config.StrategyImmediate)

	// No file on disk and no inline content, so the read must fail and
	// the caller must see it.
	err := s.EnqueueOrIndex(ctx, filepath.Join(root, "missing.md"), nil, "add")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeStorageIO, errors.GetCode(err))
}

func TestEnqueueOrIndex_BatchDefersUntilDrained(t *testing.T) {
	ctx := context.Background()
	s, root := testService(t, config.StrategyBatch)
	path := writeNote(t, root, "note.md", "deferred note")

	require.NoError(t, s.EnqueueOrIndex(ctx, path, nil, "add"))

	indexed, err := s.searcher.IsFileIndexed(ctx, path)
	require.NoError(t, err)
	assert.False(t, indexed, "batch mode must not index before draining")

	s.ProcessPending(ctx)

	indexed, err = s.searcher.IsFileIndexed(ctx, path)
	require.NoError(t, err)
	assert.True(t, indexed)
}

func TestEnqueueOrIndex_RemoveOp(t *testing.T) {
	ctx := context.Background()
	s, root := testService(t, config.StrategyImmediate)
	path := writeNote(t, root, "note.md", "soon removed")

	require.NoError(t, s.EnqueueOrIndex(ctx, path, nil, "add"))
	require.NoError(t, s.EnqueueOrIndex(ctx, path, nil, "remove"))

	indexed, err := s.searcher.IsFileIndexed(ctx, path)
	require.NoError(t, err)
	assert.False(t, indexed)
}

func TestEnqueueOrIndex_RejectsOutsidePaths(t *testing.T) {
	ctx := context.Background()
	s, _ := testService(t, config.StrategyImmediate)

	err := s.EnqueueOrIndex(ctx, "../../outside.md", []byte("x"), "add")
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeInvalidPath, errors.GetCode(err))
}

func TestRebuildAndSearch_EndToEnd(t *testing.T) {
	ctx := context.Background()
	s, root := testService(t, config.StrategyImmediate)

	writeNote(t, root, "go.md", "goroutines channels select statements concurrency")
	writeNote(t, root, "cooking/bread.md", "sourdough starter flour hydration baking")
	writeNote(t, root, "scratch.txt", "not a note, wrong extension")

	result, err := s.RebuildIndex(ctx, false)
	require.NoError(t, err)
	assert.Equal(t, 2, result.Processed)
	assert.Empty(t, result.Errors)

	results, err := s.Search(ctx, "goroutines channels select statements concurrency", 1, 0)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Contains(t, results[0].FilePath, "go.md")

	// Second rebuild is incremental.
	result, err = s.RebuildIndex(ctx, false)
	require.NoError(t, err)
	assert.Zero(t, result.Processed)
	assert.Equal(t, 2, result.Skipped)
}

func TestFindSimilar(t *testing.T) {
	ctx := context.Background()
	s, root := testService(t, config.StrategyImmediate)

	anchor := writeNote(t, root, "anchor.md", "distributed consensus raft leader election")
	writeNote(t, root, "related.md", "raft consensus log replication leader election")
	writeNote(t, root, "unrelated.md", "banana bread recipe with walnuts")

	_, err := s.RebuildIndex(ctx, false)
	require.NoError(t, err)

	results, err := s.FindSimilar(ctx, anchor, 2, true)
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Contains(t, results[0].FilePath, "related.md")
	for _, r := range results {
		assert.NotEqual(t, anchor, r.FilePath)
	}
}

func TestFindSimilar_UnindexedFile(t *testing.T) {
	ctx := context.Background()
	s, root := testService(t, config.StrategyImmediate)

	_, err := s.FindSimilar(ctx, filepath.Join(root, "ghost.md"), 5, true)
	require.Error(t, err)
	assert.Equal(t, errors.ErrCodeNotIndexed, errors.GetCode(err))
}

func TestStatus(t *testing.T) {
	ctx := context.Background()
	s, root := testService(t, config.StrategyImmediate)
	writeNote(t, root, "a.md", "first note")
	writeNote(t, root, "b.md", "second note")

	_, err := s.RebuildIndex(ctx, false)
	require.NoError(t, err)

	st, err := s.Status(ctx)
	require.NoError(t, err)

	assert.Equal(t, root, st.Root)
	assert.True(t, st.IndexExists)
	assert.Equal(t, 2, st.IndexedFiles)
	assert.Equal(t, 2, st.VectorCount)
	assert.NotZero(t, st.Dimension)
	assert.Equal(t, "static-hash-256", st.Model)
	assert.Equal(t, config.StrategyImmediate, st.Strategy)
}

func TestClose_Idempotent(t *testing.T) {
	s, _ := testService(t, config.StrategyBackground)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

func TestWatch_IndexesNewNotes(t *testing.T) {
	if testing.Short() {
		t.Skip("filesystem watcher test")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s, root := testService(t, config.StrategyImmediate)

	cfgDone := make(chan error, 1)
	go func() { cfgDone <- s.Watch(ctx) }()

	// Give the watcher a moment to register the root.
	time.Sleep(100 * time.Millisecond)
	path := writeNote(t, root, "live.md", "written while watching")

	require.Eventually(t, func() bool {
		indexed, err := s.searcher.IsFileIndexed(ctx, path)
		return err == nil && indexed
	}, 5*time.Second, 50*time.Millisecond)

	cancel()
	require.NoError(t, <-cfgDone)
}
