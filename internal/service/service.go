// Package service is the caller-facing API of notedex. It owns the
// store, embedder, indexer, searcher, and batch queues, and exposes the
// operations the CLI drives. Everything is torn down through a single
// Close.
package service

import (
	"context"
	"log/slog"
	"os"
	"path/filepath"
	"sync"

	"github.com/notedex/notedex/internal/async"
	"github.com/notedex/notedex/internal/config"
	"github.com/notedex/notedex/internal/embed"
	"github.com/notedex/notedex/internal/errors"
	"github.com/notedex/notedex/internal/index"
	"github.com/notedex/notedex/internal/scanner"
	"github.com/notedex/notedex/internal/search"
	"github.com/notedex/notedex/internal/store"
	"github.com/notedex/notedex/internal/watcher"
)

// Status reports the index state for the status command.
type Status struct {
	Root         string
	IndexPath    string
	IndexExists  bool
	IndexedFiles int
	VectorCount  int
	Dimension    int
	Model        string
	Strategy     config.IndexStrategy
	QueueStats   async.Stats
}

// SearchResult is a ranked match returned to callers.
type SearchResult struct {
	FilePath string
	Score    float32
}

// Service wires the index components together for one note root.
type Service struct {
	cfg      *config.Config
	store    *store.VectorStore
	embedder embed.Embedder
	indexer  *index.Indexer
	searcher *search.Searcher
	registry *async.Registry

	closeOnce sync.Once
	closeErr  error
}

// New opens the index for the configured root and verifies the
// embedding provider once.
func New(ctx context.Context, cfg *config.Config) (*Service, error) {
	embedder, err := embed.NewEmbedder(ctx, embed.Options{
		Provider:   embed.ParseProvider(cfg.Embeddings.Provider),
		Model:      cfg.Embeddings.Model,
		OllamaHost: cfg.Embeddings.OllamaHost,
		CacheSize:  cfg.Embeddings.CacheSize,
	})
	if err != nil {
		return nil, err
	}

	vectorStore, err := store.Open(cfg.IndexPath())
	if err != nil {
		_ = embedder.Close()
		return nil, err
	}

	s := &Service{
		cfg:      cfg,
		store:    vectorStore,
		embedder: embedder,
		indexer:  index.New(vectorStore, embedder),
		searcher: search.New(vectorStore, embedder),
	}

	s.registry = async.NewRegistry(func(ctx context.Context, strategy string) *async.BatchQueue {
		q := async.NewBatchQueue(async.Config{
			Root:            cfg.Paths.Root,
			BatchSize:       cfg.Index.BatchSize,
			BatchTimeout:    cfg.Index.BatchTimeout,
			MaxContentBytes: int(cfg.Index.MaxContentBytes),
		}, s.processTask)
		// Only the background strategy self-drains; immediate and batch
		// drain on the caller's goroutine.
		if strategy == string(config.StrategyBackground) {
			q.Start(ctx)
		}
		return q
	})

	return s, nil
}

// processTask is the queue's ProcessFunc: it applies one mutation to
// the index.
func (s *Service) processTask(ctx context.Context, task async.Task) error {
	path := s.resolvePath(task.FilePath)
	switch task.Op {
	case async.OpRemove:
		return s.indexer.RemoveFile(ctx, path)
	default:
		content := task.Content
		if content == nil {
			data, err := os.ReadFile(path)
			if err != nil {
				return errors.StorageError("failed to read note", err)
			}
			content = data
		}
		_, err := s.indexer.IndexFile(ctx, path, content, false)
		return err
	}
}

func (s *Service) resolvePath(path string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(s.cfg.Paths.Root, path)
}

// EnqueueOrIndex applies a note mutation according to the configured
// strategy. Immediate mode bypasses the queue and indexes on the
// caller's goroutine, so failures come back to the caller; batch and
// background modes enqueue.
func (s *Service) EnqueueOrIndex(ctx context.Context, path string, content []byte, op string) error {
	task := async.Task{FilePath: path, Content: content, Op: op}
	q := s.queue() // validation rules live on the queue
	if q == nil {
		return errors.New(errors.ErrCodeInternal, "service is closed", nil)
	}

	if s.cfg.Index.Strategy == config.StrategyImmediate {
		if err := q.Validate(task); err != nil {
			return err
		}
		return s.processTask(ctx, task)
	}
	return q.Enqueue(task)
}

// ProcessPending drains the queue for the active strategy. Used by
// batch mode and by tests; background mode drains itself.
func (s *Service) ProcessPending(ctx context.Context) {
	if q := s.queue(); q != nil {
		q.ProcessAllPending(ctx)
	}
}

func (s *Service) queue() *async.BatchQueue {
	return s.registry.Get(context.Background(), string(s.cfg.Index.Strategy))
}

// RebuildIndex scans the corpus and indexes every matching note.
// With force the schema is dropped first and every file is reindexed.
func (s *Service) RebuildIndex(ctx context.Context, force bool) (*index.Result, error) {
	files, err := scanner.ScanAll(ctx, scanner.Options{
		RootDir:     s.cfg.Paths.Root,
		Pattern:     s.cfg.Paths.Pattern,
		ExcludeDirs: s.cfg.Paths.Exclude,
		MaxFileSize: s.cfg.Index.MaxContentBytes,
	})
	if err != nil {
		return nil, err
	}

	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.AbsPath
	}

	slog.Info("rebuild_started",
		slog.String("root", s.cfg.Paths.Root),
		slog.Int("candidates", len(paths)),
		slog.Bool("force", force))
	return s.indexer.Rebuild(ctx, paths, force)
}

// Search embeds the query and returns ranked matches. Zero k and
// threshold fall back to the configured defaults.
func (s *Service) Search(ctx context.Context, query string, k int, threshold float32) ([]SearchResult, error) {
	if k <= 0 {
		k = s.cfg.Search.MaxResults
	}
	if threshold <= 0 {
		threshold = float32(s.cfg.Search.Threshold)
	}

	results, err := s.searcher.Search(ctx, query, k, threshold)
	if err != nil {
		return nil, err
	}
	return toSearchResults(results), nil
}

// FindSimilar returns notes similar to an already-indexed note.
func (s *Service) FindSimilar(ctx context.Context, path string, k int, excludeSelf bool) ([]SearchResult, error) {
	if k <= 0 {
		k = s.cfg.Search.MaxResults
	}
	results, err := s.searcher.FindSimilarToFile(ctx, s.resolvePath(path), k, excludeSelf)
	if err != nil {
		return nil, err
	}
	return toSearchResults(results), nil
}

func toSearchResults(results []search.Result) []SearchResult {
	out := make([]SearchResult, len(results))
	for i, r := range results {
		out[i] = SearchResult{FilePath: r.FilePath, Score: r.Score}
	}
	return out
}

// Status reports the current index state.
func (s *Service) Status(ctx context.Context) (*Status, error) {
	st := &Status{
		Root:      s.cfg.Paths.Root,
		IndexPath: s.cfg.IndexPath(),
		Strategy:  s.cfg.Index.Strategy,
		Dimension: s.store.Dimension(),
	}

	if _, err := os.Stat(st.IndexPath); err == nil {
		st.IndexExists = true
	}

	files, err := s.store.IndexedFiles(ctx)
	if err != nil {
		return nil, err
	}
	st.IndexedFiles = len(files)

	st.VectorCount, err = s.store.VectorCount(ctx)
	if err != nil {
		return nil, err
	}

	if model, err := s.store.GetState(ctx, store.StateKeyModel); err == nil {
		st.Model = model
	}

	if q := s.queue(); q != nil {
		st.QueueStats = q.Stats()
	}
	return st, nil
}

// Watch runs the filesystem watcher until ctx is cancelled, feeding
// coalesced events into the queue for the active strategy.
func (s *Service) Watch(ctx context.Context) error {
	w, err := watcher.New(watcher.Options{
		Pattern:  s.cfg.Paths.Pattern,
		Debounce: s.cfg.Watch.Debounce,
	})
	if err != nil {
		return err
	}
	if err := w.Start(ctx, s.cfg.Paths.Root); err != nil {
		return err
	}
	defer func() { _ = w.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return nil
		case batch, ok := <-w.Events():
			if !ok {
				return nil
			}
			for _, event := range batch {
				op := async.OpUpdate
				switch event.Operation {
				case watcher.OpCreate:
					op = async.OpAdd
				case watcher.OpDelete:
					op = async.OpRemove
				}
				if err := s.EnqueueOrIndex(ctx, event.Path, nil, op); err != nil {
					slog.Warn("watch_enqueue_failed",
						slog.String("path", event.Path),
						slog.String("error", err.Error()))
				}
			}
		}
	}
}

// IndexedFiles lists tracked files sorted by path.
func (s *Service) IndexedFiles(ctx context.Context) ([]store.TrackedFile, error) {
	return s.store.IndexedFiles(ctx)
}

// Close stops the queues and releases the store, embedder, and index
// lock. Safe to call multiple times.
func (s *Service) Close() error {
	s.closeOnce.Do(func() {
		s.registry.Close()
		if err := s.embedder.Close(); err != nil {
			s.closeErr = err
		}
		if err := s.store.Close(); err != nil {
			s.closeErr = err
		}
		slog.Debug("service_closed", slog.String("root", s.cfg.Paths.Root))
	})
	return s.closeErr
}
