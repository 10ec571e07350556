package watcher

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/notedex/notedex/internal/errors"
)

// CorpusWatcher watches a note root recursively and emits debounced
// event batches on Events().
type CorpusWatcher struct {
	fsWatcher *fsnotify.Watcher
	debouncer *Debouncer
	opts      Options
	rootPath  string

	mu      sync.Mutex
	started bool
	stopped bool
	stopCh  chan struct{}
	doneCh  chan struct{}
}

// New creates a watcher; call Start to begin receiving events.
func New(opts Options) (*CorpusWatcher, error) {
	opts = opts.WithDefaults()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, errors.StorageError("failed to create file watcher", err)
	}

	return &CorpusWatcher{
		fsWatcher: fsw,
		debouncer: NewDebouncer(opts.Debounce, opts.EventBufferSize),
		opts:      opts,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start watches root recursively until ctx is cancelled or Stop is
// called. Non-blocking; events arrive on Events().
func (w *CorpusWatcher) Start(ctx context.Context, root string) error {
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return errors.ValidationError("failed to resolve watch root", err)
	}
	w.rootPath = absRoot

	if err := w.addRecursive(absRoot); err != nil {
		return err
	}

	w.mu.Lock()
	w.started = true
	w.mu.Unlock()

	go w.run(ctx)
	slog.Info("watcher_started", slog.String("root", absRoot))
	return nil
}

// Events returns the channel of debounced event batches. Closed on Stop.
func (w *CorpusWatcher) Events() <-chan []FileEvent {
	return w.debouncer.Output()
}

// Stop stops watching and closes the event channel. Safe to call
// multiple times.
func (w *CorpusWatcher) Stop() error {
	w.mu.Lock()
	if w.stopped {
		w.mu.Unlock()
		return nil
	}
	w.stopped = true
	started := w.started
	w.mu.Unlock()

	close(w.stopCh)
	err := w.fsWatcher.Close()
	if started {
		<-w.doneCh
	}
	w.debouncer.Stop()
	return err
}

func (w *CorpusWatcher) run(ctx context.Context) {
	defer close(w.doneCh)

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.stopCh:
			return
		case event, ok := <-w.fsWatcher.Events:
			if !ok {
				return
			}
			w.handleEvent(event)
		case err, ok := <-w.fsWatcher.Errors:
			if !ok {
				return
			}
			slog.Warn("watcher_error", slog.String("error", err.Error()))
		}
	}
}

func (w *CorpusWatcher) handleEvent(event fsnotify.Event) {
	path := filepath.Clean(event.Name)

	// New directories must be added to the watch set; fsnotify does not
	// watch recursively on its own.
	if event.Op.Has(fsnotify.Create) {
		if info, err := os.Stat(path); err == nil && info.IsDir() {
			if !isHiddenDir(filepath.Base(path)) {
				_ = w.addRecursive(path)
			}
			return
		}
	}

	if matched, _ := filepath.Match(w.opts.Pattern, filepath.Base(path)); !matched {
		return
	}

	var op Operation
	switch {
	case event.Op.Has(fsnotify.Create):
		op = OpCreate
	case event.Op.Has(fsnotify.Write):
		op = OpModify
	case event.Op.Has(fsnotify.Remove), event.Op.Has(fsnotify.Rename):
		op = OpDelete
	default:
		return // chmod etc.
	}

	w.debouncer.Add(FileEvent{
		Path:      path,
		Operation: op,
		Timestamp: time.Now(),
	})
}

// addRecursive adds root and every non-hidden subdirectory to the
// fsnotify watch set.
func (w *CorpusWatcher) addRecursive(root string) error {
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && isHiddenDir(d.Name()) {
			return filepath.SkipDir
		}
		if err := w.fsWatcher.Add(path); err != nil {
			slog.Warn("watch_add_failed",
				slog.String("path", path),
				slog.String("error", err.Error()))
		}
		return nil
	})
	if err != nil {
		return errors.StorageError("failed to walk watch root", err)
	}
	return nil
}

func isHiddenDir(name string) bool {
	return strings.HasPrefix(name, ".")
}
