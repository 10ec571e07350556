// Package async provides the batch queue that decouples note mutations
// from embedding work. Mutations are enqueued as tasks and processed in
// batches by a single background worker, so writers never block on the
// embedding provider.
//
// Queued tasks are best-effort: they do not survive a process crash.
// The next rebuild picks up anything that was lost.
package async

import (
	"context"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Task operations.
const (
	OpAdd    = "add"
	OpUpdate = "update"
	OpRemove = "remove"
)

// stopTimeout bounds how long Stop waits for the worker to drain.
const stopTimeout = 5 * time.Second

// Task is a single queued index mutation.
type Task struct {
	FilePath string
	Content  []byte
	Op       string
}

// ProcessFunc performs the actual index work for one task.
type ProcessFunc func(ctx context.Context, task Task) error

// Stats is a point-in-time snapshot of queue counters.
type Stats struct {
	TasksQueued      int64
	TasksProcessed   int64
	BatchesProcessed int64
	Errors           int64
}

// Config configures a BatchQueue.
type Config struct {
	// Root is the note corpus root; enqueued paths must resolve inside it.
	Root string

	// BatchSize is the maximum number of tasks drained per batch.
	BatchSize int

	// BatchTimeout is how long the background worker waits before
	// processing a partial batch.
	BatchTimeout time.Duration

	// MaxContentBytes rejects oversized task content at enqueue time.
	MaxContentBytes int
}

// BatchQueue accumulates index tasks and processes them in batches.
// A failed task is counted and dropped; there is no retry.
type BatchQueue struct {
	cfg     Config
	process ProcessFunc

	mu      sync.Mutex
	tasks   []Task
	stopped bool
	running bool

	// wakeCh nudges the background worker when the queue reaches a
	// full batch before the timeout fires.
	wakeCh chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}

	tasksQueued      atomic.Int64
	tasksProcessed   atomic.Int64
	batchesProcessed atomic.Int64
	errors           atomic.Int64
}

// NewBatchQueue creates a queue that hands batches to process.
func NewBatchQueue(cfg Config, process ProcessFunc) *BatchQueue {
	return &BatchQueue{
		cfg:     cfg,
		process: process,
		wakeCh:  make(chan struct{}, 1),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Enqueue validates a task and appends it to the queue. Enqueue after
// Stop is a silent no-op so racing file watchers shut down cleanly.
func (q *BatchQueue) Enqueue(task Task) error {
	if err := q.Validate(task); err != nil {
		return err
	}

	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return nil
	}
	q.tasks = append(q.tasks, task)
	full := len(q.tasks) >= q.cfg.BatchSize
	q.mu.Unlock()

	q.tasksQueued.Add(1)

	if full {
		select {
		case q.wakeCh <- struct{}{}:
		default:
		}
	}
	return nil
}

// Validate checks a task against the queue's rules without enqueueing
// it. Callers that apply tasks synchronously use it to reject bad input
// up front.
func (q *BatchQueue) Validate(task Task) error {
	switch task.Op {
	case OpAdd, OpUpdate, OpRemove:
	default:
		return errInvalidOperation(task.Op)
	}

	if task.FilePath == "" {
		return errInvalidPath(task.FilePath, "empty path")
	}
	if q.cfg.Root != "" {
		abs := task.FilePath
		if !filepath.IsAbs(abs) {
			abs = filepath.Join(q.cfg.Root, abs)
		}
		abs = filepath.Clean(abs)
		rel, err := filepath.Rel(q.cfg.Root, abs)
		if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
			return errInvalidPath(task.FilePath, "path escapes the note root")
		}
	}

	if q.cfg.MaxContentBytes > 0 && len(task.Content) > q.cfg.MaxContentBytes {
		return errContentTooLarge(task.FilePath, len(task.Content), q.cfg.MaxContentBytes)
	}
	return nil
}

// Size returns the number of pending tasks.
func (q *BatchQueue) Size() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tasks)
}

// Stats returns a snapshot of the queue counters.
func (q *BatchQueue) Stats() Stats {
	return Stats{
		TasksQueued:      q.tasksQueued.Load(),
		TasksProcessed:   q.tasksProcessed.Load(),
		BatchesProcessed: q.batchesProcessed.Load(),
		Errors:           q.errors.Load(),
	}
}

// ProcessBatch drains up to BatchSize tasks, processes them, and
// returns how many succeeded. The queue lock is held only for the
// drain, never while embedding, so Enqueue stays non-blocking. An empty
// drain still counts as a processed batch.
func (q *BatchQueue) ProcessBatch(ctx context.Context) int {
	q.mu.Lock()
	n := len(q.tasks)
	if n > q.cfg.BatchSize {
		n = q.cfg.BatchSize
	}
	batch := q.tasks[:n]
	q.tasks = q.tasks[n:]
	q.mu.Unlock()

	q.batchesProcessed.Add(1)

	processed := 0
	for _, task := range batch {
		if err := q.process(ctx, task); err != nil {
			q.errors.Add(1)
			slog.Warn("task_failed",
				slog.String("op", task.Op),
				slog.String("path", task.FilePath),
				slog.String("error", err.Error()))
			continue
		}
		q.tasksProcessed.Add(1)
		processed++
	}
	return processed
}

// ProcessAllPending runs batches until the queue is empty and returns
// the total number of tasks processed.
func (q *BatchQueue) ProcessAllPending(ctx context.Context) int {
	total := 0
	for q.Size() > 0 {
		if ctx.Err() != nil {
			return total
		}
		total += q.ProcessBatch(ctx)
	}
	return total
}

// Start launches the single background worker. The worker processes a
// batch when the queue fills or when BatchTimeout elapses, whichever
// comes first. Calling Start twice is a no-op.
func (q *BatchQueue) Start(ctx context.Context) {
	q.mu.Lock()
	if q.running || q.stopped {
		q.mu.Unlock()
		return
	}
	q.running = true
	q.mu.Unlock()

	go q.run(ctx)
}

func (q *BatchQueue) run(ctx context.Context) {
	defer close(q.doneCh)

	ticker := time.NewTicker(q.cfg.BatchTimeout)
	defer ticker.Stop()

	for {
		select {
		case <-q.stopCh:
			// Final drain so a clean shutdown loses nothing.
			q.ProcessAllPending(ctx)
			return
		case <-ctx.Done():
			return
		case <-q.wakeCh:
			q.ProcessBatch(ctx)
		case <-ticker.C:
			q.ProcessBatch(ctx)
		}
	}
}

// Stop disables enqueue and waits up to five seconds for the worker to
// drain. Idempotent.
func (q *BatchQueue) Stop() {
	q.mu.Lock()
	if q.stopped {
		q.mu.Unlock()
		return
	}
	q.stopped = true
	wasRunning := q.running
	q.mu.Unlock()

	close(q.stopCh)
	if !wasRunning {
		return
	}

	select {
	case <-q.doneCh:
	case <-time.After(stopTimeout):
		slog.Warn("queue_stop_timeout",
			slog.Duration("timeout", stopTimeout),
			slog.Int("pending", q.Size()))
	}
}
