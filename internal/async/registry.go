package async

import (
	"context"
	"log/slog"
	"sync"
)

// QueueFactory builds a queue for a strategy on first use. The factory
// decides whether to start the background worker; immediate and batch
// strategies drain explicitly instead.
type QueueFactory func(ctx context.Context, strategy string) *BatchQueue

// Registry owns the batch queues, one per indexing strategy. Queues are
// created lazily and torn down through a single Close entrypoint, so no
// queue can outlive the service that registered it.
type Registry struct {
	mu      sync.Mutex
	queues  map[string]*BatchQueue
	factory QueueFactory
	closed  bool
}

// NewRegistry creates a registry backed by factory.
func NewRegistry(factory QueueFactory) *Registry {
	return &Registry{
		queues:  make(map[string]*BatchQueue),
		factory: factory,
	}
}

// Get returns the queue for strategy, creating and starting it on first
// use. Returns nil after Close.
func (r *Registry) Get(ctx context.Context, strategy string) *BatchQueue {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return nil
	}
	if q, ok := r.queues[strategy]; ok {
		return q
	}

	q := r.factory(ctx, strategy)
	r.queues[strategy] = q
	slog.Debug("queue_created", slog.String("strategy", strategy))
	return q
}

// Close stops every registered queue. Idempotent.
func (r *Registry) Close() {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return
	}
	r.closed = true
	queues := make([]*BatchQueue, 0, len(r.queues))
	for _, q := range r.queues {
		queues = append(queues, q)
	}
	r.mu.Unlock()

	for _, q := range queues {
		q.Stop()
	}
}
