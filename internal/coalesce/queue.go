package coalesce

import (
	"context"
	"log/slog"
	"sync"

	"github.com/roach88/contentsync/internal/metrics"
)

// Handler persists payloads for a key.
//
// Errors are logged and swallowed: a failed Prepare drops the pending
// payload for the key, a failed Apply moves on to the next payload.
type Handler[K comparable, V any] interface {
	// Prepare runs once when a drain starts, before any payload is taken.
	Prepare(ctx context.Context, key K) error
	// Apply persists one payload.
	Apply(ctx context.Context, key K, value V) error
}

// Funcs adapts plain functions to Handler. A nil PrepareFunc is a no-op.
type Funcs[K comparable, V any] struct {
	PrepareFunc func(ctx context.Context, key K) error
	ApplyFunc   func(ctx context.Context, key K, value V) error
}

// Prepare implements Handler.
func (f Funcs[K, V]) Prepare(ctx context.Context, key K) error {
	if f.PrepareFunc == nil {
		return nil
	}
	return f.PrepareFunc(ctx, key)
}

// Apply implements Handler.
func (f Funcs[K, V]) Apply(ctx context.Context, key K, value V) error {
	return f.ApplyFunc(ctx, key, value)
}

// Queue coalesces upserts per key.
//
// Thread-safety: all methods are safe for concurrent use.
type Queue[K comparable, V any] struct {
	name    string
	handler Handler[K, V]
	ctx     context.Context
	cancel  context.CancelFunc
	logger  *slog.Logger
	metrics *metrics.Collector

	mu      sync.Mutex
	pending map[K]V
	active  map[K]struct{}
	closed  bool
	idle    chan struct{} // closed while no drain is active
	wg      sync.WaitGroup
}

// Option configures a Queue.
type Option func(*options)

type options struct {
	logger  *slog.Logger
	metrics *metrics.Collector
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(o *options) {
		o.metrics = c
	}
}

// New creates a queue named name (used in logs and metrics).
//
// Drains run with a context derived from ctx; cancelling ctx or calling
// Close cancels in-flight drains.
func New[K comparable, V any](ctx context.Context, name string, h Handler[K, V], opts ...Option) *Queue[K, V] {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}

	ctx, cancel := context.WithCancel(ctx)
	idle := make(chan struct{})
	close(idle)

	return &Queue[K, V]{
		name:    name,
		handler: h,
		ctx:     ctx,
		cancel:  cancel,
		logger:  o.logger.With("component", "coalesce", "queue", name),
		metrics: o.metrics,
		pending: make(map[K]V),
		active:  make(map[K]struct{}),
		idle:    idle,
	}
}

// Enqueue records value as the latest payload for key and makes sure a
// drain is running for it.
//
// Returns false if the queue is closed.
func (q *Queue[K, V]) Enqueue(key K, value V) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}

	if _, ok := q.pending[key]; ok {
		q.metrics.Upsert(q.name, "coalesced")
	} else {
		q.metrics.Upsert(q.name, "enqueued")
	}
	q.pending[key] = value

	if _, ok := q.active[key]; ok {
		return true
	}
	if len(q.active) == 0 {
		q.idle = make(chan struct{})
	}
	q.active[key] = struct{}{}
	q.wg.Add(1)
	q.metrics.DrainStarted()
	go q.drain(key)

	return true
}

// Pending reports whether a payload is waiting for key.
func (q *Queue[K, V]) Pending(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.pending[key]
	return ok
}

// Active reports whether a drain is running for key.
func (q *Queue[K, V]) Active(key K) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.active[key]
	return ok
}

// Wait blocks until no drain is active or ctx is done.
func (q *Queue[K, V]) Wait(ctx context.Context) error {
	q.mu.Lock()
	idle := q.idle
	q.mu.Unlock()

	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close rejects further enqueues, cancels running drains and waits for
// them to exit.
func (q *Queue[K, V]) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	q.mu.Unlock()

	q.cancel()
	q.wg.Wait()
}

func (q *Queue[K, V]) drain(key K) {
	defer q.wg.Done()
	defer q.metrics.DrainStopped()

	if err := q.handler.Prepare(q.ctx, key); err != nil {
		q.logger.Error("prepare failed, dropping pending payload", "key", key, "error", err)
		q.metrics.Upsert(q.name, "failed")
		q.mu.Lock()
		delete(q.pending, key)
		q.markIdleLocked(key)
		q.mu.Unlock()
		return
	}

	for {
		value, ok := q.take(key)
		if !ok {
			return
		}
		if err := q.handler.Apply(q.ctx, key, value); err != nil {
			q.logger.Error("apply failed", "key", key, "error", err)
			q.metrics.Upsert(q.name, "failed")
			continue
		}
		q.metrics.Upsert(q.name, "applied")
	}
}

// take removes and returns the pending payload for key. When there is none,
// or the queue is shutting down, it marks the key idle in the same critical
// section.
func (q *Queue[K, V]) take(key K) (V, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	value, ok := q.pending[key]
	if ok && q.ctx.Err() != nil {
		delete(q.pending, key)
		ok = false
	}
	if !ok {
		q.markIdleLocked(key)
		var zero V
		return zero, false
	}
	delete(q.pending, key)
	return value, true
}

func (q *Queue[K, V]) markIdleLocked(key K) {
	delete(q.active, key)
	if len(q.active) == 0 {
		close(q.idle)
	}
}
