package store

import (
	"sync"

	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
)

// changeQueue is a FIFO of pending change notifications.
//
// The queue is unbounded so writers never block on slow observers. It uses
// a buffered channel of size 1 for signaling so the dispatcher can wait
// with select.
type changeQueue struct {
	mu      sync.Mutex
	changes []service.Change
	closed  bool
	signal  chan struct{}
}

func newChangeQueue() *changeQueue {
	return &changeQueue{
		changes: make([]service.Change, 0, 16),
		signal:  make(chan struct{}, 1),
	}
}

// Enqueue adds a change. Returns false if the queue is closed.
func (q *changeQueue) Enqueue(c service.Change) bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.closed {
		return false
	}
	q.changes = append(q.changes, c)

	// Non-blocking: the buffer of 1 coalesces signals.
	select {
	case q.signal <- struct{}{}:
	default:
	}
	return true
}

// TryDequeue removes and returns the front change.
func (q *changeQueue) TryDequeue() (service.Change, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if len(q.changes) == 0 {
		return service.Change{}, false
	}
	c := q.changes[0]
	if len(q.changes) == 1 {
		q.changes = q.changes[:0]
	} else {
		q.changes = q.changes[1:]
	}
	return c, true
}

// Wait returns a channel that signals when changes may be available.
func (q *changeQueue) Wait() <-chan struct{} {
	return q.signal
}

// Close rejects further changes. Pending changes are still dequeued.
func (q *changeQueue) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.closed = true
}

type observer struct {
	id resource.ID
	fn service.ChangeFunc
}

// notify queues a change for the observers of id.
func (s *Store) notify(id resource.ID, kind service.ChangeKind, target resource.ID) {
	if id == "" {
		return
	}
	s.changes.Enqueue(service.Change{Kind: kind, ID: id, Target: target})
}

// dispatch delivers queued changes until done is closed, then drains what
// is left.
func (s *Store) dispatch() {
	defer close(s.dispatched)
	for {
		select {
		case <-s.done:
			s.deliverPending()
			return
		case <-s.changes.Wait():
			s.deliverPending()
		}
	}
}

func (s *Store) deliverPending() {
	for {
		c, ok := s.changes.TryDequeue()
		if !ok {
			return
		}
		for _, fn := range s.observersOf(c.ID) {
			fn(c)
		}
	}
}

func (s *Store) observersOf(id resource.ID) []service.ChangeFunc {
	s.obsMu.Lock()
	defer s.obsMu.Unlock()

	var fns []service.ChangeFunc
	for _, sub := range s.subOrder {
		if o, ok := s.observers[sub]; ok && o.id == id {
			fns = append(fns, o.fn)
		}
	}
	return fns
}
