package engine

import (
	"sync"

	"github.com/puzpuzpuz/xsync/v4"
)

// Per-key FIFO queues, each drained by at most one goroutine at a time. Unrelated keys run concurrently.
type keyedQueue struct {
	workers *xsync.Map[string, *keyWorker]
	handle  func(evt *MessageEvent)

	// guards closed, and wg.Add against a concurrent Wait
	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

type keyWorker struct {
	mu      sync.Mutex
	pending []*MessageEvent
	running bool
	// removed from the map; enqueuers must fetch a fresh worker
	dead bool
}

func newKeyedQueue(handle func(evt *MessageEvent)) *keyedQueue {
	return &keyedQueue{
		workers: xsync.NewMap[string, *keyWorker](),
		handle:  handle,
	}
}

// Returns false if the queue has been closed.
func (q *keyedQueue) Enqueue(key string, evt *MessageEvent) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return false
	}

	for {
		w, _ := q.workers.LoadOrCompute(key, func() (*keyWorker, bool) {
			return &keyWorker{}, false
		})
		w.mu.Lock()
		if w.dead {
			w.mu.Unlock()
			continue
		}
		w.pending = append(w.pending, evt)
		queuedMessages.Inc()
		if w.running {
			w.mu.Unlock()
			return true
		}
		w.running = true
		q.wg.Add(1)
		w.mu.Unlock()
		go q.drain(key, w)
		return true
	}
}

func (q *keyedQueue) drain(key string, w *keyWorker) {
	defer q.wg.Done()
	for {
		w.mu.Lock()
		if len(w.pending) == 0 {
			w.running = false
			w.dead = true
			q.workers.Compute(key, func(old *keyWorker, loaded bool) (*keyWorker, xsync.ComputeOp) {
				if loaded && old == w {
					return nil, xsync.DeleteOp
				}
				return old, xsync.CancelOp
			})
			w.mu.Unlock()
			return
		}
		evt := w.pending[0]
		w.pending[0] = nil
		w.pending = w.pending[1:]
		w.mu.Unlock()

		queuedMessages.Dec()
		q.handle(evt)
	}
}

// Number of keys with queued or in-flight work.
func (q *keyedQueue) ActiveKeys() int {
	return q.workers.Size()
}

// Stops accepting new work and waits for everything already queued.
func (q *keyedQueue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.wg.Wait()
}

// Mutual exclusion per key. Entries exist only while some caller holds or waits on the key.
type keyedLocks struct {
	locks *xsync.Map[string, *keyLock]
}

type keyLock struct {
	mu sync.Mutex
	// holders and waiters; only changed inside Compute
	refs int
}

func newKeyedLocks() *keyedLocks {
	return &keyedLocks{locks: xsync.NewMap[string, *keyLock]()}
}

// Blocks until the key is free. The returned func releases it.
func (kl *keyedLocks) Lock(key string) func() {
	l, _ := kl.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, xsync.ComputeOp) {
		if !loaded {
			old = &keyLock{}
		}
		old.refs++
		return old, xsync.UpdateOp
	})
	l.mu.Lock()
	return func() {
		l.mu.Unlock()
		kl.locks.Compute(key, func(old *keyLock, loaded bool) (*keyLock, xsync.ComputeOp) {
			if !loaded || old != l {
				return old, xsync.CancelOp
			}
			old.refs--
			if old.refs == 0 {
				return nil, xsync.DeleteOp
			}
			return old, xsync.UpdateOp
		})
	}
}

func (kl *keyedLocks) Size() int {
	return kl.locks.Size()
}
