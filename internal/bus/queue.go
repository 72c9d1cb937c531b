package bus

import (
	"context"
	"sync"
	"sync/atomic"

	"apolo/internal/schema"
	"apolo/pkg/exception"
)

type envelope struct {
	ctx     context.Context
	event   schema.Event
	deliver DeliverFunc
}

type workerKey struct{}

// QueueDispatcher is a bounded, non-blocking event queue drained by a single worker.
// Only events published from outside the worker are queued. Events published by a handler
// the worker is running are delivered inline, depth-first, so a signal's order and fill
// settle the account before the next queued event is decided.
type QueueDispatcher struct {
	mu      sync.RWMutex
	ch      chan envelope
	closed  bool
	pending int64
}

// NewQueueDispatcher allocates a queue with the given capacity.
func NewQueueDispatcher(capacity int) *QueueDispatcher {
	if capacity <= 0 {
		capacity = 1
	}
	return &QueueDispatcher{ch: make(chan envelope, capacity)}
}

// Dispatch enqueues an event without blocking, or delivers it inline when called from the
// worker.
func (q *QueueDispatcher) Dispatch(ctx context.Context, e schema.Event, deliver DeliverFunc) error {
	if q.inWorker(ctx) {
		deliver(ctx, e)
		return nil
	}

	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return exception.ErrBusQueueClosed
	}
	atomic.AddInt64(&q.pending, 1)
	select {
	case q.ch <- envelope{ctx: ctx, event: e, deliver: deliver}:
		return nil
	default:
		atomic.AddInt64(&q.pending, -1)
		return exception.ErrBusQueueFull
	}
}

// Pending returns the number of events queued or being delivered.
func (q *QueueDispatcher) Pending() int {
	return int(atomic.LoadInt64(&q.pending))
}

// Close stops the queue from accepting new events.
func (q *QueueDispatcher) Close() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
}

// Run delivers events until the context is done or the queue is closed and drained.
func (q *QueueDispatcher) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case env, ok := <-q.ch:
			if !ok {
				return
			}
			env.deliver(context.WithValue(env.ctx, workerKey{}, q), env.event)
			atomic.AddInt64(&q.pending, -1)
		}
	}
}

func (q *QueueDispatcher) inWorker(ctx context.Context) bool {
	owner, _ := ctx.Value(workerKey{}).(*QueueDispatcher)
	return owner == q
}
