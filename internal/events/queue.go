package events

import (
	"context"
	"errors"
	"sync"

	"github.com/patrickwarner/admediation/internal/models"
)

// ErrQueueFull is reported when an event is dropped because the queue buffer
// is exhausted.
var ErrQueueFull = errors.New("event queue full")

// Queue decouples slow consumers (databases, sockets) from the publisher.
// Handle never blocks: events are buffered and processed in order by a single
// worker, and dropped when the buffer is full.
type Queue struct {
	ch      chan models.Event
	fn      func(context.Context, models.Event) error
	onError func(models.Event, error)

	mu      sync.RWMutex
	closed  bool
	started sync.Once
	done    chan struct{}
}

// NewQueue creates a queue with the given buffer size. onError may be nil.
func NewQueue(size int, fn func(context.Context, models.Event) error, onError func(models.Event, error)) *Queue {
	if size <= 0 {
		size = 256
	}
	if onError == nil {
		onError = func(models.Event, error) {}
	}
	return &Queue{
		ch:      make(chan models.Event, size),
		fn:      fn,
		onError: onError,
		done:    make(chan struct{}),
	}
}

// Start launches the worker. Calling Start again has no effect.
func (q *Queue) Start(ctx context.Context) {
	q.started.Do(func() {
		go func() {
			defer close(q.done)
			for ev := range q.ch {
				if err := q.fn(ctx, ev); err != nil {
					q.onError(ev, err)
				}
			}
		}()
	})
}

// Handle enqueues ev. It matches Handler so a queue can subscribe directly.
func (q *Queue) Handle(ev models.Event) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return
	}
	select {
	case q.ch <- ev:
	default:
		q.onError(ev, ErrQueueFull)
	}
}

// Len returns the number of buffered events.
func (q *Queue) Len() int {
	return len(q.ch)
}

// Close stops accepting events and waits for the worker to drain the buffer.
// If Start was never called buffered events are discarded.
func (q *Queue) Close() {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	started := true
	q.started.Do(func() { started = false })
	if started {
		<-q.done
	}
}
