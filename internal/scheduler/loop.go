package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ErrStopped is returned by Do once the loop has exited.
var ErrStopped = errors.New("scheduler loop stopped")

// Loop is a single-goroutine main loop. Timers fire on runtime goroutines and
// post their callbacks to the loop, which executes them one at a time.
//
// Example usage:
//
//	loop := scheduler.NewLoop(logger)
//	go loop.Run(ctx)
//	loop.After(2*time.Second, func() { /* runs on the loop goroutine */ })
type Loop struct {
	tasks   chan func()
	stopped chan struct{}
	logger  *zap.Logger
	scale   float64

	mu     sync.Mutex
	timers map[*time.Timer]struct{}
	once   sync.Once
}

// LoopOption configures a Loop.
type LoopOption func(*Loop)

// WithTimeScale multiplies every delay passed to After. A scale of 0.1 makes
// a 2s simulated load complete in 200ms.
func WithTimeScale(scale float64) LoopOption {
	return func(l *Loop) {
		if scale > 0 {
			l.scale = scale
		}
	}
}

// WithQueueSize sets the capacity of the pending callback queue.
func WithQueueSize(n int) LoopOption {
	return func(l *Loop) {
		if n > 0 {
			l.tasks = make(chan func(), n)
		}
	}
}

// NewLoop creates a loop. Callbacks are only executed once Run is called.
func NewLoop(logger *zap.Logger, opts ...LoopOption) *Loop {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &Loop{
		tasks:   make(chan func(), 256),
		stopped: make(chan struct{}),
		logger:  logger,
		scale:   1.0,
		timers:  make(map[*time.Timer]struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// After schedules fn on the loop after d, adjusted by the time scale.
func (l *Loop) After(d time.Duration, fn func()) {
	d = time.Duration(float64(d) * l.scale)

	l.mu.Lock()
	defer l.mu.Unlock()
	select {
	case <-l.stopped:
		return
	default:
	}
	var t *time.Timer
	t = time.AfterFunc(d, func() {
		l.mu.Lock()
		delete(l.timers, t)
		l.mu.Unlock()
		l.Post(fn)
	})
	l.timers[t] = struct{}{}
}

// Post queues fn for execution on the loop. Callbacks posted after the loop
// stopped are dropped.
func (l *Loop) Post(fn func()) {
	select {
	case l.tasks <- fn:
	case <-l.stopped:
	}
}

// Do runs fn on the loop and waits for it to return.
func (l *Loop) Do(ctx context.Context, fn func()) error {
	done := make(chan struct{})
	task := func() {
		defer close(done)
		fn()
	}
	select {
	case l.tasks <- task:
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	select {
	case <-done:
		return nil
	case <-l.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Run executes queued callbacks until ctx is cancelled. Pending timers are
// stopped when Run returns.
func (l *Loop) Run(ctx context.Context) error {
	defer l.stop()
	for {
		select {
		case fn := <-l.tasks:
			l.exec(fn)
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Pending returns the number of timers that have not fired yet.
func (l *Loop) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.timers)
}

func (l *Loop) exec(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("scheduler callback panicked", zap.Any("panic", r))
		}
	}()
	fn()
}

func (l *Loop) stop() {
	l.once.Do(func() {
		l.mu.Lock()
		close(l.stopped)
		for t := range l.timers {
			t.Stop()
		}
		l.timers = make(map[*time.Timer]struct{})
		l.mu.Unlock()
	})
}
