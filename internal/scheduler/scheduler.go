// Package scheduler supplies the host timer used by ad sources to simulate
// asynchronous network callbacks.
//
// All callbacks of one scheduler run on a single logical thread: Loop drains
// them on its Run goroutine, and Manual fires them from Advance on the
// caller's goroutine. Sources therefore never see two of their callbacks
// interleave.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"
)

// ErrCallbackPanicked is returned by Call when fn panics.
var ErrCallbackPanicked = errors.New("scheduler callback panicked")

// Scheduler runs fn once after d has elapsed.
type Scheduler interface {
	After(d time.Duration, fn func())
}

// Executor runs fn on the scheduler's thread and waits for it to return.
// Loop implements it; Inline runs fn directly for hosts that already own the
// thread, such as tests driving a Manual scheduler.
type Executor interface {
	Do(ctx context.Context, fn func()) error
}

// Inline is an Executor that calls fn on the caller's goroutine.
type Inline struct{}

// Do calls fn unless ctx is already done.
func (Inline) Do(ctx context.Context, fn func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	fn()
	return nil
}

type callResult[T any] struct {
	val T
	err error
}

// Call runs fn through exec and returns its result.
//
// Exactly one side wins: either fn starts before the caller gives up, in which
// case Call waits for fn and returns its result even if ctx expires meanwhile,
// or the caller gives up first and fn is skipped when the executor reaches it.
// A panic in fn is returned as ErrCallbackPanicked.
func Call[T any](ctx context.Context, exec Executor, fn func(context.Context) (T, error)) (T, error) {
	var claimed atomic.Bool
	out := make(chan callResult[T], 1)
	err := exec.Do(ctx, func() {
		if !claimed.CompareAndSwap(false, true) {
			return
		}
		var res callResult[T]
		defer func() {
			if r := recover(); r != nil {
				res.err = fmt.Errorf("%w: %v", ErrCallbackPanicked, r)
			}
			out <- res
		}()
		res.val, res.err = fn(ctx)
	})
	if err != nil && claimed.CompareAndSwap(false, true) {
		var zero T
		return zero, err
	}
	res := <-out
	return res.val, res.err
}
