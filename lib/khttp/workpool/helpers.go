package workpool

import (
	"context"
	"fmt"
)

// PanicError is returned by Call when the function panicked.
type PanicError struct {
	Value interface{}
}

func (e *PanicError) Error() string {
	return fmt.Sprintf("panic: %v", e.Value)
}

// Call runs fn in the WorkPool and waits for its result.
//
// If ctx is canceled before fn completes, Call returns ctx.Err() immediately,
// while fn keeps running in the pool and its result is discarded.
// A panic in fn is recovered and returned as a *PanicError, so a single
// failing function cannot kill a worker.
func Call[T any](ctx context.Context, wp *WorkPool, fn func() (T, error)) (T, error) {
	type result struct {
		value T
		err   error
	}
	done := make(chan result, 1)

	work := func() {
		var r result
		defer func() {
			if v := recover(); v != nil {
				r.err = &PanicError{Value: v}
			}
			done <- r
		}()
		r.value, r.err = fn()
	}

	var zero T
	if err := ctx.Err(); err != nil {
		return zero, err
	}
	if err := wp.Add(ctx, work); err != nil {
		return zero, err
	}
	select {
	case r := <-done:
		return r.value, r.err
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}
