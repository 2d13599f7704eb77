package gym

import "context"

// Future is the pending outcome of an operation started with Async.
type Future[T any] struct {
	done  chan struct{}
	value T
	err   error
}

// Async runs op on its own goroutine. The returned Future resolves exactly
// once, with either op's value or its error.
func Async[T any](ctx context.Context, op func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	go func() {
		defer close(f.done)
		f.value, f.err = op(ctx)
	}()
	return f
}

// AsyncErr is Async for completion-only operations such as Close.
func AsyncErr(ctx context.Context, op func(context.Context) error) *Future[struct{}] {
	return Async(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, op(ctx)
	})
}

// OnComplete runs op in the background and invokes callback exactly once
// with its outcome, from the goroutine that ran op.
func OnComplete[T any](ctx context.Context, op func(context.Context) (T, error), callback func(T, error)) {
	go func() {
		callback(op(ctx))
	}()
}

// Done is closed when the outcome is available.
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait blocks until the outcome is available or ctx ends. Abandoning the wait
// does not cancel the operation; cancel the context passed to Async for that.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
