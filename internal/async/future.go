// Package async provides a small future type so callers can await the
// completion of long-running ledger operations without blocking.
package async

import (
	"context"
	"sync"
)

// Future is a one-shot result handle. It is resolved exactly once by the
// producer; any number of consumers may Wait on it.
type Future[T any] struct {
	done chan struct{}
	once sync.Once
	val  T
	err  error
}

// New creates an unresolved Future.
func New[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// Resolved creates a Future already resolved with val and err.
func Resolved[T any](val T, err error) *Future[T] {
	f := New[T]()
	f.Resolve(val, err)
	return f
}

// Resolve completes the future. Subsequent calls are no-ops.
func (f *Future[T]) Resolve(val T, err error) {
	f.once.Do(func() {
		f.val = val
		f.err = err
		close(f.done)
	})
}

// Done returns a channel closed when the future is resolved.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Wait blocks until the future resolves or ctx is cancelled. The producer
// keeps running on cancellation; only the wait is abandoned.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
