// Package pipeline overlaps remote fetches with their consumption. A Pool is
// a small bounded errgroup owned by one iteration; work submitted to it is
// returned as a Future that the consumer joins only when it needs the value.
package pipeline

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Workers bounds every Pool. One-ahead pipelines never need more: one fetch
// is being joined while the next one is in flight.
const Workers = 2

// Pool runs submitted work on at most Workers goroutines. It is created per
// iteration and must be closed by its owner.
type Pool struct {
	ctx    context.Context
	cancel context.CancelFunc
	group  *errgroup.Group

	closeOnce sync.Once
}

// NewPool returns a Pool whose work runs under a context derived from ctx.
func NewPool(ctx context.Context) *Pool {
	ctx, cancel := context.WithCancel(ctx)

	g := &errgroup.Group{}
	g.SetLimit(Workers)

	return &Pool{ctx: ctx, cancel: cancel, group: g}
}

// Close cancels any in-flight work and waits for the workers to exit.
// Futures that were not joined are discarded. Safe to call more than once.
func (p *Pool) Close() {
	p.closeOnce.Do(func() {
		p.cancel()
		_ = p.group.Wait()
	})
}

// Future is the pending result of one submitted fetch.
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Submit schedules fn on p. It blocks only while both workers are busy.
// Errors stay in the Future: one failed fetch does not cancel its siblings.
func Submit[T any](p *Pool, fn func(ctx context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}

	p.group.Go(func() error {
		defer close(f.done)

		if err := p.ctx.Err(); err != nil {
			f.err = err
			return nil
		}

		f.val, f.err = fn(p.ctx)

		return nil
	})

	return f
}

// Resolved returns a Future that is already complete. Used for the first
// page, which is fetched synchronously.
func Resolved[T any](val T, err error) *Future[T] {
	f := &Future[T]{done: make(chan struct{}), val: val, err: err}
	close(f.done)

	return f
}

// Wait blocks until the fetch completes or ctx is done.
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
