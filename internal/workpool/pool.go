// Package workpool runs a per-item task over a fixed list with a cap on
// in-flight tasks and tallies the results.
package workpool

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"golang.org/x/sync/semaphore"
)

// DefaultLimit is the concurrency used when Start gets limit <= 0.
const DefaultLimit = 8

// TaskFunc processes one item. true counts as ok, false as miss; an error
// or a panic counts as err. A failing item never stops the queue.
type TaskFunc[T any] func(ctx context.Context, item T) (bool, error)

// Stats is a snapshot of pool progress.
type Stats struct {
	OK          int64
	Miss        int64
	Err         int64
	InFlight    int64
	MaxInFlight int64 // highest observed InFlight
}

// Done returns the number of settled items.
func (s Stats) Done() int64 {
	return s.OK + s.Miss + s.Err
}

// Option configures a Pool.
type Option func(*options)

type options struct {
	onInFlight func(n int64)
	onError    func(err error)
}

// WithInFlightObserver is called with the in-flight count whenever it changes.
func WithInFlightObserver(fn func(n int64)) Option {
	return func(o *options) { o.onInFlight = fn }
}

// WithErrorHandler receives every task error, including recovered panics.
func WithErrorHandler(fn func(err error)) Option {
	return func(o *options) { o.onError = fn }
}

// Pool executes a TaskFunc over a fixed item list.
type Pool[T any] struct {
	ok, miss, errs atomic.Int64
	inFlight, peak atomic.Int64
	done           chan struct{}
	opts           options
}

// Start launches the pool and returns immediately.
// A single control goroutine dequeues items in order and starts a task
// whenever a slot is free, so at most limit tasks run at once. When ctx is
// cancelled, items not yet started are counted as errors.
func Start[T any](ctx context.Context, items []T, limit int, fn TaskFunc[T], opts ...Option) *Pool[T] {
	if limit <= 0 {
		limit = DefaultLimit
	}

	p := &Pool[T]{done: make(chan struct{})}
	for _, opt := range opts {
		opt(&p.opts)
	}

	go p.run(ctx, items, int64(limit), fn)
	return p
}

func (p *Pool[T]) run(ctx context.Context, items []T, limit int64, fn TaskFunc[T]) {
	defer close(p.done)

	sem := semaphore.NewWeighted(limit)
	var wg sync.WaitGroup

	for i, item := range items {
		if err := sem.Acquire(ctx, 1); err != nil {
			// Context cancelled: settle the rest without running them.
			remaining := int64(len(items) - i)
			p.errs.Add(remaining)
			p.reportError(fmt.Errorf("workpool: %d items not started: %w", remaining, err))
			break
		}

		p.enter()
		wg.Add(1)
		go func(item T) {
			defer wg.Done()
			defer sem.Release(1)
			defer p.leave()
			p.execute(ctx, item, fn)
		}(item)
	}

	wg.Wait()
}

func (p *Pool[T]) execute(ctx context.Context, item T, fn TaskFunc[T]) {
	defer func() {
		if r := recover(); r != nil {
			p.errs.Add(1)
			p.reportError(fmt.Errorf("workpool: task panic: %v", r))
		}
	}()

	ok, err := fn(ctx, item)
	switch {
	case err != nil:
		p.errs.Add(1)
		p.reportError(err)
	case ok:
		p.ok.Add(1)
	default:
		p.miss.Add(1)
	}
}

func (p *Pool[T]) enter() {
	n := p.inFlight.Add(1)
	for {
		peak := p.peak.Load()
		if n <= peak || p.peak.CompareAndSwap(peak, n) {
			break
		}
	}
	if p.opts.onInFlight != nil {
		p.opts.onInFlight(n)
	}
}

func (p *Pool[T]) leave() {
	n := p.inFlight.Add(-1)
	if p.opts.onInFlight != nil {
		p.opts.onInFlight(n)
	}
}

func (p *Pool[T]) reportError(err error) {
	if p.opts.onError != nil {
		p.opts.onError(err)
	}
}

// Stats returns a live snapshot.
func (p *Pool[T]) Stats() Stats {
	return Stats{
		OK:          p.ok.Load(),
		Miss:        p.miss.Load(),
		Err:         p.errs.Load(),
		InFlight:    p.inFlight.Load(),
		MaxInFlight: p.peak.Load(),
	}
}

// Wait blocks until the queue is empty and no task is in flight, then
// returns the final stats.
func (p *Pool[T]) Wait() Stats {
	<-p.done
	return p.Stats()
}

// Run is Start followed by Wait.
func Run[T any](ctx context.Context, items []T, limit int, fn TaskFunc[T], opts ...Option) Stats {
	return Start(ctx, items, limit, fn, opts...).Wait()
}
