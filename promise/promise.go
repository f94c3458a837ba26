// Package promise implements a single-assignment future with cancellation,
// the suspension point callers see for every synchronous request (spec
// section 4.1/9, "Promise"). Grounded on original_source's pinky_swear-based
// Promise/PromiseResolver pair (src/frames.rs, async/src/api.rs): a resolver
// half that is "sworn" exactly once, and a promise half callers await.
package promise

import (
	"context"
	"sync"

	"github.com/emulator000/amqpcore/amqperr"
)

// Promise is a single-assignment future for a value of type T. It is safe
// to wait on from multiple goroutines, though in practice only the caller
// that issued the request does so.
type Promise[T any] struct {
	done   chan struct{}
	mu     sync.Mutex
	value  T
	err    error
	marker string
}

// Resolver is the write half of a Promise; whoever completes the matching
// request holds this and must call Resolve or Fail exactly once.
type Resolver[T any] struct {
	p *Promise[T]
}

// New builds a Promise/Resolver pair.
func New[T any]() (*Promise[T], *Resolver[T]) {
	p := &Promise[T]{done: make(chan struct{})}
	return p, &Resolver[T]{p: p}
}

// SetMarker attaches a debug label, mirroring the teacher pack's use of
// trace markers on long-lived futures (original_source/src/frames.rs).
func (p *Promise[T]) SetMarker(marker string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.marker = marker
}

// Resolve completes the promise successfully. A second call is a no-op,
// preserving single-assignment semantics.
func (r *Resolver[T]) Resolve(v T) {
	r.p.mu.Lock()
	select {
	case <-r.p.done:
		r.p.mu.Unlock()
		return
	default:
	}
	r.p.value = v
	close(r.p.done)
	r.p.mu.Unlock()
}

// Fail completes the promise with an error. A second call is a no-op.
func (r *Resolver[T]) Fail(err error) {
	r.p.mu.Lock()
	select {
	case <-r.p.done:
		r.p.mu.Unlock()
		return
	default:
	}
	r.p.err = err
	close(r.p.done)
	r.p.mu.Unlock()
}

// Cancel fails the promise with a ConnectionClosed-kind "request cancelled"
// error. A reply that arrives later still advances the awaiting queue and
// its Resolve is a no-op. Nothing in this module calls Cancel, and a
// caller holding only the Promise has no way to reach it.
func (r *Resolver[T]) Cancel() {
	r.Fail(amqperr.New(amqperr.ConnectionClosed, "request cancelled"))
}

// Wait blocks until the promise resolves or the context is done, whichever
// comes first.
func (p *Promise[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-p.done:
		return p.value, p.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// Done returns a channel closed once the promise has resolved, for callers
// that want to select on it alongside other events.
func (p *Promise[T]) Done() <-chan struct{} {
	return p.done
}

// Resolved reports whether the promise has already settled.
func (p *Promise[T]) Resolved() bool {
	select {
	case <-p.done:
		return true
	default:
		return false
	}
}

// Marker returns the attached label, or "" if none was set.
func (p *Promise[T]) Marker() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.marker
}
