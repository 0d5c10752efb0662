// Package wsstream provides a future/iterator facade over a callback-driven websocket transport:
// the connection lifecycle is exposed as two write-once futures (ready & closed) and incoming
// messages are exposed through independent pull-based iterators.
package wsstream

import (
	"context"
	"sync"
)

// Write-once settlement primitive which backs the ready and closed futures.
//
// A future is either unsettled, resolved with a value or rejected with an error. Resolve and
// reject settle the future exactly once: all subsequent settlement attempts are no-ops. Waiters
// suspend until the future settles or their context expires.
//
// The future is single-writer, multi-reader: only the stream which owns it may settle it.
type future[T any] struct {
	// Channel closed when the future settles. Settled value and error are published through the
	// happens-before relationship established by the channel closure.
	done chan struct{}
	// Guards the settlement itself.
	mu sync.Mutex
	// Set once the future has settled.
	settled bool
	// Value the future resolved with.
	value T
	// Error the future rejected with.
	err error
}

// Factory which returns a new, unsettled future.
func newFuture[T any]() *future[T] {
	return &future[T]{
		done: make(chan struct{}),
	}
}

// Resolve the future with the provided value. No-op if the future has already settled.
func (f *future[T]) resolve(value T) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return
	}
	f.value = value
	f.settled = true
	close(f.done)
}

// Reject the future with the provided error. No-op if the future has already settled.
func (f *future[T]) reject(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.settled {
		return
	}
	f.err = err
	f.settled = true
	close(f.done)
}

// Return a channel which is closed once the future has settled.
func (f *future[T]) Done() <-chan struct{} {
	return f.done
}

// Return true when the future has settled, without blocking.
func (f *future[T]) isSettled() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Suspend the caller until the future settles or the provided context expires. Returns the
// settlement of the future or the context error if the context expired first.
func (f *future[T]) wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}
