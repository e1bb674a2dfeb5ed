// Package pending provides a single-assignment result slot for bridging
// callback-driven broker events into blocking calls.
//
// An Operation is created before a request is sent, resolved (or rejected)
// exactly once from whichever goroutine observes the outcome, and read by
// the caller with Wait. Later resolution attempts are ignored and reported
// by a false return; the first value is never overwritten.
//
// # Usage
//
//	op := pending.New[SubAck]()
//	go func() {
//	    <-token.Done()
//	    if err := token.Error(); err != nil {
//	        op.Reject(err)
//	        return
//	    }
//	    op.Resolve(ack)
//	}()
//	ack, err := op.Wait(ctx, 10*time.Second)
package pending

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrTimeout is returned by Wait when the operation is not resolved in time.
var ErrTimeout = errors.New("pending: operation timed out")

// Operation is the eventual result of one asynchronous request.
//
// Thread Safety:
//   - Resolve, Reject, Wait and Done are safe for concurrent use.
//   - An Operation is not reusable; create a fresh one per request.
type Operation[T any] struct {
	mu       sync.Mutex
	done     chan struct{}
	resolved bool
	value    T
	err      error
}

// New creates an unresolved Operation.
func New[T any]() *Operation[T] {
	return &Operation[T]{done: make(chan struct{})}
}

// Resolve completes the operation with a value.
// Returns false if the operation was already resolved or rejected.
func (o *Operation[T]) Resolve(value T) bool {
	return o.complete(value, nil)
}

// Reject completes the operation with an error.
// Returns false if the operation was already resolved or rejected.
func (o *Operation[T]) Reject(err error) bool {
	var zero T
	return o.complete(zero, err)
}

func (o *Operation[T]) complete(value T, err error) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.resolved {
		return false
	}
	o.resolved = true
	o.value = value
	o.err = err
	close(o.done)
	return true
}

// Resolved reports whether the operation has a result.
func (o *Operation[T]) Resolved() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.resolved
}

// Done returns a channel closed once the operation has a result.
func (o *Operation[T]) Done() <-chan struct{} {
	return o.done
}

// Wait blocks until the operation is resolved, the timeout elapses, or ctx
// is cancelled.
//
// Parameters:
//   - ctx: Context for cancellation
//   - timeout: Maximum time to wait; zero or negative waits for ctx only
//
// Returns:
//   - T: The resolved value (zero value on error)
//   - error: The rejection error, ErrTimeout, or ctx.Err()
func (o *Operation[T]) Wait(ctx context.Context, timeout time.Duration) (T, error) {
	var timer <-chan time.Time
	if timeout > 0 {
		t := time.NewTimer(timeout)
		defer t.Stop()
		timer = t.C
	}

	var zero T
	select {
	case <-o.done:
		return o.result()
	case <-timer:
	case <-ctx.Done():
	}

	// A result that is already in wins over a simultaneous timeout.
	select {
	case <-o.done:
		return o.result()
	default:
	}

	if err := ctx.Err(); err != nil {
		return zero, err
	}
	return zero, ErrTimeout
}

func (o *Operation[T]) result() (T, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.value, o.err
}
