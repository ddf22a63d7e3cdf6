package job

import (
	"context"
	"sync"

	"github.com/sinkdb/core/corerr"
)

// Job is a single-completion async result of type T. It is created with New
// and completed exactly once, from any goroutine, with Resolve or Reject;
// any number of callers may Wait on it concurrently.
type Job[T any] struct {
	done   chan struct{}
	once   sync.Once
	result T
	err    error
}

// New creates an unresolved Job.
func New[T any]() *Job[T] {
	return &Job[T]{done: make(chan struct{})}
}

// Resolve completes the job successfully with value. Only the first call
// among Resolve/Reject/Cancel has any effect.
func (j *Job[T]) Resolve(value T) {
	j.once.Do(func() {
		j.result = value
		close(j.done)
	})
}

// Reject completes the job with err. Only the first call among
// Resolve/Reject/Cancel has any effect.
func (j *Job[T]) Reject(err error) {
	j.once.Do(func() {
		j.err = err
		close(j.done)
	})
}

// Cancel completes the job with a corerr.Cancelled error. Only the first
// call among Resolve/Reject/Cancel has any effect.
func (j *Job[T]) Cancel() {
	j.Reject(corerr.New(corerr.Cancelled, "job cancelled"))
}

// Wait blocks until the job completes or ctx is done, whichever comes
// first. If ctx ends first, Wait returns a corerr.Cancelled error without
// completing the job - a later Resolve/Reject from whatever is doing the
// work still takes effect for any other waiter.
func (j *Job[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-j.done:
		return j.result, j.err
	case <-ctx.Done():
		var zero T
		return zero, corerr.Wrap(corerr.Cancelled, "job wait", ctx.Err())
	}
}

// Done returns a channel closed once the job completes, for callers that
// want to select on it alongside other events instead of calling Wait.
func (j *Job[T]) Done() <-chan struct{} {
	return j.done
}
