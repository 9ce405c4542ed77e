package operator

import (
	"context"

	"github.com/google/uuid"

	"github.com/ZanzyTHEbar/concrete-go"
)

// Future is the handle of an async capability call. Its value is delivered
// exactly once and equals what the synchronous call would have returned.
type Future struct {
	ID string

	done  chan struct{}
	value any
	err   error
}

func newFuture() *Future {
	return &Future{ID: uuid.New().String(), done: make(chan struct{})}
}

func (f *Future) resolve(v any, err error) {
	f.value, f.err = v, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future) Done() <-chan struct{} { return f.done }

// Await blocks until the result is available or ctx is done.
func (f *Future) Await(ctx context.Context) (any, error) {
	select {
	case <-f.done:
		return f.value, f.err
	case <-ctx.Done():
		return nil, concrete.NewCancelledError("await", ctx.Err())
	}
}

// Resolve awaits v when it is a *Future and returns it unchanged otherwise.
func Resolve(ctx context.Context, v any) (any, error) {
	f, ok := v.(*Future)
	if !ok {
		return v, nil
	}
	return f.Await(ctx)
}

// submit queues fn on the operator's pool and returns its future at once.
// When every worker is busy the job waits in its own goroutine, never in
// the caller.
func (o *Operator) submit(ctx context.Context, fn func(ctx context.Context) (any, error)) (*Future, error) {
	p := o.reserve()
	if p == nil {
		return nil, concrete.NewValidationError("dispatch", "operator '"+o.Name+"' is closed", nil)
	}
	f := newFuture()
	// The job outlives the caller's deadline but keeps its values.
	jobCtx := context.WithoutCancel(ctx)
	go func() {
		defer o.inflight.Done()
		p.Go(func() {
			defer func() {
				if r := recover(); r != nil {
					f.resolve(nil, concrete.NewInternalError("dispatch", "async capability panicked", nil))
				}
			}()
			f.resolve(fn(jobCtx))
		})
	}()
	return f, nil
}
