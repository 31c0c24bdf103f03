package relay

import (
	"context"
	"errors"
	"fmt"

	berr "github.com/next-trace/scg-relay/contract/errors"
)

// Pending is the unfinished part of a handler invocation.
// A nil Pending means the invocation already completed successfully.
type Pending interface {
	// Wait blocks until the work finishes or ctx is done.
	Wait(ctx context.Context) error
}

type completed struct{ err error }

func (c completed) Wait(context.Context) error { return c.err }

// Done reports a synchronous outcome. It returns nil when err is nil.
func Done(err error) Pending {
	if err == nil {
		return nil
	}

	return completed{err: err}
}

type future struct {
	done chan struct{}
	err  error
}

func (f *future) Wait(ctx context.Context) error {
	select {
	case <-f.done:
		return f.err
	default:
	}

	select {
	case <-f.done:
		return f.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Go runs fn on its own goroutine and returns a Pending for its result.
// A panic inside fn is reported as an ErrHandlerPanic error.
func Go(ctx context.Context, fn func(ctx context.Context) error) Pending {
	f := &future{done: make(chan struct{})}

	go func() {
		defer close(f.done)
		defer recoverInto(&f.err)

		f.err = fn(ctx)
	}()

	return f
}

// WaitAll waits for every pending invocation and joins their errors.
// Every Pending is waited on even after a failure.
func WaitAll(ctx context.Context, pending []Pending) error {
	var errs []error

	for _, p := range pending {
		if p == nil {
			continue
		}

		if err := p.Wait(ctx); err != nil {
			errs = append(errs, err)
		}
	}

	return errors.Join(errs...)
}

// recoverInto must be deferred directly so recover sees the panic.
func recoverInto(err *error) {
	if r := recover(); r != nil {
		*err = panicError(r)
	}
}

func panicError(r any) error {
	return fmt.Errorf("%w: %v", berr.ErrHandlerPanic, r)
}
