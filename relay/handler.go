package relay

import (
	"context"
	"fmt"
	"reflect"
	"sync/atomic"

	berr "github.com/next-trace/scg-relay/contract/errors"
)

// Handler receives messages of type T from a Broker.
// Implementations must be safe for concurrent use by multiple goroutines.
type Handler[T any] interface {
	// Filter reports whether msg should be delivered to Handle.
	Filter(msg T) bool
	// Handle consumes msg. A nil Pending means it finished successfully.
	Handle(ctx context.Context, msg T) Pending
}

// Disposable is implemented by handlers that release resources when unsubscribed.
type Disposable interface {
	Dispose()
}

// Callback is a synchronous message callback.
type Callback[T any] func(ctx context.Context, msg T) error

// AsyncCallback is a callback whose work may outlive the call; see Go.
type AsyncCallback[T any] func(ctx context.Context, msg T) Pending

// FuncHandler adapts a callback and an optional filter to Handler.
// Disposing it clears the callback; later invocations are no-ops.
type FuncHandler[T any] struct {
	fn     atomic.Pointer[AsyncCallback[T]]
	filter Filter[T]
}

var _ Disposable = (*FuncHandler[struct{}])(nil)

// NewHandler wraps a synchronous callback. A nil filter accepts every message.
func NewHandler[T any](fn Callback[T], filter Filter[T]) (*FuncHandler[T], error) {
	if fn == nil {
		return nil, fmt.Errorf("new handler %s: nil callback: %w", typeName(reflect.TypeFor[T]()), berr.ErrInvalidArgument)
	}

	return newFuncHandler(func(ctx context.Context, msg T) Pending { return Done(fn(ctx, msg)) }, filter), nil
}

// NewAsyncHandler wraps a callback that may return unfinished work.
func NewAsyncHandler[T any](fn AsyncCallback[T], filter Filter[T]) (*FuncHandler[T], error) {
	if fn == nil {
		return nil, fmt.Errorf("new handler %s: nil callback: %w", typeName(reflect.TypeFor[T]()), berr.ErrInvalidArgument)
	}

	return newFuncHandler(fn, filter), nil
}

func newFuncHandler[T any](fn AsyncCallback[T], filter Filter[T]) *FuncHandler[T] {
	h := &FuncHandler[T]{filter: filter}
	h.fn.Store(&fn)

	return h
}

func (h *FuncHandler[T]) Filter(msg T) bool {
	if h.filter == nil {
		return true
	}

	return h.filter.Apply(msg)
}

// Handle invokes the callback once. After Dispose it returns nil without invoking anything.
// A panicking callback is reported as an ErrHandlerPanic error.
func (h *FuncHandler[T]) Handle(ctx context.Context, msg T) (p Pending) {
	fn := h.fn.Load()
	if fn == nil {
		return nil
	}

	defer func() {
		if r := recover(); r != nil {
			p = Done(panicError(r))
		}
	}()

	return (*fn)(ctx, msg)
}

// Dispose clears the callback. Safe to call more than once. An invocation that already
// loaded the callback is not interrupted and may start after Dispose returns.
func (h *FuncHandler[T]) Dispose() { h.fn.Swap(nil) }

// Disposed reports whether Dispose has been called.
func (h *FuncHandler[T]) Disposed() bool { return h.fn.Load() == nil }

func dispose(h any) {
	if d, ok := h.(Disposable); ok {
		d.Dispose()
	}
}
