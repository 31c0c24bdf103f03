package relay

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"
	"sync/atomic"

	berr "github.com/next-trace/scg-relay/contract/errors"
)

// Broker owns the subscribers of message type T and fans published messages out to them.
//
// Registry mutation and the snapshot taken by Publish are serialized by one gate, so a
// publish sees a consistent set of subscribers. Handlers are invoked after the gate is
// released and may subscribe or unsubscribe from inside their callback.
//
// Unsubscribing guarantees that publishes starting afterwards skip the handler. A publish
// already dispatching may still run it once: the callback can begin just after its token
// was closed, but never twice and never for a later message.
type Broker[T any] struct {
	mu       sync.RWMutex
	handlers map[int64]Handler[T]
	nextID   atomic.Int64

	// snapshots are pooled to keep Publish allocation free in the steady state
	pool sync.Pool

	msgType reflect.Type
	logger  *slog.Logger
}

// NewBroker constructs an empty broker for T.
func NewBroker[T any](opts ...Option) *Broker[T] {
	o := buildOptions(opts)
	t := reflect.TypeFor[T]()

	return &Broker[T]{
		handlers: make(map[int64]Handler[T]),
		msgType:  t,
		logger:   o.logger.With(slog.String("message_type", t.String())),
		pool: sync.Pool{New: func() any {
			s := make([]Handler[T], 0, 8)
			return &s
		}},
	}
}

// Subscribe registers h and returns the token that cancels the registration.
func (b *Broker[T]) Subscribe(h Handler[T]) (*Token, error) {
	if isNil(h) {
		return nil, fmt.Errorf("subscribe %s: nil handler: %w", b.name(), berr.ErrInvalidArgument)
	}

	id := b.nextID.Add(1)

	b.mu.Lock()
	if _, exists := b.handlers[id]; exists {
		b.mu.Unlock()
		return nil, fmt.Errorf("subscribe %s: id %d: %w", b.name(), id, berr.ErrConflict)
	}

	b.handlers[id] = h
	b.mu.Unlock()

	b.logger.Debug("subscribed", slog.Int64("id", id))

	return &Token{id: id, broker: b}, nil
}

// Unsubscribe removes the handler registered under id and disposes it.
// Unknown ids are ignored, which makes closing a token twice safe.
func (b *Broker[T]) Unsubscribe(id int64) {
	b.mu.Lock()
	h, ok := b.handlers[id]
	if ok {
		delete(b.handlers, id)
	}
	b.mu.Unlock()

	if !ok {
		return
	}

	dispose(h)
	b.logger.Debug("unsubscribed", slog.Int64("id", id))
}

// Publish delivers msg to every subscribed handler whose filter accepts it and waits
// for unfinished invocations. Errors from all handlers are joined; one failing handler
// never prevents the others from being invoked.
func (b *Broker[T]) Publish(ctx context.Context, msg T) error {
	b.mu.RLock()
	if len(b.handlers) == 0 {
		b.mu.RUnlock()
		return nil
	}

	snap := b.rent(len(b.handlers))
	for _, h := range b.handlers {
		*snap = append(*snap, h)
	}
	b.mu.RUnlock()

	defer b.release(snap)

	var pending []Pending

	for _, h := range *snap {
		if !h.Filter(msg) {
			continue
		}

		if p := h.Handle(ctx, msg); p != nil {
			pending = append(pending, p)
		}
	}

	if len(pending) == 0 {
		return nil
	}

	return WaitAll(ctx, pending)
}

// PublishAny publishes msg when its dynamic type is T and fails with ErrInvalidArgument otherwise.
func (b *Broker[T]) PublishAny(ctx context.Context, msg any) error {
	typed, ok := msg.(T)
	if !ok {
		return fmt.Errorf("publish %s: got %T: %w", b.name(), msg, berr.ErrInvalidArgument)
	}

	return b.Publish(ctx, typed)
}

// Close disposes every registered handler and empties the registry.
func (b *Broker[T]) Close() error {
	b.mu.Lock()
	hs := b.handlers
	b.handlers = make(map[int64]Handler[T])
	b.mu.Unlock()

	for _, h := range hs {
		dispose(h)
	}

	return nil
}

// Len reports the number of registered handlers.
func (b *Broker[T]) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()

	return len(b.handlers)
}

// MessageType returns the reflect.Type of T.
func (b *Broker[T]) MessageType() reflect.Type { return b.msgType }

func (b *Broker[T]) String() string {
	return fmt.Sprintf("Broker<%s> with %d handlers", b.name(), b.Len())
}

func (b *Broker[T]) name() string { return typeName(b.msgType) }

func (b *Broker[T]) rent(n int) *[]Handler[T] {
	s, _ := b.pool.Get().(*[]Handler[T])
	if s == nil || cap(*s) < n {
		fresh := make([]Handler[T], 0, n)
		s = &fresh
	}

	return s
}

func (b *Broker[T]) release(s *[]Handler[T]) {
	clear(*s)
	*s = (*s)[:0]
	b.pool.Put(s)
}
