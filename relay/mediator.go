package relay

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/alphadose/haxmap"
	berr "github.com/next-trace/scg-relay/contract/errors"
	crelay "github.com/next-trace/scg-relay/contract/relay"
)

// Mediator routes each request to the single handler registered for its type.
//
// Requests are keyed by their concrete type. The mediator does not own the handlers
// registered with it; Close only forgets them. Lookups do not lock; registration and
// Close are serialized so exactly one of several concurrent registrations for a type wins.
type Mediator struct {
	mu       sync.Mutex
	handlers *haxmap.Map[uintptr, handlerWrapper]
	logger   *slog.Logger
}

var (
	_ crelay.Sender = (*Mediator)(nil)
	_ crelay.Closer = (*Mediator)(nil)
)

// NewMediator constructs an empty mediator.
func NewMediator(opts ...Option) *Mediator {
	o := buildOptions(opts)

	return &Mediator{
		handlers: haxmap.New[uintptr, handlerWrapper](),
		logger:   o.logger,
	}
}

// Register binds h to request type Req. A second registration for the same type fails
// with ErrAlreadyRegistered and leaves the first one in place.
func Register[Req, Res any](m *Mediator, h RequestHandler[Req, Res]) error {
	t := reflect.TypeFor[Req]()
	if isNil(h) {
		return fmt.Errorf("register %s: nil handler: %w", typeName(t), berr.ErrInvalidArgument)
	}

	key := typeKey(t)

	m.mu.Lock()
	if _, exists := m.handlers.Get(key); exists {
		m.mu.Unlock()
		return fmt.Errorf("handler already registered for %s: %w", typeName(t), berr.ErrAlreadyRegistered)
	}

	m.handlers.Set(key, requestWrapper[Req, Res]{handler: h})
	m.mu.Unlock()

	m.logger.Debug("request handler registered", slog.String("request_type", t.String()))

	return nil
}

// RegisterFunc is Register for a plain function.
func RegisterFunc[Req, Res any](m *Mediator, fn func(ctx context.Context, req Req) (Res, error)) error {
	if fn == nil {
		return fmt.Errorf("register %s: nil handler: %w", typeName(reflect.TypeFor[Req]()), berr.ErrInvalidArgument)
	}

	return Register[Req, Res](m, RequestHandlerFunc[Req, Res](fn))
}

// Send routes req to its handler and returns the typed response.
func Send[Req, Res any](ctx context.Context, m *Mediator, req Req) (Res, error) {
	var zero Res

	w, err := m.lookup(req)
	if err != nil {
		return zero, err
	}

	if typed, ok := w.(requestWrapper[Req, Res]); ok {
		return typed.handler.Handle(ctx, req)
	}

	res, err := w.Handle(ctx, req)
	if err != nil {
		return zero, err
	}

	if res == nil {
		return zero, nil
	}

	r, ok := res.(Res)
	if !ok {
		return zero, fmt.Errorf("send %s: response is %T: %w", typeName(w.RequestType()), res, berr.ErrInternal)
	}

	return r, nil
}

// Send routes req by its dynamic type and returns the untyped response.
func (m *Mediator) Send(ctx context.Context, req any) (any, error) {
	w, err := m.lookup(req)
	if err != nil {
		return nil, err
	}

	return w.Handle(ctx, req)
}

// Has reports whether a handler is registered for the dynamic type of req.
func (m *Mediator) Has(req any) bool {
	if isNil(req) {
		return false
	}

	_, ok := m.handlers.Get(typeKey(reflect.TypeOf(req)))

	return ok
}

// Len reports the number of registered request types.
func (m *Mediator) Len() int { return int(m.handlers.Len()) }

// Close forgets every registration. Safe to call more than once.
func (m *Mediator) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var keys []uintptr

	m.handlers.ForEach(func(k uintptr, _ handlerWrapper) bool {
		keys = append(keys, k)
		return true
	})

	if len(keys) > 0 {
		m.handlers.Del(keys...)
	}

	return nil
}

func (m *Mediator) lookup(req any) (handlerWrapper, error) {
	if isNil(req) {
		return nil, fmt.Errorf("send: nil request: %w", berr.ErrInvalidArgument)
	}

	t := reflect.TypeOf(req)

	w, ok := m.handlers.Get(typeKey(t))
	if !ok {
		return nil, fmt.Errorf("no handler for %s: %w", typeName(t), berr.ErrHandlerNotFound)
	}

	return w, nil
}
