// Package messaging wires an Events hub and a Mediator to the lifetime of a host.
//
// Handlers are registered explicitly, usually grouped into Modules, and every
// subscription made through the Registry is released by Close.
package messaging

import (
	"errors"
	"fmt"
	"sync"

	"github.com/next-trace/scg-relay/bridge"
	berr "github.com/next-trace/scg-relay/contract/errors"
	crelay "github.com/next-trace/scg-relay/contract/relay"
	"github.com/next-trace/scg-relay/relay"
)

// Module installs a related set of handlers.
type Module interface {
	Install(r *Registry) error
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(r *Registry) error

func (f ModuleFunc) Install(r *Registry) error { return f(r) }

// Registry owns a hub, a mediator and the subscription tokens created through it.
type Registry struct {
	Events   *relay.Events
	Mediator *relay.Mediator

	mu     sync.Mutex
	tokens []*relay.Token
	closed bool
}

var _ crelay.Closer = (*Registry)(nil)

// New constructs a registry and returns it with a cleanup that closes it.
func New(opts ...relay.Option) (*Registry, func()) {
	r := &Registry{
		Events:   relay.NewEvents(opts...),
		Mediator: relay.NewMediator(opts...),
	}
	cleanup := func() { _ = r.Close() }

	return r, cleanup
}

// Install runs every module in order. It keeps going after a failure and joins the errors.
func (r *Registry) Install(mods ...Module) error {
	var errs []error

	for _, m := range mods {
		if m == nil {
			continue
		}

		if err := m.Install(r); err != nil {
			errs = append(errs, fmt.Errorf("install %T: %w", m, err))
		}
	}

	return errors.Join(errs...)
}

// AddHandler subscribes h to messages of type T.
func AddHandler[T any](r *Registry, h relay.Handler[T]) error {
	return r.track(func() (*relay.Token, error) { return relay.Subscribe[T](r.Events, h) })
}

// AddFunc subscribes fn to messages of type T.
func AddFunc[T any](r *Registry, fn relay.Callback[T], filters ...relay.Filter[T]) error {
	return r.track(func() (*relay.Token, error) { return relay.SubscribeFunc(r.Events, fn, filters...) })
}

// AddForwarder forwards every message of type T to fwd.
func AddForwarder[T any](r *Registry, fwd crelay.Forwarder, opts ...bridge.Option[T]) error {
	return r.track(func() (*relay.Token, error) { return bridge.Attach(r.Events, fwd, opts...) })
}

// AddRequestHandler registers h with the mediator.
func AddRequestHandler[Req, Res any](r *Registry, h relay.RequestHandler[Req, Res]) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("add request handler: %w", berr.ErrClosed)
	}

	return relay.Register(r.Mediator, h)
}

// Close releases every subscription, then closes the hub and the mediator.
// Safe to call more than once.
func (r *Registry) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}

	r.closed = true
	tokens := r.tokens
	r.tokens = nil
	r.mu.Unlock()

	errs := make([]error, 0, len(tokens)+2)
	for _, t := range tokens {
		errs = append(errs, t.Close())
	}

	errs = append(errs, r.Events.Close(), r.Mediator.Close())

	return errors.Join(errs...)
}

func (r *Registry) track(subscribe func() (*relay.Token, error)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.closed {
		return fmt.Errorf("subscribe: %w", berr.ErrClosed)
	}

	tok, err := subscribe()
	if err != nil {
		return err
	}

	r.tokens = append(r.tokens, tok)

	return nil
}
