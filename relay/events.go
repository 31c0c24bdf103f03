package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"reflect"
	"sync"

	"github.com/alphadose/haxmap"
	berr "github.com/next-trace/scg-relay/contract/errors"
	crelay "github.com/next-trace/scg-relay/contract/relay"
)

// publisher is the type-erased view of a Broker held by the hub.
type publisher interface {
	PublishAny(ctx context.Context, msg any) error
	MessageType() reflect.Type
	Len() int
	Close() error
}

// Events routes messages to one Broker per message type.
// Brokers are created on first subscribe and live until Close.
//
// Publishing reads the broker map without locking. Subscribing holds the gate shared and
// creating a broker or closing the hub holds it exclusively, so a type never gets a
// second broker and no subscription lands in a broker that Close already released.
type Events struct {
	mu      sync.RWMutex
	brokers *haxmap.Map[uintptr, publisher]
	opts    []Option
	logger  *slog.Logger
}

var (
	_ crelay.Publisher = (*Events)(nil)
	_ crelay.Closer    = (*Events)(nil)
)

// NewEvents constructs an empty hub. Options are passed on to every broker it creates.
func NewEvents(opts ...Option) *Events {
	o := buildOptions(opts)

	return &Events{
		brokers: haxmap.New[uintptr, publisher](),
		opts:    opts,
		logger:  o.logger,
	}
}

// Subscribe registers h with the broker for T, creating the broker if needed.
func Subscribe[T any](e *Events, h Handler[T]) (*Token, error) {
	t := reflect.TypeFor[T]()
	key := typeKey(t)

	e.mu.RLock()
	p, ok := e.brokers.Get(key)
	if ok {
		defer e.mu.RUnlock()
		return subscribeTo(p, t, h)
	}
	e.mu.RUnlock()

	e.mu.Lock()
	defer e.mu.Unlock()

	p, ok = e.brokers.Get(key)
	if !ok {
		p = NewBroker[T](e.opts...)
		e.brokers.Set(key, p)
		e.logger.Debug("broker created", slog.String("message_type", t.String()))
	}

	return subscribeTo(p, t, h)
}

// SubscribeFunc subscribes fn. With several filters the handler fires only when all accept.
func SubscribeFunc[T any](e *Events, fn Callback[T], filters ...Filter[T]) (*Token, error) {
	h, err := NewHandler(fn, combine(filters))
	if err != nil {
		return nil, err
	}

	return Subscribe[T](e, h)
}

// SubscribeAsync subscribes a callback whose work may outlive the call.
func SubscribeAsync[T any](e *Events, fn AsyncCallback[T], filters ...Filter[T]) (*Token, error) {
	h, err := NewAsyncHandler(fn, combine(filters))
	if err != nil {
		return nil, err
	}

	return Subscribe[T](e, h)
}

// Publish delivers msg to the subscribers of T. It reports false when nobody ever
// subscribed to T; that is not an error.
func Publish[T any](ctx context.Context, e *Events, msg T) (bool, error) {
	t := reflect.TypeFor[T]()
	if isNil(msg) {
		return false, fmt.Errorf("publish %s: nil message: %w", typeName(t), berr.ErrInvalidArgument)
	}

	p, ok := e.brokers.Get(typeKey(t))
	if !ok {
		return false, nil
	}

	b, ok := p.(*Broker[T])
	if !ok {
		return false, fmt.Errorf("publish %s: broker is %T: %w", typeName(t), p, berr.ErrInternal)
	}

	return true, b.Publish(ctx, msg)
}

// Publish routes msg by its dynamic type. Without a broker for that type it does nothing.
func (e *Events) Publish(ctx context.Context, msg any) error {
	if isNil(msg) {
		return fmt.Errorf("publish: nil message: %w", berr.ErrInvalidArgument)
	}

	p, ok := e.brokers.Get(typeKey(reflect.TypeOf(msg)))
	if !ok {
		return nil
	}

	return p.PublishAny(ctx, msg)
}

// BrokerOf returns the broker for T without creating it.
func BrokerOf[T any](e *Events) (*Broker[T], bool) {
	p, ok := e.brokers.Get(typeKey(reflect.TypeFor[T]()))
	if !ok {
		return nil, false
	}

	b, ok := p.(*Broker[T])

	return b, ok
}

// Len reports the number of brokers.
func (e *Events) Len() int { return int(e.brokers.Len()) }

// Close disposes every broker and forgets them. Safe to call more than once.
// A later Subscribe starts over with a fresh broker.
func (e *Events) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	var (
		keys []uintptr
		errs []error
	)

	e.brokers.ForEach(func(k uintptr, p publisher) bool {
		keys = append(keys, k)
		if err := p.Close(); err != nil {
			errs = append(errs, err)
		}

		return true
	})

	if len(keys) > 0 {
		e.brokers.Del(keys...)
	}

	return errors.Join(errs...)
}

func subscribeTo[T any](p publisher, t reflect.Type, h Handler[T]) (*Token, error) {
	b, ok := p.(*Broker[T])
	if !ok {
		return nil, fmt.Errorf("subscribe %s: broker is %T: %w", typeName(t), p, berr.ErrInternal)
	}

	return b.Subscribe(h)
}
