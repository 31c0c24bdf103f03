package bridge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"reflect"
	"sync/atomic"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/tidwall/sjson"

	berr "github.com/next-trace/scg-relay/contract/errors"
	crelay "github.com/next-trace/scg-relay/contract/relay"
	"github.com/next-trace/scg-relay/relay"
)

const (
	// HeaderMessageID carries the envelope id.
	HeaderMessageID = "x-message-id"
	// HeaderMessageType carries the envelope type name.
	HeaderMessageType = "x-message-type"
)

// Handler forwards messages of type T to a Forwarder.
// Forwarding runs on its own goroutine; publishing waits for it like any other pending handler.
type Handler[T any] struct {
	fwd crelay.Forwarder

	filter   relay.Filter[T]
	prefix   string
	override string
	key      func(T) string
	headers  map[string]string
	prop     crelay.HeaderPropagator
	logger   *slog.Logger

	typeName string
	disposed atomic.Bool
}

var (
	_ relay.Handler[struct{}] = (*Handler[struct{}])(nil)
	_ relay.Disposable        = (*Handler[struct{}])(nil)
)

// New builds a forwarding handler. A nil forwarder is rejected.
func New[T any](fwd crelay.Forwarder, opts ...Option[T]) (*Handler[T], error) {
	name := typeName(reflect.TypeFor[T]())
	if fwd == nil {
		return nil, fmt.Errorf("bridge %s: nil forwarder: %w", name, berr.ErrInvalidArgument)
	}

	h := &Handler[T]{
		fwd:      fwd,
		prefix:   DefaultPrefix,
		headers:  map[string]string{},
		prop:     crelay.NopHeaderPropagator{},
		logger:   slog.New(slog.DiscardHandler),
		typeName: name,
	}

	for _, o := range opts {
		o(h)
	}

	return h, nil
}

// Attach creates a forwarding handler and subscribes it to the hub for T.
func Attach[T any](e *relay.Events, fwd crelay.Forwarder, opts ...Option[T]) (*relay.Token, error) {
	h, err := New(fwd, opts...)
	if err != nil {
		return nil, err
	}

	return relay.Subscribe[T](e, h)
}

func (h *Handler[T]) Filter(msg T) bool {
	if h.filter == nil {
		return true
	}

	return h.filter.Apply(msg)
}

// Handle forwards msg. After Dispose it does nothing.
func (h *Handler[T]) Handle(ctx context.Context, msg T) relay.Pending {
	if h.disposed.Load() {
		return nil
	}

	return relay.Go(ctx, func(ctx context.Context) error { return h.Forward(ctx, msg) })
}

// Dispose stops forwarding. Safe to call more than once.
func (h *Handler[T]) Dispose() { h.disposed.Store(true) }

// Forward serializes msg and hands it to the forwarder synchronously.
func (h *Handler[T]) Forward(ctx context.Context, msg T) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	id := uuid.Must(uuid.NewV7()).String()

	body, err := h.envelope(id, msg)
	if err != nil {
		return fmt.Errorf("bridge %s serialize: %w", h.typeName, errors.Join(berr.ErrSerializationFailed, err))
	}

	opts := crelay.ForwardOptions{
		SubjectOverride: h.override,
		Headers:         h.headersFor(ctx, id),
	}
	if h.key != nil {
		opts.Key = h.key(msg)
	}

	subject := h.subjectFor(msg)

	if err := h.fwd.Forward(ctx, subject, body, opts); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("bridge %s forward: %w", h.typeName, errors.Join(berr.ErrForwardFailed, err))
	}

	h.logger.Debug("message forwarded",
		slog.String("subject", subject),
		slog.String("message_id", id),
		slog.String("message_type", h.typeName),
	)

	return nil
}

func (h *Handler[T]) envelope(id string, msg T) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, err
	}

	env, err := sjson.SetBytes([]byte(`{}`), "id", id)
	if err != nil {
		return nil, err
	}

	if env, err = sjson.SetBytes(env, "type", h.typeName); err != nil {
		return nil, err
	}

	return sjson.SetRawBytes(env, "payload", payload)
}

func (h *Handler[T]) headersFor(ctx context.Context, id string) map[string]string {
	out := make(map[string]string, len(h.headers)+2)
	maps.Copy(out, h.headers)
	out[HeaderMessageID] = id
	out[HeaderMessageType] = h.typeName

	h.prop.Inject(ctx, out)

	return out
}

func (h *Handler[T]) subjectFor(msg T) string {
	if s, ok := any(msg).(crelay.Subjecter); ok {
		if subj := s.Subject(); subj != "" {
			return subj
		}
	}

	return h.prefix + h.typeName
}

func typeName(t reflect.Type) string {
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	name := t.Name()
	if name == "" {
		name = t.String()
	}

	return name
}
