package bridge

import (
	"log/slog"

	crelay "github.com/next-trace/scg-relay/contract/relay"
	"github.com/next-trace/scg-relay/relay"
)

// DefaultPrefix is prepended to the type name when no subject is chosen explicitly.
const DefaultPrefix = "relay."

// Option configures a Handler.
type Option[T any] func(*Handler[T])

// WithFilter restricts forwarding to messages the filter accepts.
func WithFilter[T any](f relay.Filter[T]) Option[T] {
	return func(h *Handler[T]) { h.filter = f }
}

// WithPrefix replaces DefaultPrefix.
func WithPrefix[T any](prefix string) Option[T] {
	return func(h *Handler[T]) { h.prefix = prefix }
}

// WithSubject forwards every message under subject, regardless of type or Subjecter.
func WithSubject[T any](subject string) Option[T] {
	return func(h *Handler[T]) { h.override = subject }
}

// WithKey derives the partition key of each message.
func WithKey[T any](fn func(msg T) string) Option[T] {
	return func(h *Handler[T]) { h.key = fn }
}

// WithHeaders adds static headers to every forwarded message.
func WithHeaders[T any](headers map[string]string) Option[T] {
	return func(h *Handler[T]) {
		for k, v := range headers {
			h.headers[k] = v
		}
	}
}

// WithPropagator injects context (e.g. trace ids) into the headers of each message.
func WithPropagator[T any](p crelay.HeaderPropagator) Option[T] {
	return func(h *Handler[T]) {
		if p != nil {
			h.prop = p
		}
	}
}

// WithLogger sets the structured logger. Nil keeps the default, which discards output.
func WithLogger[T any](l *slog.Logger) Option[T] {
	return func(h *Handler[T]) {
		if l != nil {
			h.logger = l
		}
	}
}
