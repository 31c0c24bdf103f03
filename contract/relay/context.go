package relay

import "context"

// HeaderPropagator copies request-scoped values (trace ids, tenant) from ctx into the
// headers of a message leaving the process. It must be safe for concurrent use.
type HeaderPropagator interface {
	Inject(ctx context.Context, headers map[string]string)
}

// HeaderPropagatorFunc adapts a function to HeaderPropagator.
type HeaderPropagatorFunc func(ctx context.Context, headers map[string]string)

func (f HeaderPropagatorFunc) Inject(ctx context.Context, headers map[string]string) { f(ctx, headers) }

// NopHeaderPropagator leaves headers untouched.
type NopHeaderPropagator struct{}

func (NopHeaderPropagator) Inject(context.Context, map[string]string) {}
