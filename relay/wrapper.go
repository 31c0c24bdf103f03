package relay

import (
	"context"
	"fmt"
	"reflect"

	berr "github.com/next-trace/scg-relay/contract/errors"
)

// RequestHandler answers requests of type Req with a Res.
// Implementations must be safe for concurrent use by multiple goroutines.
type RequestHandler[Req, Res any] interface {
	Handle(ctx context.Context, req Req) (Res, error)
}

// RequestHandlerFunc adapts a function to RequestHandler.
type RequestHandlerFunc[Req, Res any] func(ctx context.Context, req Req) (Res, error)

func (f RequestHandlerFunc[Req, Res]) Handle(ctx context.Context, req Req) (Res, error) {
	return f(ctx, req)
}

// handlerWrapper erases the request and response types so the mediator can store
// handlers for different request types side by side.
type handlerWrapper interface {
	Handle(ctx context.Context, req any) (any, error)
	RequestType() reflect.Type
}

type requestWrapper[Req, Res any] struct {
	handler RequestHandler[Req, Res]
}

func (w requestWrapper[Req, Res]) Handle(ctx context.Context, req any) (any, error) {
	r, ok := req.(Req)
	if !ok {
		// routing is keyed by type, so reaching this means the registry is corrupt
		return nil, fmt.Errorf("handle %s: got %T: %w", typeName(w.RequestType()), req, berr.ErrInternal)
	}

	return w.handler.Handle(ctx, r)
}

func (requestWrapper[Req, Res]) RequestType() reflect.Type { return reflect.TypeFor[Req]() }
