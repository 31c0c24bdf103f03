package relay

import "context"

// Publisher is the untyped publishing surface of an event hub.
//
// Typed publishing stays available through the generic helpers in the relay package.
// This interface is intended for consumers that want to depend only on contracts.
type Publisher interface {
	Publish(ctx context.Context, msg any) error
}

// Sender routes a request to exactly one handler and returns its response.
type Sender interface {
	Send(ctx context.Context, req any) (any, error)
}

// Closer releases every handler reference held by a hub, broker or mediator.
// Implementations must tolerate repeated calls.
type Closer interface {
	Close() error
}
