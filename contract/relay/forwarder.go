package relay

import "context"

// Forwarder hands an already-serialized message to an external transport.
// Library users provide an implementation that maps to Kafka/NATS/RabbitMQ etc.
// Implementations must be safe for concurrent use by multiple goroutines.
type Forwarder interface {
	Forward(ctx context.Context, subject string, body []byte, opts ForwardOptions) error
}

// Subjecter lets a message choose the subject it is forwarded under.
type Subjecter interface{ Subject() string }
