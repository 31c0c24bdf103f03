package kafka

import (
	"context"
	"errors"
	"fmt"
	"maps"

	berr "github.com/next-trace/scg-relay/contract/errors"
	crelay "github.com/next-trace/scg-relay/contract/relay"
)

// Writer is a minimal Kafka-like writer interface.
// Users can adapt any client to this; NewWithKgo wires franz-go.
type Writer interface {
	Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

// Adapter implements crelay.Forwarder using an injected Writer.
type Adapter struct {
	Writer Writer
	// TopicPrefix is prepended to every subject to form the topic.
	TopicPrefix string
}

var _ crelay.Forwarder = (*Adapter)(nil)

// New creates a new Kafka adapter instance with the provided writer.
func New(w Writer) *Adapter { return &Adapter{Writer: w} }

// Forward writes body to the topic named by subject, keyed by opts.Key.
func (a *Adapter) Forward(ctx context.Context, subject string, body []byte, opts crelay.ForwardOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Writer == nil {
		return fmt.Errorf("kafka forward: nil writer: %w", berr.ErrForwardFailed)
	}

	topic := a.topicFor(subject, opts)
	if topic == "" {
		return fmt.Errorf("kafka forward: empty topic: %w", berr.ErrInvalidArgument)
	}

	var key []byte
	if opts.Key != "" {
		key = []byte(opts.Key)
	}

	if err := a.Writer.Write(ctx, topic, key, body, maps.Clone(opts.Headers)); err != nil {
		return wrapProduceErr(topic, err)
	}

	return nil
}

func (a *Adapter) topicFor(subject string, o crelay.ForwardOptions) string {
	if o.SubjectOverride != "" {
		subject = o.SubjectOverride
	}

	if subject == "" {
		return ""
	}

	return a.TopicPrefix + subject
}

// Context errors pass through untouched so callers can tell cancellation from failure.
func wrapProduceErr(topic string, err error) error {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}

	return fmt.Errorf("kafka forward to %q: %w", topic, errors.Join(berr.ErrForwardFailed, err))
}
