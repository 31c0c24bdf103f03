package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"maps"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-relay/contract/errors"
	crelay "github.com/next-trace/scg-relay/contract/relay"
)

// DefaultExchange is the topic exchange messages are published to when none is configured.
const DefaultExchange = "relay"

type PubMsg struct {
	Exchange   string
	RoutingKey string
	Body       []byte
	Headers    map[string]string
}

type Publisher interface {
	Publish(ctx context.Context, m PubMsg) error
}

type Adapter struct {
	Publisher  Publisher
	Exchange   string
	Propagator crelay.HeaderPropagator // optional, for context propagation into headers
}

var _ crelay.Forwarder = (*Adapter)(nil)

func New(p Publisher) *Adapter { return &Adapter{Publisher: p, Exchange: DefaultExchange} }

// NewWithPropagator allows configuring a HeaderPropagator for context propagation.
func NewWithPropagator(p Publisher, hp crelay.HeaderPropagator) *Adapter {
	ad := New(p)
	ad.Propagator = hp

	return ad
}

// Forward publishes body with subject as the routing key.
func (a *Adapter) Forward(ctx context.Context, subject string, body []byte, opts crelay.ForwardOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Publisher == nil {
		return fmt.Errorf("rabbitmq forward: nil publisher: %w", berr.ErrForwardFailed)
	}

	rk := routingKeyFor(subject, opts)
	if rk == "" {
		return fmt.Errorf("rabbitmq forward: empty routing key: %w", berr.ErrInvalidArgument)
	}

	msg := PubMsg{
		Exchange:   a.Exchange,
		RoutingKey: rk,
		Body:       body,
		Headers:    a.headersFor(ctx, opts),
	}

	if err := a.Publisher.Publish(ctx, msg); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("rabbitmq forward %s: %w", rk, errors.Join(berr.ErrForwardFailed, err))
	}

	return nil
}

func routingKeyFor(subject string, o crelay.ForwardOptions) string {
	if o.SubjectOverride != "" {
		return o.SubjectOverride
	}

	return subject
}

// headersFor copies the caller's headers so the propagator never mutates them.
func (a *Adapter) headersFor(ctx context.Context, o crelay.ForwardOptions) map[string]string {
	h := make(map[string]string, len(o.Headers)+4)
	maps.Copy(h, o.Headers)

	if o.Key != "" {
		h["key"] = o.Key
	}

	if a.Propagator != nil {
		a.Propagator.Inject(ctx, h)
	}

	return h
}

func toTable(headers map[string]string) amqp.Table {
	if len(headers) == 0 {
		return nil
	}

	t := make(amqp.Table, len(headers))
	for k, v := range headers {
		t[k] = v
	}

	return t
}

type amqpChannelPublisher struct{ ch *amqp.Channel }

func (p amqpChannelPublisher) Publish(ctx context.Context, m PubMsg) error {
	return p.ch.PublishWithContext(
		ctx,
		m.Exchange,
		m.RoutingKey,
		false,
		false,
		amqp.Publishing{
			Headers:     toTable(m.Headers),
			Body:        m.Body,
			ContentType: "application/json",
		},
	)
}

// NewWithAMQPChannel publishes on a caller-owned channel. The exchange must already exist.
func NewWithAMQPChannel(ch *amqp.Channel, exchange string) *Adapter {
	ad := New(amqpChannelPublisher{ch: ch})
	ad.Exchange = exchange

	return ad
}
