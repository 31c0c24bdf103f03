package main

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/next-trace/scg-relay/adapters/inmemory"
	"github.com/next-trace/scg-relay/adapters/kafka"
	"github.com/next-trace/scg-relay/adapters/nats"
	"github.com/next-trace/scg-relay/adapters/rabbitmq"
	berr "github.com/next-trace/scg-relay/contract/errors"
	crelay "github.com/next-trace/scg-relay/contract/relay"
)

const dialTimeout = 5 * time.Second

// newForwarder builds the configured transport. An empty transport means no forwarding.
func newForwarder(cfg ForwardConfig, logger *slog.Logger) (crelay.Forwarder, func(), error) { //nolint:ireturn
	switch cfg.Transport {
	case "":
		return nil, func() {}, nil
	case "memory":
		return inmemory.New(), func() {}, nil
	case "nats":
		return forwarder(nats.NewWithNATS(nats.Config{
			URL:         cfg.NATSURL,
			Name:        "relay",
			ConnTimeout: dialTimeout,
			Logger:      logger,
		}))
	case "kafka":
		return forwarder(kafka.NewWithKgo(kafka.Config{Brokers: cfg.KafkaBrokers, ClientID: "relay"}))
	case "rabbitmq":
		return forwarder(rabbitmq.NewWithAMQPConn(rabbitmq.Config{
			URL:         cfg.AMQPURL,
			Exchange:    cfg.Exchange,
			ConnTimeout: dialTimeout,
			Confirm:     true,
			Logger:      logger,
		}))
	default:
		return nil, nil, fmt.Errorf("transport %q: %w", cfg.Transport, berr.ErrInvalidArgument)
	}
}

// forwarder keeps a typed nil adapter from turning into a non-nil interface.
func forwarder[F crelay.Forwarder](f F, cleanup func(), err error) (crelay.Forwarder, func(), error) { //nolint:ireturn
	if err != nil {
		return nil, nil, err
	}

	return f, cleanup, nil
}
