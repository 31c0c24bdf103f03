package main

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/next-trace/scg-relay/adapters/inmemory"
	"github.com/next-trace/scg-relay/bridge"
	"github.com/next-trace/scg-relay/messaging"
	"github.com/next-trace/scg-relay/relay"
)

// TestMessage is the event published by the demo.
type TestMessage struct {
	Content string `json:"content"`
}

// Request is the demo request routed through the mediator.
type Request struct {
	Content string `json:"content"`
}

// Response answers a Request.
type Response struct {
	Content string `json:"content"`
}

type requestHandler struct{}

func (requestHandler) Handle(_ context.Context, req Request) (Response, error) {
	return Response{Content: "Processed: " + req.Content}, nil
}

type demoResult struct {
	Counter   int64
	Failed    int64
	Response  Response
	Forwarded int
	Elapsed   time.Duration
}

func newDemoCommand(v *viper.Viper, configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "demo",
		Short: "Publish concurrently through the event hub, then send a request through the mediator",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(v, *configPath)
			if err != nil {
				return err
			}

			logger := newLogger(cmd.ErrOrStderr(), cfg.LogLevel)

			res, err := runDemo(cmd.Context(), cfg, logger)
			if err != nil {
				logger.Error("demo failed", slog.Any("error", err))
				return err
			}

			out := cmd.OutOrStdout()
			_, _ = fmt.Fprintf(out, "Final counter value: %d\n", res.Counter)
			_, _ = fmt.Fprintf(out, "Response: %s\n", res.Response.Content)

			if res.Forwarded > 0 {
				_, _ = fmt.Fprintf(out, "Forwarded: %d\n", res.Forwarded)
			}

			if res.Failed > 0 {
				return fmt.Errorf("%d of %d publishes failed", res.Failed, cfg.Publishes)
			}

			return nil
		},
	}

	cmd.Flags().Int("publishes", 10_000, "Number of concurrent publishes")
	cmd.Flags().String("message", "Hello, World!", "Content of the mediator request")
	cmd.Flags().String("forward-transport", "", "Forward demo events to: memory, nats, kafka or rabbitmq")
	cmd.Flags().String("forward-prefix", "relay.", "Subject prefix for forwarded events")
	cmd.Flags().String("nats-url", "", "NATS server URL")
	cmd.Flags().StringSlice("kafka-brokers", nil, "Kafka seed brokers (host:port)")
	cmd.Flags().String("amqp-url", "", "RabbitMQ URL")

	bindFlag(v, cmd, "publishes", "publishes")
	bindFlag(v, cmd, "message", "message")
	bindFlag(v, cmd, "forward.transport", "forward-transport")
	bindFlag(v, cmd, "forward.prefix", "forward-prefix")
	bindFlag(v, cmd, "forward.nats_url", "nats-url")
	bindFlag(v, cmd, "forward.kafka_brokers", "kafka-brokers")
	bindFlag(v, cmd, "forward.amqp_url", "amqp-url")

	return cmd
}

func runDemo(ctx context.Context, cfg *Config, logger *slog.Logger) (*demoResult, error) {
	reg, cleanup := messaging.New(relay.WithLogger(logger))
	defer cleanup()

	var counter, failed atomic.Int64

	if err := messaging.AddFunc(reg, func(context.Context, TestMessage) error {
		counter.Add(1)
		return nil
	}); err != nil {
		return nil, err
	}

	if err := messaging.AddRequestHandler[Request, Response](reg, requestHandler{}); err != nil {
		return nil, err
	}

	fwd, closeFwd, err := newForwarder(cfg.Forward, logger)
	if err != nil {
		return nil, err
	}
	defer closeFwd()

	if fwd != nil {
		opts := []bridge.Option[TestMessage]{
			bridge.WithPrefix[TestMessage](cfg.Forward.Prefix),
			bridge.WithLogger[TestMessage](logger),
		}
		if err := messaging.AddForwarder(reg, fwd, opts...); err != nil {
			return nil, err
		}

		logger.Info("forwarding enabled", slog.String("transport", cfg.Forward.Transport))
	}

	start := time.Now()

	var wg sync.WaitGroup
	wg.Add(cfg.Publishes)

	for i := range cfg.Publishes {
		go func() {
			defer wg.Done()

			msg := TestMessage{Content: fmt.Sprintf("Message %d", i)}
			if _, err := relay.Publish(ctx, reg.Events, msg); err != nil {
				failed.Add(1)
				logger.Debug("publish failed", slog.Any("error", err))
			}
		}()
	}

	wg.Wait()

	elapsed := time.Since(start)
	logger.Info("publishes finished",
		slog.Int("publishes", cfg.Publishes),
		slog.Int64("counter", counter.Load()),
		slog.Int64("failed", failed.Load()),
		slog.Duration("elapsed", elapsed),
	)

	res, err := relay.Send[Request, Response](ctx, reg.Mediator, Request{Content: cfg.Message})
	if err != nil {
		return nil, err
	}

	out := &demoResult{
		Counter:  counter.Load(),
		Failed:   failed.Load(),
		Response: res,
		Elapsed:  elapsed,
	}

	if mem, ok := fwd.(*inmemory.Forwarder); ok {
		out.Forwarded = len(mem.Messages())
	}

	return out, nil
}
