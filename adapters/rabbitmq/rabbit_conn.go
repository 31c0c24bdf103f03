package rabbitmq

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	berr "github.com/next-trace/scg-relay/contract/errors"
)

const (
	exchangeKind       = "topic"
	maxBackoff         = 30 * time.Second
	defaultConnTimeout = 30 * time.Second
)

// Config describes the broker connection used by NewWithAMQPConn.
// With Confirm set, Forward returns only after the broker acknowledged the message.
type Config struct {
	URL         string
	Exchange    string
	ConnTimeout time.Duration
	Confirm     bool
	Logger      *slog.Logger
}

type reconnectingPublisher struct {
	cfg    Config
	mu     sync.RWMutex
	conn   *amqp.Connection
	ch     *amqp.Channel
	closed chan struct{}
	ready  chan struct{} // closed when a channel is ready; replaced on disconnect
}

func newReconnectingPublisher(cfg Config) (*reconnectingPublisher, func()) {
	rp := &reconnectingPublisher{
		cfg:    cfg,
		closed: make(chan struct{}),
		ready:  make(chan struct{}),
	}

	go rp.run()

	return rp, rp.close
}

func (rp *reconnectingPublisher) Publish(ctx context.Context, m PubMsg) error {
	ch, err := rp.channel(ctx)
	if err != nil {
		return err
	}

	pub := amqp.Publishing{
		DeliveryMode: amqp.Persistent,
		Headers:      toTable(m.Headers),
		ContentType:  "application/json",
		Body:         m.Body,
	}

	if !rp.cfg.Confirm {
		return ch.PublishWithContext(ctx, m.Exchange, m.RoutingKey, false, false, pub)
	}

	dc, err := ch.PublishWithDeferredConfirmWithContext(ctx, m.Exchange, m.RoutingKey, false, false, pub)
	if err != nil {
		return err
	}

	acked, err := dc.WaitContext(ctx)
	if err != nil {
		return err
	}

	if !acked {
		return fmt.Errorf("%w: rabbitmq nacked delivery %d", berr.ErrForwardFailed, dc.DeliveryTag)
	}

	return nil
}

// channel waits until a channel is available, the publisher closes, or ctx is done.
func (rp *reconnectingPublisher) channel(ctx context.Context) (*amqp.Channel, error) {
	rp.mu.RLock()
	ch, ready := rp.ch, rp.ready
	rp.mu.RUnlock()

	if ch != nil {
		return ch, nil
	}

	select {
	case <-ready:
	case <-rp.closed:
		return nil, fmt.Errorf("%w: rabbitmq publisher closed", berr.ErrForwardFailed)
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	rp.mu.RLock()
	ch = rp.ch
	rp.mu.RUnlock()

	if ch == nil {
		return nil, fmt.Errorf("%w: rabbitmq not connected", berr.ErrForwardFailed)
	}

	return ch, nil
}

func (rp *reconnectingPublisher) dial() (*amqp.Connection, *amqp.Channel, error) {
	conn, err := amqp.DialConfig(rp.cfg.URL, amqp.Config{
		Locale:     "en_US",
		Properties: amqp.Table{"product": "scg-relay"},
		Dial:       amqp.DefaultDial(rp.cfg.ConnTimeout),
	})
	if err != nil {
		return nil, nil, err
	}

	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, err
	}

	if err := ch.ExchangeDeclare(rp.cfg.Exchange, exchangeKind, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		_ = conn.Close()

		return nil, nil, err
	}

	if rp.cfg.Confirm {
		if err := ch.Confirm(false); err != nil {
			_ = ch.Close()
			_ = conn.Close()

			return nil, nil, err
		}
	}

	return conn, ch, nil
}

func (rp *reconnectingPublisher) run() {
	backoff := time.Second

	for {
		select {
		case <-rp.closed:
			return
		default:
		}

		conn, ch, err := rp.dial()
		if err != nil {
			rp.cfg.Logger.Debug("rabbitmq dial failed", slog.Any("error", err), slog.Duration("retry_in", backoff))

			if !rp.sleep(jittered(backoff)) {
				return
			}

			backoff = min(backoff*2, maxBackoff)

			continue
		}

		backoff = time.Second
		notify := conn.NotifyClose(make(chan *amqp.Error, 1))

		rp.mu.Lock()
		rp.conn, rp.ch = conn, ch
		close(rp.ready)
		rp.mu.Unlock()

		rp.cfg.Logger.Info("rabbitmq connected", slog.String("exchange", rp.cfg.Exchange))

		select {
		case <-rp.closed:
			return
		case amqpErr := <-notify:
			rp.cfg.Logger.Warn("rabbitmq connection lost", slog.Any("error", amqpErr))
		}

		rp.mu.Lock()
		rp.conn, rp.ch = nil, nil
		rp.ready = make(chan struct{})
		rp.mu.Unlock()

		_ = ch.Close()
		_ = conn.Close()
	}
}

func (rp *reconnectingPublisher) sleep(d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()

	select {
	case <-rp.closed:
		return false
	case <-t.C:
		return true
	}
}

// exponential backoff with jitter
func jittered(backoff time.Duration) time.Duration {
	jitter := time.Duration(rand.Int64N(int64(backoff/2) + 1)) //nolint:gosec // non-crypto RNG is acceptable for backoff jitter

	return min(backoff+jitter/2, maxBackoff)
}

func (rp *reconnectingPublisher) close() {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	select {
	case <-rp.closed:
		return
	default:
		close(rp.closed)
	}

	if rp.ch != nil {
		_ = rp.ch.Close()
		rp.ch = nil
	}

	if rp.conn != nil {
		_ = rp.conn.Close()
		rp.conn = nil
	}
}

// NewWithAMQPConn dials RabbitMQ in the background with auto-reconnect, declares the
// topic exchange on every connect, and returns an Adapter and cleanup.
func NewWithAMQPConn(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: rabbitmq url required", berr.ErrInvalidArgument)
	}

	if cfg.Exchange == "" {
		cfg.Exchange = DefaultExchange
	}

	if cfg.ConnTimeout <= 0 {
		cfg.ConnTimeout = defaultConnTimeout
	}

	if cfg.Logger == nil {
		cfg.Logger = slog.New(slog.DiscardHandler)
	}

	pub, cleanup := newReconnectingPublisher(cfg)
	ad := New(pub)
	ad.Exchange = cfg.Exchange

	return ad, cleanup, nil
}
