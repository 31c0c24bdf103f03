package nats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/nats-io/nats.go"

	berr "github.com/next-trace/scg-relay/contract/errors"
)

const defaultFlushTimeout = 2 * time.Second

// Config describes a NATS connection for NewWithNATS.
type Config struct {
	URL           string
	Name          string
	Prefix        string
	Token         string
	User          string
	Password      string
	ConnTimeout   time.Duration
	FlushTimeout  time.Duration
	MaxReconnects int
	ReconnectWait time.Duration
	Logger        *slog.Logger
}

// connClient publishes on a live connection and flushes so errors surface to the caller.
type connClient struct {
	nc           *nats.Conn
	flushTimeout time.Duration
}

func (c connClient) Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error {
	msg := nats.NewMsg(subject)
	msg.Data = data

	for k, v := range headers {
		msg.Header.Set(k, v)
	}

	if err := c.nc.PublishMsg(msg); err != nil {
		return err
	}

	// FlushWithContext refuses contexts without a deadline
	if _, ok := ctx.Deadline(); ok {
		return c.nc.FlushWithContext(ctx)
	}

	return c.nc.FlushTimeout(c.flushTimeout)
}

// NewWithNATS dials NATS and returns an Adapter and a cleanup that drains the connection.
func NewWithNATS(cfg Config) (*Adapter, func(), error) {
	if cfg.URL == "" {
		return nil, nil, fmt.Errorf("%w: nats url required", berr.ErrInvalidArgument)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	nc, err := nats.Connect(cfg.URL, connectOptions(cfg, logger)...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: nats connect: %w", berr.ErrForwardFailed, err)
	}

	flush := cfg.FlushTimeout
	if flush <= 0 {
		flush = defaultFlushTimeout
	}

	ad := New(connClient{nc: nc, flushTimeout: flush})
	ad.Prefix = cfg.Prefix

	cleanup := func() {
		if !nc.IsClosed() {
			_ = nc.Drain() //nolint:errcheck // best-effort shutdown; cannot return error here
		}
	}

	return ad, cleanup, nil
}

func connectOptions(cfg Config, logger *slog.Logger) []nats.Option {
	opts := []nats.Option{
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			logger.Warn("nats disconnected", slog.Any("error", err))
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.Info("nats reconnected", slog.String("url", nc.ConnectedUrlRedacted()))
		}),
	}

	if cfg.Name != "" {
		opts = append(opts, nats.Name(cfg.Name))
	}

	if cfg.Token != "" {
		opts = append(opts, nats.Token(cfg.Token))
	}

	if cfg.User != "" {
		opts = append(opts, nats.UserInfo(cfg.User, cfg.Password))
	}

	if cfg.ConnTimeout > 0 {
		opts = append(opts, nats.Timeout(cfg.ConnTimeout))
	}

	if cfg.MaxReconnects != 0 {
		opts = append(opts, nats.MaxReconnects(cfg.MaxReconnects))
	}

	if cfg.ReconnectWait > 0 {
		opts = append(opts, nats.ReconnectWait(cfg.ReconnectWait))
	}

	return opts
}
