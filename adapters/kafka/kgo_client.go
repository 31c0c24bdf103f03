package kafka

import (
	"context"
	"crypto/tls"
	"fmt"
	"strings"

	"github.com/twmb/franz-go/pkg/kgo"
	"github.com/twmb/franz-go/pkg/sasl"
	"github.com/twmb/franz-go/pkg/sasl/plain"
	"github.com/twmb/franz-go/pkg/sasl/scram"

	berr "github.com/next-trace/scg-relay/contract/errors"
)

// Concrete franz-go based constructor and writer wrapper.

// SASLConfig selects a SASL mechanism: PLAIN, SCRAM-SHA-256 or SCRAM-SHA-512.
type SASLConfig struct {
	Mechanism string
	Username  string
	Password  string
}

type Config struct {
	Brokers     []string
	TopicPrefix string
	TLS         *tls.Config
	SASL        *SASLConfig
	Acks        kgo.Acks
	Idempotent  bool
	ClientID    string
	Compression kgo.CompressionCodec
}

type kgoWriter struct{ cl *kgo.Client }

func (w kgoWriter) Write(ctx context.Context, topic string, key, value []byte, headers map[string]string) error {
	rec := &kgo.Record{Topic: topic, Key: key, Value: value}
	if len(headers) > 0 {
		rec.Headers = make([]kgo.RecordHeader, 0, len(headers))
		for k, v := range headers {
			rec.Headers = append(rec.Headers, kgo.RecordHeader{Key: k, Value: []byte(v)})
		}
	}

	return w.cl.ProduceSync(ctx, rec).FirstErr()
}

// NewWithKgo builds a franz-go client based Adapter. The returned cleanup should be called to close the client.
func NewWithKgo(cfg Config) (*Adapter, func(), error) {
	if len(cfg.Brokers) == 0 {
		return nil, nil, fmt.Errorf("%w: kafka brokers required", berr.ErrInvalidArgument)
	}

	opts := []kgo.Opt{kgo.SeedBrokers(cfg.Brokers...)}
	if cfg.ClientID != "" {
		opts = append(opts, kgo.ClientID(cfg.ClientID))
	}

	if cfg.TLS != nil {
		opts = append(opts, kgo.DialTLSConfig(cfg.TLS))
	}

	if cfg.Idempotent {
		if cfg.Acks != (kgo.Acks{}) && cfg.Acks != kgo.AllISRAcks() {
			return nil, nil, fmt.Errorf("%w: idempotent producer requires all-ISR acks", berr.ErrInvalidArgument)
		}
	} else {
		opts = append(opts, kgo.DisableIdempotentWrite())
		if cfg.Acks != (kgo.Acks{}) {
			opts = append(opts, kgo.RequiredAcks(cfg.Acks))
		}
	}

	if cfg.Compression != (kgo.CompressionCodec{}) {
		opts = append(opts, kgo.ProducerBatchCompression(cfg.Compression))
	}

	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		mech, err := saslMechanism(cfg.SASL)
		if err != nil {
			return nil, nil, err
		}

		opts = append(opts, kgo.SASL(mech))
	}

	cl, err := kgo.NewClient(opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: kafka client init: %w", berr.ErrForwardFailed, err)
	}

	ad := New(kgoWriter{cl: cl})
	ad.TopicPrefix = cfg.TopicPrefix
	cleanup := func() { cl.Close() }

	return ad, cleanup, nil
}

func saslMechanism(c *SASLConfig) (sasl.Mechanism, error) { //nolint:ireturn
	switch strings.ToUpper(c.Mechanism) {
	case "PLAIN":
		return plain.Auth{User: c.Username, Pass: c.Password}.AsMechanism(), nil
	case "SCRAM-SHA-256":
		return scram.Auth{User: c.Username, Pass: c.Password}.AsSha256Mechanism(), nil
	case "SCRAM-SHA-512":
		return scram.Auth{User: c.Username, Pass: c.Password}.AsSha512Mechanism(), nil
	default:
		return nil, fmt.Errorf("%w: unsupported SASL mechanism %q", berr.ErrInvalidArgument, c.Mechanism)
	}
}
