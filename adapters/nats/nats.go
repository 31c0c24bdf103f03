package nats

import (
	"context"
	"errors"
	"fmt"
	"maps"

	berr "github.com/next-trace/scg-relay/contract/errors"
	crelay "github.com/next-trace/scg-relay/contract/relay"
)

// Client is a minimal NATS-like publisher interface decoupled from any concrete library.
// Users can provide a wrapper around their NATS connection to satisfy this.
type Client interface {
	// Publish publishes a message to a subject with optional headers.
	Publish(ctx context.Context, subject string, data []byte, headers map[string]string) error
}

// Adapter implements crelay.Forwarder using an injected NATS-like Client.
type Adapter struct {
	Client Client
	// Prefix is prepended to every subject, e.g. "app.".
	Prefix string
}

// Ensure Adapter implements the contract.
var _ crelay.Forwarder = (*Adapter)(nil)

// New creates a new NATS adapter instance with the provided client.
func New(c Client) *Adapter { return &Adapter{Client: c} }

// Forward publishes body on subject. The partition key travels as the "key" header
// because core NATS has no partitioning of its own.
func (a *Adapter) Forward(ctx context.Context, subject string, body []byte, opts crelay.ForwardOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if a.Client == nil {
		return fmt.Errorf("nats forward: nil client: %w", berr.ErrForwardFailed)
	}

	subj := a.subjectFor(subject, opts)
	if subj == "" {
		return fmt.Errorf("nats forward: empty subject: %w", berr.ErrInvalidArgument)
	}

	if err := a.Client.Publish(ctx, subj, body, headersFor(opts)); err != nil {
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}

		return fmt.Errorf("nats forward %s: %w", subj, errors.Join(berr.ErrForwardFailed, err))
	}

	return nil
}

func (a *Adapter) subjectFor(subject string, o crelay.ForwardOptions) string {
	if o.SubjectOverride != "" {
		subject = o.SubjectOverride
	}

	if subject == "" {
		return ""
	}

	return a.Prefix + subject
}

func headersFor(o crelay.ForwardOptions) map[string]string {
	h := make(map[string]string, len(o.Headers)+1)
	maps.Copy(h, o.Headers)

	if o.Key != "" {
		h["key"] = o.Key
	}

	return h
}
