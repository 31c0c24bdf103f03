package inmemory

import (
	"context"
	"sync"

	crelay "github.com/next-trace/scg-relay/contract/relay"
)

// Message is one recorded forward.
type Message struct {
	Subject string
	Body    []byte
	Key     string
	Headers map[string]string
}

// Forwarder is a thread-safe in-memory implementation of crelay.Forwarder.
// It records forwarded messages for testing and examples.
type Forwarder struct {
	mu       sync.Mutex
	messages []Message
}

// Ensure Forwarder implements the contract.
var _ crelay.Forwarder = (*Forwarder)(nil)

// New creates a new in-memory forwarder instance.
func New() *Forwarder { return &Forwarder{} }

func (f *Forwarder) Forward(ctx context.Context, subject string, body []byte, opts crelay.ForwardOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if opts.SubjectOverride != "" {
		subject = opts.SubjectOverride
	}

	m := Message{
		Subject: subject,
		Body:    append([]byte(nil), body...),
		Key:     opts.Key,
		Headers: make(map[string]string, len(opts.Headers)),
	}
	for k, v := range opts.Headers {
		m.Headers[k] = v
	}

	f.mu.Lock()
	f.messages = append(f.messages, m)
	f.mu.Unlock()

	return nil
}

// Messages returns a copy of everything recorded so far.
func (f *Forwarder) Messages() []Message {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]Message(nil), f.messages...)
}

// Subjects returns the recorded subjects in forward order.
func (f *Forwarder) Subjects() []string {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]string, len(f.messages))
	for i, m := range f.messages {
		out[i] = m.Subject
	}

	return out
}

// Reset drops every recorded message.
func (f *Forwarder) Reset() {
	f.mu.Lock()
	f.messages = nil
	f.mu.Unlock()
}
