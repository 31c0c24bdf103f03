package bridge_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
	"go.uber.org/goleak"

	"github.com/next-trace/scg-relay/bridge"
	berr "github.com/next-trace/scg-relay/contract/errors"
	crelay "github.com/next-trace/scg-relay/contract/relay"
	"github.com/next-trace/scg-relay/relay"
)

func TestMain(m *testing.M) { goleak.VerifyTestMain(m) }

type forwarded struct {
	subject string
	body    []byte
	opts    crelay.ForwardOptions
}

type fakeForwarder struct {
	mu    sync.Mutex
	calls []forwarded
	err   error
}

func (f *fakeForwarder) Forward(_ context.Context, subject string, body []byte, opts crelay.ForwardOptions) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, forwarded{subject: subject, body: body, opts: opts})

	return f.err
}

func (f *fakeForwarder) Calls() []forwarded {
	f.mu.Lock()
	defer f.mu.Unlock()

	return append([]forwarded(nil), f.calls...)
}

type OrderPlaced struct {
	ID    string  `json:"id"`
	Total float64 `json:"total"`
}

type routed struct{ To string }

func (r routed) Subject() string { return r.To }

type traceProp struct{}

func (traceProp) Inject(_ context.Context, h map[string]string) { h["traceparent"] = "00-abc-def-01" }

func TestBridge_ForwardsEnvelope(t *testing.T) {
	fwd := &fakeForwarder{}
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	_, err := bridge.Attach(e, fwd,
		bridge.WithKey(func(o OrderPlaced) string { return o.ID }),
		bridge.WithHeaders[OrderPlaced](map[string]string{"tenant": "acme"}),
		bridge.WithPropagator[OrderPlaced](traceProp{}),
	)
	require.NoError(t, err)

	ok, err := relay.Publish(t.Context(), e, OrderPlaced{ID: "o-1", Total: 12.5})
	require.NoError(t, err)
	require.True(t, ok)

	calls := fwd.Calls()
	require.Len(t, calls, 1)

	c := calls[0]
	assert.Equal(t, "relay.OrderPlaced", c.subject)
	assert.Equal(t, "o-1", c.opts.Key)
	assert.Empty(t, c.opts.SubjectOverride)

	env := gjson.ParseBytes(c.body)
	assert.Equal(t, "OrderPlaced", env.Get("type").String())
	assert.Equal(t, "o-1", env.Get("payload.id").String())
	assert.InDelta(t, 12.5, env.Get("payload.total").Float(), 0.0001)

	id, err := uuid.Parse(env.Get("id").String())
	require.NoError(t, err)
	assert.Equal(t, uuid.Version(7), id.Version())

	assert.Equal(t, env.Get("id").String(), c.opts.Headers[bridge.HeaderMessageID])
	assert.Equal(t, "OrderPlaced", c.opts.Headers[bridge.HeaderMessageType])
	assert.Equal(t, "acme", c.opts.Headers["tenant"])
	assert.Equal(t, "00-abc-def-01", c.opts.Headers["traceparent"])
}

func TestBridge_SubjectResolution(t *testing.T) {
	fwd := &fakeForwarder{}

	h, err := bridge.New[routed](fwd)
	require.NoError(t, err)
	require.NoError(t, h.Forward(t.Context(), routed{To: "billing.events"}))
	require.NoError(t, h.Forward(t.Context(), routed{}))

	p, err := bridge.New(fwd, bridge.WithPrefix[OrderPlaced]("orders."), bridge.WithSubject[OrderPlaced]("audit"))
	require.NoError(t, err)
	require.NoError(t, p.Forward(t.Context(), OrderPlaced{ID: "x"}))

	calls := fwd.Calls()
	require.Len(t, calls, 3)
	assert.Equal(t, "billing.events", calls[0].subject)
	assert.Equal(t, "relay.routed", calls[1].subject)
	assert.Equal(t, "orders.OrderPlaced", calls[2].subject)
	assert.Equal(t, "audit", calls[2].opts.SubjectOverride)
}

func TestBridge_FilterAndDispose(t *testing.T) {
	fwd := &fakeForwarder{}
	b := relay.NewBroker[OrderPlaced]()

	big := relay.FilterFunc[OrderPlaced](func(o OrderPlaced) bool { return o.Total > 100 })
	h, err := bridge.New(fwd, bridge.WithFilter[OrderPlaced](big))
	require.NoError(t, err)

	tok, err := b.Subscribe(h)
	require.NoError(t, err)

	require.NoError(t, b.Publish(t.Context(), OrderPlaced{ID: "small", Total: 1}))
	require.NoError(t, b.Publish(t.Context(), OrderPlaced{ID: "big", Total: 500}))
	require.Len(t, fwd.Calls(), 1)

	require.NoError(t, tok.Close())
	assert.Nil(t, h.Handle(t.Context(), OrderPlaced{ID: "late", Total: 500}))
	assert.Len(t, fwd.Calls(), 1)
}

func TestBridge_ErrorWrapping(t *testing.T) {
	fwd := &fakeForwarder{err: errors.New("broker down")}
	h, err := bridge.New[OrderPlaced](fwd)
	require.NoError(t, err)

	err = h.Forward(t.Context(), OrderPlaced{ID: "x"})
	require.ErrorIs(t, err, berr.ErrForwardFailed)

	fwd.err = context.DeadlineExceeded
	err = h.Forward(t.Context(), OrderPlaced{ID: "x"})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NotErrorIs(t, err, berr.ErrForwardFailed)

	ch, err := bridge.New[chan int](&fakeForwarder{})
	require.NoError(t, err)
	require.ErrorIs(t, ch.Forward(t.Context(), make(chan int)), berr.ErrSerializationFailed)
}

func TestBridge_CancelledContext(t *testing.T) {
	fwd := &fakeForwarder{}
	h, err := bridge.New[OrderPlaced](fwd)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(t.Context())
	cancel()

	require.ErrorIs(t, h.Forward(ctx, OrderPlaced{}), context.Canceled)
	assert.Empty(t, fwd.Calls())
}

func TestBridge_PublishSurfacesForwardFailure(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	_, err := bridge.Attach[OrderPlaced](e, &fakeForwarder{err: errors.New("nope")})
	require.NoError(t, err)

	_, err = relay.Publish(t.Context(), e, OrderPlaced{ID: "x"})
	require.ErrorIs(t, err, berr.ErrForwardFailed)
}

func TestBridge_NilForwarder(t *testing.T) {
	_, err := bridge.New[OrderPlaced](nil)
	require.ErrorIs(t, err, berr.ErrInvalidArgument)
}
