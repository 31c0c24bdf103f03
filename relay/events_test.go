package relay_test

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	berr "github.com/next-trace/scg-relay/contract/errors"
	"github.com/next-trace/scg-relay/relay"
)

type TestMessage struct {
	Content string
}

type OrderPlaced struct {
	ID    int
	Total float64
}

func TestEvents_PublishWithoutSubscribers(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	ok, err := relay.Publish(t.Context(), e, TestMessage{Content: "Test Message"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 0, e.Len())
}

func TestEvents_SubscribeAndPublish(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	var received string
	_, err := relay.SubscribeFunc(e, func(_ context.Context, m TestMessage) error {
		received = m.Content
		return nil
	})
	require.NoError(t, err)

	ok, err := relay.Publish(t.Context(), e, TestMessage{Content: "Test Message"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Test Message", received)
}

func TestEvents_FilterRejects(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	called := false
	onlyTest, err := relay.Predicate(func(m TestMessage) bool { return strings.Contains(m.Content, "Test") })
	require.NoError(t, err)

	_, err = relay.SubscribeFunc(e, func(context.Context, TestMessage) error {
		called = true
		return nil
	}, onlyTest)
	require.NoError(t, err)

	ok, err := relay.Publish(t.Context(), e, TestMessage{Content: "Another Message"})
	require.NoError(t, err)
	assert.True(t, ok, "a broker exists even when its handlers reject the message")
	assert.False(t, called)
}

func TestEvents_SeveralFiltersMustAllAccept(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	var delivered []int
	bigOrders := relay.FilterFunc[OrderPlaced](func(o OrderPlaced) bool { return o.Total >= 100 })
	evenIDs := relay.FilterFunc[OrderPlaced](func(o OrderPlaced) bool { return o.ID%2 == 0 })

	_, err := relay.SubscribeFunc[OrderPlaced](e, func(_ context.Context, o OrderPlaced) error {
		delivered = append(delivered, o.ID)
		return nil
	}, bigOrders, evenIDs)
	require.NoError(t, err)

	for _, o := range []OrderPlaced{{1, 500}, {2, 50}, {4, 150}, {6, 99.99}, {8, 100}} {
		_, err := relay.Publish(t.Context(), e, o)
		require.NoError(t, err)
	}

	assert.Equal(t, []int{4, 8}, delivered)
}

func TestEvents_CompositeFilterSubscription(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	filter := relay.Compose[TestMessage](
		relay.FilterFunc[TestMessage](func(m TestMessage) bool { return strings.HasPrefix(m.Content, "Test") }),
		relay.Not[TestMessage](relay.FilterFunc[TestMessage](func(m TestMessage) bool { return strings.HasSuffix(m.Content, "skip") })),
	)

	h, err := relay.NewHandler[TestMessage](func(context.Context, TestMessage) error { return nil }, filter)
	require.NoError(t, err)

	var count atomic.Int32
	h2, err := relay.NewHandler[TestMessage](func(context.Context, TestMessage) error {
		count.Add(1)
		return nil
	}, filter)
	require.NoError(t, err)

	_, err = relay.Subscribe[TestMessage](e, h)
	require.NoError(t, err)
	_, err = relay.Subscribe[TestMessage](e, h2)
	require.NoError(t, err)

	for _, c := range []string{"Test one", "Test skip", "Other"} {
		_, err := relay.Publish(t.Context(), e, TestMessage{Content: c})
		require.NoError(t, err)
	}

	assert.Equal(t, int32(1), count.Load())
}

func TestEvents_UnsubscribeStopsDelivery(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	called := false
	tok, err := relay.SubscribeFunc(e, func(context.Context, TestMessage) error {
		called = true
		return nil
	})
	require.NoError(t, err)

	require.NoError(t, tok.Close())
	require.NoError(t, tok.Close())

	ok, err := relay.Publish(t.Context(), e, TestMessage{Content: "Test Message"})
	require.NoError(t, err)
	assert.True(t, ok)
	assert.False(t, called)
}

func TestEvents_NilMessage(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	_, err := relay.Publish[*TestMessage](t.Context(), e, nil)
	require.ErrorIs(t, err, berr.ErrInvalidArgument)

	require.ErrorIs(t, e.Publish(t.Context(), nil), berr.ErrInvalidArgument)
	assert.Equal(t, 0, e.Len())
}

func TestEvents_UntypedPublishRoutesByDynamicType(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	var got []string
	_, err := relay.SubscribeFunc(e, func(_ context.Context, m TestMessage) error {
		got = append(got, m.Content)
		return nil
	})
	require.NoError(t, err)

	var msg any = TestMessage{Content: "via any"}
	require.NoError(t, e.Publish(t.Context(), msg))
	require.NoError(t, e.Publish(t.Context(), OrderPlaced{ID: 1}))

	assert.Equal(t, []string{"via any"}, got)
}

func TestEvents_PointerAndValueAreDistinctTypes(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	var values, pointers int
	_, err := relay.SubscribeFunc(e, func(context.Context, TestMessage) error { values++; return nil })
	require.NoError(t, err)
	_, err = relay.SubscribeFunc(e, func(context.Context, *TestMessage) error { pointers++; return nil })
	require.NoError(t, err)

	_, err = relay.Publish(t.Context(), e, &TestMessage{Content: "p"})
	require.NoError(t, err)

	assert.Zero(t, values)
	assert.Equal(t, 1, pointers)
	assert.Equal(t, 2, e.Len())
}

func TestEvents_ConcurrentPublishCountsExactly(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	var counter atomic.Int64
	_, err := relay.SubscribeFunc(e, func(context.Context, TestMessage) error {
		counter.Add(1)
		return nil
	})
	require.NoError(t, err)

	const n = 10_000

	var wg sync.WaitGroup
	wg.Add(n)

	for i := range n {
		go func() {
			defer wg.Done()

			if _, err := relay.Publish(context.Background(), e, TestMessage{Content: strings.Repeat("x", i%4)}); err != nil {
				t.Error(err)
			}
		}()
	}

	wg.Wait()
	assert.Equal(t, int64(n), counter.Load())
}

func TestEvents_ConcurrentFirstSubscribeCreatesOneBroker(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	const n = 64

	var wg sync.WaitGroup
	wg.Add(n)

	for range n {
		go func() {
			defer wg.Done()

			if _, err := relay.SubscribeFunc(e, func(context.Context, OrderPlaced) error { return nil }); err != nil {
				t.Error(err)
			}
		}()
	}

	wg.Wait()

	b, ok := relay.BrokerOf[OrderPlaced](e)
	require.True(t, ok)
	assert.Equal(t, n, b.Len())
	assert.Equal(t, 1, e.Len())
}

// constructionLog is a slog handler whose WithAttrs runs while a broker is being built.
// The first builder waits briefly for a second one to arrive.
type constructionLog struct {
	slog.Handler

	builds atomic.Int32
	second chan struct{}
}

func (h *constructionLog) WithAttrs([]slog.Attr) slog.Handler {
	switch h.builds.Add(1) {
	case 1:
		select {
		case <-h.second:
		case <-time.After(200 * time.Millisecond):
		}
	case 2:
		close(h.second)
	}

	return h
}

func TestEvents_RacingFirstSubscribersShareOneBroker(t *testing.T) {
	log := &constructionLog{Handler: slog.DiscardHandler, second: make(chan struct{})}
	e := relay.NewEvents(relay.WithLogger(slog.New(log)))
	t.Cleanup(func() { _ = e.Close() })

	var (
		wg      sync.WaitGroup
		reached atomic.Int32
	)

	start := make(chan struct{})
	wg.Add(2)

	for range 2 {
		go func() {
			defer wg.Done()
			<-start

			if _, err := relay.SubscribeFunc(e, func(context.Context, OrderPlaced) error {
				reached.Add(1)
				return nil
			}); err != nil {
				t.Error(err)
			}
		}()
	}

	close(start)
	wg.Wait()

	assert.Equal(t, int32(1), log.builds.Load())

	ok, err := relay.Publish(t.Context(), e, OrderPlaced{ID: 1})
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, int32(2), reached.Load())

	b, ok := relay.BrokerOf[OrderPlaced](e)
	require.True(t, ok)
	assert.Equal(t, 2, b.Len())
}

// stallingLog blocks the first broker construction until released.
type stallingLog struct {
	slog.Handler

	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (h *stallingLog) WithAttrs([]slog.Attr) slog.Handler {
	h.once.Do(func() {
		close(h.entered)
		<-h.release
	})

	return h
}

func TestEvents_CloseWaitsForSubscribeInProgress(t *testing.T) {
	log := &stallingLog{Handler: slog.DiscardHandler, entered: make(chan struct{}), release: make(chan struct{})}
	e := relay.NewEvents(relay.WithLogger(slog.New(log)))

	var called atomic.Bool

	subscribed := make(chan error, 1)
	go func() {
		_, err := relay.SubscribeFunc(e, func(context.Context, OrderPlaced) error {
			called.Store(true)
			return nil
		})
		subscribed <- err
	}()

	<-log.entered

	closed := make(chan error, 1)
	go func() { closed <- e.Close() }()

	select {
	case <-closed:
		t.Fatal("Close returned while a subscription was still being registered")
	case <-time.After(50 * time.Millisecond):
	}

	close(log.release)
	require.NoError(t, <-subscribed)
	require.NoError(t, <-closed)

	assert.Equal(t, 0, e.Len())

	ok, err := relay.Publish(t.Context(), e, OrderPlaced{ID: 1})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called.Load())
}

func TestEvents_AsyncSubscriberIsAwaited(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	var handled atomic.Bool
	_, err := relay.SubscribeAsync(e, func(ctx context.Context, _ OrderPlaced) relay.Pending {
		return relay.Go(ctx, func(context.Context) error {
			handled.Store(true)
			return nil
		})
	})
	require.NoError(t, err)

	_, err = relay.Publish(t.Context(), e, OrderPlaced{ID: 1})
	require.NoError(t, err)
	assert.True(t, handled.Load())
}

func TestEvents_CloseDisposesEverything(t *testing.T) {
	e := relay.NewEvents()

	called := false
	_, err := relay.SubscribeFunc(e, func(context.Context, TestMessage) error { called = true; return nil })
	require.NoError(t, err)

	require.NoError(t, e.Close())
	require.NoError(t, e.Close())
	assert.Equal(t, 0, e.Len())

	ok, err := relay.Publish(t.Context(), e, TestMessage{Content: "late"})
	require.NoError(t, err)
	assert.False(t, ok)
	assert.False(t, called)
}

func TestEvents_SubscribeNilCallback(t *testing.T) {
	e := relay.NewEvents()
	t.Cleanup(func() { _ = e.Close() })

	_, err := relay.SubscribeFunc[TestMessage](e, nil)
	require.ErrorIs(t, err, berr.ErrInvalidArgument)
}
