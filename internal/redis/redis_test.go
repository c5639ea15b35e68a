package redis

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	goredis "github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"billing-lifecycle/internal/domain/currency"
	"billing-lifecycle/internal/events"
)

func newTestClient(t *testing.T) (*miniredis.Miniredis, *goredis.Client) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := goredis.NewClient(&goredis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return mr, client
}

func TestRateCacheRoundTrip(t *testing.T) {
	mr, client := newTestClient(t)
	cache := NewRateCache(client, 10*time.Minute)
	ctx := context.Background()

	miss, err := cache.Get(ctx, "USD", "EUR")
	require.NoError(t, err)
	assert.Nil(t, miss)

	q := currency.Quote{Base: "USD", Target: "EUR", Rate: decimal.RequireFromString("0.9975"), RateID: 4}
	require.NoError(t, cache.Set(ctx, q, time.Now()))
	assert.Equal(t, 10*time.Minute, mr.TTL("rate:USD:EUR"))

	got, err := cache.Get(ctx, "USD", "EUR")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Rate.Equal(q.Rate))
	assert.Equal(t, int64(4), got.RateID)

	require.NoError(t, cache.Invalidate(ctx, currency.Pair{Base: "USD", Target: "EUR"}))
	assert.False(t, mr.Exists("rate:USD:EUR"))
}

func TestRateCacheTTLBoundedByExpiry(t *testing.T) {
	mr, client := newTestClient(t)
	cache := NewRateCache(client, time.Hour)
	ctx := context.Background()
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	exp := now.Add(90 * time.Second)
	require.NoError(t, cache.Set(ctx, currency.Quote{Base: "GBP", Target: "USD", Rate: decimal.NewFromInt(1), ExpiresAt: &exp}, now))
	assert.Equal(t, 90*time.Second, mr.TTL("rate:GBP:USD"))

	past := now.Add(-time.Second)
	require.NoError(t, cache.Set(ctx, currency.Quote{Base: "JPY", Target: "USD", Rate: decimal.NewFromInt(1), ExpiresAt: &past}, now))
	assert.False(t, mr.Exists("rate:JPY:USD"))
}

func TestRateLimiterWindow(t *testing.T) {
	mr, client := newTestClient(t)
	limiter := NewRateLimiter(client, RateLimitConfig{Limit: 2, Window: time.Minute})
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		res, err := limiter.Allow(ctx, "admin", "10.0.0.1")
		require.NoError(t, err)
		assert.True(t, res.Allowed)
		assert.Equal(t, 1-i, res.Remaining)
	}
	res, err := limiter.Allow(ctx, "admin", "10.0.0.1")
	require.NoError(t, err)
	assert.False(t, res.Allowed)

	other, err := limiter.Allow(ctx, "admin", "10.0.0.2")
	require.NoError(t, err)
	assert.True(t, other.Allowed)

	mr.FastForward(61 * time.Second)
	res, err = limiter.Allow(ctx, "admin", "10.0.0.1")
	require.NoError(t, err)
	assert.True(t, res.Allowed)
}

func TestPublisherAndSubscriber(t *testing.T) {
	_, client := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	got := make(chan string, 1)
	ready := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- NewSubscriber(client).Subscribe(ctx, []string{"channel:order:*"}, ready, func(channel string, payload []byte) {
			got <- channel + "=" + string(payload)
		})
	}()
	<-ready

	require.NoError(t, NewPublisher(client).Publish(ctx, "channel:order:7", []byte("hello")))
	select {
	case msg := <-got:
		assert.Equal(t, "channel:order:7=hello", msg)
	case <-time.After(2 * time.Second):
		t.Fatal("message not delivered")
	}

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("subscriber did not stop")
	}
}

func TestOutboxSignalCrossesProcesses(t *testing.T) {
	_, client := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	listener := NewOutboxSignal(NewPublisher(client), NewSubscriber(client), nil)
	ready := make(chan struct{})
	go listener.Listen(ctx, ready)
	<-ready

	sender := NewOutboxSignal(NewPublisher(client), NewSubscriber(client), nil)
	sender.Notify(ctx)

	select {
	case <-sender.C():
	default:
		t.Fatal("local notification missing")
	}
	select {
	case <-listener.C():
	case <-time.After(2 * time.Second):
		t.Fatal("remote notification missing")
	}
}

func TestOutboxSignalListenStopsOnCancel(t *testing.T) {
	_, client := newTestClient(t)
	ctx, cancel := context.WithCancel(context.Background())

	listener := NewOutboxSignal(NewPublisher(client), NewSubscriber(client), nil)
	ready := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		listener.Listen(ctx, ready)
	}()
	<-ready

	cancel()
	select {
	case <-stopped:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}

var _ events.Signal = (*OutboxSignal)(nil)
var _ events.Publisher = (*Publisher)(nil)
