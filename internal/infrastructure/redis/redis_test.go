package redis

import (
	"context"
	"os"
	"testing"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

func TestEventCodecRoundTrip(t *testing.T) {
	event := &domain.BidEvent{
		Type:      domain.BidRejected,
		AuctionID: "auction-1",
		UserID:    "buyer:7",
		Amount:    12.5,
		Reason:    "bid_too_low",
		Timestamp: time.Date(2026, 5, 1, 8, 0, 0, 0, time.UTC),
	}

	payload, err := encodeEvent(event)
	require.NoError(t, err)

	decoded, err := decodeEvent(string(payload))
	require.NoError(t, err)
	assert.Equal(t, event, decoded)
}

func TestDecodeEventRejectsGarbage(t *testing.T) {
	for _, payload := range []string{
		"auction-1:bid_accepted:u:10.00:1700000000",
		`{"type":"bid_accepted"}`,
		`{"auction_id":"a1"}`,
	} {
		_, err := decodeEvent(payload)
		assert.Error(t, err, payload)
	}
}

func TestParseLeadingBid(t *testing.T) {
	t.Run("Miss", func(t *testing.T) {
		_, err := parseLeadingBid("a1", []interface{}{nil, nil, nil, nil})
		require.ErrorIs(t, err, domain.ErrNotFound)
	})

	t.Run("Hit", func(t *testing.T) {
		snapshot, err := parseLeadingBid("a1", []interface{}{"150.00", "buyer-2", "3", "1767225600000"})
		require.NoError(t, err)
		assert.Equal(t, 150.0, snapshot.CurrentBid)
		assert.Equal(t, "buyer-2", snapshot.WinnerID)
		assert.Equal(t, 3, snapshot.BidCount)
		assert.Equal(t, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC), snapshot.LastUpdated)
	})

	t.Run("Corrupt", func(t *testing.T) {
		_, err := parseLeadingBid("a1", []interface{}{"lots", "", "", ""})
		require.Error(t, err)
	})
}

// newTestClient connects to REDIS_ADDR, skipping when no server is available.
func newTestClient(t *testing.T) *redis.Client {
	t.Helper()
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	t.Cleanup(func() { client.Close() })
	return client
}

func TestRedisBidCache_IgnoresStaleSnapshots(t *testing.T) {
	client := newTestClient(t)
	ctx := context.Background()
	cache := NewRedisBidCache(client, time.Minute)
	id := "test-" + t.Name()
	t.Cleanup(func() { client.Del(context.Background(), leadingBidKey(id)) })

	newer := &domain.LeadingBidSnapshot{AuctionID: id, CurrentBid: 200, WinnerID: "b2", BidCount: 2, LastUpdated: time.Now()}
	older := &domain.LeadingBidSnapshot{AuctionID: id, CurrentBid: 150, WinnerID: "b1", BidCount: 1, LastUpdated: time.Now()}
	require.NoError(t, cache.StoreLeadingBid(ctx, newer))
	require.NoError(t, cache.StoreLeadingBid(ctx, older))

	got, err := cache.GetLeadingBid(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "b2", got.WinnerID)
	assert.Equal(t, 200.0, got.CurrentBid)
}

func TestAuctionLocker_LogsFailedRelease(t *testing.T) {
	// Nothing listens on port 1, so the release script cannot run
	client := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer client.Close()

	core, logs := observer.New(zap.WarnLevel)
	locker := NewAuctionLocker(client, 5*time.Second, logger.NewFromZap(zap.New(core)))

	unlock := locker.unlockFunc(lockKey("a1"), "token-1")
	unlock()
	unlock()

	entries := logs.FilterMessage("Failed to release auction lock, it expires with its TTL").All()
	require.Len(t, entries, 1, "release runs once")
	assert.Equal(t, "auction:a1:lock", entries[0].ContextMap()["key"])
}

func TestAuctionLocker_ExcludesSecondHolder(t *testing.T) {
	client := newTestClient(t)
	locker := NewAuctionLocker(client, 5*time.Second, logger.NewNop())
	id := "test-" + t.Name()

	unlock, err := locker.Lock(context.Background(), id)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err = locker.Lock(ctx, id)
	require.ErrorIs(t, err, context.DeadlineExceeded)

	unlock()
	again, err := locker.Lock(context.Background(), id)
	require.NoError(t, err)
	again()
}

func TestRedisPubSub_DeliversEvents(t *testing.T) {
	client := newTestClient(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *domain.BidEvent, 1)
	sub := NewRedisEventSubscriber(client, logger.NewNop())
	go sub.SubscribeToBidEvents(ctx, func(e *domain.BidEvent) error {
		received <- e
		return nil
	})

	pub := NewEventPublisher(client)
	event := &domain.BidEvent{Type: domain.BidAccepted, AuctionID: "a1", UserID: "b1", Amount: 10, Timestamp: time.Now().UTC()}
	require.Eventually(t, func() bool {
		if err := pub.PublishBiddingEvent(ctx, event); err != nil {
			return false
		}
		select {
		case got := <-received:
			return got.AuctionID == "a1"
		case <-time.After(50 * time.Millisecond):
			return false
		}
	}, 3*time.Second, 100*time.Millisecond)
}
