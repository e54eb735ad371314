package rabbitmq

import (
	"context"
	"os"
	"testing"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRoutingKey(t *testing.T) {
	assert.Equal(t, "bid.accepted", RoutingKey(domain.BidAccepted))
	assert.Equal(t, "bid.rejected", RoutingKey(domain.BidRejected))
	assert.Equal(t, "auction.ended", RoutingKey(domain.AuctionEnded))
	assert.Equal(t, "event.bid_withdrawn", RoutingKey("bid_withdrawn"))
}

func TestDecodeDelivery(t *testing.T) {
	event, err := decodeDelivery([]byte(`{"type":"auction_ended","auction_id":"a1","user_id":"b1","amount":250,"bid_count":4,"timestamp":"2026-01-01T00:00:00Z"}`))
	require.NoError(t, err)
	assert.Equal(t, domain.AuctionEnded, event.Type)
	assert.Equal(t, 4, event.BidCount)

	_, err = decodeDelivery([]byte(`{"auction_id":"a1"}`))
	assert.Error(t, err)
	_, err = decodeDelivery([]byte(`not json`))
	assert.Error(t, err)
}

func TestClientRoundTrip(t *testing.T) {
	url := os.Getenv("RABBITMQ_URL")
	if url == "" {
		t.Skip("RABBITMQ_URL not set")
	}

	client, err := NewClient(Config{URL: url, Exchange: "auction_test"}, logger.NewNop())
	require.NoError(t, err)
	defer client.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	received := make(chan *domain.BidEvent, 1)
	go client.SubscribeToBidEvents(ctx, func(e *domain.BidEvent) error {
		received <- e
		return nil
	})

	event := &domain.BidEvent{Type: domain.BidAccepted, AuctionID: "a1", UserID: "b1", Amount: 10, Timestamp: time.Now().UTC()}
	require.Eventually(t, func() bool {
		if err := client.PublishBiddingEvent(ctx, event); err != nil {
			return false
		}
		select {
		case got := <-received:
			return got.AuctionID == "a1"
		case <-time.After(100 * time.Millisecond):
			return false
		}
	}, 4*time.Second, 200*time.Millisecond)
}
