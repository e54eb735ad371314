package redis

import (
	"context"
	"encoding/json"

	"bidding-engine/internal/domain"

	"github.com/go-redis/redis/v8"
)

// EventsChannel is the pub/sub channel every bidding event is published on.
const EventsChannel = "auction_events"

type EventPublisherImpl struct {
	client *redis.Client
}

func NewEventPublisher(client *redis.Client) *EventPublisherImpl {
	return &EventPublisherImpl{client: client}
}

func (r *EventPublisherImpl) PublishBiddingEvent(ctx context.Context, event *domain.BidEvent) error {
	payload, err := encodeEvent(event)
	if err != nil {
		return err
	}
	return r.client.Publish(ctx, EventsChannel, payload).Err()
}

func encodeEvent(event *domain.BidEvent) ([]byte, error) {
	return json.Marshal(event)
}
