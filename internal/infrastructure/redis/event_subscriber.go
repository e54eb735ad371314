package redis

import (
	"context"
	"encoding/json"
	"fmt"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"

	"github.com/go-redis/redis/v8"
)

type RedisEventSubscriber struct {
	client *redis.Client
	log    logger.Logger
}

func NewRedisEventSubscriber(client *redis.Client, log logger.Logger) *RedisEventSubscriber {
	return &RedisEventSubscriber{
		client: client,
		log:    log,
	}
}

func (r *RedisEventSubscriber) SubscribeToBidEvents(ctx context.Context, handler domain.EventHandler) error {
	pubsub := r.client.Subscribe(ctx, EventsChannel)
	defer pubsub.Close()

	// Wait for the subscription to be confirmed so early events are not lost
	if _, err := pubsub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to %s: %w", EventsChannel, err)
	}

	ch := pubsub.Channel()
	r.log.Info("Subscribed to auction events", "channel", EventsChannel)

	for {
		select {
		case msg, ok := <-ch:
			if !ok {
				return fmt.Errorf("subscription to %s closed", EventsChannel)
			}
			event, err := decodeEvent(msg.Payload)
			if err != nil {
				r.log.Error("Failed to parse event", "payload", msg.Payload, "error", err)
				continue
			}

			if err := handler(event); err != nil {
				r.log.Error("Failed to handle event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
			}

		case <-ctx.Done():
			r.log.Info("Event subscriber stopped")
			return ctx.Err()
		}
	}
}

func decodeEvent(payload string) (*domain.BidEvent, error) {
	var event domain.BidEvent
	if err := json.Unmarshal([]byte(payload), &event); err != nil {
		return nil, fmt.Errorf("invalid event payload: %w", err)
	}
	if event.Type == "" || event.AuctionID == "" {
		return nil, fmt.Errorf("invalid event payload: missing type or auction_id")
	}
	return &event, nil
}
