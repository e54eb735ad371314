package memory

import (
	"context"
	"sync"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"
)

// EventBus delivers bid events to subscribers in the same process. It stands
// in for redis pub/sub when a single instance runs without redis.
type EventBus struct {
	mu       sync.RWMutex
	handlers map[int]domain.EventHandler
	nextID   int
	log      logger.Logger
}

func NewEventBus(log logger.Logger) *EventBus {
	return &EventBus{handlers: make(map[int]domain.EventHandler), log: log}
}

func (b *EventBus) PublishBiddingEvent(ctx context.Context, event *domain.BidEvent) error {
	b.mu.RLock()
	handlers := make([]domain.EventHandler, 0, len(b.handlers))
	for _, h := range b.handlers {
		handlers = append(handlers, h)
	}
	b.mu.RUnlock()

	for _, h := range handlers {
		copied := *event
		if err := h(&copied); err != nil {
			b.log.Error("Failed to handle event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
		}
	}
	return nil
}

// SubscribeToBidEvents blocks until ctx is done, like the redis subscriber.
func (b *EventBus) SubscribeToBidEvents(ctx context.Context, handler domain.EventHandler) error {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.handlers[id] = handler
	b.mu.Unlock()

	<-ctx.Done()

	b.mu.Lock()
	delete(b.handlers, id)
	b.mu.Unlock()
	return ctx.Err()
}

func (b *EventBus) subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.handlers)
}
