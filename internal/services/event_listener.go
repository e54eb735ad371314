package services

import (
	"context"
	"fmt"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"
)

// EventListener turns bid events into websocket traffic.
type EventListener struct {
	broadcaster       domain.AuctionBroadcaster
	notifier          domain.UserNotifier
	connectionManager domain.ConnectionManager
	log               logger.Logger
}

func NewEventListener(connectionManager domain.ConnectionManager, broadcaster domain.AuctionBroadcaster,
	notifier domain.UserNotifier, log logger.Logger) *EventListener {
	return &EventListener{
		broadcaster:       broadcaster,
		notifier:          notifier,
		connectionManager: connectionManager,
		log:               log,
	}
}

func (el *EventListener) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	el.log.Info("Starting event listener")
	return subscriber.SubscribeToBidEvents(ctx, el.HandleBidEvent)
}

func (el *EventListener) HandleBidEvent(event *domain.BidEvent) error {
	el.log.Debug("Handling bid event", "type", event.Type, "auction_id", event.AuctionID)

	switch event.Type {
	case domain.BidAccepted:
		return el.handleBidAccepted(event)
	case domain.BidRejected:
		return el.handleBidRejected(event)
	case domain.AuctionEnded:
		return el.handleAuctionEnded(event)
	}

	return fmt.Errorf("unknown event type %q for auction %s", event.Type, event.AuctionID)
}

func (el *EventListener) handleBidAccepted(event *domain.BidEvent) error {
	return el.broadcaster.BroadcastToAuction(context.Background(), event.AuctionID, map[string]interface{}{
		"type":           "bid_update",
		"auction_id":     event.AuctionID,
		"current_bid":    event.Amount,
		"current_winner": event.UserID,
		"bid_count":      event.BidCount,
		"timestamp":      event.Timestamp,
	})
}

func (el *EventListener) handleBidRejected(event *domain.BidEvent) error {
	if event.UserID == "" {
		return nil
	}
	return el.notifier.NotifyUser(context.Background(), event.UserID, map[string]interface{}{
		"type":       "bid_rejected",
		"auction_id": event.AuctionID,
		"amount":     event.Amount,
		"reason":     event.Reason,
	})
}

func (el *EventListener) handleAuctionEnded(event *domain.BidEvent) error {
	if err := el.broadcaster.BroadcastToAuction(context.Background(), event.AuctionID, map[string]interface{}{
		"type":       "auction_ended",
		"auction_id": event.AuctionID,
		"winner":     event.UserID,
		"final_bid":  event.Amount,
		"bid_count":  event.BidCount,
		"timestamp":  event.Timestamp,
	}); err != nil {
		el.log.Error("Failed to broadcast auction ended event", "error", err)
		return err
	}

	if err := el.connectionManager.CloseAndUnregisterConnections(event.AuctionID); err != nil {
		el.log.Error("Failed to finalize connections for auction", "auction_id",
			event.AuctionID, "error", err)
		return err
	}
	return nil
}
