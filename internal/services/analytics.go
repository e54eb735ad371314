package services

import (
	"context"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"
)

const auditWriteTimeout = 5 * time.Second

// AnalyticsService writes every bidding event it receives to the audit log.
type AnalyticsService struct {
	repo domain.BidEventRepository
	log  logger.Logger
}

func NewAnalyticsService(repo domain.BidEventRepository, log logger.Logger) *AnalyticsService {
	return &AnalyticsService{repo: repo, log: log}
}

// Start blocks until ctx is done or the subscription fails.
func (as *AnalyticsService) Start(ctx context.Context, subscriber domain.EventSubscriber) error {
	as.log.Info("Starting analytics service")
	return subscriber.SubscribeToBidEvents(ctx, func(event *domain.BidEvent) error {
		return as.Record(ctx, event)
	})
}

func (as *AnalyticsService) Record(ctx context.Context, event *domain.BidEvent) error {
	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), auditWriteTimeout)
	defer cancel()

	if err := as.repo.SaveBidEvent(writeCtx, event); err != nil {
		as.log.Error("Failed to store bid event", "type", event.Type, "auction_id", event.AuctionID, "error", err)
		return err
	}
	as.log.Debug("Stored bid event", "type", event.Type, "auction_id", event.AuctionID, "user_id", event.UserID)
	return nil
}
