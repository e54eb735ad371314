package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/clock"
	"bidding-engine/pkg/logger"
)

// errCloseNotDue keeps a close job pending when it fires before the end time,
// e.g. because of clock skew between instances.
var errCloseNotDue = errors.New("auction has not reached its end time")

// EndTimeFor fixes the end of an auction at creation. It is never recomputed.
func EndTimeFor(createdAt time.Time, durationMinutes int) time.Time {
	return createdAt.Add(time.Duration(durationMinutes) * time.Minute)
}

// RequireOpen gates bid placement on the derived phase. The interval is
// half-open, so a bid landing exactly at the end time is rejected.
func RequireOpen(auction *domain.Auction, now time.Time) error {
	if auction.Phase(now) != domain.PhaseOpen {
		return fmt.Errorf("%w: auction %s ended at %s", domain.ErrAuctionClosed,
			auction.ID, auction.EndTime.Format(time.RFC3339))
	}
	return nil
}

// LifecycleManager owns everything that follows from an auction's end time:
// scheduling the close notification and publishing it once the auction is
// closed. It never stores a phase.
type LifecycleManager struct {
	store          domain.AuctionStore
	eventPub       domain.EventPublisher
	scheduler      domain.CloseScheduler
	leaderElection domain.LeaderElection
	instanceID     string
	clock          clock.Clock
	log            logger.Logger
}

func NewLifecycleManager(
	store domain.AuctionStore,
	eventPub domain.EventPublisher,
	scheduler domain.CloseScheduler,
	leaderElection domain.LeaderElection,
	instanceID string,
	clk clock.Clock,
	log logger.Logger,
) *LifecycleManager {
	return &LifecycleManager{
		store:          store,
		eventPub:       eventPub,
		scheduler:      scheduler,
		leaderElection: leaderElection,
		instanceID:     instanceID,
		clock:          clk,
		log:            log,
	}
}

func (m *LifecycleManager) SetScheduler(scheduler domain.CloseScheduler) {
	m.scheduler = scheduler
}


func (m *LifecycleManager) ScheduleClose(ctx context.Context, auction *domain.Auction) error {
	if m.scheduler == nil {
		return nil
	}
	return m.scheduler.ScheduleAuctionClose(ctx, auction.ID, auction.EndTime)
}

func (m *LifecycleManager) IsLeader(ctx context.Context) (bool, error) {
	if m.leaderElection == nil {
		return true, nil
	}
	return m.leaderElection.IsLeader(ctx, m.instanceID)
}

// CloseAuction announces the end of an auction with its final leader.
func (m *LifecycleManager) CloseAuction(ctx context.Context, auctionID string) error {
	auction, err := m.store.GetAuction(ctx, auctionID)
	if err != nil {
		return err
	}

	now := m.clock.Now()
	if auction.Phase(now) != domain.PhaseClosed {
		return errCloseNotDue
	}

	event := &domain.BidEvent{
		Type:      domain.AuctionEnded,
		AuctionID: auctionID,
		BidCount:  len(auction.Bids),
		Timestamp: auction.EndTime,
	}
	if lead, ok := auction.LeadingBid(); ok {
		event.UserID = lead.Bidder
		event.Amount = lead.Amount
	}

	m.log.Info("Auction closed", "auction_id", auctionID, "winner_id", event.UserID,
		"final_bid", event.Amount, "bid_count", event.BidCount)

	if m.eventPub == nil {
		return nil
	}
	return m.eventPub.PublishBiddingEvent(ctx, event)
}
