package services

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/clock"
	"bidding-engine/pkg/logger"
	"bidding-engine/pkg/utils"
)

const (
	defaultMaxRetries   = 5
	defaultStoreTimeout = 2 * time.Second
	publishTimeout      = 2 * time.Second
)

type EngineConfig struct {
	// MaxRetries bounds validate+write attempts after a version conflict.
	MaxRetries int
	// StoreTimeout bounds one whole operation: lock wait plus store calls.
	StoreTimeout time.Duration
}

// BiddingEngine is the only writer of auctions and bids. Mutations on one
// auction are serialized by the locker and committed with a versioned append,
// mutations on different auctions run in parallel.
type BiddingEngine struct {
	store     domain.AuctionStore
	locker    domain.AuctionLocker
	policy    *AccessPolicy
	validator *BidValidator
	lifecycle *LifecycleManager
	eventPub  domain.EventPublisher
	bidCache  domain.LeadingBidCache
	clock     clock.Clock
	cfg       EngineConfig
	log       logger.Logger
}

// NewBiddingEngine wires the engine. lifecycle, eventPub and bidCache may be
// nil; the engine then skips close scheduling, events and cache refreshes.
func NewBiddingEngine(
	store domain.AuctionStore,
	locker domain.AuctionLocker,
	lifecycle *LifecycleManager,
	eventPub domain.EventPublisher,
	bidCache domain.LeadingBidCache,
	clk clock.Clock,
	cfg EngineConfig,
	log logger.Logger,
) *BiddingEngine {
	if cfg.MaxRetries < 1 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.StoreTimeout <= 0 {
		cfg.StoreTimeout = defaultStoreTimeout
	}
	if locker == nil {
		locker = NewKeyedLocker()
	}
	if clk == nil {
		clk = clock.System()
	}

	return &BiddingEngine{
		store:     store,
		locker:    locker,
		policy:    NewAccessPolicy(),
		validator: NewBidValidator(),
		lifecycle: lifecycle,
		eventPub:  eventPub,
		bidCache:  bidCache,
		clock:     clk,
		cfg:       cfg,
		log:       log,
	}
}

func (e *BiddingEngine) CreateAuction(ctx context.Context, identity domain.Identity, input domain.CreateAuctionInput) (*domain.Auction, error) {
	if err := e.policy.Authorize(identity, domain.OpCreateAuction); err != nil {
		return nil, err
	}
	if err := validateCreateInput(input); err != nil {
		return nil, err
	}

	now := e.clock.Now()
	auction := &domain.Auction{
		ID:               utils.GenerateID("auction"),
		ProductName:      strings.TrimSpace(input.ProductName),
		Details:          strings.TrimSpace(input.Details),
		StartingBidPrice: input.StartingBidPrice,
		DurationMinutes:  input.DurationMinutes,
		EndTime:          EndTimeFor(now, input.DurationMinutes),
		ProductImageRef:  input.ProductImageRef,
		RegisteredBy:     identity.ID,
		Bids:             []domain.Bid{},
		CreatedAt:        now,
		UpdatedAt:        now,
	}

	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	if err := e.store.CreateAuction(storeCtx, auction); err != nil {
		e.log.Error("Failed to create auction", "auction_id", auction.ID, "error", err)
		return nil, classifyStoreError(storeCtx, "create auction", err)
	}

	afterCtx, cancelAfter := e.afterCommitContext(ctx)
	defer cancelAfter()

	if e.lifecycle != nil {
		if err := e.lifecycle.ScheduleClose(afterCtx, auction); err != nil {
			e.log.Warn("Failed to schedule auction close", "auction_id", auction.ID, "error", err)
		}
	}
	e.refreshCache(afterCtx, auction)

	e.log.Info("Auction created", "auction_id", auction.ID, "registered_by", identity.ID,
		"end_time", auction.EndTime)
	return auction.Clone(), nil
}

// Authorize runs the access policy alone, so callers can refuse a request
// before parsing its payload.
func (e *BiddingEngine) Authorize(identity domain.Identity, op domain.Operation) error {
	return e.policy.Authorize(identity, op)
}

// PlaceBid places a bid at the engine clock's current time.
func (e *BiddingEngine) PlaceBid(ctx context.Context, identity domain.Identity, auctionID string, amount float64) (*domain.PlacedBid, error) {
	return e.PlaceBidAt(ctx, identity, auctionID, amount, e.clock.Now())
}

// PlaceBidAt reads the auction, validates the bid against it and appends it
// as one step per auction. A rejection leaves the auction untouched.
func (e *BiddingEngine) PlaceBidAt(ctx context.Context, identity domain.Identity, auctionID string, amount float64, now time.Time) (*domain.PlacedBid, error) {
	if err := e.policy.Authorize(identity, domain.OpPlaceBid); err != nil {
		return nil, err
	}

	opCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	unlock, err := e.locker.Lock(opCtx, auctionID)
	if err != nil {
		return nil, classifyStoreError(opCtx, "lock auction", err)
	}
	defer unlock()

	bid := domain.Bid{Bidder: identity.ID, Amount: amount, PlacedAt: now}

	for attempt := 1; attempt <= e.cfg.MaxRetries; attempt++ {
		auction, err := e.store.GetAuction(opCtx, auctionID)
		if err != nil {
			return nil, classifyStoreError(opCtx, "load auction", err)
		}

		if err := e.validator.Validate(auction, bid, now); err != nil {
			e.log.Info("Bid rejected", "auction_id", auctionID, "user_id", identity.ID,
				"amount", amount, "reason", domain.RejectionReason(err))
			e.publishRejection(ctx, auctionID, bid, err)
			return nil, err
		}

		updated, err := e.store.AppendBid(opCtx, auctionID, auction.Version, bid)
		if errors.Is(err, domain.ErrConcurrencyConflict) {
			e.log.Debug("Bid write conflicted, retrying", "auction_id", auctionID, "attempt", attempt)
			continue
		}
		if err != nil {
			e.log.Error("Failed to append bid", "auction_id", auctionID, "error", err)
			return nil, classifyStoreError(opCtx, "append bid", err)
		}

		stored, _ := updated.LeadingBid()
		result := &domain.PlacedBid{
			AuctionID:  auctionID,
			Bid:        stored,
			HighestBid: updated.HighestBid(),
			BidCount:   len(updated.Bids),
		}

		e.log.Info("Bid accepted", "auction_id", auctionID, "user_id", identity.ID,
			"amount", stored.Amount, "bid_count", result.BidCount)
		e.afterBidCommit(ctx, updated, result)
		return result, nil
	}

	e.log.Warn("Giving up on bid after repeated conflicts", "auction_id", auctionID,
		"attempts", e.cfg.MaxRetries)
	return nil, fmt.Errorf("%w: gave up after %d attempts", domain.ErrConcurrencyConflict, e.cfg.MaxRetries)
}

func (e *BiddingEngine) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	auction, err := e.store.GetAuction(storeCtx, auctionID)
	if err != nil {
		return nil, classifyStoreError(storeCtx, "get auction", err)
	}
	return auction, nil
}

func (e *BiddingEngine) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	storeCtx, cancel := context.WithTimeout(ctx, e.cfg.StoreTimeout)
	defer cancel()

	auctions, err := e.store.ListAuctions(storeCtx, filter)
	if err != nil {
		return nil, classifyStoreError(storeCtx, "list auctions", err)
	}
	return auctions, nil
}

// Phase exposes the derived phase for read views.
func (e *BiddingEngine) Phase(auction *domain.Auction) domain.Phase {
	return auction.Phase(e.clock.Now())
}

func (e *BiddingEngine) TimeRemaining(auction *domain.Auction) time.Duration {
	return auction.TimeRemaining(e.clock.Now())
}

// LeadingBid prefers the cache and falls back to the store.
func (e *BiddingEngine) LeadingBid(ctx context.Context, auctionID string) (*domain.LeadingBidSnapshot, error) {
	if e.bidCache != nil {
		snapshot, err := e.bidCache.GetLeadingBid(ctx, auctionID)
		if err == nil && snapshot != nil {
			return snapshot, nil
		}
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			e.log.Warn("Leading bid cache read failed", "auction_id", auctionID, "error", err)
		}
	}

	auction, err := e.GetAuction(ctx, auctionID)
	if err != nil {
		return nil, err
	}
	return snapshotOf(auction), nil
}

func (e *BiddingEngine) afterBidCommit(ctx context.Context, auction *domain.Auction, placed *domain.PlacedBid) {
	afterCtx, cancel := e.afterCommitContext(ctx)
	defer cancel()

	e.refreshCache(afterCtx, auction)

	if e.eventPub == nil {
		return
	}
	err := e.eventPub.PublishBiddingEvent(afterCtx, &domain.BidEvent{
		Type:      domain.BidAccepted,
		AuctionID: placed.AuctionID,
		UserID:    placed.Bid.Bidder,
		Amount:    placed.Bid.Amount,
		BidCount:  placed.BidCount,
		Timestamp: placed.Bid.PlacedAt,
	})
	if err != nil {
		e.log.Warn("Failed to publish bid event", "auction_id", placed.AuctionID, "error", err)
	}
}

func (e *BiddingEngine) publishRejection(ctx context.Context, auctionID string, bid domain.Bid, cause error) {
	if e.eventPub == nil {
		return
	}
	pubCtx, cancel := e.afterCommitContext(ctx)
	defer cancel()

	err := e.eventPub.PublishBiddingEvent(pubCtx, &domain.BidEvent{
		Type:      domain.BidRejected,
		AuctionID: auctionID,
		UserID:    bid.Bidder,
		Amount:    bid.Amount,
		Reason:    domain.RejectionReason(cause),
		Timestamp: bid.PlacedAt,
	})
	if err != nil {
		e.log.Warn("Failed to publish rejection event", "auction_id", auctionID, "error", err)
	}
}

func (e *BiddingEngine) refreshCache(ctx context.Context, auction *domain.Auction) {
	if e.bidCache == nil {
		return
	}
	if err := e.bidCache.StoreLeadingBid(ctx, snapshotOf(auction)); err != nil {
		e.log.Warn("Failed to refresh leading bid cache", "auction_id", auction.ID, "error", err)
	}
}

// afterCommitContext detaches side effects from the caller so a cancellation
// after the commit point cannot drop events for a committed bid.
func (e *BiddingEngine) afterCommitContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
}

func snapshotOf(auction *domain.Auction) *domain.LeadingBidSnapshot {
	snapshot := &domain.LeadingBidSnapshot{
		AuctionID:   auction.ID,
		CurrentBid:  auction.HighestBid(),
		BidCount:    len(auction.Bids),
		LastUpdated: auction.UpdatedAt,
	}
	if lead, ok := auction.LeadingBid(); ok {
		snapshot.WinnerID = lead.Bidder
	}
	return snapshot
}

func validateCreateInput(input domain.CreateAuctionInput) error {
	switch {
	case strings.TrimSpace(input.ProductName) == "":
		return fmt.Errorf("%w: productName is required", domain.ErrInvalidInput)
	case strings.TrimSpace(input.Details) == "":
		return fmt.Errorf("%w: details is required", domain.ErrInvalidInput)
	case math.IsNaN(input.StartingBidPrice) || math.IsInf(input.StartingBidPrice, 0):
		return fmt.Errorf("%w: startingBidPrice must be a finite number", domain.ErrInvalidInput)
	case input.StartingBidPrice < 0:
		return fmt.Errorf("%w: startingBidPrice must not be negative", domain.ErrInvalidInput)
	case input.DurationMinutes < 1:
		return fmt.Errorf("%w: durationMinutes must be at least 1", domain.ErrInvalidInput)
	}
	return nil
}

// classifyStoreError maps driver and context failures onto the error
// taxonomy. Errors already in the taxonomy pass through untouched.
func classifyStoreError(ctx context.Context, op string, err error) error {
	switch {
	case domain.IsBusinessError(err),
		errors.Is(err, domain.ErrConcurrencyConflict),
		errors.Is(err, domain.ErrTimeout),
		errors.Is(err, domain.ErrInternal):
		return err
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		return fmt.Errorf("%w: %s: %w", domain.ErrTimeout, op, err)
	case errors.Is(err, context.Canceled):
		return fmt.Errorf("%s: %w", op, err)
	default:
		return fmt.Errorf("%w: %s: %w", domain.ErrInternal, op, err)
	}
}
