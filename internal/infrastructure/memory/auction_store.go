package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"bidding-engine/internal/domain"
)

// AuctionStore keeps auctions in a map guarded by a RWMutex. Every read and
// write copies, so callers never observe a bid slice while it is appended to.
type AuctionStore struct {
	auctions map[string]*domain.Auction
	mu       sync.RWMutex
}

func NewAuctionStore() *AuctionStore {
	return &AuctionStore{
		auctions: make(map[string]*domain.Auction),
	}
}

func (s *AuctionStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.auctions[auction.ID]; exists {
		return fmt.Errorf("%w: auction %s already exists", domain.ErrInvalidInput, auction.ID)
	}
	stored := auction.Clone()
	if stored.Bids == nil {
		stored.Bids = []domain.Bid{}
	}
	s.auctions[auction.ID] = stored
	return nil
}

func (s *AuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	auction, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, auctionID)
	}
	return auction.Clone(), nil
}

func (s *AuctionStore) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	out := make([]*domain.Auction, 0, len(s.auctions))
	for _, a := range s.auctions {
		if filter.RegisteredBy != "" && a.RegisteredBy != filter.RegisteredBy {
			continue
		}
		out = append(out, a.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

func (s *AuctionStore) AppendBid(ctx context.Context, auctionID string, expectedVersion int64, bid domain.Bid) (*domain.Auction, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.auctions[auctionID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, auctionID)
	}
	if current.Version != expectedVersion {
		return nil, fmt.Errorf("%w: auction %s is at version %d, expected %d",
			domain.ErrConcurrencyConflict, auctionID, current.Version, expectedVersion)
	}

	// Copy-on-write so a reader holding an earlier clone is unaffected
	next := current.Clone()
	next.Bids = append(next.Bids, bid)
	next.UpdatedAt = bid.PlacedAt
	next.Version++
	s.auctions[auctionID] = next

	return next.Clone(), nil
}
