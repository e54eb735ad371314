package services

import (
	"context"
	"testing"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/internal/infrastructure/memory"
	"bidding-engine/pkg/clock"
	"bidding-engine/pkg/logger"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type MockEventPublisher struct {
	mock.Mock
}

func (m *MockEventPublisher) PublishBiddingEvent(ctx context.Context, event *domain.BidEvent) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}

type MockLeaderElection struct {
	mock.Mock
}

func (m *MockLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	args := m.Called(ctx, instanceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	args := m.Called(ctx, instanceID)
	return args.Bool(0), args.Error(1)
}

func (m *MockLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	args := m.Called(ctx, instanceID)
	return args.Error(0)
}

func TestEndTimeFor(t *testing.T) {
	created := time.Date(2026, 1, 1, 10, 0, 0, 0, time.UTC)
	assert.Equal(t, created.Add(90*time.Minute), EndTimeFor(created, 90))
}

func TestRequireOpen(t *testing.T) {
	end := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)
	a := &domain.Auction{ID: "a1", EndTime: end}

	assert.NoError(t, RequireOpen(a, end.Add(-time.Second)))
	assert.ErrorIs(t, RequireOpen(a, end), domain.ErrAuctionClosed)
}

func seedAuction(t *testing.T, store *memory.AuctionStore, id string, end time.Time, bids ...domain.Bid) {
	t.Helper()
	a := &domain.Auction{ID: id, StartingBidPrice: 10, EndTime: end, CreatedAt: end.Add(-time.Hour)}
	require.NoError(t, store.CreateAuction(context.Background(), a))
	for i, b := range bids {
		_, err := store.AppendBid(context.Background(), id, int64(i), b)
		require.NoError(t, err)
	}
}

func TestLifecycleManager_CloseAuction(t *testing.T) {
	ctx := context.Background()
	end := time.Date(2026, 1, 1, 10, 30, 0, 0, time.UTC)

	t.Run("PublishesFinalLeader", func(t *testing.T) {
		store := memory.NewAuctionStore()
		seedAuction(t, store, "a1", end, domain.Bid{Bidder: "b1", Amount: 20}, domain.Bid{Bidder: "b2", Amount: 30})

		pub := new(MockEventPublisher)
		pub.On("PublishBiddingEvent", mock.Anything, mock.MatchedBy(func(e *domain.BidEvent) bool {
			return e.Type == domain.AuctionEnded && e.UserID == "b2" && e.Amount == 30 && e.BidCount == 2
		})).Return(nil).Once()

		m := NewLifecycleManager(store, pub, nil, nil, "node-1", clock.NewManual(end), logger.NewNop())
		require.NoError(t, m.CloseAuction(ctx, "a1"))
		pub.AssertExpectations(t)
	})

	t.Run("NotDueYet", func(t *testing.T) {
		store := memory.NewAuctionStore()
		seedAuction(t, store, "a1", end)
		pub := new(MockEventPublisher)

		m := NewLifecycleManager(store, pub, nil, nil, "node-1", clock.NewManual(end.Add(-time.Second)), logger.NewNop())
		require.ErrorIs(t, m.CloseAuction(ctx, "a1"), errCloseNotDue)
		pub.AssertNotCalled(t, "PublishBiddingEvent", mock.Anything, mock.Anything)
	})

	t.Run("MissingAuction", func(t *testing.T) {
		m := NewLifecycleManager(memory.NewAuctionStore(), nil, nil, nil, "node-1", clock.NewManual(end), logger.NewNop())
		require.ErrorIs(t, m.CloseAuction(ctx, "nope"), domain.ErrNotFound)
	})
}

