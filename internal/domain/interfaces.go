package domain

import (
	"context"
	"time"
)

// AuctionStore is the single source of truth for auctions and their bids.
// Reads return copies that callers may keep.
type AuctionStore interface {
	CreateAuction(ctx context.Context, auction *Auction) error
	GetAuction(ctx context.Context, auctionID string) (*Auction, error)
	ListAuctions(ctx context.Context, filter AuctionFilter) ([]*Auction, error)
	// AppendBid commits bid only if the stored version still equals
	// expectedVersion, otherwise it returns ErrConcurrencyConflict.
	AppendBid(ctx context.Context, auctionID string, expectedVersion int64, bid Bid) (*Auction, error)
}

// AuctionLocker provides the per-auction mutual exclusion scope.
type AuctionLocker interface {
	Lock(ctx context.Context, auctionID string) (unlock func(), err error)
}

type BidEventRepository interface {
	SaveBidEvent(ctx context.Context, event *BidEvent) error
	GetBidHistory(ctx context.Context, auctionID string) ([]*BidEvent, error)
}

type SchedulerRepository interface {
	CreateJob(ctx context.Context, job *ScheduledJob) error
	GetPendingJobs(ctx context.Context, before time.Time) ([]*ScheduledJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus) error
	CancelJobsForAuction(ctx context.Context, auctionID string) error
}

// Cache interfaces
type LeadingBidCache interface {
	StoreLeadingBid(ctx context.Context, snapshot *LeadingBidSnapshot) error
	GetLeadingBid(ctx context.Context, auctionID string) (*LeadingBidSnapshot, error)
}

// Event interfaces
type EventPublisher interface {
	PublishBiddingEvent(ctx context.Context, event *BidEvent) error
}

type EventSubscriber interface {
	SubscribeToBidEvents(ctx context.Context, handler EventHandler) error
}

type EventHandler func(event *BidEvent) error

// Notification interfaces
type UserNotifier interface {
	NotifyUser(ctx context.Context, userID string, message interface{}) error
}

type AuctionBroadcaster interface {
	BroadcastToAuction(ctx context.Context, auctionID string, message interface{}) error
}

// Leader election interface
type LeaderElection interface {
	BecomeLeader(ctx context.Context, instanceID string) (bool, error)
	IsLeader(ctx context.Context, instanceID string) (bool, error)
	ReleaseLeadership(ctx context.Context, instanceID string) error
}

// Scheduler interface
type CloseScheduler interface {
	ScheduleAuctionClose(ctx context.Context, auctionID string, endTime time.Time) error
	CancelSchedule(ctx context.Context, auctionID string) error
	Start(ctx context.Context) error
	Stop() error
}

// WebSocket interfaces
type WebSocketConnection interface {
	Send(message interface{}) error
	Close() error
	UserID() string
	AuctionID() string
}

type ConnectionManager interface {
	RegisterConnection(userID, auctionID string, conn WebSocketConnection) error
	UnregisterConnection(userID, auctionID string) error
	GetConnectionsForAuction(auctionID string) []WebSocketConnection
	GetConnectionsForUser(userID string) []WebSocketConnection
	BroadcastToAuction(auctionID string, message interface{}) error
	NotifyUser(userID string, message interface{}) error
	CloseAndUnregisterConnections(auctionID string) error
}
