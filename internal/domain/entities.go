package domain

import (
	"time"
)

type Auction struct {
	ID               string
	ProductName      string
	Details          string
	StartingBidPrice float64
	DurationMinutes  int
	EndTime          time.Time
	ProductImageRef  string
	RegisteredBy     string
	Bids             []Bid
	CreatedAt        time.Time
	UpdatedAt        time.Time
	// Version increments on every committed mutation and guards AppendBid.
	Version int64
}

type Bid struct {
	Bidder   string
	Amount   float64
	PlacedAt time.Time
}

// HighestBid is the amount a new bid has to beat. Bids are kept strictly
// increasing, so the last one is the leader.
func (a *Auction) HighestBid() float64 {
	if len(a.Bids) == 0 {
		return a.StartingBidPrice
	}
	return a.Bids[len(a.Bids)-1].Amount
}

// LeadingBid returns the current leader, if any.
func (a *Auction) LeadingBid() (Bid, bool) {
	if len(a.Bids) == 0 {
		return Bid{}, false
	}
	return a.Bids[len(a.Bids)-1], true
}

// Phase is derived from the end time on every call and never persisted.
func (a *Auction) Phase(now time.Time) Phase {
	if now.Before(a.EndTime) {
		return PhaseOpen
	}
	return PhaseClosed
}

// TimeRemaining is the time left until EndTime, never negative.
func (a *Auction) TimeRemaining(now time.Time) time.Duration {
	if remaining := a.EndTime.Sub(now); remaining > 0 {
		return remaining
	}
	return 0
}

// Clone returns a deep copy so callers never share the bid slice with a store.
func (a *Auction) Clone() *Auction {
	if a == nil {
		return nil
	}
	c := *a
	if a.Bids != nil {
		c.Bids = make([]Bid, len(a.Bids))
		copy(c.Bids, a.Bids)
	}
	return &c
}

type Phase int

const (
	PhaseOpen Phase = iota
	PhaseClosed
)

func (p Phase) String() string {
	switch p {
	case PhaseOpen:
		return "open"
	case PhaseClosed:
		return "closed"
	default:
		return "unknown"
	}
}

type Role string

const (
	RoleSeller Role = "seller"
	RoleBuyer  Role = "buyer"
)

// ParseRole accepts the role names used by the identity provider.
func ParseRole(s string) (Role, bool) {
	switch Role(s) {
	case RoleSeller, RoleBuyer:
		return Role(s), true
	}
	return "", false
}

// Identity is a caller already verified by the authentication collaborator.
type Identity struct {
	ID   string
	Role Role
}

func (i Identity) IsZero() bool {
	return i.ID == ""
}

type Operation string

const (
	OpCreateAuction Operation = "create_auction"
	OpPlaceBid      Operation = "place_bid"
	OpGetAuction    Operation = "get_auction"
	OpListAuctions  Operation = "list_auctions"
)

type CreateAuctionInput struct {
	ProductName      string
	Details          string
	StartingBidPrice float64
	DurationMinutes  int
	ProductImageRef  string
}

type AuctionFilter struct {
	RegisteredBy string
}

// PlacedBid is what PlaceBid hands back: the stored bid plus the auction's
// leading-bid view right after the commit.
type PlacedBid struct {
	AuctionID  string
	Bid        Bid
	HighestBid float64
	BidCount   int
}

type BidEvent struct {
	Type      BidEventType `json:"type"`
	AuctionID string       `json:"auction_id"`
	UserID    string       `json:"user_id,omitempty"`
	Amount    float64      `json:"amount,omitempty"`
	Reason    string       `json:"reason,omitempty"`
	BidCount  int          `json:"bid_count,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

type BidEventType string

const (
	BidAccepted  BidEventType = "bid_accepted"
	BidRejected  BidEventType = "bid_rejected"
	AuctionEnded BidEventType = "auction_ended"
)

// LeadingBidSnapshot is the cached view of an auction's leader.
type LeadingBidSnapshot struct {
	AuctionID   string
	CurrentBid  float64
	WinnerID    string
	BidCount    int
	LastUpdated time.Time
}

type ScheduledJob struct {
	ID        string
	AuctionID string
	JobType   JobType
	RunAt     time.Time
	Status    JobStatus
	CreatedAt time.Time
}

type JobType string

const (
	JobCloseAuction JobType = "close_auction"
)

type JobStatus string

const (
	JobPending   JobStatus = "pending"
	JobExecuted  JobStatus = "executed"
	JobCancelled JobStatus = "cancelled"
)
