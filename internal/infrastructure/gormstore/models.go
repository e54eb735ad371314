package gormstore

import (
	"time"

	"bidding-engine/internal/domain"
)

type auctionModel struct {
	ID               string     `gorm:"primaryKey;type:varchar(64)"`
	ProductName      string     `gorm:"type:varchar(255);not null"`
	Details          string     `gorm:"type:text;not null"`
	StartingBidPrice float64    `gorm:"type:double precision;not null"`
	DurationMinutes  int        `gorm:"not null"`
	EndTime          time.Time  `gorm:"not null"`
	ProductImageRef  string     `gorm:"type:varchar(1024)"`
	RegisteredBy     string     `gorm:"type:varchar(128);index:idx_auctions_registered_by;not null"`
	Version          int64      `gorm:"not null;default:0"`
	CreatedAt        time.Time  `gorm:"autoCreateTime:false"`
	UpdatedAt        time.Time  `gorm:"autoUpdateTime:false"`
	Bids             []bidModel `gorm:"foreignKey:AuctionID;constraint:OnDelete:CASCADE"`
}

func (auctionModel) TableName() string { return "auctions" }

type bidModel struct {
	AuctionID string    `gorm:"primaryKey;type:varchar(64)"`
	Seq       int64     `gorm:"primaryKey;autoIncrement:false"`
	Bidder    string    `gorm:"type:varchar(128);not null"`
	Amount    float64   `gorm:"type:double precision;not null"`
	PlacedAt  time.Time `gorm:"not null"`
}

func (bidModel) TableName() string { return "bids" }

func toModel(a *domain.Auction) *auctionModel {
	m := &auctionModel{
		ID:               a.ID,
		ProductName:      a.ProductName,
		Details:          a.Details,
		StartingBidPrice: a.StartingBidPrice,
		DurationMinutes:  a.DurationMinutes,
		EndTime:          a.EndTime,
		ProductImageRef:  a.ProductImageRef,
		RegisteredBy:     a.RegisteredBy,
		Version:          a.Version,
		CreatedAt:        a.CreatedAt,
		UpdatedAt:        a.UpdatedAt,
	}
	for i, b := range a.Bids {
		m.Bids = append(m.Bids, bidModel{AuctionID: a.ID, Seq: int64(i), Bidder: b.Bidder, Amount: b.Amount, PlacedAt: b.PlacedAt})
	}
	return m
}

func (m *auctionModel) toDomain() *domain.Auction {
	a := &domain.Auction{
		ID:               m.ID,
		ProductName:      m.ProductName,
		Details:          m.Details,
		StartingBidPrice: m.StartingBidPrice,
		DurationMinutes:  m.DurationMinutes,
		EndTime:          m.EndTime.UTC(),
		ProductImageRef:  m.ProductImageRef,
		RegisteredBy:     m.RegisteredBy,
		Version:          m.Version,
		CreatedAt:        m.CreatedAt.UTC(),
		UpdatedAt:        m.UpdatedAt.UTC(),
		Bids:             make([]domain.Bid, 0, len(m.Bids)),
	}
	for _, b := range m.Bids {
		a.Bids = append(a.Bids, domain.Bid{Bidder: b.Bidder, Amount: b.Amount, PlacedAt: b.PlacedAt.UTC()})
	}
	return a
}
