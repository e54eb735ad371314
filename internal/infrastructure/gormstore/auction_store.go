package gormstore

import (
	"context"
	"errors"
	"fmt"

	"bidding-engine/internal/config"
	"bidding-engine/internal/domain"

	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// Open connects to postgres or sqlite and migrates the auction tables.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch driver {
	case config.StorePostgres:
		dialector = postgres.Open(dsn)
	case config.StoreSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("gormstore: unsupported driver %q", driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", driver, err)
	}

	if driver == config.StoreSQLite {
		// sqlite allows a single writer; an in-memory database also lives in one connection
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}

	if err := db.AutoMigrate(&auctionModel{}, &bidModel{}, &jobModel{}); err != nil {
		return nil, fmt.Errorf("failed to migrate: %w", err)
	}
	return db, nil
}

// AuctionStore is the GORM implementation of domain.AuctionStore.
type AuctionStore struct {
	db *gorm.DB
}

func NewAuctionStore(db *gorm.DB) *AuctionStore {
	return &AuctionStore{db: db}
}

func (s *AuctionStore) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	err := s.db.WithContext(ctx).Create(toModel(auction)).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("%w: auction %s already exists", domain.ErrInvalidInput, auction.ID)
	}
	if err != nil {
		return fmt.Errorf("failed to create auction: %w", err)
	}
	return nil
}

func (s *AuctionStore) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return load(s.db.WithContext(ctx), auctionID)
}

func (s *AuctionStore) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	q := s.db.WithContext(ctx).Preload("Bids", orderedBids).Order("created_at DESC, id ASC")
	if filter.RegisteredBy != "" {
		q = q.Where("registered_by = ?", filter.RegisteredBy)
	}

	var models []auctionModel
	if err := q.Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to list auctions: %w", err)
	}

	auctions := make([]*domain.Auction, 0, len(models))
	for i := range models {
		auctions = append(auctions, models[i].toDomain())
	}
	return auctions, nil
}

func (s *AuctionStore) AppendBid(ctx context.Context, auctionID string, expectedVersion int64, bid domain.Bid) (*domain.Auction, error) {
	var updated *domain.Auction
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		res := tx.Model(&auctionModel{}).
			Where("id = ? AND version = ?", auctionID, expectedVersion).
			Updates(map[string]interface{}{
				"version":    gorm.Expr("version + 1"),
				"updated_at": bid.PlacedAt,
			})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			var count int64
			if err := tx.Model(&auctionModel{}).Where("id = ?", auctionID).Count(&count).Error; err != nil {
				return err
			}
			if count == 0 {
				return fmt.Errorf("%w: %s", domain.ErrNotFound, auctionID)
			}
			return fmt.Errorf("%w: auction %s moved past version %d",
				domain.ErrConcurrencyConflict, auctionID, expectedVersion)
		}

		row := bidModel{AuctionID: auctionID, Seq: expectedVersion, Bidder: bid.Bidder, Amount: bid.Amount, PlacedAt: bid.PlacedAt}
		if err := tx.Create(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return fmt.Errorf("%w: bid %d of auction %s already written",
					domain.ErrConcurrencyConflict, expectedVersion, auctionID)
			}
			return err
		}

		var err error
		updated, err = load(tx, auctionID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func load(db *gorm.DB, auctionID string) (*domain.Auction, error) {
	var m auctionModel
	err := db.Preload("Bids", orderedBids).First(&m, "id = ?", auctionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, auctionID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get auction %s: %w", auctionID, err)
	}
	return m.toDomain(), nil
}

func orderedBids(db *gorm.DB) *gorm.DB {
	return db.Order("seq ASC")
}
