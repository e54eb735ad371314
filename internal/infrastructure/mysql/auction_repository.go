package mysql

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"bidding-engine/internal/domain"

	mysqldriver "github.com/go-sql-driver/mysql"
)

const errDuplicateEntry = 1062

// MySQLAuctionRepository stores auctions in `auctions` and their bids in
// `bids`, ordered by seq. The version column guards AppendBid.
type MySQLAuctionRepository struct {
	db *sql.DB
}

func NewMySQLAuctionRepository(db *sql.DB) *MySQLAuctionRepository {
	return &MySQLAuctionRepository{db: db}
}

const auctionColumns = `id, product_name, details, starting_bid_price, duration_minutes, end_time,
        product_image_ref, registered_by, version, created_at, updated_at`

func (r *MySQLAuctionRepository) CreateAuction(ctx context.Context, auction *domain.Auction) error {
	query := `
        INSERT INTO auctions (` + auctionColumns + `)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		auction.ID, auction.ProductName, auction.Details, auction.StartingBidPrice,
		auction.DurationMinutes, auction.EndTime, auction.ProductImageRef, auction.RegisteredBy,
		auction.Version, auction.CreatedAt, auction.UpdatedAt)

	var mysqlErr *mysqldriver.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == errDuplicateEntry {
		return fmt.Errorf("%w: auction %s already exists", domain.ErrInvalidInput, auction.ID)
	}
	return err
}

func (r *MySQLAuctionRepository) GetAuction(ctx context.Context, auctionID string) (*domain.Auction, error) {
	return getAuction(ctx, r.db, auctionID)
}

func (r *MySQLAuctionRepository) ListAuctions(ctx context.Context, filter domain.AuctionFilter) ([]*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions`
	var args []interface{}
	if filter.RegisteredBy != "" {
		query += ` WHERE registered_by = ?`
		args = append(args, filter.RegisteredBy)
	}
	query += ` ORDER BY created_at DESC, id ASC`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	auctions := []*domain.Auction{}
	for rows.Next() {
		auction, err := scanAuction(rows)
		if err != nil {
			return nil, err
		}
		auctions = append(auctions, auction)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for _, auction := range auctions {
		if auction.Bids, err = loadBids(ctx, r.db, auction.ID); err != nil {
			return nil, err
		}
	}
	return auctions, nil
}

func (r *MySQLAuctionRepository) AppendBid(ctx context.Context, auctionID string, expectedVersion int64, bid domain.Bid) (*domain.Auction, error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	res, err := tx.ExecContext(ctx,
		`UPDATE auctions SET version = version + 1, updated_at = ? WHERE id = ? AND version = ?`,
		bid.PlacedAt, auctionID, expectedVersion)
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, `SELECT 1 FROM auctions WHERE id = ?`, auctionID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, auctionID)
		}
		if err != nil {
			return nil, err
		}
		return nil, fmt.Errorf("%w: auction %s moved past version %d",
			domain.ErrConcurrencyConflict, auctionID, expectedVersion)
	}

	// The version row is locked by the update above, so seq cannot collide
	_, err = tx.ExecContext(ctx, `
        INSERT INTO bids (auction_id, seq, bidder, amount, placed_at)
        VALUES (?, ?, ?, ?, ?)
    `, auctionID, expectedVersion, bid.Bidder, bid.Amount, bid.PlacedAt)
	if err != nil {
		return nil, err
	}

	updated, err := getAuction(ctx, tx, auctionID)
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return updated, nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func getAuction(ctx context.Context, q querier, auctionID string) (*domain.Auction, error) {
	query := `SELECT ` + auctionColumns + ` FROM auctions WHERE id = ?`

	auction, err := scanAuction(q.QueryRowContext(ctx, query, auctionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, auctionID)
	}
	if err != nil {
		return nil, err
	}

	if auction.Bids, err = loadBids(ctx, q, auctionID); err != nil {
		return nil, err
	}
	return auction, nil
}

func loadBids(ctx context.Context, q querier, auctionID string) ([]domain.Bid, error) {
	rows, err := q.QueryContext(ctx,
		`SELECT bidder, amount, placed_at FROM bids WHERE auction_id = ? ORDER BY seq ASC`, auctionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	bids := []domain.Bid{}
	for rows.Next() {
		var bid domain.Bid
		if err := rows.Scan(&bid.Bidder, &bid.Amount, &bid.PlacedAt); err != nil {
			return nil, err
		}
		bids = append(bids, bid)
	}
	return bids, rows.Err()
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanAuction(row rowScanner) (*domain.Auction, error) {
	var auction domain.Auction
	err := row.Scan(&auction.ID, &auction.ProductName, &auction.Details, &auction.StartingBidPrice,
		&auction.DurationMinutes, &auction.EndTime, &auction.ProductImageRef, &auction.RegisteredBy,
		&auction.Version, &auction.CreatedAt, &auction.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &auction, nil
}
