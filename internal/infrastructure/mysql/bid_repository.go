package mysql

import (
	"context"
	"database/sql"
	"time"

	"bidding-engine/internal/domain"
)

// MySQLBidRepository is the analytics audit trail of every bidding event.
type MySQLBidRepository struct {
	db *sql.DB
}

func NewMySQLBidRepository(db *sql.DB) *MySQLBidRepository {
	return &MySQLBidRepository{db: db}
}

func (r *MySQLBidRepository) SaveBidEvent(ctx context.Context, event *domain.BidEvent) error {
	query := `
        INSERT INTO bid_events (auction_id, user_id, amount, event_type, reason, bid_count, timestamp, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)
    `
	_, err := r.db.ExecContext(ctx, query,
		event.AuctionID, event.UserID, event.Amount, string(event.Type),
		event.Reason, event.BidCount, event.Timestamp, time.Now().UTC())
	return err
}

// GetBidHistory returns the accepted bids of an auction in placement order.
func (r *MySQLBidRepository) GetBidHistory(ctx context.Context, auctionID string) ([]*domain.BidEvent, error) {
	query := `
        SELECT auction_id, user_id, amount, event_type, reason, bid_count, timestamp
        FROM bid_events
        WHERE auction_id = ? AND event_type = ?
        ORDER BY timestamp ASC, id ASC
    `

	rows, err := r.db.QueryContext(ctx, query, auctionID, string(domain.BidAccepted))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*domain.BidEvent
	for rows.Next() {
		var event domain.BidEvent
		var eventType string

		err := rows.Scan(&event.AuctionID, &event.UserID, &event.Amount,
			&eventType, &event.Reason, &event.BidCount, &event.Timestamp)
		if err != nil {
			return nil, err
		}

		event.Type = domain.BidEventType(eventType)
		events = append(events, &event)
	}

	return events, rows.Err()
}
