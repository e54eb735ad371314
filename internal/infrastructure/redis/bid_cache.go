package redis

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"bidding-engine/internal/domain"

	"github.com/go-redis/redis/v8"
)

// storeLeadingBidScript only overwrites the cached leader with a snapshot
// that has seen more bids, so a late writer cannot roll the cache back.
var storeLeadingBidScript = redis.NewScript(`
	local stored = redis.call('HGET', KEYS[1], 'bid_count')
	if stored ~= false and tonumber(stored) >= tonumber(ARGV[3]) then
		return 0
	end
	redis.call('HSET', KEYS[1],
		'current_bid', ARGV[1],
		'winner_id', ARGV[2],
		'bid_count', ARGV[3],
		'last_updated', ARGV[4])
	if tonumber(ARGV[5]) > 0 then
		redis.call('EXPIRE', KEYS[1], ARGV[5])
	end
	return 1
`)

// RedisBidCache is a read-through view of each auction's leader. The store
// stays authoritative; a miss or an error here is never a bid decision.
type RedisBidCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisBidCache(client *redis.Client, ttl time.Duration) *RedisBidCache {
	return &RedisBidCache{client: client, ttl: ttl}
}

func leadingBidKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:leader", auctionID)
}

func (r *RedisBidCache) StoreLeadingBid(ctx context.Context, snapshot *domain.LeadingBidSnapshot) error {
	_, err := storeLeadingBidScript.Run(ctx, r.client, []string{leadingBidKey(snapshot.AuctionID)},
		strconv.FormatFloat(snapshot.CurrentBid, 'f', 2, 64),
		snapshot.WinnerID,
		snapshot.BidCount,
		snapshot.LastUpdated.UnixMilli(),
		int(r.ttl.Seconds()),
	).Result()
	return err
}

func (r *RedisBidCache) GetLeadingBid(ctx context.Context, auctionID string) (*domain.LeadingBidSnapshot, error) {
	result, err := r.client.HMGet(ctx, leadingBidKey(auctionID),
		"current_bid", "winner_id", "bid_count", "last_updated").Result()
	if err != nil {
		return nil, err
	}
	return parseLeadingBid(auctionID, result)
}

func parseLeadingBid(auctionID string, fields []interface{}) (*domain.LeadingBidSnapshot, error) {
	if len(fields) != 4 || fields[0] == nil {
		return nil, fmt.Errorf("%w: no cached leader for %s", domain.ErrNotFound, auctionID)
	}

	snapshot := &domain.LeadingBidSnapshot{AuctionID: auctionID}
	var err error
	if snapshot.CurrentBid, err = strconv.ParseFloat(fieldString(fields[0]), 64); err != nil {
		return nil, fmt.Errorf("parse current_bid: %w", err)
	}
	snapshot.WinnerID = fieldString(fields[1])
	if s := fieldString(fields[2]); s != "" {
		if snapshot.BidCount, err = strconv.Atoi(s); err != nil {
			return nil, fmt.Errorf("parse bid_count: %w", err)
		}
	}
	if s := fieldString(fields[3]); s != "" {
		ms, err := strconv.ParseInt(s, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("parse last_updated: %w", err)
		}
		snapshot.LastUpdated = time.UnixMilli(ms).UTC()
	}
	return snapshot, nil
}

func fieldString(v interface{}) string {
	if s, ok := v.(string); ok {
		return s
	}
	return ""
}
