package redis

import (
	"context"
	"fmt"
	"sync"
	"time"

	"bidding-engine/pkg/logger"

	"github.com/go-redis/redis/v8"
	"github.com/google/uuid"
)

const lockRetryInterval = 10 * time.Millisecond

var releaseLockScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// AuctionLocker serializes bid placement for one auction across instances.
// The TTL bounds how long a crashed holder can block an auction; the
// store's version check still rejects a write that outlives its lock.
type AuctionLocker struct {
	client *redis.Client
	ttl    time.Duration
	log    logger.Logger
}

func NewAuctionLocker(client *redis.Client, ttl time.Duration, log logger.Logger) *AuctionLocker {
	return &AuctionLocker{client: client, ttl: ttl, log: log}
}

func lockKey(auctionID string) string {
	return fmt.Sprintf("auction:%s:lock", auctionID)
}

func (l *AuctionLocker) Lock(ctx context.Context, auctionID string) (func(), error) {
	key := lockKey(auctionID)
	token := uuid.NewString()

	ticker := time.NewTicker(lockRetryInterval)
	defer ticker.Stop()

	for {
		ok, err := l.client.SetNX(ctx, key, token, l.ttl).Result()
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			return nil, fmt.Errorf("acquire lock %s: %w", key, err)
		}
		if ok {
			return l.unlockFunc(key, token), nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (l *AuctionLocker) unlockFunc(key, token string) func() {
	var once sync.Once
	return func() {
		once.Do(func() {
			// The caller's context may already be done
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			released, err := releaseLockScript.Run(ctx, l.client, []string{key}, token).Int64()
			switch {
			case err != nil:
				l.log.Warn("Failed to release auction lock, it expires with its TTL",
					"key", key, "ttl", l.ttl, "error", err)
			case released == 0:
				l.log.Warn("Auction lock expired before release", "key", key, "ttl", l.ttl)
			}
		})
	}
}
