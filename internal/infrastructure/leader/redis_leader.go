package leader

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const leaderKey = "auction_leader"

var extendLeadershipScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("PEXPIRE", KEYS[1], ARGV[2])
	else
		return 0
	end
`)

var releaseLeadershipScript = redis.NewScript(`
	if redis.call("GET", KEYS[1]) == ARGV[1] then
		return redis.call("DEL", KEYS[1])
	else
		return 0
	end
`)

// RedisLeaderElection elects the one instance that runs close jobs.
type RedisLeaderElection struct {
	client *redis.Client
	ttl    time.Duration

	mu        sync.Mutex
	heartbeat context.CancelFunc

	// extend refreshes the key's TTL and reports whether this instance still
	// owns it.
	extend func(ctx context.Context, instanceID string) (bool, error)
}

func NewRedisLeaderElection(client *redis.Client, ttl time.Duration) *RedisLeaderElection {
	r := &RedisLeaderElection{
		client: client,
		ttl:    ttl,
	}
	r.extend = r.extendLease
	return r
}

func (r *RedisLeaderElection) extendLease(ctx context.Context, instanceID string) (bool, error) {
	extended, err := extendLeadershipScript.Run(ctx, r.client, []string{leaderKey},
		instanceID, r.ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return extended == 1, nil
}

func (r *RedisLeaderElection) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	result, err := r.client.SetNX(ctx, leaderKey, instanceID, r.ttl).Result()
	if err != nil {
		return false, err
	}

	if result {
		r.startHeartbeat(instanceID)
	}

	return result, nil
}

func (r *RedisLeaderElection) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	currentLeader, err := r.client.Get(ctx, leaderKey).Result()
	if err != nil {
		if err == redis.Nil {
			return false, nil
		}
		return false, err
	}

	return currentLeader == instanceID, nil
}

func (r *RedisLeaderElection) ReleaseLeadership(ctx context.Context, instanceID string) error {
	r.stopHeartbeat()
	return releaseLeadershipScript.Run(ctx, r.client, []string{leaderKey}, instanceID).Err()
}

func (r *RedisLeaderElection) startHeartbeat(instanceID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.heartbeat != nil {
		r.heartbeat()
	}
	ctx, cancel := context.WithCancel(context.Background())
	r.heartbeat = cancel
	go r.maintainLeadership(ctx, instanceID)
}

func (r *RedisLeaderElection) stopHeartbeat() {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.heartbeat != nil {
		r.heartbeat()
		r.heartbeat = nil
	}
}

func (r *RedisLeaderElection) maintainLeadership(ctx context.Context, instanceID string) {
	ticker := time.NewTicker(r.ttl / 3) // Refresh at 1/3 of TTL
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		extendCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		owned, err := r.extend(extendCtx, instanceID)
		cancel()

		if err != nil {
			// The key may still be ours; try again on the next tick
			continue
		}
		if !owned {
			// Lost leadership, the next BecomeLeader call competes again
			return
		}
	}
}

// Standalone is the election for a single instance deployment: it always
// leads.
type Standalone struct{}

func (Standalone) BecomeLeader(ctx context.Context, instanceID string) (bool, error) {
	return true, nil
}

func (Standalone) IsLeader(ctx context.Context, instanceID string) (bool, error) {
	return true, nil
}

func (Standalone) ReleaseLeadership(ctx context.Context, instanceID string) error {
	return nil
}
