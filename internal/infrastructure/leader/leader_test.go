package leader

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"bidding-engine/internal/domain"

	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
)

var (
	_ domain.LeaderElection = (*RedisLeaderElection)(nil)
	_ domain.LeaderElection = Standalone{}
)

func TestStandaloneAlwaysLeads(t *testing.T) {
	ctx := context.Background()
	var election Standalone

	became, err := election.BecomeLeader(ctx, "node-1")
	require.NoError(t, err)
	require.True(t, became)

	leads, err := election.IsLeader(ctx, "anyone")
	require.NoError(t, err)
	require.True(t, leads)
}

func TestHeartbeatSurvivesTransientErrors(t *testing.T) {
	r := NewRedisLeaderElection(nil, 30*time.Millisecond)

	var mu sync.Mutex
	calls := 0
	r.extend = func(ctx context.Context, instanceID string) (bool, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		switch calls {
		case 1, 2:
			return false, errors.New("i/o timeout")
		case 3:
			return true, nil
		default:
			return false, nil
		}
	}

	done := make(chan struct{})
	go func() {
		r.maintainLeadership(context.Background(), "node-1")
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat did not stop after losing the key")
	}

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 4, calls, "errors are retried, a lost key stops the heartbeat")
}

func TestHeartbeatStopsOnCancel(t *testing.T) {
	r := NewRedisLeaderElection(nil, 30*time.Millisecond)
	r.extend = func(ctx context.Context, instanceID string) (bool, error) {
		return true, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		r.maintainLeadership(ctx, "node-1")
		close(done)
	}()

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("heartbeat kept running after cancel")
	}
}

func TestRedisLeaderElection(t *testing.T) {
	addr := os.Getenv("REDIS_ADDR")
	if addr == "" {
		t.Skip("REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	ctx := context.Background()
	if err := client.Ping(ctx).Err(); err != nil {
		t.Skipf("redis unavailable: %v", err)
	}
	client.Del(ctx, leaderKey)

	first := NewRedisLeaderElection(client, 3*time.Second)
	second := NewRedisLeaderElection(client, 3*time.Second)

	became, err := first.BecomeLeader(ctx, "node-1")
	require.NoError(t, err)
	require.True(t, became)

	became, err = second.BecomeLeader(ctx, "node-2")
	require.NoError(t, err)
	require.False(t, became)

	leads, err := second.IsLeader(ctx, "node-2")
	require.NoError(t, err)
	require.False(t, leads)

	// Releasing someone else's leadership is a no-op
	require.NoError(t, second.ReleaseLeadership(ctx, "node-2"))
	leads, err = first.IsLeader(ctx, "node-1")
	require.NoError(t, err)
	require.True(t, leads)

	require.NoError(t, first.ReleaseLeadership(ctx, "node-1"))
	became, err = second.BecomeLeader(ctx, "node-2")
	require.NoError(t, err)
	require.True(t, became)
	require.NoError(t, second.ReleaseLeadership(ctx, "node-2"))
}
