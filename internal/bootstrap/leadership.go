package bootstrap

import (
	"context"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/logger"
)

// CampaignForLeadership keeps trying to become leader until ctx is done, then
// releases leadership. Only the leader closes auctions.
func CampaignForLeadership(ctx context.Context, election domain.LeaderElection, instanceID string,
	interval time.Duration, log logger.Logger) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		became, err := election.BecomeLeader(ctx, instanceID)
		switch {
		case err != nil && ctx.Err() == nil:
			log.Error("Failed to attempt leadership", "error", err)
		case became:
			log.Info("Became auction close leader", "instance_id", instanceID)
		}

		select {
		case <-ctx.Done():
			releaseCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), connectTimeout)
			defer cancel()
			if err := election.ReleaseLeadership(releaseCtx, instanceID); err != nil {
				log.Error("Failed to release leadership", "error", err)
			}
			return
		case <-ticker.C:
		}
	}
}
