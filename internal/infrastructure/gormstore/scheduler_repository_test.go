package gormstore

import (
	"context"
	"fmt"
	"testing"
	"time"

	"bidding-engine/internal/config"
	"bidding-engine/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestSchedulerRepo(t *testing.T) *SchedulerRepository {
	t.Helper()
	db, err := Open(config.StoreSQLite, fmt.Sprintf("file:%s?mode=memory&cache=shared", t.Name()))
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	return NewSchedulerRepository(db)
}

func closeJob(id, auctionID string, runAt time.Time) *domain.ScheduledJob {
	return &domain.ScheduledJob{
		ID:        id,
		AuctionID: auctionID,
		JobType:   domain.JobCloseAuction,
		RunAt:     runAt,
		Status:    domain.JobPending,
		CreatedAt: runAt.Add(-time.Hour),
	}
}

func TestSchedulerRepositoryPendingJobs(t *testing.T) {
	repo := newTestSchedulerRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateJob(ctx, closeJob("j2", "a2", now.Add(-time.Minute))))
	require.NoError(t, repo.CreateJob(ctx, closeJob("j1", "a1", now.Add(-time.Hour))))
	require.NoError(t, repo.CreateJob(ctx, closeJob("j3", "a3", now.Add(time.Hour))))

	jobs, err := repo.GetPendingJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "j1", jobs[0].ID)
	assert.Equal(t, "j2", jobs[1].ID)
	assert.Equal(t, domain.JobCloseAuction, jobs[0].JobType)

	require.NoError(t, repo.UpdateJobStatus(ctx, "j1", domain.JobExecuted))
	jobs, err = repo.GetPendingJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "j2", jobs[0].ID)
}

func TestSchedulerRepositoryUpdateUnknownJob(t *testing.T) {
	repo := newTestSchedulerRepo(t)
	err := repo.UpdateJobStatus(context.Background(), "missing", domain.JobExecuted)
	assert.Error(t, err)
}

func TestSchedulerRepositoryCancelJobsForAuction(t *testing.T) {
	repo := newTestSchedulerRepo(t)
	ctx := context.Background()
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)

	require.NoError(t, repo.CreateJob(ctx, closeJob("j1", "a1", now.Add(-time.Minute))))
	require.NoError(t, repo.CreateJob(ctx, closeJob("j2", "a2", now.Add(-time.Minute))))

	require.NoError(t, repo.CancelJobsForAuction(ctx, "a1"))

	jobs, err := repo.GetPendingJobs(ctx, now)
	require.NoError(t, err)
	require.Len(t, jobs, 1)
	assert.Equal(t, "a2", jobs[0].AuctionID)
}
