package services

import (
	"context"
	"errors"
	"time"

	"bidding-engine/internal/domain"
	"bidding-engine/pkg/clock"
	"bidding-engine/pkg/logger"
	"bidding-engine/pkg/utils"

	"github.com/robfig/cron/v3"
)

type CronCloseScheduler struct {
	cron      *cron.Cron
	spec      string
	repo      domain.SchedulerRepository
	lifecycle *LifecycleManager
	clock     clock.Clock
	log       logger.Logger
}

func NewCronCloseScheduler(repo domain.SchedulerRepository, lifecycle *LifecycleManager, spec string,
	clk clock.Clock, log logger.Logger) *CronCloseScheduler {
	return &CronCloseScheduler{
		cron:      cron.New(cron.WithSeconds()),
		spec:      spec,
		repo:      repo,
		lifecycle: lifecycle,
		clock:     clk,
		log:       log,
	}
}

func (s *CronCloseScheduler) Start(ctx context.Context) error {
	s.log.Info("Starting close scheduler", "spec", s.spec)

	_, err := s.cron.AddFunc(s.spec, func() {
		s.processPendingJobs(ctx)
	})
	if err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for a running pass to finish.
func (s *CronCloseScheduler) Stop() error {
	s.log.Info("Stopping close scheduler")
	<-s.cron.Stop().Done()
	return nil
}

func (s *CronCloseScheduler) ScheduleAuctionClose(ctx context.Context, auctionID string, endTime time.Time) error {
	job := &domain.ScheduledJob{
		ID:        utils.GenerateID("job"),
		AuctionID: auctionID,
		JobType:   domain.JobCloseAuction,
		RunAt:     endTime,
		Status:    domain.JobPending,
		CreatedAt: s.clock.Now(),
	}

	return s.repo.CreateJob(ctx, job)
}

func (s *CronCloseScheduler) CancelSchedule(ctx context.Context, auctionID string) error {
	return s.repo.CancelJobsForAuction(ctx, auctionID)
}

func (s *CronCloseScheduler) processPendingJobs(ctx context.Context) {
	isLeader, err := s.lifecycle.IsLeader(ctx)
	if err != nil {
		s.log.Error("Failed to check leadership", "error", err)
		return
	}
	if !isLeader {
		return
	}

	jobs, err := s.repo.GetPendingJobs(ctx, s.clock.Now())
	if err != nil {
		s.log.Error("Failed to get pending jobs", "error", err)
		return
	}

	for _, job := range jobs {
		s.log.Info("Processing job", "job_id", job.ID, "type", job.JobType, "auction_id", job.AuctionID)

		status := domain.JobExecuted
		switch job.JobType {
		case domain.JobCloseAuction:
			err = s.lifecycle.CloseAuction(ctx, job.AuctionID)
		default:
			s.log.Warn("Unknown job type, cancelling", "job_id", job.ID, "type", job.JobType)
			status, err = domain.JobCancelled, nil
		}

		if errors.Is(err, domain.ErrNotFound) {
			s.log.Warn("Auction for job no longer exists", "job_id", job.ID, "auction_id", job.AuctionID)
			status, err = domain.JobCancelled, nil
		}
		if err != nil {
			// Left pending, picked up again on the next tick
			s.log.Error("Failed to execute job", "job_id", job.ID, "error", err)
			continue
		}

		if err := s.repo.UpdateJobStatus(ctx, job.ID, status); err != nil {
			s.log.Error("Failed to update job status", "job_id", job.ID, "error", err)
		}
	}
}
