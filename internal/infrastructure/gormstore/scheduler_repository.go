package gormstore

import (
	"context"
	"fmt"
	"time"

	"bidding-engine/internal/domain"

	"gorm.io/gorm"
)

type jobModel struct {
	ID        string    `gorm:"primaryKey;type:varchar(64)"`
	AuctionID string    `gorm:"type:varchar(64);index;not null"`
	JobType   string    `gorm:"type:varchar(32);not null"`
	RunAt     time.Time `gorm:"index:idx_scheduled_jobs_pending,priority:2;not null"`
	Status    string    `gorm:"type:varchar(16);index:idx_scheduled_jobs_pending,priority:1;not null"`
	CreatedAt time.Time `gorm:"autoCreateTime:false"`
}

func (jobModel) TableName() string { return "scheduled_jobs" }

// SchedulerRepository keeps close jobs next to the auctions.
type SchedulerRepository struct {
	db *gorm.DB
}

func NewSchedulerRepository(db *gorm.DB) *SchedulerRepository {
	return &SchedulerRepository{db: db}
}

func (r *SchedulerRepository) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	m := jobModel{
		ID:        job.ID,
		AuctionID: job.AuctionID,
		JobType:   string(job.JobType),
		RunAt:     job.RunAt,
		Status:    string(job.Status),
		CreatedAt: job.CreatedAt,
	}
	if err := r.db.WithContext(ctx).Create(&m).Error; err != nil {
		return fmt.Errorf("failed to create job: %w", err)
	}
	return nil
}

func (r *SchedulerRepository) GetPendingJobs(ctx context.Context, before time.Time) ([]*domain.ScheduledJob, error) {
	var models []jobModel
	err := r.db.WithContext(ctx).
		Where("status = ? AND run_at <= ?", string(domain.JobPending), before).
		Order("run_at ASC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to get pending jobs: %w", err)
	}

	jobs := make([]*domain.ScheduledJob, 0, len(models))
	for _, m := range models {
		jobs = append(jobs, &domain.ScheduledJob{
			ID:        m.ID,
			AuctionID: m.AuctionID,
			JobType:   domain.JobType(m.JobType),
			RunAt:     m.RunAt.UTC(),
			Status:    domain.JobStatus(m.Status),
			CreatedAt: m.CreatedAt.UTC(),
		})
	}
	return jobs, nil
}

func (r *SchedulerRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	res := r.db.WithContext(ctx).Model(&jobModel{}).Where("id = ?", jobID).Update("status", string(status))
	if res.Error != nil {
		return fmt.Errorf("failed to update job %s: %w", jobID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("job %s not found", jobID)
	}
	return nil
}

func (r *SchedulerRepository) CancelJobsForAuction(ctx context.Context, auctionID string) error {
	return r.db.WithContext(ctx).Model(&jobModel{}).
		Where("auction_id = ? AND status = ?", auctionID, string(domain.JobPending)).
		Update("status", string(domain.JobCancelled)).Error
}
