package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"bidding-engine/internal/domain"
)

const jobColumns = `id, auction_id, job_type, run_at, status, created_at`

// MySQLSchedulerRepository persists close jobs so they survive a restart
// of the leader.
type MySQLSchedulerRepository struct {
	db *sql.DB
}

func NewMySQLSchedulerRepository(db *sql.DB) *MySQLSchedulerRepository {
	return &MySQLSchedulerRepository{db: db}
}

func (r *MySQLSchedulerRepository) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	_, err := r.db.ExecContext(ctx,
		`INSERT INTO scheduled_jobs (`+jobColumns+`) VALUES (?, ?, ?, ?, ?, ?)`,
		job.ID, job.AuctionID, string(job.JobType), job.RunAt.UTC(), string(job.Status), job.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("create job for auction %s: %w", job.AuctionID, err)
	}
	return nil
}

// GetPendingJobs returns due jobs, oldest first.
func (r *MySQLSchedulerRepository) GetPendingJobs(ctx context.Context, before time.Time) ([]*domain.ScheduledJob, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT `+jobColumns+` FROM scheduled_jobs WHERE status = ? AND run_at <= ? ORDER BY run_at ASC`,
		string(domain.JobPending), before.UTC())
	if err != nil {
		return nil, fmt.Errorf("query pending jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*domain.ScheduledJob
	for rows.Next() {
		job, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, job)
	}
	return jobs, rows.Err()
}

func scanJob(row rowScanner) (*domain.ScheduledJob, error) {
	var job domain.ScheduledJob
	var jobType, status string
	if err := row.Scan(&job.ID, &job.AuctionID, &jobType, &job.RunAt, &status, &job.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan job: %w", err)
	}
	job.JobType = domain.JobType(jobType)
	job.Status = domain.JobStatus(status)
	job.RunAt = job.RunAt.UTC()
	job.CreatedAt = job.CreatedAt.UTC()
	return &job, nil
}

func (r *MySQLSchedulerRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	res, err := r.db.ExecContext(ctx, `UPDATE scheduled_jobs SET status = ? WHERE id = ?`, string(status), jobID)
	if err != nil {
		return fmt.Errorf("update job %s: %w", jobID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("job %s not found", jobID)
	}
	return nil
}

func (r *MySQLSchedulerRepository) CancelJobsForAuction(ctx context.Context, auctionID string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE scheduled_jobs SET status = ? WHERE auction_id = ? AND status = ?`,
		string(domain.JobCancelled), auctionID, string(domain.JobPending))
	if err != nil {
		return fmt.Errorf("cancel jobs for auction %s: %w", auctionID, err)
	}
	return nil
}
