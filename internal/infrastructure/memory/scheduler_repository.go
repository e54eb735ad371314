package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"bidding-engine/internal/domain"
)

type SchedulerRepository struct {
	jobs map[string]domain.ScheduledJob
	mu   sync.Mutex
}

func NewSchedulerRepository() *SchedulerRepository {
	return &SchedulerRepository{jobs: make(map[string]domain.ScheduledJob)}
}

func (r *SchedulerRepository) CreateJob(ctx context.Context, job *domain.ScheduledJob) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.jobs[job.ID] = *job
	return nil
}

func (r *SchedulerRepository) GetPendingJobs(ctx context.Context, before time.Time) ([]*domain.ScheduledJob, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var jobs []*domain.ScheduledJob
	for _, job := range r.jobs {
		if job.Status == domain.JobPending && !job.RunAt.After(before) {
			j := job
			jobs = append(jobs, &j)
		}
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].RunAt.Before(jobs[j].RunAt) })
	return jobs, nil
}

func (r *SchedulerRepository) UpdateJobStatus(ctx context.Context, jobID string, status domain.JobStatus) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	job, ok := r.jobs[jobID]
	if !ok {
		return fmt.Errorf("job %s not found", jobID)
	}
	job.Status = status
	r.jobs[jobID] = job
	return nil
}

func (r *SchedulerRepository) CancelJobsForAuction(ctx context.Context, auctionID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	for id, job := range r.jobs {
		if job.AuctionID == auctionID && job.Status == domain.JobPending {
			job.Status = domain.JobCancelled
			r.jobs[id] = job
		}
	}
	return nil
}
