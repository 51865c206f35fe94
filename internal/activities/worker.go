package activities

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/kalambet/outing/internal/storage"
)

// JobType is the job queue type of a cache refresh.
const JobType = "scrape_refresh"

// JobStore abstracts the job queue operations.
type JobStore interface {
	EnqueueJob(job storage.Job) error
	PendingJobs(jobType string) (int, error)
	ClaimNextJob(types []string) (*storage.Job, error)
	CompleteJob(id string) error
	FailJob(id string, errMsg string) error
}

// Refresher runs one scrape. Implemented by Service.
type Refresher interface {
	Refresh(ctx context.Context) (RefreshResult, error)
}

type refreshPayload struct {
	Reason string `json:"reason"`
}

// Enqueue adds a refresh job that becomes claimable after delay, unless
// one is already pending. It reports whether a job was added.
func Enqueue(store JobStore, delay time.Duration, reason string) (bool, error) {
	n, err := store.PendingJobs(JobType)
	if err != nil {
		return false, fmt.Errorf("counting pending refresh jobs: %w", err)
	}
	if n > 0 {
		return false, nil
	}
	return true, EnqueueNow(store, delay, reason)
}

// EnqueueNow adds a refresh job regardless of what is pending.
func EnqueueNow(store JobStore, delay time.Duration, reason string) error {
	payload, err := json.Marshal(refreshPayload{Reason: reason})
	if err != nil {
		return err
	}
	job := storage.Job{
		ID:          uuid.NewString(),
		Type:        JobType,
		PayloadJSON: string(payload),
		RunAfter:    time.Now().UTC().Add(delay),
	}
	if err := store.EnqueueJob(job); err != nil {
		return fmt.Errorf("enqueueing refresh job: %w", err)
	}
	return nil
}

// Worker processes scrape_refresh jobs from the SQLite job queue and keeps
// the next one scheduled.
type Worker struct {
	store     JobStore
	refresher Refresher
	interval  time.Duration
	poll      time.Duration
	logger    *slog.Logger
}

// NewWorker creates a Worker. After each finished job the next refresh is
// scheduled interval later; interval <= 0 disables rescheduling.
// If pollInterval is <= 0, it defaults to 1s.
func NewWorker(store JobStore, refresher Refresher, interval, pollInterval time.Duration) *Worker {
	if pollInterval <= 0 {
		pollInterval = time.Second
	}
	return &Worker{
		store:     store,
		refresher: refresher,
		interval:  interval,
		poll:      pollInterval,
		logger:    slog.Default(),
	}
}

// Run polls for jobs until ctx is cancelled.
func (w *Worker) Run(ctx context.Context) {
	for {
		if ctx.Err() != nil {
			return
		}

		done, err := w.RunOnce(ctx)
		if err != nil {
			w.logger.Error("worker iteration failed", "error", err)
		}
		if done {
			continue
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.poll):
		}
	}
}

// RunOnce claims and processes a single scrape_refresh job.
// Returns true if a job was processed (regardless of success/failure).
func (w *Worker) RunOnce(ctx context.Context) (bool, error) {
	job, err := w.store.ClaimNextJob([]string{JobType})
	if err != nil {
		return false, fmt.Errorf("claiming job: %w", err)
	}
	if job == nil {
		return false, nil
	}

	if err := w.processJob(ctx, job); err != nil {
		w.logger.Warn("job failed", "job_id", job.ID, "error", err)
		if failErr := w.store.FailJob(job.ID, err.Error()); failErr != nil {
			w.logger.Error("failed to mark job as failed", "job_id", job.ID, "error", failErr)
		}
	} else if err := w.store.CompleteJob(job.ID); err != nil {
		return true, fmt.Errorf("completing job %s: %w", job.ID, err)
	}

	w.scheduleNext()
	return true, nil
}

func (w *Worker) processJob(ctx context.Context, job *storage.Job) error {
	var payload refreshPayload
	if err := json.Unmarshal([]byte(job.PayloadJSON), &payload); err != nil {
		return fmt.Errorf("parsing payload: %w", err)
	}

	res, err := w.refresher.Refresh(ctx)
	if err != nil {
		return fmt.Errorf("refreshing activities: %w", err)
	}
	w.logger.Info("activity cache refreshed", "job_id", job.ID, "reason", payload.Reason,
		"activities", res.TotalActivities, "duration_seconds", res.DurationSeconds)
	return nil
}

// scheduleNext queues the following periodic refresh. A retry still
// pending from FailJob counts as the next run.
func (w *Worker) scheduleNext() {
	if w.interval <= 0 {
		return
	}
	if _, err := Enqueue(w.store, w.interval, "scheduled"); err != nil {
		w.logger.Error("failed to schedule next refresh", "error", err)
	}
}
