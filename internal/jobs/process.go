package jobs

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/dvloznov/receipt-tracker/internal/logger"
)

// Prepare fills the defaults of a job about to be published.
func Prepare(job *ScanReceiptsJob, now time.Time) {
	if job.JobID == "" {
		job.JobID = uuid.NewString()
	}
	if job.Status == "" {
		job.Status = JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = now
	}
}

// Process runs handler for job and records each state change in store (which
// may be nil). It returns the pending copy to publish again when the job
// failed with retries left, or nil.
func Process(ctx context.Context, store JobStore, job *ScanReceiptsJob, handler JobHandler) *ScanReceiptsJob {
	log := logger.FromContext(ctx).With().Str("job_id", job.JobID).Logger()

	job.Status = JobStatusRunning
	now := time.Now()
	job.StartedAt = &now

	if store != nil {
		if err := store.SaveJob(ctx, job); err != nil {
			log.Warn().Err(err).Msg("Failed to record job start")
		}
	}

	err := handler(logger.WithContext(ctx, log), job)

	completedAt := time.Now()
	job.CompletedAt = &completedAt

	var retry *ScanReceiptsJob
	if err != nil {
		job.Error = err.Error()

		if job.RetryCount < job.MaxRetries {
			job.RetryCount++
			job.Status = JobStatusRetrying
			log.Warn().Err(err).Int("retry", job.RetryCount).Msg("Job failed, retrying")

			next := *job
			next.Status = JobStatusPending
			next.StartedAt = nil
			next.CompletedAt = nil
			retry = &next
		} else {
			job.Status = JobStatusFailed
			log.Error().Err(err).Msg("Job failed")
		}
	} else {
		job.Status = JobStatusCompleted
		job.Error = ""
		log.Info().Msg("Job completed")
	}

	if store != nil {
		if err := store.SaveJob(ctx, job); err != nil {
			log.Warn().Err(err).Msg("Failed to record job result")
		}
	}

	return retry
}

// Backoff is the linear delay before retry attempt n.
func Backoff(base time.Duration, attempt int) time.Duration {
	return time.Duration(attempt) * base
}
