package jobs

import (
	"context"
	"errors"
	"time"

	"github.com/dvloznov/receipt-tracker/internal/tracker"
)

// ErrJobNotFound is returned when no job has the requested id.
var ErrJobNotFound = errors.New("job not found")

// DefaultMaxRetries is how often a failed scan job is re-run.
const DefaultMaxRetries = 1

// JobType represents the type of job to be executed.
type JobType string

const (
	// JobTypeScanReceipts represents a receipt batch scan job.
	JobTypeScanReceipts JobType = "scan_receipts"
)

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is being retried.
	JobStatusRetrying JobStatus = "retrying"
)

// ScanReceiptsJob scans a batch of receipt images and saves the usable expenses.
type ScanReceiptsJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// URIs are the images to scan, gs:// objects or local paths.
	URIs []string `json:"uris"`

	// Status is the current status of the job.
	Status JobStatus `json:"status"`

	// Result is set once the batch has been scanned.
	Result *tracker.ScanResult `json:"result,omitempty"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the job failed.
	Error string `json:"error,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Job is a generic interface for all job types.
type Job interface {
	GetID() string
	GetType() JobType
	GetStatus() JobStatus
}

// GetID implements the Job interface.
func (j *ScanReceiptsJob) GetID() string {
	return j.JobID
}

// GetType implements the Job interface.
func (j *ScanReceiptsJob) GetType() JobType {
	return JobTypeScanReceipts
}

// GetStatus implements the Job interface.
func (j *ScanReceiptsJob) GetStatus() JobStatus {
	return j.Status
}

// Publisher enqueues jobs.
type Publisher interface {
	// PublishScanReceipts enqueues a receipt scan job.
	PublishScanReceipts(ctx context.Context, job *ScanReceiptsJob) error

	// Close closes the publisher and releases resources.
	Close() error
}

// Consumer runs queued jobs.
type Consumer interface {
	// Start begins consuming jobs from the queue.
	// The handler function is called for each job received.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for in-flight jobs to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the job for retry.
type JobHandler func(ctx context.Context, job Job) error

// JobStore keeps job state for status queries.
type JobStore interface {
	// SaveJob saves or updates a job's state.
	SaveJob(ctx context.Context, job *ScanReceiptsJob) error

	// GetJob retrieves a job by ID or returns ErrJobNotFound.
	GetJob(ctx context.Context, jobID string) (*ScanReceiptsJob, error)

	// ListJobs retrieves jobs, newest first.
	ListJobs(ctx context.Context, filter JobFilter) ([]*ScanReceiptsJob, error)

	// UpdateJobStatus updates the status of a job.
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	// Status filters jobs by status.
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}

// NewScanHandler returns a JobHandler that runs scan jobs through svc,
// recording the result on the job.
func NewScanHandler(svc *tracker.Service) JobHandler {
	return func(ctx context.Context, job Job) error {
		scan, ok := job.(*ScanReceiptsJob)
		if !ok {
			return errors.New("unsupported job type: " + string(job.GetType()))
		}
		result, err := svc.ScanReceipts(ctx, scan.URIs)
		scan.Result = &result
		return err
	}
}
