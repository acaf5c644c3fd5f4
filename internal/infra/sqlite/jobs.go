package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/jobs"
)

// JobStore is a jobs.JobStore backed by SQLite, so that an API process and
// a separate worker can share job state through one database file.
type JobStore struct {
	db *sql.DB
}

// NewJobStore opens (and migrates) the database at path.
func NewJobStore(ctx context.Context, path string) (*JobStore, error) {
	db, err := Open(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("NewJobStore: %w", err)
	}
	return NewJobStoreWithDB(db), nil
}

// NewJobStoreWithDB wraps an already migrated database.
func NewJobStoreWithDB(db *sql.DB) *JobStore {
	return &JobStore{db: db}
}

// Close closes the database.
func (s *JobStore) Close() error {
	return s.db.Close()
}

// SaveJob implements the JobStore interface.
func (s *JobStore) SaveJob(ctx context.Context, job *jobs.ScanReceiptsJob) error {
	if job.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	return s.save(ctx, s.db, job)
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func (s *JobStore) save(ctx context.Context, db execer, job *jobs.ScanReceiptsJob) error {
	payload, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("SaveJob %s: encode: %w", job.JobID, err)
	}

	_, err = db.ExecContext(ctx, `
		INSERT INTO scan_jobs (job_id, status, created_at, payload)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			status = excluded.status,
			created_at = excluded.created_at,
			payload = excluded.payload`,
		job.JobID, string(job.Status), formatTime(job.CreatedAt), string(payload),
	)
	if err != nil {
		return fmt.Errorf("SaveJob %s: %w", job.JobID, err)
	}
	return nil
}

// GetJob implements the JobStore interface.
func (s *JobStore) GetJob(ctx context.Context, jobID string) (*jobs.ScanReceiptsJob, error) {
	return s.get(ctx, s.db, jobID)
}

type querier interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func (s *JobStore) get(ctx context.Context, db querier, jobID string) (*jobs.ScanReceiptsJob, error) {
	var payload string
	err := db.QueryRowContext(ctx, `SELECT payload FROM scan_jobs WHERE job_id = ?`, jobID).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("GetJob %s: %w", jobID, jobs.ErrJobNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("GetJob %s: %w", jobID, err)
	}
	return decodeJob(payload)
}

// ListJobs implements the JobStore interface. Jobs are returned newest first.
func (s *JobStore) ListJobs(ctx context.Context, filter jobs.JobFilter) ([]*jobs.ScanReceiptsJob, error) {
	limit := -1
	if filter.Limit > 0 {
		limit = filter.Limit
	}
	offset := 0
	if filter.Offset > 0 {
		offset = filter.Offset
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT payload
		FROM scan_jobs
		WHERE ? = '' OR status = ?
		ORDER BY created_at DESC, job_id ASC
		LIMIT ? OFFSET ?`,
		string(filter.Status), string(filter.Status), limit, offset,
	)
	if err != nil {
		return nil, fmt.Errorf("ListJobs: query: %w", err)
	}
	defer rows.Close()

	result := []*jobs.ScanReceiptsJob{}
	for rows.Next() {
		var payload string
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("ListJobs: scan: %w", err)
		}
		job, err := decodeJob(payload)
		if err != nil {
			return nil, fmt.Errorf("ListJobs: %w", err)
		}
		result = append(result, job)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ListJobs: rows: %w", err)
	}
	return result, nil
}

// UpdateJobStatus implements the JobStore interface.
func (s *JobStore) UpdateJobStatus(ctx context.Context, jobID string, status jobs.JobStatus, errorMsg string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("UpdateJobStatus %s: begin: %w", jobID, err)
	}
	defer tx.Rollback()

	job, err := s.get(ctx, tx, jobID)
	if err != nil {
		return fmt.Errorf("UpdateJobStatus: %w", err)
	}

	job.Status = status
	if errorMsg != "" {
		job.Error = errorMsg
	}
	if err := s.save(ctx, tx, job); err != nil {
		return fmt.Errorf("UpdateJobStatus: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("UpdateJobStatus %s: commit: %w", jobID, err)
	}
	return nil
}

func decodeJob(payload string) (*jobs.ScanReceiptsJob, error) {
	var job jobs.ScanReceiptsJob
	if err := json.Unmarshal([]byte(payload), &job); err != nil {
		return nil, fmt.Errorf("decode job: %w", err)
	}
	return &job, nil
}

var _ jobs.JobStore = (*JobStore)(nil)
