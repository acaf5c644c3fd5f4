package app

import (
	"context"
	"errors"
	"fmt"

	"github.com/dvloznov/receipt-tracker/internal/config"
	"github.com/dvloznov/receipt-tracker/internal/infra/sqlite"
	"github.com/dvloznov/receipt-tracker/internal/jobs"
	"github.com/dvloznov/receipt-tracker/internal/jobs/amqp"
	jobsmem "github.com/dvloznov/receipt-tracker/internal/jobs/inmemory"
)

// JobQueueSize is how many scan jobs the in-process queue holds before
// publishing blocks.
const JobQueueSize = 100

// Jobs is the scan job transport selected by JOBS_BACKEND.
type Jobs struct {
	Store     jobs.JobStore
	Publisher jobs.Publisher
	Consumer  jobs.Consumer

	// Local is true when published jobs run in this process.
	Local bool

	closers []func() error
}

// OpenJobs builds the job store and queue. With the amqp backend the job
// state lives in SQLite so the API and workers see the same jobs.
func OpenJobs(ctx context.Context, cfg *config.Config) (*Jobs, error) {
	switch cfg.JobsBackend {
	case config.BackendMemory, "":
		store := jobsmem.NewStore()
		queue := jobsmem.NewQueue(JobQueueSize, cfg.ScanWorkers, store)
		return &Jobs{
			Store:     store,
			Publisher: queue,
			Consumer:  queue,
			Local:     true,
			closers:   []func() error{queue.Close},
		}, nil
	case config.BackendAMQP:
		store, err := sqlite.NewJobStore(ctx, cfg.SQLitePath)
		if err != nil {
			return nil, fmt.Errorf("OpenJobs: %w", err)
		}
		queue, err := amqp.Dial(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue, store)
		if err != nil {
			store.Close()
			return nil, fmt.Errorf("OpenJobs: %w", err)
		}
		return &Jobs{
			Store:     store,
			Publisher: queue,
			Consumer:  queue,
			closers:   []func() error{store.Close, queue.Close},
		}, nil
	}
	return nil, fmt.Errorf("OpenJobs: unknown jobs backend %q", cfg.JobsBackend)
}

// Close releases the queue and then the store.
func (j *Jobs) Close() error {
	var errs []error
	for i := len(j.closers) - 1; i >= 0; i-- {
		if err := j.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	j.closers = nil
	return errors.Join(errs...)
}
