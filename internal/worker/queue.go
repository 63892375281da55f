package worker

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/google/uuid"
)

// ErrNoJob is returned by Queue.Claim when nothing is due.
var ErrNoJob = errors.New("no job available")

// Queue is the persistent job queue the worker drains.
type Queue interface {
	// Enqueue stores a new pending job.
	Enqueue(ctx context.Context, params repository.EnqueueJobParams) (repository.Job, error)

	// Claim takes the next due job and marks it running.
	// Returns ErrNoJob when the queue is empty.
	Claim(ctx context.Context) (repository.Job, error)

	// Complete marks a job as done.
	Complete(ctx context.Context, id uuid.UUID) error

	// Fail records a failure. Non-permanent failures are rescheduled with
	// backoff until the job runs out of attempts.
	Fail(ctx context.Context, id uuid.UUID, permanent bool, message string) error

	// RecoverStale resets jobs stuck in 'running' for longer than threshold.
	RecoverStale(ctx context.Context, threshold time.Duration) (int64, error)
}

// SQLQueue implements Queue on the jobs table.
type SQLQueue struct {
	db      *sql.DB
	queries *repository.Queries
}

// NewSQLQueue creates a queue backed by db.
func NewSQLQueue(db *sql.DB) *SQLQueue {
	return &SQLQueue{db: db, queries: repository.New(db)}
}

var _ Queue = (*SQLQueue)(nil)

func (q *SQLQueue) Enqueue(ctx context.Context, params repository.EnqueueJobParams) (repository.Job, error) {
	return q.queries.EnqueueJob(ctx, params)
}

// Claim dequeues inside a transaction so concurrent workers never take the
// same row.
func (q *SQLQueue) Claim(ctx context.Context) (repository.Job, error) {
	tx, err := q.db.BeginTx(ctx, nil)
	if err != nil {
		return repository.Job{}, fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	qtx := q.queries.WithTx(tx)

	job, err := qtx.DequeueJob(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return repository.Job{}, ErrNoJob
		}
		return repository.Job{}, fmt.Errorf("dequeue job: %w", err)
	}

	if err := qtx.UpdateJobStarted(ctx, job.ID); err != nil {
		return repository.Job{}, fmt.Errorf("mark job started: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return repository.Job{}, fmt.Errorf("commit dequeue: %w", err)
	}

	job.Attempts++
	return job, nil
}

func (q *SQLQueue) Complete(ctx context.Context, id uuid.UUID) error {
	return q.queries.UpdateJobCompleted(ctx, id)
}

func (q *SQLQueue) Fail(ctx context.Context, id uuid.UUID, permanent bool, message string) error {
	return q.queries.UpdateJobFailed(ctx, repository.UpdateJobFailedParams{
		Permanent:    permanent,
		ErrorMessage: sql.NullString{String: message, Valid: message != ""},
		ID:           id,
	})
}

func (q *SQLQueue) RecoverStale(ctx context.Context, threshold time.Duration) (int64, error) {
	return q.queries.RecoverStaleJobs(ctx, threshold.Seconds())
}
