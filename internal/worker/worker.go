package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/DukeRupert/quotaledger/internal/metrics"
	"github.com/DukeRupert/quotaledger/internal/repository"
)

// Worker manages background job processing with concurrent workers.
type Worker struct {
	queue    Queue
	handlers map[string]JobHandler
	config   Config
	logger   *slog.Logger

	wg       sync.WaitGroup
	stopCh   chan struct{}
	stopOnce sync.Once
}

// New creates a new Worker with the given configuration.
// The worker must be started with Start() and stopped with Stop().
func New(queue Queue, config Config, logger *slog.Logger) (*Worker, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Worker{
		queue:    queue,
		handlers: make(map[string]JobHandler),
		config:   config,
		logger:   logger,
		stopCh:   make(chan struct{}),
	}, nil
}

// Register adds a job handler to the worker.
// The handler's Type() must be unique. Call this before Start().
func (w *Worker) Register(handler JobHandler) {
	jobType := handler.Type()
	if _, exists := w.handlers[jobType]; exists {
		w.logger.Warn("overwriting existing handler", "job_type", jobType)
	}
	w.handlers[jobType] = handler
	w.logger.Debug("registered job handler", "job_type", jobType)
}

// Start recovers stale jobs and launches the worker goroutines.
func (w *Worker) Start(ctx context.Context) {
	if err := w.recoverStaleJobs(ctx); err != nil {
		w.logger.Error("failed to recover stale jobs", "error", err)
	}

	for i := 0; i < w.config.Concurrency; i++ {
		w.wg.Add(1)
		go w.runWorker(ctx, i+1)
	}

	w.logger.Info("worker started", "concurrency", w.config.Concurrency)
}

// Stop signals all workers to stop and waits up to ShutdownTimeout for
// running jobs to finish.
func (w *Worker) Stop() {
	w.stopOnce.Do(func() {
		w.logger.Info("stopping worker")
		close(w.stopCh)
	})

	done := make(chan struct{})
	go func() {
		w.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		w.logger.Info("worker stopped gracefully")
	case <-time.After(w.config.ShutdownTimeout):
		w.logger.Warn("worker shutdown timeout exceeded, some jobs may still be running")
	}
}

// recoverStaleJobs resets jobs left running by a crashed worker.
func (w *Worker) recoverStaleJobs(ctx context.Context) error {
	count, err := w.queue.RecoverStale(ctx, w.config.StaleJobThreshold)
	if err != nil {
		return fmt.Errorf("recover stale jobs: %w", err)
	}

	if count > 0 {
		w.logger.Warn("recovered stale jobs", "count", count, "threshold", w.config.StaleJobThreshold)
	}

	return nil
}

// runWorker polls for jobs until stopCh is closed or ctx is done.
func (w *Worker) runWorker(ctx context.Context, workerID int) {
	defer w.wg.Done()

	logger := w.logger.With("worker_id", workerID)

	ticker := time.NewTicker(w.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-w.stopCh:
			return
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.processNextJob(ctx, logger); err != nil {
				if errors.Is(err, ErrNoJob) {
					continue
				}
				logger.Error("failed to process job", "error", err)
			}
		}
	}
}

// processNextJob claims and executes a single job.
// Returns ErrNoJob if nothing is due.
func (w *Worker) processNextJob(ctx context.Context, logger *slog.Logger) error {
	job, err := w.queue.Claim(ctx)
	if err != nil {
		return err
	}

	logger = logger.With("job_id", job.ID, "job_type", job.JobType, "attempt", job.Attempts)
	logger.Info("processing job")

	start := time.Now()
	if err := w.executeJob(ctx, job); err != nil {
		logger.Error("job failed", "error", err)
		w.markJobFailed(ctx, job, err, logger)
		return fmt.Errorf("execute job: %w", err)
	}

	if err := w.queue.Complete(ctx, job.ID); err != nil {
		logger.Error("failed to mark job as completed", "error", err)
		return fmt.Errorf("update job completed: %w", err)
	}

	metrics.JobCompleted(job.JobType, time.Since(start))
	logger.Info("job completed", "duration_ms", time.Since(start).Milliseconds())
	return nil
}

// executeJob runs the handler for the job under JobTimeout.
func (w *Worker) executeJob(ctx context.Context, job repository.Job) error {
	handler, ok := w.handlers[job.JobType]
	if !ok {
		return NewPermanentError(fmt.Errorf("no handler registered for job type: %s", job.JobType))
	}

	jobCtx, cancel := context.WithTimeout(ctx, w.config.JobTimeout)
	defer cancel()

	return handler.Handle(jobCtx, job.Payload)
}

// markJobFailed records the failure. Permanent errors and exhausted jobs end
// in 'failed'; anything else is retried with backoff by the queue.
func (w *Worker) markJobFailed(ctx context.Context, job repository.Job, jobErr error, logger *slog.Logger) {
	permanent := IsPermanent(jobErr)
	if permanent || job.Attempts >= job.MaxAttempts {
		metrics.JobFailed(job.JobType)
		if permanent {
			logger.Warn("job failed with permanent error, will not retry", "error", jobErr)
		}
	} else {
		metrics.JobRetried(job.JobType)
	}

	if err := w.queue.Fail(ctx, job.ID, permanent, jobErr.Error()); err != nil {
		logger.Error("failed to mark job as failed", "error", err)
	}
}
