package worker

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/google/uuid"
)

// Job type constants - these must match the JobHandler.Type() values
const (
	JobTypeResetBillingCycle = "reset_billing_cycle"
)

// Priority constants for job scheduling
const (
	PriorityLow    = 0
	PriorityNormal = 10
	PriorityHigh   = 20
)

// ResetBillingCyclePayload is the payload for billing cycle reset jobs.
//
// OnlyIfExpired makes the job a no-op when the cycle is still running, which
// is what the periodic sweep wants. Renewals from Stripe force the reset.
type ResetBillingCyclePayload struct {
	UserID        uuid.UUID `json:"user_id"`
	OnlyIfExpired bool      `json:"only_if_expired"`
}

// Enqueuer stores jobs for later execution.
type Enqueuer interface {
	Enqueue(ctx context.Context, params repository.EnqueueJobParams) (repository.Job, error)
}

// EnqueueOption is a functional option for customizing job enqueue parameters.
type EnqueueOption func(*repository.EnqueueJobParams)

// WithPriority sets the job priority.
func WithPriority(priority int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.Priority = priority
	}
}

// WithMaxAttempts sets the maximum number of retry attempts.
func WithMaxAttempts(attempts int32) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.MaxAttempts = attempts
	}
}

// WithDelay schedules the job to run after a delay.
func WithDelay(delay time.Duration) EnqueueOption {
	return func(p *repository.EnqueueJobParams) {
		p.ScheduledAt = time.Now().Add(delay)
	}
}

// EnqueueJob marshals payload and enqueues a job of the given type.
func EnqueueJob(
	ctx context.Context,
	q Enqueuer,
	jobType string,
	payload interface{},
	opts ...EnqueueOption,
) (repository.Job, error) {
	payloadJSON, err := json.Marshal(payload)
	if err != nil {
		return repository.Job{}, fmt.Errorf("marshal payload: %w", err)
	}

	params := repository.EnqueueJobParams{
		JobType:     jobType,
		Payload:     payloadJSON,
		Priority:    PriorityNormal,
		MaxAttempts: 3,
		ScheduledAt: time.Now(),
	}

	for _, opt := range opts {
		opt(&params)
	}

	job, err := q.Enqueue(ctx, params)
	if err != nil {
		return repository.Job{}, fmt.Errorf("enqueue job: %w", err)
	}

	return job, nil
}

// EnqueueResetBillingCycle enqueues a billing cycle reset for one account.
func EnqueueResetBillingCycle(
	ctx context.Context,
	q Enqueuer,
	userID uuid.UUID,
	onlyIfExpired bool,
	opts ...EnqueueOption,
) (repository.Job, error) {
	payload := ResetBillingCyclePayload{
		UserID:        userID,
		OnlyIfExpired: onlyIfExpired,
	}

	return EnqueueJob(ctx, q, JobTypeResetBillingCycle, payload, opts...)
}
