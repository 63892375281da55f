package worker

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/repository"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		wantErr bool
	}{
		{
			name:    "valid default config",
			config:  DefaultConfig(),
			wantErr: false,
		},
		{
			name: "concurrency too low",
			config: Config{
				Concurrency:       0,
				PollInterval:      5 * time.Second,
				JobTimeout:        5 * time.Minute,
				ShutdownTimeout:   30 * time.Second,
				StaleJobThreshold: 10 * time.Minute,
			},
			wantErr: true,
		},
		{
			name: "concurrency too high",
			config: Config{
				Concurrency:       101,
				PollInterval:      5 * time.Second,
				JobTimeout:        5 * time.Minute,
				ShutdownTimeout:   30 * time.Second,
				StaleJobThreshold: 10 * time.Minute,
			},
			wantErr: true,
		},
		{
			name: "poll interval too short",
			config: Config{
				Concurrency:       2,
				PollInterval:      500 * time.Millisecond,
				JobTimeout:        5 * time.Minute,
				ShutdownTimeout:   30 * time.Second,
				StaleJobThreshold: 10 * time.Minute,
			},
			wantErr: true,
		},
		{
			name: "stale threshold not above job timeout",
			config: Config{
				Concurrency:       2,
				PollInterval:      5 * time.Second,
				JobTimeout:        5 * time.Minute,
				ShutdownTimeout:   30 * time.Second,
				StaleJobThreshold: 5 * time.Minute,
			},
			wantErr: true,
		},
		{
			name: "negative sweep interval",
			config: Config{
				Concurrency:       2,
				PollInterval:      5 * time.Second,
				JobTimeout:        5 * time.Minute,
				ShutdownTimeout:   30 * time.Second,
				StaleJobThreshold: 10 * time.Minute,
				SweepInterval:     -time.Minute,
			},
			wantErr: true,
		},
		{
			name: "sweep disabled",
			config: Config{
				Concurrency:       1,
				PollInterval:      time.Second,
				JobTimeout:        time.Minute,
				ShutdownTimeout:   time.Second,
				StaleJobThreshold: 2 * time.Minute,
			},
			wantErr: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.config.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Config.Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestIsPermanent(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{
			name: "permanent error",
			err:  NewPermanentError(context.Canceled),
			want: true,
		},
		{
			name: "regular error",
			err:  context.Canceled,
			want: false,
		},
		{
			name: "nil error",
			err:  nil,
			want: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsPermanent(tt.err); got != tt.want {
				t.Errorf("IsPermanent() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDecodePayload(t *testing.T) {
	userID := uuid.New()

	p, err := DecodePayload[ResetBillingCyclePayload]([]byte(`{"user_id":"` + userID.String() + `","only_if_expired":true}`))
	require.NoError(t, err)
	assert.Equal(t, userID, p.UserID)
	assert.True(t, p.OnlyIfExpired)

	_, err = DecodePayload[ResetBillingCyclePayload]([]byte("{"))
	assert.True(t, IsPermanent(err))
}

// =============================================================================
// Job processing
// =============================================================================

type fakeQueue struct {
	mu        sync.Mutex
	pending   []repository.Job
	completed []uuid.UUID
	failed    map[uuid.UUID]bool // id -> permanent
	enqueued  []repository.EnqueueJobParams
	recovered int64
}

func newFakeQueue(jobs ...repository.Job) *fakeQueue {
	return &fakeQueue{pending: jobs, failed: make(map[uuid.UUID]bool)}
}

func (q *fakeQueue) Enqueue(_ context.Context, params repository.EnqueueJobParams) (repository.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.enqueued = append(q.enqueued, params)
	return repository.Job{ID: uuid.New(), JobType: params.JobType, Payload: params.Payload}, nil
}

func (q *fakeQueue) Claim(context.Context) (repository.Job, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.pending) == 0 {
		return repository.Job{}, ErrNoJob
	}
	job := q.pending[0]
	q.pending = q.pending[1:]
	job.Attempts++
	return job, nil
}

func (q *fakeQueue) Complete(_ context.Context, id uuid.UUID) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.completed = append(q.completed, id)
	return nil
}

func (q *fakeQueue) Fail(_ context.Context, id uuid.UUID, permanent bool, _ string) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.failed[id] = permanent
	return nil
}

func (q *fakeQueue) RecoverStale(context.Context, time.Duration) (int64, error) {
	return q.recovered, nil
}

func newTestWorker(t *testing.T, q Queue) *Worker {
	t.Helper()
	w, err := New(q, DefaultConfig(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)
	return w
}

func TestWorker_ProcessNextJob(t *testing.T) {
	ok := repository.Job{ID: uuid.New(), JobType: "ok", MaxAttempts: 3}
	retry := repository.Job{ID: uuid.New(), JobType: "flaky", MaxAttempts: 3}
	perm := repository.Job{ID: uuid.New(), JobType: "broken", MaxAttempts: 3}
	unknown := repository.Job{ID: uuid.New(), JobType: "mystery", MaxAttempts: 3}

	q := newFakeQueue(ok, retry, perm, unknown)
	w := newTestWorker(t, q)
	w.Register(HandlerFunc("ok", func(context.Context, []byte) error { return nil }))
	w.Register(HandlerFunc("flaky", func(context.Context, []byte) error { return errors.New("timeout") }))
	w.Register(HandlerFunc("broken", func(context.Context, []byte) error {
		return NewPermanentError(errors.New("bad payload"))
	}))

	logger := w.logger
	ctx := context.Background()

	assert.NoError(t, w.processNextJob(ctx, logger))
	assert.Error(t, w.processNextJob(ctx, logger))
	assert.Error(t, w.processNextJob(ctx, logger))
	assert.Error(t, w.processNextJob(ctx, logger))
	assert.ErrorIs(t, w.processNextJob(ctx, logger), ErrNoJob)

	assert.Equal(t, []uuid.UUID{ok.ID}, q.completed)
	assert.Equal(t, false, q.failed[retry.ID])
	assert.Equal(t, true, q.failed[perm.ID])
	assert.Equal(t, true, q.failed[unknown.ID], "unregistered job types fail permanently")
}

func TestWorker_StartStop(t *testing.T) {
	cfg := DefaultConfig()
	cfg.PollInterval = time.Second
	q := newFakeQueue()
	w, err := New(q, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, err)

	w.Start(context.Background())
	w.Stop()
	w.Stop()
}

// =============================================================================
// Enqueue and sweep
// =============================================================================

func TestEnqueueResetBillingCycle(t *testing.T) {
	q := newFakeQueue()
	userID := uuid.New()

	_, err := EnqueueResetBillingCycle(context.Background(), q, userID, true, WithPriority(PriorityHigh), WithMaxAttempts(5))
	require.NoError(t, err)
	require.Len(t, q.enqueued, 1)

	params := q.enqueued[0]
	assert.Equal(t, JobTypeResetBillingCycle, params.JobType)
	assert.Equal(t, int32(PriorityHigh), params.Priority)
	assert.Equal(t, int32(5), params.MaxAttempts)

	var payload ResetBillingCyclePayload
	require.NoError(t, json.Unmarshal(params.Payload, &payload))
	assert.Equal(t, userID, payload.UserID)
	assert.True(t, payload.OnlyIfExpired)
}

type staticLister struct {
	accounts []domain.Account
	err      error
}

func (l staticLister) ListExpired(context.Context, int) ([]domain.Account, error) {
	return l.accounts, l.err
}

func TestSweeper_SweepOnce(t *testing.T) {
	q := newFakeQueue()
	lister := staticLister{accounts: []domain.Account{{ID: uuid.New()}, {ID: uuid.New()}}}
	s := NewSweeper(lister, q, time.Minute, slog.New(slog.NewTextHandler(io.Discard, nil)))

	n, err := s.SweepOnce(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	require.Len(t, q.enqueued, 2)
	for _, p := range q.enqueued {
		assert.Equal(t, JobTypeResetBillingCycle, p.JobType)
	}

	_, err = NewSweeper(staticLister{err: errors.New("down")}, q, time.Minute, s.logger).SweepOnce(context.Background())
	assert.Error(t, err)
}

func TestSweeper_RunStopsOnCancel(t *testing.T) {
	q := newFakeQueue()
	s := NewSweeper(staticLister{}, q, time.Hour, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("sweeper did not stop")
	}
}
