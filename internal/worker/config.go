package worker

import (
	"errors"
	"fmt"
	"time"
)

// Config tunes the job worker and the expired-cycle sweep.
type Config struct {
	// Concurrency is the number of goroutines claiming jobs.
	Concurrency int

	// PollInterval is the idle wait between claims when the queue is empty.
	PollInterval time.Duration

	// JobTimeout bounds a single Handle call.
	JobTimeout time.Duration

	// ShutdownTimeout bounds how long Stop waits for running jobs.
	ShutdownTimeout time.Duration

	// StaleJobThreshold is the age after which a running job is assumed to
	// belong to a dead process and is requeued on start. It must exceed
	// JobTimeout or live jobs would be handed out twice.
	StaleJobThreshold time.Duration

	// SweepInterval is how often expired billing cycles are queued for
	// reset. Zero disables the sweep.
	SweepInterval time.Duration
}

// DefaultConfig returns defaults sized for billing-cycle resets, which are a
// single UPDATE each.
func DefaultConfig() Config {
	return Config{
		Concurrency:       2,
		PollInterval:      2 * time.Second,
		JobTimeout:        time.Minute,
		ShutdownTimeout:   30 * time.Second,
		StaleJobThreshold: 5 * time.Minute,
		SweepInterval:     15 * time.Minute,
	}
}

// Validate reports every invalid field at once.
func (c Config) Validate() error {
	var errs []error

	if c.Concurrency < 1 || c.Concurrency > 64 {
		errs = append(errs, fmt.Errorf("concurrency must be between 1 and 64, got %d", c.Concurrency))
	}
	if c.PollInterval < time.Second {
		errs = append(errs, fmt.Errorf("poll interval must be at least 1s, got %v", c.PollInterval))
	}
	if c.JobTimeout < time.Second {
		errs = append(errs, fmt.Errorf("job timeout must be at least 1s, got %v", c.JobTimeout))
	}
	if c.ShutdownTimeout < time.Second {
		errs = append(errs, fmt.Errorf("shutdown timeout must be at least 1s, got %v", c.ShutdownTimeout))
	}
	if c.StaleJobThreshold <= c.JobTimeout {
		errs = append(errs, fmt.Errorf("stale job threshold (%v) must exceed job timeout (%v)", c.StaleJobThreshold, c.JobTimeout))
	}
	if c.SweepInterval < 0 {
		errs = append(errs, fmt.Errorf("sweep interval must not be negative, got %v", c.SweepInterval))
	}

	return errors.Join(errs...)
}
