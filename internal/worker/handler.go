package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
)

// JobHandler runs one job type. Handle receives the JSON payload stored with
// the job and is called again on retry, so it must be safe to repeat.
type JobHandler interface {
	Type() string
	Handle(ctx context.Context, payload []byte) error
}

// HandlerFunc adapts a function to JobHandler.
func HandlerFunc(jobType string, fn func(ctx context.Context, payload []byte) error) JobHandler {
	return handlerFunc{jobType: jobType, fn: fn}
}

type handlerFunc struct {
	jobType string
	fn      func(ctx context.Context, payload []byte) error
}

func (h handlerFunc) Type() string { return h.jobType }

func (h handlerFunc) Handle(ctx context.Context, payload []byte) error {
	return h.fn(ctx, payload)
}

// PermanentError marks a failure a retry cannot fix, like a payload that does
// not decode or an account that no longer exists. The job is failed at once.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string {
	return e.Err.Error()
}

func (e *PermanentError) Unwrap() error {
	return e.Err
}

// NewPermanentError wraps err so the worker does not retry it.
func NewPermanentError(err error) error {
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err or anything it wraps is a PermanentError.
func IsPermanent(err error) bool {
	var permErr *PermanentError
	return errors.As(err, &permErr)
}

// DecodePayload unmarshals a job payload. Decoding failures are permanent.
func DecodePayload[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, NewPermanentError(fmt.Errorf("decode payload: %w", err))
	}
	return v, nil
}
