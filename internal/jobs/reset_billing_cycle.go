// Package jobs contains the background job handlers run by the worker.
package jobs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/DukeRupert/quotaledger/internal/worker"
	"github.com/google/uuid"
)

// CycleResetter is the part of the billing cycle service the job needs.
type CycleResetter interface {
	ResetCycle(ctx context.Context, userID uuid.UUID) (*domain.Account, error)
	AdvanceIfExpired(ctx context.Context, userID uuid.UUID) (*domain.Account, bool, error)
}

// ResetBillingCycleHandler starts a new billing cycle for one account.
type ResetBillingCycleHandler struct {
	cycles CycleResetter
	logger *slog.Logger
}

// NewResetBillingCycleHandler creates a new handler for billing cycle reset jobs.
func NewResetBillingCycleHandler(cycles CycleResetter, logger *slog.Logger) *ResetBillingCycleHandler {
	return &ResetBillingCycleHandler{
		cycles: cycles,
		logger: logger,
	}
}

// Type returns the job type identifier.
func (h *ResetBillingCycleHandler) Type() string {
	return worker.JobTypeResetBillingCycle
}

// Handle resets the cycle. Conditional jobs skip accounts whose cycle is
// still running. Missing accounts and bad payloads are not retried.
func (h *ResetBillingCycleHandler) Handle(ctx context.Context, payload []byte) error {
	p, err := worker.DecodePayload[worker.ResetBillingCyclePayload](payload)
	if err != nil {
		return err
	}
	if p.UserID == uuid.Nil {
		return worker.NewPermanentError(fmt.Errorf("payload missing user_id"))
	}

	logger := h.logger.With("user_id", p.UserID, "only_if_expired", p.OnlyIfExpired)

	if p.OnlyIfExpired {
		_, advanced, err := h.cycles.AdvanceIfExpired(ctx, p.UserID)
		if err != nil {
			return classify(err)
		}
		if !advanced {
			logger.Debug("billing cycle still running, nothing to reset")
		}
		return nil
	}

	if _, err := h.cycles.ResetCycle(ctx, p.UserID); err != nil {
		return classify(err)
	}
	return nil
}

// classify marks errors that a retry cannot fix as permanent.
func classify(err error) error {
	switch domain.ErrorCode(err) {
	case domain.ENOTFOUND, domain.EINVALID:
		return worker.NewPermanentError(err)
	default:
		return err
	}
}
