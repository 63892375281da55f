// Package cli implements quotactl, the operator command line for the quota
// ledger. Commands run against the same services as the HTTP API.
package cli

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/DukeRupert/quotaledger/internal"
	"github.com/DukeRupert/quotaledger/internal/app"
	"github.com/DukeRupert/quotaledger/internal/billing"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/spf13/cobra"
)

var errNoDatabase = errors.New("this command needs a SQL database")

// Backend is what commands operate on.
type Backend struct {
	Services *app.Services
	Metrics  domain.MetricSet
	Logger   *slog.Logger

	// DB is nil for in-memory backends; migrate commands refuse to run then.
	DB *sql.DB

	// Billing is set when STRIPE_SECRET_KEY is configured.
	Billing billing.Service

	Close func() error
}

// Opener builds a Backend on first use.
type Opener func(ctx context.Context) (*Backend, error)

// OpenFromEnv loads configuration from the environment and connects to the
// configured database. Migrations are not applied; use `quotactl migrate up`.
func OpenFromEnv(ctx context.Context) (*Backend, error) {
	cfg, err := internal.NewConfig()
	if err != nil {
		return nil, fmt.Errorf("config initialization failed: %w", err)
	}

	logger := internal.NewLogger(os.Stderr, cfg.Env, cfg.LogLevel)

	rt, err := app.Open(ctx, cfg, logger, false)
	if err != nil {
		return nil, err
	}

	b := &Backend{
		Services: rt.Services,
		Metrics:  cfg.MetricSet(),
		Logger:   logger,
		DB:       rt.DB,
		Close:    rt.Close,
	}
	if cfg.StripeSecretKey != "" {
		b.Billing = billing.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret, cfg.StripePriceTiers())
	}
	return b, nil
}

// Execute runs quotactl against the environment's configuration.
func Execute(ctx context.Context) error {
	root, sess := newRootCmd(OpenFromEnv)
	defer sess.close()
	return root.ExecuteContext(ctx)
}

type session struct {
	open    Opener
	backend *Backend
}

func (s *session) get(cmd *cobra.Command) (*Backend, error) {
	if s.backend != nil {
		return s.backend, nil
	}
	b, err := s.open(cmd.Context())
	if err != nil {
		return nil, err
	}
	s.backend = b
	return b, nil
}

func (s *session) close() {
	if s.backend != nil && s.backend.Close != nil {
		_ = s.backend.Close()
	}
	s.backend = nil
}

func newRootCmd(open Opener) (*cobra.Command, *session) {
	sess := &session{open: open}

	root := &cobra.Command{
		Use:           "quotactl",
		Short:         "Operate the quota ledger: tier limits, accounts, usage and migrations",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	root.AddCommand(
		newMigrateCmd(sess),
		newLimitsCmd(sess),
		newAccountsCmd(sess),
		newEvaluateCmd(sess),
		newIncrementCmd(sess),
		newUsageCmd(sess),
		newResetCycleCmd(sess),
		newSetTierCmd(sess),
		newEventsCmd(sess),
		newTokenCmd(),
	)

	return root, sess
}
