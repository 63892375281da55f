package cli

import (
	"github.com/DukeRupert/quotaledger/internal"
	"github.com/spf13/cobra"
)

func newMigrateCmd(sess *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage database migrations",
	}

	run := func(fn func(b *Backend, cmd *cobra.Command) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}
			if b.DB == nil {
				return errNoDatabase
			}
			return fn(b, cmd)
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "Apply all pending migrations",
			Args:  cobra.NoArgs,
			RunE: run(func(b *Backend, cmd *cobra.Command) error {
				return internal.RunMigrations(cmd.Context(), b.DB, b.Logger)
			}),
		},
		&cobra.Command{
			Use:   "status",
			Short: "Show migration status",
			Args:  cobra.NoArgs,
			RunE: run(func(b *Backend, cmd *cobra.Command) error {
				return internal.MigrationStatus(cmd.Context(), b.DB, b.Logger)
			}),
		},
		&cobra.Command{
			Use:   "down",
			Short: "Roll back the most recent migration",
			Args:  cobra.NoArgs,
			RunE: run(func(b *Backend, cmd *cobra.Command) error {
				return internal.RollbackMigration(cmd.Context(), b.DB, b.Logger)
			}),
		},
	)

	return cmd
}
