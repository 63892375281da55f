package cli

import (
	"fmt"

	"github.com/DukeRupert/quotaledger/internal/app"
	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/spf13/cobra"
)

func newLimitsCmd(sess *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "limits",
		Short: "Manage the tier catalog",
	}

	cmd.AddCommand(
		newLimitsListCmd(sess),
		newLimitsSetCmd(sess),
		newLimitsDeleteCmd(sess),
		newLimitsImportCmd(sess),
	)

	return cmd
}

func newLimitsListCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List every catalog entry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}

			limits, err := b.Services.Catalog.List(cmd.Context())
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(limits) == 0 {
				_, _ = fmt.Fprintln(out, "no tier limits configured")
				return nil
			}

			s := newStyles(out)
			tw := newTable(out)
			fmt.Fprintln(tw, s.header.Render("TIER\tMETRIC\tLIMIT\tUPDATED"))
			for _, tl := range limits {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tl.Tier, tl.Metric, tl.Limit, formatTime(&tl.UpdatedAt))
			}
			return tw.Flush()
		},
	}
}

func newLimitsSetCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "set TIER METRIC LIMIT",
		Short: "Create or replace a catalog entry",
		Long:  "Create or replace a catalog entry. LIMIT is a count, or \"unlimited\".\n" +
			"Pass -1 after -- so it is not read as a flag: quotactl limits set pro storage_gb -- -1",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}

			tier, err := domain.ParseTier(args[0])
			if err != nil {
				return err
			}
			metric, err := b.Metrics.Parse(args[1])
			if err != nil {
				return err
			}
			limit, err := parseLimit(args[2])
			if err != nil {
				return err
			}

			saved, err := b.Services.Catalog.SetLimit(cmd.Context(), tier, metric, limit)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s %s = %s\n", saved.Tier, saved.Metric, saved.Limit)
			return nil
		},
	}
}

func newLimitsDeleteCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "delete TIER METRIC",
		Short: "Remove a catalog entry",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}

			tier, err := domain.ParseTier(args[0])
			if err != nil {
				return err
			}
			metric, err := b.Metrics.Parse(args[1])
			if err != nil {
				return err
			}

			if err := b.Services.Catalog.DeleteLimit(cmd.Context(), tier, metric); err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s %s\n", tier, metric)
			return nil
		},
	}
}

func newLimitsImportCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Upsert catalog entries from a .toml or .yaml file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}

			n, err := app.ImportCatalog(cmd.Context(), b.Services.Catalog, args[0])
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "imported %d tier limits from %s\n", n, args[0])
			return nil
		},
	}
}
