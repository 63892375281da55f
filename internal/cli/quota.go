package cli

import (
	"fmt"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

func newEvaluateCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "evaluate USER_ID METRIC",
		Short: "Check whether one more unit of METRIC is allowed",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}

			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			result, err := b.Services.Quota.Evaluate(cmd.Context(), userID, args[1])
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			s := newStyles(out)
			tw := newTable(out)
			fmt.Fprintf(tw, "metric:\t%s\n", result.Metric)
			fmt.Fprintf(tw, "tier:\t%s\n", result.Tier.DisplayName())
			fmt.Fprintf(tw, "allowed:\t%t\n", result.Allowed)
			fmt.Fprintf(tw, "usage:\t%d\n", result.CurrentUsage)
			fmt.Fprintf(tw, "limit:\t%s\n", result.Limit)
			fmt.Fprintf(tw, "remaining:\t%s\n", formatRemaining(result))
			fmt.Fprintf(tw, "status:\t%s\n", quotaStatus(s, result))
			return tw.Flush()
		},
	}
}

func newIncrementCmd(sess *session) *cobra.Command {
	var amount int64

	cmd := &cobra.Command{
		Use:   "increment USER_ID METRIC",
		Short: "Record usage against the current billing cycle",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}

			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			counter, err := b.Services.Quota.Increment(cmd.Context(), userID, args[1], amount)
			if err != nil {
				return err
			}
			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "%s: %d\n", counter.Metric, counter.Count)
			return nil
		},
	}

	cmd.Flags().Int64Var(&amount, "amount", 1, "units to add")

	return cmd
}

func newUsageCmd(sess *session) *cobra.Command {
	var (
		history bool
		limit   int
	)

	cmd := &cobra.Command{
		Use:   "usage USER_ID",
		Short: "Show usage against every metric for the current billing cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}

			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			if history {
				return printHistory(cmd, b, userID, limit)
			}

			summary, err := b.Services.Quota.Usage(cmd.Context(), userID)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			s := newStyles(out)
			_, _ = fmt.Fprintf(out, "%s tier, cycle %s\n\n", summary.Tier.DisplayName(), formatCycle(summary.Cycle))

			tw := newTable(out)
			fmt.Fprintln(tw, s.header.Render("METRIC\tUSED\tLIMIT\tREMAINING\tSTATUS"))
			for i := range summary.Metrics {
				r := &summary.Metrics[i]
				fmt.Fprintf(tw, "%s\t%d\t%s\t%s\t%s\n", r.Metric, r.CurrentUsage, r.Limit, formatRemaining(r), quotaStatus(s, r))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().BoolVar(&history, "history", false, "list counters from past billing cycles too")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum counters to list with --history")

	return cmd
}

func printHistory(cmd *cobra.Command, b *Backend, userID uuid.UUID, limit int) error {
	counters, err := b.Services.Quota.History(cmd.Context(), userID, limit)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(counters) == 0 {
		_, _ = fmt.Fprintln(out, "no usage recorded")
		return nil
	}

	s := newStyles(out)
	tw := newTable(out)
	fmt.Fprintln(tw, s.header.Render("CYCLE START\tMETRIC\tCOUNT"))
	for _, c := range counters {
		fmt.Fprintf(tw, "%s\t%s\t%d\n", c.Cycle.Start.UTC().Format(timeLayout), c.Metric, c.Count)
	}
	return tw.Flush()
}

func newResetCycleCmd(sess *session) *cobra.Command {
	var ifExpired bool

	cmd := &cobra.Command{
		Use:   "reset-cycle USER_ID",
		Short: "Start a new billing cycle now",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}

			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}

			var account *domain.Account
			if ifExpired {
				var advanced bool
				account, advanced, err = b.Services.Cycles.AdvanceIfExpired(cmd.Context(), userID)
				if err != nil {
					return err
				}
				if !advanced {
					_, _ = fmt.Fprintf(cmd.OutOrStdout(), "cycle still open until %s\n", account.Cycle.End.UTC().Format(timeLayout))
					return nil
				}
			} else {
				account, err = b.Services.Cycles.ResetCycle(cmd.Context(), userID)
				if err != nil {
					return err
				}
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "new billing cycle: %s\n", formatCycle(account.Cycle))
			return nil
		},
	}

	cmd.Flags().BoolVar(&ifExpired, "if-expired", false, "only reset when the current cycle has ended")

	return cmd
}
