package cli

import (
	"fmt"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/spf13/cobra"
)

func newSetTierCmd(sess *session) *cobra.Command {
	var meta map[string]string

	cmd := &cobra.Command{
		Use:   "set-tier USER_ID TIER",
		Short: "Change an account's tier and record the change",
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
			tier, err := domain.ParseTier(args[1])
			if err != nil {
				return err
			}

			result, err := b.Services.Subscriptions.ChangeTier(cmd.Context(), domain.TierChangeParams{
				UserID:   userID,
				Tier:     tier,
				Source:   domain.TierChangeSourceCLI,
				Metadata: meta,
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if !result.Changed() {
				_, _ = fmt.Fprintf(out, "already on %s, nothing recorded\n", tier.DisplayName())
				return nil
			}
			_, _ = fmt.Fprintf(out, "%s: %s -> %s\n", result.Event.EventType, result.Event.PreviousTier, result.Event.NewTier)
			return nil
		},
	}

	cmd.Flags().StringToStringVar(&meta, "meta", nil, "extra audit metadata as key=value pairs")

	return cmd
}

func newEventsCmd(sess *session) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "events USER_ID",
		Short: "List recorded tier changes, newest first",
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

			events, err := b.Services.Subscriptions.ListEvents(cmd.Context(), userID, limit)
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			if len(events) == 0 {
				_, _ = fmt.Fprintln(out, "no subscription events")
				return nil
			}

			s := newStyles(out)
			tw := newTable(out)
			fmt.Fprintln(tw, s.header.Render("WHEN\tTYPE\tFROM\tTO\tMETADATA"))
			for _, e := range events {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n",
					formatTime(&e.CreatedAt), e.EventType, e.PreviousTier, e.NewTier, s.muted.Render(string(e.Metadata)))
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVar(&limit, "limit", 50, "maximum events to list")

	return cmd
}
