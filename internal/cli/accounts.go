package cli

import (
	"fmt"

	"github.com/DukeRupert/quotaledger/internal/domain"
	"github.com/spf13/cobra"
)

func newAccountsCmd(sess *session) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Manage quota accounts",
	}

	cmd.AddCommand(
		newAccountsCreateCmd(sess),
		newAccountsShowCmd(sess),
		newAccountsLinkStripeCmd(sess),
	)

	return cmd
}

func newAccountsCreateCmd(sess *session) *cobra.Command {
	var (
		tier     string
		customer string
	)

	cmd := &cobra.Command{
		Use:   "create USER_ID",
		Short: "Provision an account with a fresh billing cycle",
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
			t, err := domain.ParseTier(tier)
			if err != nil {
				return err
			}

			account, err := b.Services.Subscriptions.Provision(cmd.Context(), domain.ProvisionAccountParams{
				UserID:           userID,
				Tier:             t,
				StripeCustomerID: customer,
			})
			if err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), account)
			return nil
		},
	}

	cmd.Flags().StringVar(&tier, "tier", string(domain.TierFree), "initial subscription tier")
	cmd.Flags().StringVar(&customer, "stripe-customer", "", "Stripe customer id (cus_...)")

	return cmd
}

func newAccountsShowCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "show USER_ID",
		Short: "Show an account's tier and billing cycle",
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

			account, err := b.Services.Subscriptions.Get(cmd.Context(), userID)
			if err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), account)
			return nil
		},
	}
}

func newAccountsLinkStripeCmd(sess *session) *cobra.Command {
	return &cobra.Command{
		Use:   "link-stripe USER_ID CUSTOMER_ID",
		Short: "Attach a Stripe customer so webhooks can find the account",
		Long:  "Attach a Stripe customer so webhooks can find the account. " +
			"When STRIPE_SECRET_KEY is set the customer is looked up first.",
		Args: cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := sess.get(cmd)
			if err != nil {
				return err
			}

			userID, err := parseUserID(args[0])
			if err != nil {
				return err
			}
			customerID := args[1]

			if b.Billing != nil {
				cust, err := b.Billing.GetCustomer(customerID)
				if err != nil {
					return fmt.Errorf("stripe customer %s: %w", customerID, err)
				}
				if cust.Deleted {
					return fmt.Errorf("stripe customer %s has been deleted", customerID)
				}
			}

			account, err := b.Services.Subscriptions.LinkStripeCustomer(cmd.Context(), userID, customerID)
			if err != nil {
				return err
			}
			printAccount(cmd.OutOrStdout(), account)
			return nil
		},
	}
}
