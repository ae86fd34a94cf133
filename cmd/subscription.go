package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"
)

func newCancelCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "cancel",
		Short: "Cancel the subscription at the end of the current period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			state, err := app.manager.CancelSubscription(cmd.Context())
			if err != nil {
				return err
			}
			if !state.Entitled() {
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "nothing to cancel on the community plan")
				return err
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(), "subscription cancels on %s\n", state.CurrentPeriodEnd.Format("2006-01-02"))
			return err
		},
	}
}

func newVerifyCmd(app *app) *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "verify",
		Short: "Re-check the entitlement against its license or payment",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			verify := app.manager.VerifySubscriptionIfNeeded
			if force {
				verify = app.manager.VerifySubscription
			}

			var err error
			if isTerminal(cmd.ErrOrStderr()) {
				err = runWithSpinner(cmd.Context(), cmd.ErrOrStderr(), "verifying entitlement...", verify)
			} else {
				err = verify(cmd.Context())
			}
			if err != nil {
				return fmt.Errorf("verify subscription: %w", err)
			}

			return writeStatus(cmd, app, false)
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Verify even if the last check is recent")

	return cmd
}

func newResetCmd(app *app) *cobra.Command {
	var confirmed bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the entitlement, payment settings and pending checkouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !confirmed {
				return errors.New("reset erases all billing data; pass --yes to confirm")
			}
			if err := app.manager.ResetAllData(cmd.Context()); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "billing data reset")
			return err
		},
	}

	cmd.Flags().BoolVar(&confirmed, "yes", false, "Confirm the reset")

	return cmd
}
