package cmd

import (
	"errors"
	"fmt"
	"io"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/spf13/cobra"
)

func newCheckoutCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "checkout",
		Short: "Pay for the beta plan by card",
	}

	cmd.AddCommand(
		newCheckoutStripeCmd(app),
		newCheckoutCompleteCmd(app),
	)

	return cmd
}

func newCheckoutStripeCmd(app *app) *cobra.Command {
	var wait bool

	cmd := &cobra.Command{
		Use:   "stripe",
		Short: "Open the Stripe payment link",
		Long:  "Open the configured Stripe payment link. With --wait, a loopback listener receives the success redirect and the plan is granted as soon as it arrives.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !wait {
				if err := checkResult(app.manager.OpenStripeCheckout(cmd.Context())); err != nil {
					return err
				}
				_, err := fmt.Fprintln(cmd.OutOrStdout(), "checkout opened; run `habill checkout complete` once the payment succeeds")
				return err
			}

			server, err := app.startCallback(app.settings.Checkout.Listen, app.verifier)
			if err != nil {
				return fmt.Errorf("start checkout callback listener: %w", err)
			}
			defer func() { _ = server.Close() }()

			if err := checkResult(app.manager.OpenStripeCheckout(cmd.Context())); err != nil {
				return err
			}
			if _, err := fmt.Fprintf(cmd.ErrOrStderr(), "waiting for the payment redirect on %s\n", server.SuccessURL()); err != nil {
				return err
			}

			if _, err := server.Wait(cmd.Context(), app.settings.Checkout.Timeout); err != nil {
				return fmt.Errorf("wait for checkout: %w", err)
			}
			return applyCompletion(cmd, app)
		},
	}

	cmd.Flags().BoolVar(&wait, "wait", false, "Wait for the success redirect on the loopback listener")

	return cmd
}

func newCheckoutCompleteCmd(app *app) *cobra.Command {
	var (
		correlationID  string
		customerID     string
		subscriptionID string
		last4          string
	)

	cmd := &cobra.Command{
		Use:   "complete",
		Short: "Record a completed Stripe checkout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if correlationID == "" {
				pending, err := app.verifier.PendingCheckout(cmd.Context())
				if err != nil {
					return err
				}
				if pending == nil || pending.Type != domain.PaymentTypeStripe {
					return errors.New("no pending stripe checkout; pass --correlation-id")
				}
				correlationID = pending.CorrelationID
			}

			if err := app.verifier.RecordPaymentSuccess(cmd.Context(), domain.PaymentSuccess{
				Type:           domain.PaymentTypeStripe,
				CorrelationID:  correlationID,
				CustomerID:     customerID,
				SubscriptionID: subscriptionID,
				Last4:          last4,
			}); err != nil {
				return err
			}
			return applyCompletion(cmd, app)
		},
	}

	cmd.Flags().StringVar(&correlationID, "correlation-id", "", "Client reference id of the checkout (default: the pending checkout)")
	cmd.Flags().StringVar(&customerID, "customer", "", "Stripe customer id")
	cmd.Flags().StringVar(&subscriptionID, "subscription", "", "Stripe subscription id")
	cmd.Flags().StringVar(&last4, "last4", "", "Last four digits of the card")

	return cmd
}

func applyCompletion(cmd *cobra.Command, app *app) error {
	applied, err := app.manager.ApplyPaymentSuccess(cmd.Context())
	if err != nil {
		return err
	}
	if !applied {
		_, err := fmt.Fprintln(cmd.OutOrStdout(), "no payment completion to apply")
		return err
	}
	return printPlan(cmd.OutOrStdout(), app, "payment applied")
}

func printPlan(out io.Writer, app *app, prefix string) error {
	state := app.manager.State()
	line := fmt.Sprintf("%s: %s (%s)", prefix, state.Plan.Details().Name, state.Status)
	if !state.CurrentPeriodEnd.IsZero() {
		line += " until " + state.CurrentPeriodEnd.Format("2006-01-02")
	}
	_, err := fmt.Fprintln(out, line)
	return err
}
