package cmd

import (
	"context"

	"github.com/spf13/cobra"
)

// skipInitAnnotation marks commands that never read billing state.
const skipInitAnnotation = "habill/skip-init"

func Execute() error {
	return ExecuteContext(context.Background())
}

func ExecuteContext(ctx context.Context) error {
	return newRootCmd().ExecuteContext(ctx)
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "habill",
		Short:         "Home automation billing (habill): licenses, subscriptions and entitlements",
		Long:          "habill manages the entitlement record of a home automation install: license key activation, Stripe and on-chain checkout, cancellation, periodic verification and plan limits.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	app, err := wireApp(rootCmd)
	if err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error {
			return err
		}
		rootCmd.AddCommand(newVersionCmd())
		return rootCmd
	}

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		if cmd.Annotations[skipInitAnnotation] == "true" {
			return nil
		}
		return app.initialize(cmd.Context())
	}
	rootCmd.PersistentPostRunE = func(_ *cobra.Command, _ []string) error {
		return app.close()
	}

	rootCmd.AddCommand(
		newVersionCmd(),
		newStatusCmd(app),
		newLicenseCmd(app),
		newCheckoutCmd(app),
		newCryptoCmd(app),
		newCancelCmd(app),
		newVerifyCmd(app),
		newConfigCmd(app),
		newResetCmd(app),
		newWatchCmd(app),
	)

	return rootCmd
}
