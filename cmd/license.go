package cmd

import (
	"errors"
	"fmt"

	"github.com/bnema/ha-billing/internal/licensekey"
	"github.com/spf13/cobra"
)

func newLicenseCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "license",
		Short: "Generate and activate license keys",
	}

	cmd.AddCommand(
		newLicenseGenerateCmd(),
		newLicenseActivateCmd(app),
	)

	return cmd
}

func newLicenseGenerateCmd() *cobra.Command {
	var tier string
	var count int

	cmd := &cobra.Command{
		Use:         "generate",
		Short:       "Generate offline license keys",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{skipInitAnnotation: "true"},
		RunE: func(cmd *cobra.Command, _ []string) error {
			parsed, err := licensekey.ParseTier(tier)
			if err != nil {
				return err
			}
			if count < 1 {
				return errors.New("--count must be at least 1")
			}

			for range count {
				key, err := licensekey.Generate(parsed)
				if err != nil {
					return fmt.Errorf("generate license key: %w", err)
				}
				if _, err := fmt.Fprintln(cmd.OutOrStdout(), key); err != nil {
					return err
				}
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&tier, "tier", string(licensekey.TierBeta), "License tier: BETA, PREMIUM or UNLIMITED")
	cmd.Flags().IntVar(&count, "count", 1, "Number of keys to generate")

	return cmd
}

func newLicenseActivateCmd(app *app) *cobra.Command {
	return &cobra.Command{
		Use:   "activate KEY",
		Short: "Activate a license key on this install",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := checkResult(app.manager.ActivateWithLicenseKey(cmd.Context(), args[0])); err != nil {
				return err
			}

			state := app.manager.State()
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "license activated: %s until %s\n",
				state.Plan.Details().Name, state.CurrentPeriodEnd.Format("2006-01-02"))
			return err
		},
	}
}
