package cmd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/spf13/cobra"
)

type paymentConfigOutput struct {
	StripePublishableKey   string  `json:"stripePublishableKey,omitempty"`
	StripePaymentLink      string  `json:"stripePaymentLink,omitempty"`
	CryptoRecipientAddress string  `json:"cryptoRecipientAddress,omitempty"`
	SupportedChainIDs      []int64 `json:"supportedChainIds"`
	PriceUSD               float64 `json:"priceUsd"`
	ExplorerAPIKey         string  `json:"explorerApiKey,omitempty"`
}

func newConfigCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show and change payment settings",
	}

	cmd.AddCommand(
		newConfigShowCmd(app),
		newConfigSetCmd(app),
	)

	return cmd
}

func newConfigShowCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show",
		Short: "Print the stored payment settings",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			out := newPaymentConfigOutput(app.manager.PaymentConfig())
			if asJSON {
				return writeJSON(cmd.OutOrStdout(), out)
			}

			chains := make([]string, 0, len(out.SupportedChainIDs))
			for _, id := range out.SupportedChainIDs {
				chains = append(chains, strconv.FormatInt(id, 10))
			}
			lines := []string{
				"stripe key:     " + orUnset(out.StripePublishableKey),
				"stripe link:    " + orUnset(out.StripePaymentLink),
				"crypto address: " + orUnset(out.CryptoRecipientAddress),
				"chains:         " + strings.Join(chains, ", "),
				fmt.Sprintf("price:          $%.2f", out.PriceUSD),
				"explorer key:   " + orUnset(out.ExplorerAPIKey),
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), strings.Join(lines, "\n"))
			return err
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newConfigSetCmd(app *app) *cobra.Command {
	var (
		stripeKey   string
		stripeLink  string
		recipient   string
		chains      []int64
		priceUSD    float64
		explorerKey string
	)

	cmd := &cobra.Command{
		Use:   "set",
		Short: "Change payment settings; omitted flags keep their value",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			flags := cmd.Flags()
			if flags.NFlag() == 0 {
				return errors.New("nothing to change; pass at least one setting flag")
			}

			var patch domain.PaymentConfigPatch
			if flags.Changed("stripe-key") {
				patch.StripePublishableKey = &stripeKey
			}
			if flags.Changed("stripe-link") {
				patch.StripePaymentLink = &stripeLink
			}
			if flags.Changed("recipient") {
				patch.CryptoRecipientAddress = &recipient
			}
			if flags.Changed("chains") {
				patch.SupportedChainIDs = chains
			}
			if flags.Changed("price") {
				patch.PriceUSD = &priceUSD
			}
			if flags.Changed("explorer-key") {
				patch.ExplorerAPIKey = &explorerKey
			}
			if err := checkResult(app.manager.ConfigurePayment(cmd.Context(), patch)); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "payment settings saved")
			return err
		},
	}

	cmd.Flags().StringVar(&stripeKey, "stripe-key", "", "Stripe publishable key (pk_...)")
	cmd.Flags().StringVar(&stripeLink, "stripe-link", "", "Stripe payment link URL")
	cmd.Flags().StringVar(&recipient, "recipient", "", "Wallet address receiving crypto payments")
	cmd.Flags().Int64SliceVar(&chains, "chains", nil, "Chain ids accepted for crypto payments")
	cmd.Flags().Float64Var(&priceUSD, "price", domain.DefaultPriceUSD, "Price of one period in USD")
	cmd.Flags().StringVar(&explorerKey, "explorer-key", "", "Block explorer API key")

	return cmd
}

func newPaymentConfigOutput(cfg domain.PaymentConfig) paymentConfigOutput {
	return paymentConfigOutput{
		StripePublishableKey:   cfg.StripePublishableKey,
		StripePaymentLink:      cfg.StripePaymentLink,
		CryptoRecipientAddress: cfg.CryptoRecipientAddress,
		SupportedChainIDs:      cfg.SupportedChainIDs,
		PriceUSD:               cfg.PriceUSD,
		ExplorerAPIKey:         maskSecret(cfg.ExplorerAPIKey),
	}
}

func maskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return strings.Repeat("*", len(secret)-4) + secret[len(secret)-4:]
}

func orUnset(value string) string {
	if value == "" {
		return "(unset)"
	}
	return value
}
