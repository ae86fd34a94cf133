package cmd

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/spf13/cobra"
)

func newCryptoCmd(app *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "crypto",
		Short: "Pay for the beta plan on chain",
	}

	cmd.AddCommand(
		newCryptoPayCmd(app),
		newCryptoConfirmCmd(app),
	)

	return cmd
}

func newCryptoPayCmd(app *app) *cobra.Command {
	var chain string
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "pay",
		Short: "Quote the native amount to send for one period",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chainID, err := parseChain(app, chain)
			if err != nil {
				return err
			}

			result := app.manager.InitiateCryptoPayment(cmd.Context(), chainID)
			if err := checkResult(result.Result); err != nil {
				return err
			}
			request := result.Request

			if asJSON {
				return writeJSON(cmd.OutOrStdout(), request)
			}
			_, err = fmt.Fprintf(cmd.OutOrStdout(),
				"send %s %s on %s to %s (%s USD)\nthen run: habill crypto confirm --chain %d --tx <hash>\n",
				request.Amount, request.Currency, request.ChainName, request.To, request.USDAmount, request.ChainID)
			return err
		},
	}

	cmd.Flags().StringVar(&chain, "chain", "base", "Chain id or name")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func newCryptoConfirmCmd(app *app) *cobra.Command {
	var (
		chain  string
		txHash string
		from   string
	)

	cmd := &cobra.Command{
		Use:   "confirm",
		Short: "Grant the beta plan for a sent transaction",
		Long:  "Record the transaction hash of a payment. The plan is granted right away and settled against the chain on the next verification.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			chainID, err := parseChain(app, chain)
			if err != nil {
				return err
			}

			if err := checkResult(app.manager.ConfirmCryptoPayment(cmd.Context(), txHash, from, chainID)); err != nil {
				return err
			}
			return printPlan(cmd.OutOrStdout(), app, "payment recorded")
		},
	}

	cmd.Flags().StringVar(&chain, "chain", "base", "Chain id or name")
	cmd.Flags().StringVar(&txHash, "tx", "", "Transaction hash")
	cmd.Flags().StringVar(&from, "from", "", "Sending wallet address")
	_ = cmd.MarkFlagRequired("tx")

	return cmd
}

// parseChain accepts a numeric chain id or a case-insensitive chain name
// prefix such as "base" or "arbitrum".
func parseChain(app *app, raw string) (int64, error) {
	value := strings.TrimSpace(raw)
	if id, err := strconv.ParseInt(value, 10, 64); err == nil {
		return id, nil
	}

	needle := strings.ToLower(value)
	if needle != "" {
		for _, chain := range domain.NewChainRegistry(app.settings.Verify.Explorers).All() {
			if strings.HasPrefix(strings.ToLower(chain.Name), needle) {
				return chain.ID, nil
			}
		}
	}
	return 0, fmt.Errorf("unknown chain %q", raw)
}
