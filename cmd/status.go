package cmd

import (
	"fmt"
	"time"

	statusadapter "github.com/bnema/ha-billing/internal/adapters/render/status"
	"github.com/bnema/ha-billing/internal/domain"
	"github.com/spf13/cobra"
)

type statusOutput struct {
	Plan              domain.Plan   `json:"plan"`
	PlanName          string        `json:"planName"`
	Status            domain.Status `json:"status"`
	Entitled          bool          `json:"entitled"`
	PaymentType       string        `json:"paymentType,omitempty"`
	CurrentPeriodEnd  *time.Time    `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool          `json:"cancelAtPeriodEnd"`
	LastVerified      *time.Time    `json:"lastVerified,omitempty"`
	Stale             bool          `json:"stale"`
	Watermark         bool          `json:"watermark"`
	WorkflowLimit     int           `json:"workflowLimit"`
	MaxActions        int           `json:"maxActions"`
	MaxSessions       int           `json:"maxSessions"`
}

func newStatusCmd(app *app) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show the current plan, period and limits",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return writeStatus(cmd, app, asJSON)
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Render JSON output")

	return cmd
}

func writeStatus(cmd *cobra.Command, app *app, asJSON bool) error {
	state := app.manager.State()

	if asJSON {
		return writeJSON(cmd.OutOrStdout(), newStatusOutput(state, app.now(), app.settings.Verify.Interval))
	}

	rendered, err := app.statusRenderer(statusadapter.Entitlement{
		State:  state,
		Config: app.manager.PaymentConfig(),
	}, statusadapter.RenderOptions{
		Now:        app.now(),
		StaleAfter: app.settings.Verify.Interval,
	})
	if err != nil {
		return fmt.Errorf("render status: %w", err)
	}

	_, err = fmt.Fprintln(cmd.OutOrStdout(), rendered)
	return err
}

func newStatusOutput(state domain.BillingState, now time.Time, staleAfter time.Duration) statusOutput {
	details := state.Plan.Details()
	out := statusOutput{
		Plan:              state.Plan,
		PlanName:          details.Name,
		Status:            state.Status,
		Entitled:          state.Entitled(),
		CancelAtPeriodEnd: state.CancelAtPeriodEnd,
		Stale:             state.LastVerified.IsZero() || now.Sub(state.LastVerified) > staleAfter,
		Watermark:         details.Watermark,
		WorkflowLimit:     details.WorkflowLimit,
		MaxActions:        details.Usage.MaxActions,
		MaxSessions:       details.Usage.MaxSessions,
	}
	if state.PaymentMethod != nil {
		out.PaymentType = string(state.PaymentMethod.Type)
	} else if state.LicenseKey != "" {
		out.PaymentType = "license"
	}
	if !state.CurrentPeriodEnd.IsZero() {
		periodEnd := state.CurrentPeriodEnd
		out.CurrentPeriodEnd = &periodEnd
	}
	if !state.LastVerified.IsZero() {
		lastVerified := state.LastVerified
		out.LastVerified = &lastVerified
	}
	return out
}
