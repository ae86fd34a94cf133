package status

import (
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/charmbracelet/lipgloss"
)

type Entitlement struct {
	State  domain.BillingState
	Config domain.PaymentConfig
}

type RenderOptions struct {
	Now        time.Time
	StaleAfter time.Duration
}

func renderView(entitlement Entitlement, opts RenderOptions, s styles) string {
	state := entitlement.State
	details := state.Plan.Details()

	lines := []string{
		s.title.Render("Home Automation Billing"),
		s.header.Render(fmt.Sprintf("plan: %s", details.Name)),
		s.section.Render(renderPlan(state, opts, s)),
		s.section.Render(renderLimits(details, s)),
		s.section.Render(renderPaymentOptions(entitlement.Config, s)),
	}

	return lipgloss.JoinVertical(lipgloss.Left, lines...)
}

func renderPlan(state domain.BillingState, opts RenderOptions, s styles) string {
	parts := []string{
		s.plan.Render(fmt.Sprintf("%s (%s)", state.Plan.Details().Name, statusLabel(state.Status))),
	}

	if !state.Entitled() {
		parts = append(parts, s.empty.Render("No paid entitlement. Activate a license key or start a checkout."))
		return lipgloss.JoinVertical(lipgloss.Left, parts...)
	}

	parts = append(parts, s.detail.Render("payment: "+paymentLabel(state)))
	if line := periodLine(state, opts, s); line != "" {
		parts = append(parts, line)
	}
	if state.CancelPending() {
		parts = append(parts, s.warning.Render("cancels at period end"))
	}
	if state.Status == domain.StatusPastDue {
		parts = append(parts, s.warning.Render("payment past due"))
	}
	parts = append(parts, verifiedLine(state.LastVerified, opts, s))

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func renderLimits(details domain.PlanDetails, s styles) string {
	watermark := "no"
	if details.Watermark {
		watermark = "yes"
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		s.key.Render("workflows: ")+s.detail.Render(limitLabel(details.WorkflowLimit)),
		s.key.Render("actions: ")+s.detail.Render(limitLabel(details.Usage.MaxActions)),
		s.key.Render("sessions: ")+s.detail.Render(limitLabel(details.Usage.MaxSessions)),
		s.key.Render("watermark: ")+s.detail.Render(watermark),
	)
}

func renderPaymentOptions(cfg domain.PaymentConfig, s styles) string {
	stripe := s.empty.Render("not configured")
	if cfg.StripeConfigured() {
		stripe = s.ok.Render("configured")
	}

	crypto := s.empty.Render("not configured")
	if cfg.CryptoConfigured() {
		crypto = s.ok.Render("configured") + s.meta.Render(" ("+chainNames(cfg.SupportedChainIDs)+")")
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		s.key.Render("stripe: ")+stripe,
		s.key.Render("crypto: ")+crypto,
		s.key.Render("price: ")+s.detail.Render(fmt.Sprintf("$%.2f", cfg.PriceUSD)),
	)
}

func periodLine(state domain.BillingState, opts RenderOptions, s styles) string {
	if state.CurrentPeriodEnd.IsZero() {
		return ""
	}

	length := domain.SubscriptionPeriod
	if state.LicenseKey != "" {
		length = domain.LicensePeriod
	}

	usedPercent := 0.0
	if !opts.Now.IsZero() {
		remaining := state.CurrentPeriodEnd.Sub(opts.Now)
		usedPercent = clampPercent(100 - 100*remaining.Seconds()/length.Seconds())
	}

	leftPercent := clampPercent(100 - usedPercent)
	percentStyle := lipgloss.NewStyle().Foreground(interpolateColor(leftPercent, 0, 100))
	verb := "renews"
	if state.CancelAtPeriodEnd || state.LicenseKey != "" {
		verb = "ends"
	}

	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.key.Render("period:"),
		" ",
		renderProgressBar(usedPercent, 24, s),
		" ",
		percentStyle.Render(fmt.Sprintf("%2.0f%% left", leftPercent)),
		" ",
		s.meta.Render("("+formatPeriodEnd(verb, state.CurrentPeriodEnd, opts.Now)+")"),
	)
}

func verifiedLine(lastVerified time.Time, opts RenderOptions, s styles) string {
	if lastVerified.IsZero() {
		return s.detail.Render("verified: never") + " " + s.warning.Render("[stale]")
	}

	line := s.detail.Render("verified: " + lastVerified.UTC().Format(time.RFC3339))
	if opts.Now.IsZero() {
		return line
	}
	if (domain.VerificationSnapshot{AsOf: lastVerified}).IsStale(opts.Now, opts.StaleAfter) {
		line += " " + s.warning.Render("[stale]")
	}
	return line
}

func statusLabel(status domain.Status) string {
	return strings.ReplaceAll(string(status), "_", " ")
}

func paymentLabel(state domain.BillingState) string {
	if state.LicenseKey != "" {
		return "license " + maskLicenseKey(state.LicenseKey)
	}

	method := state.PaymentMethod
	if method == nil {
		return "unknown"
	}
	switch method.Type {
	case domain.PaymentTypeStripe:
		if method.Last4 != "" {
			return "stripe card ending " + method.Last4
		}
		return "stripe"
	case domain.PaymentTypeCrypto:
		label := "crypto"
		if method.WalletAddress != "" {
			label += " from " + shortAddress(method.WalletAddress)
		}
		if chain, ok := (domain.ChainRegistry{}).Lookup(method.ChainID); ok {
			label += " on " + chain.Name
		}
		return label
	default:
		return string(method.Type)
	}
}

// maskLicenseKey keeps the tier and the checksum segment visible.
func maskLicenseKey(key string) string {
	parts := strings.Split(key, "-")
	if len(parts) != 4 {
		return "****"
	}
	return fmt.Sprintf("%s-%s-********-%s", parts[0], parts[1], parts[3])
}

func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func chainNames(ids []int64) string {
	names := make([]string, 0, len(ids))
	for _, id := range ids {
		if chain, ok := (domain.ChainRegistry{}).Lookup(id); ok {
			names = append(names, chain.Name)
			continue
		}
		names = append(names, fmt.Sprintf("chain %d", id))
	}
	return strings.Join(names, ", ")
}

func limitLabel(limit int) string {
	if limit == domain.Unlimited {
		return "unlimited"
	}
	return fmt.Sprintf("%d", limit)
}

func renderProgressBar(usedPercent float64, width int, s styles) string {
	if width <= 0 {
		return ""
	}

	used := clampPercent(usedPercent)
	leftFraction := (100.0 - used) / 100.0
	filled := int(math.Round(float64(width) * leftFraction))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}

	empty := width - filled
	return lipgloss.JoinHorizontal(
		lipgloss.Top,
		s.barBracket.Render("["),
		s.barFill.Render(strings.Repeat("=", filled)),
		s.barEmpty.Render(strings.Repeat("-", empty)),
		s.barBracket.Render("]"),
	)
}

func clampPercent(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}

func formatPeriodEnd(verb string, end, now time.Time) string {
	if now.IsZero() {
		return verb + " " + end.UTC().Format(time.RFC3339)
	}
	if end.Before(now) {
		return "ended " + end.Format("02 Jan 2006")
	}

	remaining := end.Sub(now)
	if remaining < 24*time.Hour {
		hours := int(math.Ceil(remaining.Hours()))
		if hours < 1 {
			hours = 1
		}
		suffix := "hours"
		if hours == 1 {
			suffix = "hour"
		}
		return fmt.Sprintf("%s in %d %s (%s)", verb, hours, suffix, end.Format("15:04"))
	}

	days := int(math.Ceil(remaining.Hours() / 24))
	suffix := "days"
	if days == 1 {
		suffix = "day"
	}
	return fmt.Sprintf("%s in %d %s (%s)", verb, days, suffix, end.Format("02 Jan 2006"))
}

func interpolateColor(value, min, max float64) lipgloss.Color {
	if max == min {
		return lipgloss.Color("255")
	}

	normalized := (value - min) / (max - min)
	if normalized < 0 {
		normalized = 0
	}
	if normalized > 1 {
		normalized = 1
	}

	// ANSI 256 greyscale ramp, faded at min and bright at max.
	baseColor := 240.0
	targetColor := 255.0
	return lipgloss.Color(fmt.Sprintf("%d", int(baseColor+(targetColor-baseColor)*normalized)))
}
