package status

import (
	"testing"
	"time"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func TestRenderCommunityPlan(t *testing.T) {
	output, err := Render(Entitlement{
		State:  domain.DefaultBillingState(),
		Config: domain.DefaultPaymentConfig(),
	}, RenderOptions{Now: now, StaleAfter: domain.VerificationMaxAge})

	require.NoError(t, err)
	assert.Contains(t, output, "Home Automation Billing")
	assert.Contains(t, output, "Community (active)")
	assert.Contains(t, output, "No paid entitlement")
	assert.Contains(t, output, "workflows: 3")
	assert.Contains(t, output, "actions: 500")
	assert.Contains(t, output, "watermark: yes")
	assert.Contains(t, output, "stripe: not configured")
	assert.Contains(t, output, "price: $10.00")
	assert.NotContains(t, output, "period:")
}

func TestRenderLicensedBetaPlan(t *testing.T) {
	output, err := Render(Entitlement{
		State: domain.BillingState{
			Plan:             domain.PlanBeta,
			Status:           domain.StatusActive,
			LicenseKey:       "HA-BETA-ABCDEFGH-1234567X",
			CurrentPeriodEnd: now.Add(100 * 24 * time.Hour),
			LastVerified:     now.Add(-time.Hour),
		},
		Config: domain.PaymentConfig{
			StripePaymentLink:      "https://buy.stripe.com/test",
			CryptoRecipientAddress: "0x1111111111111111111111111111111111111111",
			SupportedChainIDs:      []int64{domain.ChainEthereum, domain.ChainBase},
			PriceUSD:               10,
		},
	}, RenderOptions{Now: now, StaleAfter: domain.VerificationMaxAge})

	require.NoError(t, err)
	assert.Contains(t, output, "Beta (active)")
	assert.Contains(t, output, "license HA-BETA-********-1234567X")
	assert.NotContains(t, output, "ABCDEFGH")
	assert.Contains(t, output, "27% left")
	assert.Contains(t, output, "ends in 100 days")
	assert.Contains(t, output, "workflows: unlimited")
	assert.Contains(t, output, "watermark: no")
	assert.Contains(t, output, "stripe: configured")
	assert.Contains(t, output, "(Ethereum, Base)")
	assert.NotContains(t, output, "[stale]")
}

func TestRenderCancelPendingStripePlan(t *testing.T) {
	output, err := Render(Entitlement{
		State: domain.BillingState{
			Plan:              domain.PlanBeta,
			Status:            domain.StatusActive,
			PaymentMethod:     &domain.PaymentMethod{Type: domain.PaymentTypeStripe, Last4: "4242"},
			CurrentPeriodEnd:  now.Add(5 * time.Hour),
			CancelAtPeriodEnd: true,
			LastVerified:      now.Add(-48 * time.Hour),
		},
		Config: domain.DefaultPaymentConfig(),
	}, RenderOptions{Now: now, StaleAfter: domain.VerificationMaxAge})

	require.NoError(t, err)
	assert.Contains(t, output, "stripe card ending 4242")
	assert.Contains(t, output, "cancels at period end")
	assert.Contains(t, output, "ends in 5 hours (17:00)")
	assert.Contains(t, output, "[stale]")
}

func TestRenderPastDueCryptoPlan(t *testing.T) {
	output, err := Render(Entitlement{
		State: domain.BillingState{
			Plan:   domain.PlanBeta,
			Status: domain.StatusPastDue,
			PaymentMethod: &domain.PaymentMethod{
				Type:          domain.PaymentTypeCrypto,
				WalletAddress: "0x2222222222222222222222222222222222223333",
				ChainID:       domain.ChainBase,
			},
			CurrentPeriodEnd: now.Add(-24 * time.Hour),
		},
		Config: domain.DefaultPaymentConfig(),
	}, RenderOptions{Now: now, StaleAfter: domain.VerificationMaxAge})

	require.NoError(t, err)
	assert.Contains(t, output, "Beta (past due)")
	assert.Contains(t, output, "crypto from 0x2222...3333 on Base")
	assert.Contains(t, output, "payment past due")
	assert.Contains(t, output, "ended 28 Feb 2026")
	assert.Contains(t, output, "verified: never")
}

func TestMaskLicenseKeyHandlesUnexpectedShapes(t *testing.T) {
	assert.Equal(t, "****", maskLicenseKey("garbage"))
}

func TestInterpolateColorClampsRange(t *testing.T) {
	assert.Equal(t, "240", string(interpolateColor(-5, 0, 100)))
	assert.Equal(t, "255", string(interpolateColor(500, 0, 100)))
	assert.Equal(t, "255", string(interpolateColor(1, 1, 1)))
}
