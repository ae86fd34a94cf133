package domain

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParsePlanFoldsLegacyNames(t *testing.T) {
	t.Parallel()

	for raw, want := range map[string]Plan{
		"community": PlanCommunity,
		"FREE":      PlanCommunity,
		"beta":      PlanBeta,
		" Premium ": PlanBeta,
		"unlimited": PlanBeta,
	} {
		got, err := ParsePlan(raw)
		require.NoError(t, err, raw)
		assert.Equal(t, want, got, raw)
	}

	_, err := ParsePlan("enterprise")
	require.Error(t, err)
}

func TestPlanDetailsReturnsCopies(t *testing.T) {
	t.Parallel()

	details := PlanBeta.Details()
	details.Features[0] = "mutated"

	assert.Equal(t, FeatureBasicActions, PlanBeta.Details().Features[0])
	assert.Equal(t, PlanCommunity, Plan("bogus").Details().Plan)
}

func TestPlanAllowsAndUsageLimits(t *testing.T) {
	t.Parallel()

	assert.True(t, PlanCommunity.Allows(FeatureWorkflows))
	assert.False(t, PlanCommunity.Allows(FeatureExport))
	assert.True(t, PlanBeta.Allows(FeaturePrioritySupport))

	community := PlanCommunity.Details().Usage
	assert.True(t, community.Allows(500, 10))
	assert.False(t, community.Allows(500, 11))
	assert.True(t, PlanBeta.Details().Usage.Allows(1<<30, 1<<30))
}

func TestBillingStateNormalizeAndEntitlement(t *testing.T) {
	t.Parallel()

	state := BillingState{Plan: "premium", Status: " PAST_DUE "}
	state.Normalize()
	assert.Equal(t, PlanBeta, state.Plan)
	assert.Equal(t, StatusPastDue, state.Status)
	assert.True(t, state.Entitled())

	stale := BillingState{Plan: "garbage", Status: "", SubscriptionID: "sub_1", CancelAtPeriodEnd: true}
	stale.Normalize()
	assert.Equal(t, PlanCommunity, stale.Plan)
	assert.Equal(t, StatusActive, stale.Status)
	assert.False(t, stale.Entitled())
	assert.False(t, stale.CancelPending())
}

func TestBillingStatePeriodEnded(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, BillingState{}.PeriodEnded(now))
	assert.False(t, BillingState{CurrentPeriodEnd: now}.PeriodEnded(now))
	assert.True(t, BillingState{CurrentPeriodEnd: now}.PeriodEnded(now.Add(time.Millisecond)))
}

func TestVerificationSnapshotIsStale(t *testing.T) {
	t.Parallel()

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, VerificationSnapshot{}.IsStale(now, VerificationMaxAge))
	assert.False(t, VerificationSnapshot{AsOf: now.Add(-VerificationMaxAge)}.IsStale(now, VerificationMaxAge))
	assert.True(t, VerificationSnapshot{AsOf: now.Add(-VerificationMaxAge - time.Second)}.IsStale(now, VerificationMaxAge))
	assert.False(t, VerificationSnapshot{AsOf: now.Add(-time.Hour)}.IsStale(now, 0))
}

func TestPaymentConfigValidate(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		name  string
		cfg   PaymentConfig
		field string
	}{
		{name: "defaults", cfg: DefaultPaymentConfig()},
		{name: "stripe key prefix", cfg: PaymentConfig{StripePublishableKey: "sk_1", PriceUSD: 10}, field: "stripePublishableKey"},
		{name: "relative link", cfg: PaymentConfig{StripePaymentLink: "/buy", PriceUSD: 10}, field: "stripePaymentLink"},
		{name: "zero address", cfg: PaymentConfig{CryptoRecipientAddress: "0x0000000000000000000000000000000000000000", PriceUSD: 10}, field: "cryptoRecipientAddress"},
		{name: "short address", cfg: PaymentConfig{CryptoRecipientAddress: "0xabc", PriceUSD: 10}, field: "cryptoRecipientAddress"},
		{name: "negative chain", cfg: PaymentConfig{SupportedChainIDs: []int64{-1}, PriceUSD: 10}, field: "supportedChainIds[0]"},
		{name: "zero price", cfg: PaymentConfig{}, field: "priceUsd"},
		{name: "full", cfg: PaymentConfig{
			StripePublishableKey:   "pk_live_1",
			StripePaymentLink:      "https://buy.stripe.com/x",
			CryptoRecipientAddress: "0xabcdef0123456789abcdef0123456789abcdef01",
			SupportedChainIDs:      []int64{1},
			PriceUSD:               9.5,
		}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.cfg.Validate()
			if tc.field == "" {
				require.NoError(t, err)
				return
			}

			var configErr *ConfigurationError
			require.True(t, errors.As(err, &configErr))
			assert.Equal(t, tc.field, configErr.Field)
		})
	}
}

func TestPaymentConfigMergeAndConfiguredChecks(t *testing.T) {
	t.Parallel()

	address := "  0x1111111111111111111111111111111111111111 "
	link := "https://buy.stripe.com/x"
	cfg := DefaultPaymentConfig().Merge(PaymentConfigPatch{CryptoRecipientAddress: &address, StripePaymentLink: &link})

	assert.Equal(t, "0x1111111111111111111111111111111111111111", cfg.CryptoRecipientAddress)
	assert.True(t, cfg.CryptoConfigured())
	assert.True(t, cfg.StripeConfigured())
	assert.True(t, cfg.SupportsChain(ChainArbitrum))
	assert.False(t, cfg.SupportsChain(10))

	assert.False(t, IsRealAddress("0x0000000000000000000000000000000000000000"))
	assert.False(t, IsHexAddress("1111111111111111111111111111111111111111"))
}

func TestChainRegistry(t *testing.T) {
	t.Parallel()

	registry := NewChainRegistry(map[int64]string{ChainBase: "http://localhost:9999/api"})

	base, ok := registry.Lookup(ChainBase)
	require.True(t, ok)
	assert.Equal(t, "http://localhost:9999/api", base.ExplorerAPI)
	assert.Equal(t, "ETH", base.Currency)

	_, ok = registry.Lookup(10)
	assert.False(t, ok)

	var ids []int64
	for _, chain := range registry.All() {
		ids = append(ids, chain.ID)
	}
	assert.Equal(t, DefaultChainIDs(), ids)

	var zero ChainRegistry
	eth, ok := zero.Lookup(ChainEthereum)
	require.True(t, ok)
	assert.Equal(t, "https://api.etherscan.io/api", eth.ExplorerAPI)
}

func TestRateLimitRecord(t *testing.T) {
	t.Parallel()

	start := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	record := RateLimitRecord{Attempts: MaxLicenseAttempts, FirstAttemptTime: start}

	assert.True(t, record.Blocked(start.Add(59*time.Minute), LicenseAttemptWindow, MaxLicenseAttempts))
	assert.Equal(t, time.Minute, record.Remaining(start.Add(59*time.Minute), LicenseAttemptWindow))
	assert.True(t, record.Expired(start.Add(LicenseAttemptWindow), LicenseAttemptWindow))
	assert.False(t, record.Blocked(start.Add(LicenseAttemptWindow), LicenseAttemptWindow, MaxLicenseAttempts))
	assert.Zero(t, record.Remaining(start.Add(2*time.Hour), LicenseAttemptWindow))
}

func TestRateLimitErrorMessage(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Too many failed attempts. Please try again in 1 minute.", (&RateLimitError{Remaining: 10 * time.Second}).Error())
	assert.Equal(t, "Too many failed attempts. Please try again in 42 minutes.", (&RateLimitError{Remaining: 41*time.Minute + time.Second}).Error())
}

func TestTransactionStatusConfirmed(t *testing.T) {
	t.Parallel()

	block := uint64(1)
	assert.False(t, TransactionStatus{Found: true}.Confirmed())
	assert.True(t, TransactionStatus{Found: true, BlockNumber: &block}.Confirmed())
}
