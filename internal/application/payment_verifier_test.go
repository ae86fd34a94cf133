package application

import (
	"context"
	"errors"
	"net/url"
	"testing"
	"time"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/ports"
	"github.com/bnema/ha-billing/internal/ports/mocks"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

type verifierFixture struct {
	store    ports.KeyValueStore
	configs  *ConfigStore
	lookup   *mocks.MockTransactionLookup
	prices   *mocks.MockPriceFeed
	opener   *mocks.MockURLOpener
	verifier *PaymentVerifier
}

func newVerifierFixture(t *testing.T) verifierFixture {
	t.Helper()

	store := newTestStore(t)
	configs := NewConfigStore(store)
	fixture := verifierFixture{
		store:   store,
		configs: configs,
		lookup:  mocks.NewMockTransactionLookup(t),
		prices:  mocks.NewMockPriceFeed(t),
		opener:  mocks.NewMockURLOpener(t),
	}
	fixture.verifier = NewPaymentVerifier(VerifierDeps{
		Store:            store,
		Config:           configs,
		Chains:           domain.NewChainRegistry(nil),
		Lookup:           fixture.lookup,
		Prices:           fixture.prices,
		Opener:           fixture.opener,
		Clock:            newTestClock(t, testNow),
		VerifyTimeout:    time.Second,
		NewCorrelationID: func() string { return "corr-1" },
	})
	return fixture
}

func TestOpenStripeCheckoutAppendsCorrelationIDAndPersistsPending(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	ctx := context.Background()
	_, err := f.configs.Apply(ctx, cryptoReadyConfig())
	require.NoError(t, err)

	var opened string
	f.opener.EXPECT().Open(mockAnyContext(), mock.AnythingOfType("string")).
		Run(func(_ context.Context, target string) { opened = target }).
		Return(nil)

	target, err := f.verifier.OpenStripeCheckout(ctx)
	require.NoError(t, err)
	assert.Equal(t, opened, target)

	parsed, err := url.Parse(target)
	require.NoError(t, err)
	assert.Equal(t, "corr-1", parsed.Query().Get("client_reference_id"))
	assert.Equal(t, "a@b.c", parsed.Query().Get("prefilled_email"))

	pending, err := f.verifier.PendingCheckout(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, domain.PendingCheckout{
		Plan:          domain.PlanBeta,
		Type:          domain.PaymentTypeStripe,
		CorrelationID: "corr-1",
		CreatedAt:     testNow,
	}, *pending)
}

func TestOpenStripeCheckoutRequiresPaymentLink(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)

	_, err := f.verifier.OpenStripeCheckout(context.Background())

	var configErr *domain.ConfigurationError
	require.True(t, errors.As(err, &configErr))
	assert.ErrorIs(t, err, domain.ErrStripeNotConfigured)
}

func TestInitiateCryptoPaymentConvertsPriceToNativeAmount(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	ctx := context.Background()
	_, err := f.configs.Apply(ctx, cryptoReadyConfig())
	require.NoError(t, err)

	f.prices.EXPECT().USDPrice(mockAnyContext(), "ETH").Return(decimal.NewFromInt(3000), nil)

	request, err := f.verifier.InitiateCryptoPayment(ctx, domain.ChainBase)
	require.NoError(t, err)
	assert.Equal(t, domain.CryptoPaymentRequest{
		To:        recipientAddress,
		Amount:    "0.00333333",
		ChainID:   domain.ChainBase,
		ChainName: "Base",
		Currency:  "ETH",
		USDAmount: "10.00",
	}, request)

	pending, err := f.verifier.PendingCheckout(ctx)
	require.NoError(t, err)
	require.NotNil(t, pending)
	assert.Equal(t, domain.PaymentTypeCrypto, pending.Type)
	assert.Equal(t, domain.ChainBase, pending.ChainID)
}

func TestInitiateCryptoPaymentFailures(t *testing.T) {
	t.Parallel()

	t.Run("recipient not configured", func(t *testing.T) {
		f := newVerifierFixture(t)

		_, err := f.verifier.InitiateCryptoPayment(context.Background(), domain.ChainEthereum)
		assert.ErrorIs(t, err, domain.ErrCryptoNotConfigured)
	})

	t.Run("unsupported chain", func(t *testing.T) {
		f := newVerifierFixture(t)
		ctx := context.Background()
		patch := cryptoReadyConfig()
		patch.SupportedChainIDs = []int64{domain.ChainEthereum}
		_, err := f.configs.Apply(ctx, patch)
		require.NoError(t, err)

		_, err = f.verifier.InitiateCryptoPayment(ctx, domain.ChainArbitrum)

		var validationErr *domain.ValidationError
		require.True(t, errors.As(err, &validationErr))
		assert.ErrorIs(t, err, domain.ErrUnsupportedChain)
	})

	t.Run("price feed failure", func(t *testing.T) {
		f := newVerifierFixture(t)
		ctx := context.Background()
		_, err := f.configs.Apply(ctx, cryptoReadyConfig())
		require.NoError(t, err)
		f.prices.EXPECT().USDPrice(mockAnyContext(), "ETH").Return(decimal.Zero, errors.New("dial tcp: timeout"))

		_, err = f.verifier.InitiateCryptoPayment(ctx, domain.ChainEthereum)

		var networkErr *domain.NetworkError
		require.True(t, errors.As(err, &networkErr))

		pending, err := f.verifier.PendingCheckout(ctx)
		require.NoError(t, err)
		assert.Nil(t, pending)
	})
}

func TestValidateCryptoConfirmation(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	ctx := context.Background()

	testCases := []struct {
		name    string
		txHash  string
		from    string
		chainID int64
		field   string
	}{
		{name: "valid", txHash: testTxHash, from: payerAddress, chainID: domain.ChainEthereum},
		{name: "valid without sender", txHash: testTxHash, chainID: domain.ChainArbitrum},
		{name: "short hash", txHash: "0xabc", chainID: domain.ChainEthereum, field: "txHash"},
		{name: "missing prefix", txHash: testTxHash[2:] + "ab", chainID: domain.ChainEthereum, field: "txHash"},
		{name: "non hex hash", txHash: "0x" + testTxHash[4:] + "zz", chainID: domain.ChainEthereum, field: "txHash"},
		{name: "bad sender", txHash: testTxHash, from: "0x12", chainID: domain.ChainEthereum, field: "fromAddress"},
		{name: "unknown chain", txHash: testTxHash, chainID: 10, field: "chainId"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := f.verifier.ValidateCryptoConfirmation(ctx, tc.txHash, tc.from, tc.chainID)
			if tc.field == "" {
				require.NoError(t, err)
				return
			}

			var validationErr *domain.ValidationError
			require.True(t, errors.As(err, &validationErr))
			assert.Equal(t, tc.field, validationErr.Field)
		})
	}
}

func TestVerifyCryptoPaymentOutcomes(t *testing.T) {
	t.Parallel()

	block := uint64(19_000_000)
	testCases := []struct {
		name    string
		status  domain.TransactionStatus
		err     error
		outcome CryptoOutcome
	}{
		{name: "mined", status: domain.TransactionStatus{Found: true, BlockNumber: &block}, outcome: CryptoConfirmed},
		{name: "in mempool", status: domain.TransactionStatus{Found: true}, outcome: CryptoPending},
		{name: "unknown", status: domain.TransactionStatus{}, outcome: CryptoPending},
		{name: "network error", err: errors.New("connection reset"), outcome: CryptoInconclusive},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			f := newVerifierFixture(t)
			f.lookup.EXPECT().
				TransactionStatus(mockAnyContext(), mock.MatchedBy(func(chain domain.Chain) bool { return chain.ID == domain.ChainEthereum }), testTxHash).
				Return(tc.status, tc.err)

			verification, err := f.verifier.VerifyCryptoPayment(context.Background(), testTxHash, domain.ChainEthereum)
			assert.Equal(t, tc.outcome, verification.Outcome)
			if tc.err != nil {
				var networkErr *domain.NetworkError
				require.True(t, errors.As(err, &networkErr))
				return
			}
			require.NoError(t, err)
		})
	}
}

func TestVerifyCryptoPaymentBoundsLookupWithTimeout(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	f.lookup.EXPECT().TransactionStatus(mockAnyContext(), mock.Anything, testTxHash).
		RunAndReturn(func(ctx context.Context, _ domain.Chain, _ string) (domain.TransactionStatus, error) {
			deadline, ok := ctx.Deadline()
			assert.True(t, ok)
			assert.WithinDuration(t, time.Now().Add(time.Second), deadline, 500*time.Millisecond)
			<-ctx.Done()
			return domain.TransactionStatus{}, ctx.Err()
		})

	verification, err := f.verifier.VerifyCryptoPayment(context.Background(), testTxHash, domain.ChainEthereum)
	assert.Equal(t, CryptoInconclusive, verification.Outcome)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestTakePaymentSuccessConsumesOnce(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	ctx := context.Background()

	require.NoError(t, f.verifier.RecordPaymentSuccess(ctx, domain.PaymentSuccess{
		Type:           domain.PaymentTypeStripe,
		CustomerID:     "cus_1",
		SubscriptionID: "sub_1",
	}))

	success, err := f.verifier.TakePaymentSuccess(ctx)
	require.NoError(t, err)
	require.NotNil(t, success)
	assert.Equal(t, domain.PlanBeta, success.Plan)
	assert.Equal(t, "cus_1", success.CustomerID)
	assert.Equal(t, testNow, success.CreatedAt)

	again, err := f.verifier.TakePaymentSuccess(ctx)
	require.NoError(t, err)
	assert.Nil(t, again)
}

func TestTakePaymentSuccessIgnoresValueConsumedBeforeRetry(t *testing.T) {
	t.Parallel()

	store := retryOnceStore{KeyValueStore: newTestStore(t), key: KeyPaymentSuccess}
	verifier := NewPaymentVerifier(VerifierDeps{
		Store:         store,
		Chains:        domain.NewChainRegistry(nil),
		Lookup:        mocks.NewMockTransactionLookup(t),
		Prices:        mocks.NewMockPriceFeed(t),
		Opener:        mocks.NewMockURLOpener(t),
		Clock:         newTestClock(t, testNow),
		VerifyTimeout: time.Second,
	})
	ctx := context.Background()

	require.NoError(t, verifier.RecordPaymentSuccess(ctx, domain.PaymentSuccess{
		Type:       domain.PaymentTypeStripe,
		CustomerID: "cus_1",
	}))

	success, err := verifier.TakePaymentSuccess(ctx)
	require.NoError(t, err)
	assert.Nil(t, success)
}

func TestTakePaymentSuccessRejectsMismatchedCorrelationID(t *testing.T) {
	t.Parallel()

	f := newVerifierFixture(t)
	ctx := context.Background()
	_, err := f.configs.Apply(ctx, cryptoReadyConfig())
	require.NoError(t, err)
	f.opener.EXPECT().Open(mockAnyContext(), mock.Anything).Return(nil)
	_, err = f.verifier.OpenStripeCheckout(ctx)
	require.NoError(t, err)

	require.NoError(t, f.verifier.RecordPaymentSuccess(ctx, domain.PaymentSuccess{
		Type:          domain.PaymentTypeStripe,
		CorrelationID: "someone-else",
	}))

	success, err := f.verifier.TakePaymentSuccess(ctx)
	assert.Nil(t, success)
	var validationErr *domain.ValidationError
	require.True(t, errors.As(err, &validationErr))
	assert.Equal(t, "correlationId", validationErr.Field)

	values, err := f.store.Get(ctx, KeyPaymentSuccess, KeyPendingCheckout)
	require.NoError(t, err)
	assert.Empty(t, values)
}
