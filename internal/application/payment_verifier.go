package application

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/ports"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	DefaultVerifyTimeout = 5 * time.Second

	clientReferenceParam = "client_reference_id"
	txHashLength         = 32
	amountDecimals       = 8
)

type CryptoOutcome string

const (
	CryptoConfirmed    CryptoOutcome = "confirmed"
	CryptoPending      CryptoOutcome = "pending"
	CryptoInconclusive CryptoOutcome = "inconclusive"
)

type CryptoVerification struct {
	Outcome CryptoOutcome
	Status  domain.TransactionStatus
}

type VerifierDeps struct {
	Store         ports.KeyValueStore
	Config        *ConfigStore
	Chains        domain.ChainRegistry
	Lookup        ports.TransactionLookup
	Prices        ports.PriceFeed
	Opener        ports.URLOpener
	Clock         ports.Clock
	VerifyTimeout time.Duration
	// NewCorrelationID defaults to uuid.NewString.
	NewCorrelationID func() string
}

// PaymentVerifier owns the Stripe hand-off and on-chain confirmation paths.
// It writes breadcrumbs but never touches BillingState.
type PaymentVerifier struct {
	kv            ports.KeyValueStore
	config        *ConfigStore
	chains        domain.ChainRegistry
	lookup        ports.TransactionLookup
	prices        ports.PriceFeed
	opener        ports.URLOpener
	clock         ports.Clock
	verifyTimeout time.Duration
	newID         func() string
}

func NewPaymentVerifier(deps VerifierDeps) *PaymentVerifier {
	clock := deps.Clock
	if clock == nil {
		clock = ports.SystemClock{}
	}
	timeout := deps.VerifyTimeout
	if timeout <= 0 {
		timeout = DefaultVerifyTimeout
	}
	newID := deps.NewCorrelationID
	if newID == nil {
		newID = uuid.NewString
	}
	config := deps.Config
	if config == nil {
		config = NewConfigStore(deps.Store)
	}

	return &PaymentVerifier{
		kv:            deps.Store,
		config:        config,
		chains:        deps.Chains,
		lookup:        deps.Lookup,
		prices:        deps.Prices,
		opener:        deps.Opener,
		clock:         clock,
		verifyTimeout: timeout,
		newID:         newID,
	}
}

// OpenStripeCheckout records a pending checkout and hands the payment link,
// tagged with a fresh correlation id, to the URL opener.
func (v *PaymentVerifier) OpenStripeCheckout(ctx context.Context) (string, error) {
	cfg, err := v.config.Load(ctx)
	if err != nil {
		return "", err
	}
	if !cfg.StripeConfigured() {
		return "", &domain.ConfigurationError{Field: "stripePaymentLink", Reason: "is not configured", Err: domain.ErrStripeNotConfigured}
	}
	if v.opener == nil {
		return "", errors.New("url opener is not configured")
	}

	checkoutURL, err := url.Parse(cfg.StripePaymentLink)
	if err != nil {
		return "", &domain.ConfigurationError{Field: "stripePaymentLink", Reason: "is not a valid URL", Err: err}
	}

	correlationID := v.newID()
	query := checkoutURL.Query()
	query.Set(clientReferenceParam, correlationID)
	checkoutURL.RawQuery = query.Encode()

	if err := v.savePending(ctx, domain.PendingCheckout{
		Plan:          domain.PlanBeta,
		Type:          domain.PaymentTypeStripe,
		CorrelationID: correlationID,
		CreatedAt:     v.clock.Now(),
	}); err != nil {
		return "", err
	}

	target := checkoutURL.String()
	if err := v.opener.Open(ctx, target); err != nil {
		return "", fmt.Errorf("open stripe checkout: %w", err)
	}

	return target, nil
}

func (v *PaymentVerifier) PendingCheckout(ctx context.Context) (*domain.PendingCheckout, error) {
	values, err := v.kv.Get(ctx, KeyPendingCheckout)
	if err != nil {
		return nil, fmt.Errorf("load pending checkout: %w", err)
	}
	raw, ok := values[KeyPendingCheckout]
	if !ok {
		return nil, nil
	}

	pending, err := decodePendingCheckout(raw)
	if err != nil {
		return nil, err
	}
	return &pending, nil
}

func (v *PaymentVerifier) RecordPaymentSuccess(ctx context.Context, success domain.PaymentSuccess) error {
	if success.Plan == "" {
		success.Plan = domain.PlanBeta
	}
	if success.CreatedAt.IsZero() {
		success.CreatedAt = v.clock.Now()
	}

	data, err := encodePaymentSuccess(success)
	if err != nil {
		return err
	}
	if err := v.kv.Set(ctx, map[string][]byte{KeyPaymentSuccess: data}); err != nil {
		return fmt.Errorf("record payment success: %w", err)
	}
	return nil
}

// TakePaymentSuccess consumes the breadcrumb at most once across instances.
// A Stripe completion whose correlation id does not answer the pending
// checkout is discarded and reported as a *domain.ValidationError.
func (v *PaymentVerifier) TakePaymentSuccess(ctx context.Context) (*domain.PaymentSuccess, error) {
	pending, err := v.PendingCheckout(ctx)
	if err != nil {
		return nil, err
	}

	var (
		taken     *domain.PaymentSuccess
		decodeErr error
	)
	err = v.kv.Update(ctx, KeyPaymentSuccess, func(current []byte) ([]byte, error) {
		taken, decodeErr = nil, nil
		if current == nil {
			return nil, nil
		}
		success, err := decodePaymentSuccess(current)
		if err != nil {
			decodeErr = err
			return nil, nil
		}
		taken = &success
		return nil, nil
	})
	if err != nil {
		return nil, fmt.Errorf("take payment success: %w", err)
	}
	if decodeErr != nil {
		return nil, decodeErr
	}
	if taken == nil {
		return nil, nil
	}

	if err := v.kv.Remove(ctx, KeyPendingCheckout); err != nil {
		return nil, fmt.Errorf("remove pending checkout: %w", err)
	}

	if taken.Type == domain.PaymentTypeStripe && pending != nil && pending.CorrelationID != "" &&
		taken.CorrelationID != "" && taken.CorrelationID != pending.CorrelationID {
		return nil, &domain.ValidationError{Field: "correlationId", Reason: "payment completion does not match the pending checkout"}
	}

	return taken, nil
}

func (v *PaymentVerifier) ClearBreadcrumbs(ctx context.Context) error {
	if err := v.kv.Remove(ctx, KeyPendingCheckout, KeyPaymentSuccess); err != nil {
		return fmt.Errorf("clear payment breadcrumbs: %w", err)
	}
	return nil
}

func (v *PaymentVerifier) InitiateCryptoPayment(ctx context.Context, chainID int64) (domain.CryptoPaymentRequest, error) {
	cfg, err := v.config.Load(ctx)
	if err != nil {
		return domain.CryptoPaymentRequest{}, err
	}
	if !cfg.CryptoConfigured() {
		return domain.CryptoPaymentRequest{}, &domain.ConfigurationError{Field: "cryptoRecipientAddress", Reason: "is not configured", Err: domain.ErrCryptoNotConfigured}
	}

	chain, err := v.supportedChain(cfg, chainID)
	if err != nil {
		return domain.CryptoPaymentRequest{}, err
	}
	if v.prices == nil {
		return domain.CryptoPaymentRequest{}, errors.New("price feed is not configured")
	}

	nativeUSD, err := v.prices.USDPrice(ctx, chain.Currency)
	if err != nil {
		return domain.CryptoPaymentRequest{}, asNetworkError("fetch "+chain.Currency+" price", err)
	}
	if !nativeUSD.IsPositive() {
		return domain.CryptoPaymentRequest{}, &domain.NetworkError{Op: "fetch " + chain.Currency + " price", Err: fmt.Errorf("non-positive price %s", nativeUSD)}
	}

	usd := decimal.NewFromFloat(cfg.PriceUSD)
	request := domain.CryptoPaymentRequest{
		To:        cfg.CryptoRecipientAddress,
		Amount:    usd.DivRound(nativeUSD, amountDecimals).StringFixed(amountDecimals),
		ChainID:   chain.ID,
		ChainName: chain.Name,
		Currency:  chain.Currency,
		USDAmount: usd.StringFixed(2),
	}

	if err := v.savePending(ctx, domain.PendingCheckout{
		Plan:      domain.PlanBeta,
		Type:      domain.PaymentTypeCrypto,
		ChainID:   chain.ID,
		CreatedAt: v.clock.Now(),
	}); err != nil {
		return domain.CryptoPaymentRequest{}, err
	}

	return request, nil
}

// ValidateCryptoConfirmation checks user input before anything is granted.
// fromAddress is optional.
func (v *PaymentVerifier) ValidateCryptoConfirmation(ctx context.Context, txHash, fromAddress string, chainID int64) error {
	if !IsTxHash(txHash) {
		return &domain.ValidationError{Field: "txHash", Reason: "must be 0x followed by 64 hex characters", Err: domain.ErrInvalidTxHash}
	}
	if fromAddress != "" && !domain.IsHexAddress(fromAddress) {
		return &domain.ValidationError{Field: "fromAddress", Reason: "must be 0x followed by 40 hex characters"}
	}

	cfg, err := v.config.Load(ctx)
	if err != nil {
		return err
	}
	_, err = v.supportedChain(cfg, chainID)
	return err
}

// VerifyCryptoPayment looks the transaction up within the verify timeout.
// Lookup failures come back as CryptoInconclusive with a *domain.NetworkError;
// callers keep the current entitlement in that case.
func (v *PaymentVerifier) VerifyCryptoPayment(ctx context.Context, txHash string, chainID int64) (CryptoVerification, error) {
	chain, ok := v.chains.Lookup(chainID)
	if !ok {
		return CryptoVerification{Outcome: CryptoInconclusive}, &domain.NetworkError{
			Op:  "verify crypto payment",
			Err: fmt.Errorf("%w: %d", domain.ErrUnsupportedChain, chainID),
		}
	}
	if v.lookup == nil {
		return CryptoVerification{Outcome: CryptoInconclusive}, &domain.NetworkError{Op: "verify crypto payment", Err: errors.New("transaction lookup is not configured")}
	}

	lookupCtx, cancel := context.WithTimeout(ctx, v.verifyTimeout)
	defer cancel()

	status, err := v.lookup.TransactionStatus(lookupCtx, chain, txHash)
	if err != nil {
		return CryptoVerification{Outcome: CryptoInconclusive}, asNetworkError("look up transaction on "+chain.Name, err)
	}

	if status.Confirmed() {
		return CryptoVerification{Outcome: CryptoConfirmed, Status: status}, nil
	}
	return CryptoVerification{Outcome: CryptoPending, Status: status}, nil
}

func (v *PaymentVerifier) supportedChain(cfg domain.PaymentConfig, chainID int64) (domain.Chain, error) {
	chain, known := v.chains.Lookup(chainID)
	if !known || !cfg.SupportsChain(chainID) {
		return domain.Chain{}, &domain.ValidationError{
			Field:  "chainId",
			Reason: fmt.Sprintf("chain %d is not supported", chainID),
			Err:    domain.ErrUnsupportedChain,
		}
	}
	return chain, nil
}

func (v *PaymentVerifier) savePending(ctx context.Context, pending domain.PendingCheckout) error {
	data, err := encodePendingCheckout(pending)
	if err != nil {
		return err
	}
	if err := v.kv.Set(ctx, map[string][]byte{KeyPendingCheckout: data}); err != nil {
		return fmt.Errorf("save pending checkout: %w", err)
	}
	return nil
}

// IsTxHash matches 0x followed by exactly 64 hex characters.
func IsTxHash(txHash string) bool {
	if !strings.HasPrefix(txHash, "0x") {
		return false
	}
	decoded, err := hexutil.Decode(txHash)
	return err == nil && len(decoded) == txHashLength
}

func asNetworkError(op string, err error) error {
	var networkErr *domain.NetworkError
	if errors.As(err, &networkErr) {
		return err
	}
	return &domain.NetworkError{Op: op, Err: err}
}
