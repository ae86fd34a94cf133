package application

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/bnema/ha-billing/internal/domain"
)

// Engine-owned store keys.
const (
	KeyBillingState     = "billing_state"
	KeyPaymentConfig    = "payment_config"
	KeyPendingCheckout  = "pending_checkout"
	KeyPaymentSuccess   = "payment_success"
	KeyLicenseRateLimit = "license_rate_limit"
)

type billingStateSchema struct {
	Plan              string               `json:"plan"`
	Status            string               `json:"status"`
	PaymentMethod     *paymentMethodSchema `json:"paymentMethod,omitempty"`
	StripeCustomerID  string               `json:"stripeCustomerId,omitempty"`
	SubscriptionID    string               `json:"subscriptionId,omitempty"`
	CurrentPeriodEnd  *int64               `json:"currentPeriodEnd,omitempty"`
	CancelAtPeriodEnd bool                 `json:"cancelAtPeriodEnd"`
	LastVerified      *int64               `json:"lastVerified,omitempty"`
	LicenseKey        string               `json:"licenseKey,omitempty"`
	CryptoTxHash      string               `json:"cryptoTxHash,omitempty"`
}

type paymentMethodSchema struct {
	Type          string `json:"type"`
	Last4         string `json:"last4,omitempty"`
	WalletAddress string `json:"walletAddress,omitempty"`
	ChainID       int64  `json:"chainId,omitempty"`
}

type paymentConfigSchema struct {
	StripePublishableKey   string  `json:"stripePublishableKey,omitempty"`
	StripePaymentLink      string  `json:"stripePaymentLink,omitempty"`
	CryptoRecipientAddress string  `json:"cryptoRecipientAddress,omitempty"`
	SupportedChainIDs      []int64 `json:"supportedChainIds,omitempty"`
	PriceUSD               float64 `json:"priceUsd,omitempty"`
	ExplorerAPIKey         string  `json:"explorerApiKey,omitempty"`
}

type pendingCheckoutSchema struct {
	Plan          string `json:"plan"`
	Type          string `json:"type"`
	CorrelationID string `json:"correlationId,omitempty"`
	ChainID       int64  `json:"chainId,omitempty"`
	Timestamp     int64  `json:"timestamp"`
}

type paymentSuccessSchema struct {
	Plan           string `json:"plan"`
	Type           string `json:"type"`
	CorrelationID  string `json:"correlationId,omitempty"`
	CustomerID     string `json:"customerId,omitempty"`
	SubscriptionID string `json:"subscriptionId,omitempty"`
	Last4          string `json:"last4,omitempty"`
	TxHash         string `json:"txHash,omitempty"`
	WalletAddress  string `json:"walletAddress,omitempty"`
	ChainID        int64  `json:"chainId,omitempty"`
	Timestamp      int64  `json:"timestamp"`
}

type rateLimitSchema struct {
	Attempts         int   `json:"attempts"`
	FirstAttemptTime int64 `json:"firstAttemptTime"`
}

func encodeBillingState(state domain.BillingState) ([]byte, error) {
	encoded := billingStateSchema{
		Plan:              string(state.Plan),
		Status:            string(state.Status),
		StripeCustomerID:  state.StripeCustomerID,
		SubscriptionID:    state.SubscriptionID,
		CurrentPeriodEnd:  toEpochMillis(state.CurrentPeriodEnd),
		CancelAtPeriodEnd: state.CancelAtPeriodEnd,
		LastVerified:      toEpochMillis(state.LastVerified),
		LicenseKey:        state.LicenseKey,
		CryptoTxHash:      state.CryptoTxHash,
	}
	if state.PaymentMethod != nil {
		encoded.PaymentMethod = &paymentMethodSchema{
			Type:          string(state.PaymentMethod.Type),
			Last4:         state.PaymentMethod.Last4,
			WalletAddress: state.PaymentMethod.WalletAddress,
			ChainID:       state.PaymentMethod.ChainID,
		}
	}

	data, err := json.Marshal(encoded)
	if err != nil {
		return nil, fmt.Errorf("encode billing state: %w", err)
	}
	return data, nil
}

// decodeBillingState merges defaults for anything the stored record leaves out.
func decodeBillingState(data []byte) (domain.BillingState, error) {
	state := domain.DefaultBillingState()
	if data == nil {
		return state, nil
	}

	var decoded billingStateSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		return domain.BillingState{}, fmt.Errorf("decode billing state: %w", err)
	}

	state.Plan = domain.Plan(decoded.Plan)
	state.Status = domain.Status(decoded.Status)
	state.StripeCustomerID = decoded.StripeCustomerID
	state.SubscriptionID = decoded.SubscriptionID
	state.CurrentPeriodEnd = fromEpochMillis(decoded.CurrentPeriodEnd)
	state.CancelAtPeriodEnd = decoded.CancelAtPeriodEnd
	state.LastVerified = fromEpochMillis(decoded.LastVerified)
	state.LicenseKey = decoded.LicenseKey
	state.CryptoTxHash = decoded.CryptoTxHash
	if decoded.PaymentMethod != nil {
		state.PaymentMethod = &domain.PaymentMethod{
			Type:          domain.PaymentType(decoded.PaymentMethod.Type),
			Last4:         decoded.PaymentMethod.Last4,
			WalletAddress: decoded.PaymentMethod.WalletAddress,
			ChainID:       decoded.PaymentMethod.ChainID,
		}
	}
	state.Normalize()

	return state, nil
}

func encodePaymentConfig(cfg domain.PaymentConfig) ([]byte, error) {
	data, err := json.Marshal(paymentConfigSchema{
		StripePublishableKey:   cfg.StripePublishableKey,
		StripePaymentLink:      cfg.StripePaymentLink,
		CryptoRecipientAddress: cfg.CryptoRecipientAddress,
		SupportedChainIDs:      cfg.SupportedChainIDs,
		PriceUSD:               cfg.PriceUSD,
		ExplorerAPIKey:         cfg.ExplorerAPIKey,
	})
	if err != nil {
		return nil, fmt.Errorf("encode payment config: %w", err)
	}
	return data, nil
}

func decodePaymentConfig(data []byte) (domain.PaymentConfig, error) {
	cfg := domain.DefaultPaymentConfig()
	if data == nil {
		return cfg, nil
	}

	var decoded paymentConfigSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		return domain.PaymentConfig{}, fmt.Errorf("decode payment config: %w", err)
	}

	cfg = domain.PaymentConfig{
		StripePublishableKey:   decoded.StripePublishableKey,
		StripePaymentLink:      decoded.StripePaymentLink,
		CryptoRecipientAddress: decoded.CryptoRecipientAddress,
		SupportedChainIDs:      decoded.SupportedChainIDs,
		PriceUSD:               decoded.PriceUSD,
		ExplorerAPIKey:         decoded.ExplorerAPIKey,
	}
	cfg.ApplyDefaults()

	return cfg, nil
}

func encodePendingCheckout(pending domain.PendingCheckout) ([]byte, error) {
	data, err := json.Marshal(pendingCheckoutSchema{
		Plan:          string(pending.Plan),
		Type:          string(pending.Type),
		CorrelationID: pending.CorrelationID,
		ChainID:       pending.ChainID,
		Timestamp:     pending.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode pending checkout: %w", err)
	}
	return data, nil
}

func decodePendingCheckout(data []byte) (domain.PendingCheckout, error) {
	var decoded pendingCheckoutSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		return domain.PendingCheckout{}, fmt.Errorf("decode pending checkout: %w", err)
	}

	return domain.PendingCheckout{
		Plan:          parsePlanOrBeta(decoded.Plan),
		Type:          domain.PaymentType(decoded.Type),
		CorrelationID: decoded.CorrelationID,
		ChainID:       decoded.ChainID,
		CreatedAt:     time.UnixMilli(decoded.Timestamp).UTC(),
	}, nil
}

func encodePaymentSuccess(success domain.PaymentSuccess) ([]byte, error) {
	data, err := json.Marshal(paymentSuccessSchema{
		Plan:           string(success.Plan),
		Type:           string(success.Type),
		CorrelationID:  success.CorrelationID,
		CustomerID:     success.CustomerID,
		SubscriptionID: success.SubscriptionID,
		Last4:          success.Last4,
		TxHash:         success.TxHash,
		WalletAddress:  success.WalletAddress,
		ChainID:        success.ChainID,
		Timestamp:      success.CreatedAt.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode payment success: %w", err)
	}
	return data, nil
}

func decodePaymentSuccess(data []byte) (domain.PaymentSuccess, error) {
	var decoded paymentSuccessSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		return domain.PaymentSuccess{}, fmt.Errorf("decode payment success: %w", err)
	}

	return domain.PaymentSuccess{
		Plan:           parsePlanOrBeta(decoded.Plan),
		Type:           domain.PaymentType(decoded.Type),
		CorrelationID:  decoded.CorrelationID,
		CustomerID:     decoded.CustomerID,
		SubscriptionID: decoded.SubscriptionID,
		Last4:          decoded.Last4,
		TxHash:         decoded.TxHash,
		WalletAddress:  decoded.WalletAddress,
		ChainID:        decoded.ChainID,
		CreatedAt:      time.UnixMilli(decoded.Timestamp).UTC(),
	}, nil
}

func encodeRateLimit(record domain.RateLimitRecord) ([]byte, error) {
	data, err := json.Marshal(rateLimitSchema{
		Attempts:         record.Attempts,
		FirstAttemptTime: record.FirstAttemptTime.UnixMilli(),
	})
	if err != nil {
		return nil, fmt.Errorf("encode rate limit record: %w", err)
	}
	return data, nil
}

func decodeRateLimit(data []byte) (*domain.RateLimitRecord, error) {
	if data == nil {
		return nil, nil
	}

	var decoded rateLimitSchema
	if err := json.Unmarshal(data, &decoded); err != nil {
		return nil, fmt.Errorf("decode rate limit record: %w", err)
	}

	return &domain.RateLimitRecord{
		Attempts:         decoded.Attempts,
		FirstAttemptTime: time.UnixMilli(decoded.FirstAttemptTime).UTC(),
	}, nil
}

// Breadcrumbs only ever name a paid plan; anything unreadable is treated as beta.
func parsePlanOrBeta(raw string) domain.Plan {
	plan, err := domain.ParsePlan(raw)
	if err != nil || plan == domain.PlanCommunity {
		return domain.PlanBeta
	}
	return plan
}

func toEpochMillis(value time.Time) *int64 {
	if value.IsZero() {
		return nil
	}
	millis := value.UnixMilli()
	return &millis
}

func fromEpochMillis(millis *int64) time.Time {
	if millis == nil || *millis == 0 {
		return time.Time{}
	}
	return time.UnixMilli(*millis).UTC()
}
