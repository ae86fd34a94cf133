package domain

import (
	"errors"
	"reflect"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-playground/validator/v10"
)

const DefaultPriceUSD = 10

type PaymentConfig struct {
	StripePublishableKey   string  `validate:"omitempty,startswith=pk_" field:"stripePublishableKey"`
	StripePaymentLink      string  `validate:"omitempty,http_url" field:"stripePaymentLink"`
	CryptoRecipientAddress string  `validate:"omitempty,eth_addr,nonzero_eth_addr" field:"cryptoRecipientAddress"`
	SupportedChainIDs      []int64 `validate:"dive,gt=0" field:"supportedChainIds"`
	PriceUSD               float64 `validate:"gt=0" field:"priceUsd"`
	ExplorerAPIKey         string  `field:"explorerApiKey"`
}

// PaymentConfigPatch carries a partial update; nil fields keep the stored value.
type PaymentConfigPatch struct {
	StripePublishableKey   *string
	StripePaymentLink      *string
	CryptoRecipientAddress *string
	SupportedChainIDs      []int64
	PriceUSD               *float64
	ExplorerAPIKey         *string
}

func DefaultPaymentConfig() PaymentConfig {
	return PaymentConfig{
		SupportedChainIDs: DefaultChainIDs(),
		PriceUSD:          DefaultPriceUSD,
	}
}

func (c *PaymentConfig) ApplyDefaults() {
	if c == nil {
		return
	}
	if len(c.SupportedChainIDs) == 0 {
		c.SupportedChainIDs = DefaultChainIDs()
	}
	if c.PriceUSD == 0 {
		c.PriceUSD = DefaultPriceUSD
	}
}

func (c PaymentConfig) Merge(patch PaymentConfigPatch) PaymentConfig {
	merged := c
	if patch.StripePublishableKey != nil {
		merged.StripePublishableKey = strings.TrimSpace(*patch.StripePublishableKey)
	}
	if patch.StripePaymentLink != nil {
		merged.StripePaymentLink = strings.TrimSpace(*patch.StripePaymentLink)
	}
	if patch.CryptoRecipientAddress != nil {
		merged.CryptoRecipientAddress = strings.TrimSpace(*patch.CryptoRecipientAddress)
	}
	if patch.SupportedChainIDs != nil {
		merged.SupportedChainIDs = append([]int64(nil), patch.SupportedChainIDs...)
	}
	if patch.PriceUSD != nil {
		merged.PriceUSD = *patch.PriceUSD
	}
	if patch.ExplorerAPIKey != nil {
		merged.ExplorerAPIKey = strings.TrimSpace(*patch.ExplorerAPIKey)
	}
	return merged
}

// Validate returns a *ConfigurationError naming the first field that breaks a format invariant.
func (c PaymentConfig) Validate() error {
	err := configValidator().Struct(c)
	if err == nil {
		return nil
	}

	var fieldErrs validator.ValidationErrors
	if !errors.As(err, &fieldErrs) || len(fieldErrs) == 0 {
		return &ConfigurationError{Reason: err.Error()}
	}

	first := fieldErrs[0]
	return &ConfigurationError{Field: first.Field(), Reason: configReason(first)}
}

func (c PaymentConfig) StripeConfigured() bool {
	return c.StripePaymentLink != ""
}

// CryptoConfigured reports whether the recipient is a real address: well formed and not the zero address.
func (c PaymentConfig) CryptoConfigured() bool {
	return IsRealAddress(c.CryptoRecipientAddress)
}

func (c PaymentConfig) SupportsChain(chainID int64) bool {
	for _, id := range c.SupportedChainIDs {
		if id == chainID {
			return true
		}
	}
	return false
}

func IsRealAddress(address string) bool {
	if !IsHexAddress(address) {
		return false
	}
	return common.HexToAddress(address) != (common.Address{})
}

// IsHexAddress is stricter than common.IsHexAddress: the 0x prefix is mandatory.
func IsHexAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

var (
	validatorOnce sync.Once
	validate      *validator.Validate
)

func configValidator() *validator.Validate {
	validatorOnce.Do(func() {
		v := validator.New(validator.WithRequiredStructEnabled())
		v.RegisterTagNameFunc(func(field reflect.StructField) string {
			if name := field.Tag.Get("field"); name != "" {
				return name
			}
			return field.Name
		})
		_ = v.RegisterValidation("nonzero_eth_addr", func(fl validator.FieldLevel) bool {
			return common.HexToAddress(fl.Field().String()) != (common.Address{})
		})
		validate = v
	})
	return validate
}

func configReason(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "startswith":
		return "must start with " + fieldErr.Param()
	case "http_url":
		return "must be an absolute http(s) URL"
	case "eth_addr":
		return "must match 0x followed by 40 hex characters"
	case "nonzero_eth_addr":
		return "must not be the zero address"
	case "gt":
		return "must be greater than " + fieldErr.Param()
	default:
		return "failed " + fieldErr.Tag() + " validation"
	}
}
