package application

import (
	"context"
	"fmt"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/ports"
)

type ConfigStore struct {
	kv ports.KeyValueStore
}

func NewConfigStore(kv ports.KeyValueStore) *ConfigStore {
	return &ConfigStore{kv: kv}
}

func (s *ConfigStore) Load(ctx context.Context) (domain.PaymentConfig, error) {
	values, err := s.kv.Get(ctx, KeyPaymentConfig)
	if err != nil {
		return domain.PaymentConfig{}, fmt.Errorf("load payment config: %w", err)
	}

	return decodePaymentConfig(values[KeyPaymentConfig])
}

// Apply merges patch onto the latest persisted config. A patch that breaks a
// format invariant returns *domain.ConfigurationError and nothing is written.
func (s *ConfigStore) Apply(ctx context.Context, patch domain.PaymentConfigPatch) (domain.PaymentConfig, error) {
	var merged domain.PaymentConfig

	err := s.kv.Update(ctx, KeyPaymentConfig, func(current []byte) ([]byte, error) {
		cfg, err := decodePaymentConfig(current)
		if err != nil {
			return nil, err
		}

		next := cfg.Merge(patch)
		if err := next.Validate(); err != nil {
			return nil, err
		}

		merged = next
		return encodePaymentConfig(next)
	})
	if err != nil {
		return domain.PaymentConfig{}, fmt.Errorf("apply payment config: %w", err)
	}

	return merged, nil
}
