package application

import (
	"context"
	"errors"
	"fmt"

	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/ports"
)

// errLeaveUnchanged lets a StateStore.Update callback bail out without writing.
var errLeaveUnchanged = errors.New("leave billing state unchanged")

type StateStore struct {
	kv ports.KeyValueStore
}

func NewStateStore(kv ports.KeyValueStore) *StateStore {
	return &StateStore{kv: kv}
}

func (s *StateStore) Load(ctx context.Context) (domain.BillingState, error) {
	values, err := s.kv.Get(ctx, KeyBillingState)
	if err != nil {
		return domain.BillingState{}, fmt.Errorf("load billing state: %w", err)
	}

	return decodeBillingState(values[KeyBillingState])
}

// Update re-reads the persisted state, applies fn and writes the result as one
// serialized step. It returns the state that is persisted afterwards.
func (s *StateStore) Update(ctx context.Context, fn func(state *domain.BillingState) error) (domain.BillingState, error) {
	var result domain.BillingState

	err := s.kv.Update(ctx, KeyBillingState, func(current []byte) ([]byte, error) {
		state, err := decodeBillingState(current)
		if err != nil {
			return nil, err
		}

		if err := fn(&state); err != nil {
			if errors.Is(err, errLeaveUnchanged) {
				result, _ = decodeBillingState(current)
				return current, nil
			}
			return nil, err
		}

		state.Normalize()
		result = state
		return encodeBillingState(state)
	})
	if err != nil {
		return domain.BillingState{}, fmt.Errorf("update billing state: %w", err)
	}

	return result, nil
}

func (s *StateStore) Reset(ctx context.Context) (domain.BillingState, error) {
	state := domain.DefaultBillingState()
	data, err := encodeBillingState(state)
	if err != nil {
		return domain.BillingState{}, err
	}

	if err := s.kv.Set(ctx, map[string][]byte{KeyBillingState: data}); err != nil {
		return domain.BillingState{}, fmt.Errorf("reset billing state: %w", err)
	}

	return state, nil
}
