package application

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	tomlstore "github.com/bnema/ha-billing/internal/adapters/store/toml"
	"github.com/bnema/ha-billing/internal/domain"
	"github.com/bnema/ha-billing/internal/ports"
	"github.com/bnema/ha-billing/internal/ports/mocks"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

const (
	validLicenseKey   = "HA-BETA-AAAAAAAA-0000000I"
	tamperedKey       = "HA-BETA-AAAAAAAA-0000000J"
	recipientAddress  = "0x1111111111111111111111111111111111111111"
	payerAddress      = "0x2222222222222222222222222222222222222222"
	zeroAddress       = "0x0000000000000000000000000000000000000000"
	stripePaymentLink = "https://buy.stripe.com/test_123?prefilled_email=a%40b.c"
)

var testTxHash = "0x" + strings.Repeat("ab", 32)

func mockAnyContext() any {
	return mock.Anything
}

func newTestStore(t *testing.T) *tomlstore.Store {
	t.Helper()

	store, err := tomlstore.NewStoreAt(filepath.Join(t.TempDir(), "billing.toml"))
	require.NoError(t, err)
	return store
}

var errStoreUnavailable = errors.New("store unavailable")

// retryOnceStore runs the update function against the current value, lets
// another writer remove the key, then retries the way an optimistic store
// does after a conflict.
type retryOnceStore struct {
	ports.KeyValueStore
	key string
}

func (s retryOnceStore) Update(ctx context.Context, key string, fn ports.UpdateFunc) error {
	if key != s.key {
		return s.KeyValueStore.Update(ctx, key, fn)
	}

	values, err := s.KeyValueStore.Get(ctx, key)
	if err != nil {
		return err
	}
	if _, err := fn(values[key]); err != nil {
		return err
	}
	if err := s.KeyValueStore.Remove(ctx, key); err != nil {
		return err
	}
	return s.KeyValueStore.Update(ctx, key, fn)
}

// failingUpdateStore rejects every update of one key.
type failingUpdateStore struct {
	ports.KeyValueStore
	key string
}

func (s failingUpdateStore) Update(ctx context.Context, key string, fn ports.UpdateFunc) error {
	if key == s.key {
		return errStoreUnavailable
	}
	return s.KeyValueStore.Update(ctx, key, fn)
}

type testClock struct {
	*mocks.MockClock

	mu  sync.Mutex
	now time.Time
}

func newTestClock(t *testing.T, start time.Time) *testClock {
	t.Helper()

	clock := &testClock{MockClock: mocks.NewMockClock(t), now: start}
	clock.EXPECT().Now().RunAndReturn(func() time.Time {
		clock.mu.Lock()
		defer clock.mu.Unlock()
		return clock.now
	}).Maybe()
	return clock
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func (c *testClock) Current() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

var testNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func cryptoReadyConfig() domain.PaymentConfigPatch {
	address := recipientAddress
	link := stripePaymentLink
	return domain.PaymentConfigPatch{
		CryptoRecipientAddress: &address,
		StripePaymentLink:      &link,
	}
}
