package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T, path string) *Store {
	t.Helper()

	store, err := NewStore(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestStoreRoundTrip(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, filepath.Join(t.TempDir(), "billing.db"))
	ctx := context.Background()

	require.NoError(t, store.Set(ctx, map[string][]byte{
		"billing_state": []byte(`{"plan":"beta"}`),
		"pending":       []byte(`{}`),
	}))

	got, err := store.Get(ctx, "billing_state", "pending", "missing")
	require.NoError(t, err)
	assert.Equal(t, map[string][]byte{
		"billing_state": []byte(`{"plan":"beta"}`),
		"pending":       []byte(`{}`),
	}, got)

	require.NoError(t, store.Remove(ctx, "pending", "missing"))
	got, err = store.Get(ctx, "pending")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreGetWithoutKeysReturnsEmpty(t *testing.T) {
	t.Parallel()

	got, err := newTestStore(t, filepath.Join(t.TempDir(), "billing.db")).Get(context.Background())
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreUpdateRollsBackOnError(t *testing.T) {
	t.Parallel()

	store := newTestStore(t, filepath.Join(t.TempDir(), "billing.db"))
	ctx := context.Background()
	require.NoError(t, store.Set(ctx, map[string][]byte{"k": []byte("v1")}))

	boom := errors.New("boom")
	require.ErrorIs(t, store.Update(ctx, "k", func(current []byte) ([]byte, error) {
		assert.Equal(t, "v1", string(current))
		return []byte("v2"), boom
	}), boom)

	got, err := store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Equal(t, "v1", string(got["k"]))

	require.NoError(t, store.Update(ctx, "k", func([]byte) ([]byte, error) { return nil, nil }))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestStoreConcurrentUpdatesAcrossHandlesNeverLoseIncrements(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "billing.db")
	stores := []*Store{newTestStore(t, path), newTestStore(t, path)}

	increment := func(current []byte) ([]byte, error) {
		n := 0
		if current != nil {
			parsed, err := strconv.Atoi(string(current))
			if err != nil {
				return nil, err
			}
			n = parsed
		}
		return []byte(strconv.Itoa(n + 1)), nil
	}

	const perStore = 25
	errCh := make(chan error, perStore*len(stores))
	var wg sync.WaitGroup
	for _, store := range stores {
		wg.Add(1)
		go func(store *Store) {
			defer wg.Done()
			for i := 0; i < perStore; i++ {
				errCh <- store.Update(context.Background(), "counter", increment)
			}
		}(store)
	}
	wg.Wait()
	close(errCh)
	for err := range errCh {
		require.NoError(t, err)
	}

	got, err := stores[0].Get(context.Background(), "counter")
	require.NoError(t, err)
	assert.Equal(t, strconv.Itoa(perStore*len(stores)), string(got["counter"]))
}

func TestNewStoreRejectsEmptyPath(t *testing.T) {
	t.Parallel()

	_, err := NewStore("  ")
	require.Error(t, err)
}
