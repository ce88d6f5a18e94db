package repository

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-portal/internal/models"
)

func TestMemoryTokenStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryTokenStore()

	pair, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())

	require.ErrorIs(t, store.Save(ctx, models.TokenPair{AccessToken: "a1"}), ErrPartialTokenPair)
	require.NoError(t, store.Save(ctx, models.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))

	pair, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "a1", pair.AccessToken)

	require.NoError(t, store.Clear(ctx))
	pair, err = store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())
}

func TestFileTokenStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "nested", "session.json")
	store := NewFileTokenStore(path, zap.NewNop())

	pair, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())

	require.NoError(t, store.Save(ctx, models.TokenPair{AccessToken: "a1", RefreshToken: "r1"}))
	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	reopened := NewFileTokenStore(path, nil)
	pair, err = reopened.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, models.TokenPair{AccessToken: "a1", RefreshToken: "r1"}, pair)

	require.NoError(t, reopened.Clear(ctx))
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
	require.NoError(t, reopened.Clear(ctx))
}

func TestFileTokenStoreDiscardsPartialPair(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"accessToken":"orphan"}`), 0o600))

	store := NewFileTokenStore(path, zap.NewNop())
	pair, err := store.Load(ctx)
	require.NoError(t, err)
	assert.True(t, pair.Empty())
	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}

func TestFileTokenStoreRejectsCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "session.json")
	require.NoError(t, os.WriteFile(path, []byte(`{not json`), 0o600))

	_, err := NewFileTokenStore(path, nil).Load(context.Background())
	require.Error(t, err)
}
