package main

import (
	"context"
	"net"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-portal/internal/models"
	"github.com/noah-isme/sma-adp-portal/pkg/config"
)

func TestOpenTokenStoreDrivers(t *testing.T) {
	ctx := context.Background()
	pair := models.TokenPair{AccessToken: "a", RefreshToken: "r"}

	t.Run("memory", func(t *testing.T) {
		store, closeFn, err := openTokenStore(ctx, &config.Config{TokenStore: config.TokenStoreConfig{Driver: config.StoreMemory}}, nil)
		require.NoError(t, err)
		defer closeFn()
		require.NoError(t, store.Save(ctx, pair))
		loaded, err := store.Load(ctx)
		require.NoError(t, err)
		assert.Equal(t, pair, loaded)
	})

	t.Run("file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "session.json")
		store, closeFn, err := openTokenStore(ctx, &config.Config{TokenStore: config.TokenStoreConfig{Driver: config.StoreFile, FilePath: path}}, nil)
		require.NoError(t, err)
		defer closeFn()
		require.NoError(t, store.Save(ctx, pair))
		assert.FileExists(t, path)
	})

	t.Run("redis", func(t *testing.T) {
		mr, err := miniredis.Run()
		require.NoError(t, err)
		defer mr.Close()
		host, portStr, err := net.SplitHostPort(mr.Addr())
		require.NoError(t, err)
		port, err := strconv.Atoi(portStr)
		require.NoError(t, err)

		cfg := &config.Config{
			TokenStore: config.TokenStoreConfig{Driver: config.StoreRedis, Prefix: "test:"},
			Redis:      config.RedisConfig{Host: host, Port: port},
		}
		store, closeFn, err := openTokenStore(ctx, cfg, nil)
		require.NoError(t, err)
		defer closeFn()
		require.NoError(t, store.Save(ctx, pair))
		got, err := mr.Get("test:accessToken")
		require.NoError(t, err)
		assert.Equal(t, "a", got)
	})

	t.Run("unknown", func(t *testing.T) {
		_, closeFn, err := openTokenStore(ctx, &config.Config{TokenStore: config.TokenStoreConfig{Driver: "etcd"}}, nil)
		closeFn()
		assert.Error(t, err)
	})
}
