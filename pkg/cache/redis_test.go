package cache

import (
	"context"
	"net"
	"strconv"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-adp-portal/pkg/config"
)

func TestNewRedisConnects(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)

	client, err := NewRedis(context.Background(), config.RedisConfig{Host: host, Port: port})
	require.NoError(t, err)
	defer client.Close()

	require.NoError(t, client.Set(context.Background(), "k", "v", 0).Err())
	got, err := mr.Get("k")
	require.NoError(t, err)
	assert.Equal(t, "v", got)
}

func TestNewRedisFailsWhenUnreachable(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	host, portStr, err := net.SplitHostPort(mr.Addr())
	require.NoError(t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(t, err)
	mr.Close()

	_, err = NewRedis(context.Background(), config.RedisConfig{Host: host, Port: port})
	assert.Error(t, err)
}

func TestAddr(t *testing.T) {
	assert.Equal(t, "localhost:6379", Addr(config.RedisConfig{Host: "localhost", Port: 6379}))
}
