package repository

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-portal/internal/models"
)

// RedisTokenStore keeps the token pair in Redis under <prefix>accessToken and <prefix>refreshToken.
// Both keys are written and deleted in one MULTI block so readers never observe half a pair.
type RedisTokenStore struct {
	client *redis.Client
	prefix string
	logger *zap.Logger
}

// NewRedisTokenStore constructs a Redis-backed store. Prefix may be empty.
func NewRedisTokenStore(client *redis.Client, prefix string, logger *zap.Logger) *RedisTokenStore {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedisTokenStore{client: client, prefix: prefix, logger: logger}
}

func (r *RedisTokenStore) accessKey() string  { return r.prefix + KeyAccessToken }
func (r *RedisTokenStore) refreshKey() string { return r.prefix + KeyRefreshToken }

// Load retrieves both tokens. A partial pair left behind by an external writer is deleted and
// reported as empty.
func (r *RedisTokenStore) Load(ctx context.Context) (models.TokenPair, error) {
	values, err := r.client.MGet(ctx, r.accessKey(), r.refreshKey()).Result()
	if err != nil {
		return models.TokenPair{}, fmt.Errorf("redis mget tokens: %w", err)
	}

	pair := models.TokenPair{AccessToken: stringValue(values, 0), RefreshToken: stringValue(values, 1)}
	if pair.Complete() {
		return pair, nil
	}
	if !pair.Empty() {
		r.logger.Warn("discarding partial token pair", zap.String("prefix", r.prefix))
		if err := r.Clear(ctx); err != nil {
			return models.TokenPair{}, err
		}
	}
	return models.TokenPair{}, nil
}

// Save stores both tokens atomically.
func (r *RedisTokenStore) Save(ctx context.Context, pair models.TokenPair) error {
	if !pair.Complete() {
		return ErrPartialTokenPair
	}
	_, err := r.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, r.accessKey(), pair.AccessToken, 0)
		pipe.Set(ctx, r.refreshKey(), pair.RefreshToken, 0)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis save tokens: %w", err)
	}
	return nil
}

// Clear removes both tokens.
func (r *RedisTokenStore) Clear(ctx context.Context) error {
	if err := r.client.Del(ctx, r.accessKey(), r.refreshKey()).Err(); err != nil {
		return fmt.Errorf("redis delete tokens: %w", err)
	}
	return nil
}

// Close releases the underlying Redis connection if present.
func (r *RedisTokenStore) Close() error {
	if r.client == nil {
		return nil
	}
	return r.client.Close()
}

func stringValue(values []interface{}, idx int) string {
	if idx >= len(values) || values[idx] == nil {
		return ""
	}
	s, _ := values[idx].(string)
	return s
}
