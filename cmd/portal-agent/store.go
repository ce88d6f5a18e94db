package main

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/noah-isme/sma-adp-portal/internal/repository"
	"github.com/noah-isme/sma-adp-portal/internal/service"
	"github.com/noah-isme/sma-adp-portal/pkg/cache"
	"github.com/noah-isme/sma-adp-portal/pkg/config"
	"github.com/noah-isme/sma-adp-portal/pkg/database"
)

// openTokenStore selects the persistence backend for the token pair. The returned func releases it.
func openTokenStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (service.TokenStore, func(), error) {
	noop := func() {}

	switch cfg.TokenStore.Driver {
	case config.StoreMemory:
		return repository.NewMemoryTokenStore(), noop, nil
	case config.StoreFile, "":
		return repository.NewFileTokenStore(cfg.TokenStore.FilePath, logger), noop, nil
	case config.StoreRedis:
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			return nil, noop, err
		}
		store := repository.NewRedisTokenStore(client, cfg.TokenStore.Prefix, logger)
		return store, func() { _ = store.Close() }, nil
	case config.StorePostgres:
		db, err := database.NewPostgres(ctx, cfg.Database)
		if err != nil {
			return nil, noop, err
		}
		store := repository.NewPostgresTokenStore(db)
		if err := store.EnsureSchema(ctx); err != nil {
			_ = db.Close()
			return nil, noop, err
		}
		return store, func() { _ = db.Close() }, nil
	default:
		return nil, noop, fmt.Errorf("unknown token store driver %q", cfg.TokenStore.Driver)
	}
}
