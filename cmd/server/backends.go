package main

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/stock-allocation/internal/adapter/handler"
	"github.com/rl1809/stock-allocation/internal/adapter/storage"
	"github.com/rl1809/stock-allocation/internal/config"
	"github.com/rl1809/stock-allocation/internal/port"
	"github.com/rl1809/stock-allocation/pkg/logger"
)

type backends struct {
	repo    port.InventoryRepository
	journal port.MovementRepository
	cache   port.CacheRepository
	pingers []handler.Pinger
	closers []func() error
}

func (b *backends) close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			logger.Logger.Error().Err(err).Msg("failed to close connection")
		}
	}
	logger.Logger.Info().Msg("connections closed")
}

func openBackends(ctx context.Context, cfg *config.Config) (*backends, error) {
	b := &backends{}
	memory := storage.NewMemoryAdapter()

	switch cfg.StorageBackend {
	case config.BackendMySQL:
		db, err := storage.OpenMySQL(ctx, cfg.MySQLDSN)
		if err != nil {
			return nil, err
		}
		b.closers = append(b.closers, db.Close)

		adapter := storage.NewMySQLAdapter(db)
		if err := adapter.Migrate(ctx); err != nil {
			b.close()
			return nil, err
		}
		b.repo, b.journal = adapter, adapter
		b.pingers = append(b.pingers, adapter)
		logger.Logger.Info().Msg("connected to mysql")

	case config.BackendPostgres:
		db, err := storage.OpenPostgres(cfg.PostgresDSN)
		if err != nil {
			return nil, err
		}
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("postgres pool: %w", err)
		}
		b.closers = append(b.closers, sqlDB.Close)

		adapter := storage.NewGormAdapter(db)
		if err := adapter.AutoMigrate(); err != nil {
			b.close()
			return nil, fmt.Errorf("migrate postgres: %w", err)
		}
		b.repo, b.journal = adapter, adapter
		b.pingers = append(b.pingers, adapter)
		logger.Logger.Info().Msg("connected to postgres")

	default:
		b.repo, b.journal = memory, memory
		logger.Logger.Warn().Msg("using in-memory storage, state is lost on restart")
	}

	if cfg.RedisAddr == "" {
		b.cache = memory
		return b, nil
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.RedisAddr,
		PoolSize: 100,
	})
	if err := rdb.Ping(ctx).Err(); err != nil {
		rdb.Close()
		b.close()
		return nil, fmt.Errorf("failed to connect redis: %w", err)
	}
	b.closers = append(b.closers, rdb.Close)

	cache := storage.NewRedisAdapter(rdb, cfg.CacheTTL)
	b.cache = cache
	b.pingers = append(b.pingers, cache)
	logger.Logger.Info().Str("addr", cfg.RedisAddr).Msg("connected to redis")

	return b, nil
}
