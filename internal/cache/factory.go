package cache

import (
	"context"
	"fmt"

	"github.com/spherical/verbatim/internal/config"
	"github.com/spherical/verbatim/internal/domain"
)

// Open builds the cache selected by cfg.Driver. root is the output root used by the file driver.
func Open(ctx context.Context, cfg config.CacheConfig, root string) (domain.UnitCache, error) {
	switch cfg.Driver {
	case "", "file":
		return NewFileStore(root)
	case "sqlite":
		return OpenSQLite(ctx, cfg.SQLite.Path)
	case "postgres":
		return OpenPostgres(ctx, cfg.Postgres.DSN)
	case "redis":
		return NewRedisStore(ctx, RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
			Prefix:   cfg.Redis.Prefix,
		})
	default:
		return nil, domain.ConfigError(fmt.Sprintf("unsupported cache driver: %s", cfg.Driver), nil)
	}
}
