package tokenstore

import (
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/sail-program/sail-gateway/internal/config"
)

// Backends carries the connections a driver may need.
type Backends struct {
	Redis    redis.UniversalClient
	Postgres *pgxpool.Pool
}

// New selects the store implementation named by cfg.StoreDriver.
func New(cfg config.SessionConfig, backends Backends) (Store, error) {
	switch cfg.StoreDriver {
	case config.StoreDriverMemory:
		return NewMemoryStore(), nil
	case config.StoreDriverRedis:
		if backends.Redis == nil {
			return nil, fmt.Errorf("token store driver %q needs a redis client", cfg.StoreDriver)
		}
		return NewRedisStore(backends.Redis, cfg.KeyPrefix, cfg.TTL), nil
	case config.StoreDriverPostgres:
		if backends.Postgres == nil {
			return nil, fmt.Errorf("token store driver %q needs a postgres pool", cfg.StoreDriver)
		}
		return NewPostgresStore(backends.Postgres, cfg.TTL), nil
	default:
		return nil, fmt.Errorf("unknown token store driver %q", cfg.StoreDriver)
	}
}
