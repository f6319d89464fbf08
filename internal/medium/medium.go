// Package medium opens the cache medium selected by CACHE_BACKEND.
package medium

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/yourorg/pet-board/internal/config"
	"github.com/yourorg/pet-board/internal/localcache"
	"github.com/yourorg/pet-board/internal/redisx"
	"github.com/yourorg/pet-board/internal/store"
)

// Open returns the medium and a func that releases it. Redis and Postgres
// are pinged before use; Postgres is migrated.
func Open(ctx context.Context, c config.CacheConfig, log *slog.Logger) (localcache.Medium, func(), error) {
	if log == nil {
		log = slog.Default()
	}
	switch c.Backend {
	case config.CacheRedis:
		rc := redisx.New(c.RedisAddr, os.Getenv("REDIS_PASSWORD"), c.RedisDB)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := rc.Ping(pingCtx); err != nil {
			_ = rc.Close()
			return nil, nil, fmt.Errorf("redis ping: %w", err)
		}
		log.Info("cache medium ready", "backend", c.Backend, "addr", c.RedisAddr)
		return redisx.NewMedium(rc, c.Namespace+":", c.TTL), func() { _ = rc.Close() }, nil
	case config.CachePostgres:
		st, err := store.Open(c.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres open: %w", err)
		}
		initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()
		if err := st.Ping(initCtx); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("postgres ping: %w", err)
		}
		if err := st.Migrate(initCtx); err != nil {
			_ = st.Close()
			return nil, nil, fmt.Errorf("postgres migrate: %w", err)
		}
		log.Info("cache medium ready", "backend", c.Backend)
		return st, func() { _ = st.Close() }, nil
	case config.CacheMemory, "":
		log.Info("using in-memory cache; contents are lost on exit")
		return localcache.NewMemoryMedium(c.MaxBytes), func() {}, nil
	}
	return nil, nil, fmt.Errorf("unknown cache backend %q", c.Backend)
}

// Shared reports whether the medium outlives the process.
func Shared(c config.CacheConfig) bool {
	return c.Backend == config.CacheRedis || c.Backend == config.CachePostgres
}
