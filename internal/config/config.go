// Package config loads runtime settings from the environment, with an
// optional .env file for local runs.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// Cache backends.
const (
	CacheMemory   = "memory"
	CacheRedis    = "redis"
	CachePostgres = "postgres"
)

type Config struct {
	Port        int      `env:"PORT" env-default:"4002"`
	CORSOrigins []string `env:"CORS_ORIGINS" env-separator:"," env-default:"*"`
	// RateLimit is requests per minute per client IP.
	RateLimit int `env:"RATE_LIMIT_PER_MINUTE" env-default:"100"`

	Backend BackendConfig
	Cache   CacheConfig
	Search  SearchConfig
	Feed    FeedConfig
	Log     LogConfig
}

type BackendConfig struct {
	BaseURL string `env:"PETS_API_BASE_URL" env-required:"true"`
	// StorageURL is the single base every relative photo path resolves
	// against. Empty derives it from BaseURL.
	StorageURL string        `env:"PETS_STORAGE_BASE_URL"`
	Timeout    time.Duration `env:"PETS_API_TIMEOUT" env-default:"10s"`
	RetryMax   int           `env:"PETS_API_RETRY_MAX" env-default:"2"`
	RPS        float64       `env:"PETS_API_RPS" env-default:"5"`
	Burst      int           `env:"PETS_API_BURST" env-default:"10"`
}

type CacheConfig struct {
	Backend   string        `env:"CACHE_BACKEND" env-default:"memory"`
	MaxBytes  int           `env:"CACHE_MAX_BYTES" env-default:"5242880"`
	RedisAddr string        `env:"REDIS_ADDR" env-default:"localhost:6379"`
	RedisDB   int           `env:"REDIS_DB" env-default:"0"`
	Namespace string        `env:"CACHE_NAMESPACE" env-default:"petboard"`
	TTL       time.Duration `env:"CACHE_TTL" env-default:"0s"`
	PGDSN     string        `env:"PG_DSN"`
}

type SearchConfig struct {
	PageSize     int           `env:"SEARCH_PAGE_SIZE" env-default:"10"`
	Debounce     time.Duration `env:"SEARCH_DEBOUNCE" env-default:"300ms"`
	ClientPaging bool          `env:"SEARCH_CLIENT_PAGING" env-default:"true"`
}

type FeedConfig struct {
	Interval time.Duration `env:"FEED_INTERVAL" env-default:"5m"`
	Timeout  time.Duration `env:"FEED_TIMEOUT" env-default:"10s"`
	RunOnce  bool          `env:"FEED_RUN_ONCE" env-default:"false"`
	Workers  int           `env:"FEED_REFRESH_WORKERS" env-default:"2"`
}

type LogConfig struct {
	Level  string `env:"LOG_LEVEL" env-default:"info"`
	Format string `env:"LOG_FORMAT" env-default:"text"`
}

// Load reads an optional .env file (the first of paths, or ./.env) and then
// the process environment. Variables already set win over the file.
func Load(paths ...string) (*Config, error) {
	if err := godotenv.Load(paths...); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}
	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}
	if err := cfg.normalize(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) normalize() error {
	c.Backend.BaseURL = strings.TrimRight(strings.TrimSpace(c.Backend.BaseURL), "/")
	u, err := url.Parse(c.Backend.BaseURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("PETS_API_BASE_URL %q is not an absolute URL", c.Backend.BaseURL)
	}
	if c.Backend.StorageURL == "" {
		c.Backend.StorageURL = StorageBase(c.Backend.BaseURL)
	}
	c.Backend.StorageURL = strings.TrimRight(c.Backend.StorageURL, "/")

	c.Cache.Backend = strings.ToLower(strings.TrimSpace(c.Cache.Backend))
	switch c.Cache.Backend {
	case CacheMemory, CacheRedis:
	case CachePostgres:
		if c.Cache.PGDSN == "" {
			return errors.New("CACHE_BACKEND=postgres requires PG_DSN")
		}
	default:
		return fmt.Errorf("unknown CACHE_BACKEND %q", c.Cache.Backend)
	}
	return nil
}

// StorageBase drops a trailing /api path segment from the API base:
// https://host/api becomes https://host.
func StorageBase(apiBase string) string {
	base := strings.TrimRight(apiBase, "/")
	if strings.HasSuffix(base, "/api") {
		return strings.TrimSuffix(base, "/api")
	}
	return base
}
