package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

type Client struct{ Rdb *redis.Client }

func New(addr string, password string, db int) *Client {
	rdb := redis.NewClient(&redis.Options{Addr: addr, Password: password, DB: db})
	return &Client{Rdb: rdb}
}

func (c *Client) Ping(ctx context.Context) error {
	return c.Rdb.Ping(ctx).Err()
}

func (c *Client) Close() error { return c.Rdb.Close() }

func (c *Client) Get(ctx context.Context, key string) (string, error) {
	return c.Rdb.Get(ctx, key).Result()
}

func (c *Client) Set(ctx context.Context, key string, val string, ttl time.Duration) error {
	return c.Rdb.Set(ctx, key, val, ttl).Err()
}

func (c *Client) Del(ctx context.Context, key string) error {
	return c.Rdb.Del(ctx, key).Err()
}

// ScanPrefix walks the keyspace with SCAN, never KEYS.
func (c *Client) ScanPrefix(ctx context.Context, prefix string) ([]string, error) {
	var out []string
	iter := c.Rdb.Scan(ctx, 0, prefix+"*", 200).Iterator()
	for iter.Next(ctx) {
		out = append(out, iter.Val())
	}
	return out, iter.Err()
}

// Medium adapts the client to the synchronous localcache medium contract.
// Every key lives under Namespace and is written with TTL (0 keeps it forever).
type Medium struct {
	Client    *Client
	Namespace string
	TTL       time.Duration
	Timeout   time.Duration
}

func NewMedium(c *Client, namespace string, ttl time.Duration) *Medium {
	return &Medium{Client: c, Namespace: namespace, TTL: ttl, Timeout: 2 * time.Second}
}

func (m *Medium) ctx() (context.Context, context.CancelFunc) {
	t := m.Timeout
	if t <= 0 {
		t = 2 * time.Second
	}
	return context.WithTimeout(context.Background(), t)
}

func (m *Medium) Get(key string) (string, bool, error) {
	ctx, cancel := m.ctx()
	defer cancel()
	v, err := m.Client.Get(ctx, m.Namespace+key)
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (m *Medium) Set(key, value string) error {
	ctx, cancel := m.ctx()
	defer cancel()
	return m.Client.Set(ctx, m.Namespace+key, value, m.TTL)
}

func (m *Medium) Delete(key string) error {
	ctx, cancel := m.ctx()
	defer cancel()
	return m.Client.Del(ctx, m.Namespace+key)
}

func (m *Medium) Keys(prefix string) ([]string, error) {
	ctx, cancel := m.ctx()
	defer cancel()
	keys, err := m.Client.ScanPrefix(ctx, m.Namespace+prefix)
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		out = append(out, k[len(m.Namespace):])
	}
	return out, nil
}
