package store

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// Store keeps the client-side cache in Postgres when a shared durable
// medium is wanted (e.g. several gateway replicas).
type Store struct {
	DB      *sql.DB
	Timeout time.Duration
}

func Open(dsn string) (*Store, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(30 * time.Minute)
	return &Store{DB: db, Timeout: 3 * time.Second}, nil
}

func (s *Store) Ping(ctx context.Context) error { return s.DB.PingContext(ctx) }

func (s *Store) Close() error { return s.DB.Close() }

func (s *Store) Migrate(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS client_cache (
			key         TEXT PRIMARY KEY,
			value       TEXT NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT now()
		);`,
		`CREATE INDEX IF NOT EXISTS idx_client_cache_key_prefix ON client_cache (key text_pattern_ops);`,
	}
	for _, q := range stmts {
		if _, err := s.DB.ExecContext(ctx, q); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) ctx() (context.Context, context.CancelFunc) {
	t := s.Timeout
	if t <= 0 {
		t = 3 * time.Second
	}
	return context.WithTimeout(context.Background(), t)
}

// Get, Set, Delete and Keys satisfy the localcache medium contract.
func (s *Store) Get(key string) (string, bool, error) {
	if s.DB == nil {
		return "", false, errors.New("nil db")
	}
	ctx, cancel := s.ctx()
	defer cancel()
	var v string
	err := s.DB.QueryRowContext(ctx, `SELECT value FROM client_cache WHERE key=$1`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return v, true, nil
}

func (s *Store) Set(key, value string) error {
	if s.DB == nil {
		return errors.New("nil db")
	}
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.DB.ExecContext(ctx, `
		INSERT INTO client_cache (key, value) VALUES ($1,$2)
		ON CONFLICT (key) DO UPDATE SET value=EXCLUDED.value, updated_at=now()`, key, value)
	return err
}

func (s *Store) Delete(key string) error {
	if s.DB == nil {
		return errors.New("nil db")
	}
	ctx, cancel := s.ctx()
	defer cancel()
	_, err := s.DB.ExecContext(ctx, `DELETE FROM client_cache WHERE key=$1`, key)
	return err
}

func (s *Store) Keys(prefix string) ([]string, error) {
	if s.DB == nil {
		return nil, errors.New("nil db")
	}
	ctx, cancel := s.ctx()
	defer cancel()
	rows, err := s.DB.QueryContext(ctx, `SELECT key FROM client_cache WHERE key LIKE $1 ESCAPE '\' ORDER BY key`, likePrefix(prefix))
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var k string
		if err := rows.Scan(&k); err != nil {
			return nil, err
		}
		out = append(out, k)
	}
	return out, rows.Err()
}

func likePrefix(p string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(p) + "%"
}
