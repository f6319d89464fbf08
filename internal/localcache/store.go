package localcache

import (
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
)

// Store is a best-effort list cache over a Medium. Reads never fail:
// missing or corrupt values read as empty. Write failures are logged and
// swallowed.
type Store[T any] struct {
	medium Medium
	log    *slog.Logger
}

func New[T any](m Medium, log *slog.Logger) *Store[T] {
	if log == nil {
		log = slog.Default()
	}
	return &Store[T]{medium: m, log: log.With("component", "localcache")}
}

func (s *Store[T]) Get(scope string) []T {
	raw, ok, err := s.medium.Get(scope)
	if err != nil {
		s.log.Warn("cache read failed", "scope", scope, "error", err)
		return []T{}
	}
	if !ok || raw == "" {
		return []T{}
	}
	var items []T
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		s.log.Warn("cache value corrupt, treating as empty", "scope", scope, "error", err)
		return []T{}
	}
	if items == nil {
		return []T{}
	}
	return items
}

// Set replaces the scope. It reports whether the write landed.
func (s *Store[T]) Set(scope string, items []T) bool {
	if items == nil {
		items = []T{}
	}
	b, err := json.Marshal(items)
	if err != nil {
		s.log.Warn("cache encode failed", "scope", scope, "error", err)
		return false
	}
	if err := s.medium.Set(scope, string(b)); err != nil {
		s.log.Warn("cache write failed", "scope", scope, "error", err)
		return false
	}
	return true
}

// Append adds item at the end and evicts the oldest entries beyond limit.
// limit <= 0 means unbounded.
func (s *Store[T]) Append(scope string, item T, limit int) bool {
	items := append(s.Get(scope), item)
	if limit > 0 && len(items) > limit {
		items = items[len(items)-limit:]
	}
	return s.Set(scope, items)
}

func (s *Store[T]) Clear(scope string) {
	if err := s.medium.Delete(scope); err != nil {
		s.log.Warn("cache delete failed", "scope", scope, "error", err)
	}
}

// UserScopes namespaces a Store per user as prefix+userID and keeps an
// explicit index of known user ids next to the data.
type UserScopes[T any] struct {
	store  *Store[T]
	prefix string
}

func NewUserScopes[T any](s *Store[T], prefix string) *UserScopes[T] {
	return &UserScopes[T]{store: s, prefix: prefix}
}

func (u *UserScopes[T]) Key(userID string) string { return u.prefix + userID }

func (u *UserScopes[T]) indexKey() string { return "index:" + u.prefix }

func (u *UserScopes[T]) Get(userID string) []T { return u.store.Get(u.Key(userID)) }

func (u *UserScopes[T]) Set(userID string, items []T) bool {
	if !u.store.Set(u.Key(userID), items) {
		return false
	}
	u.index(userID, true)
	return true
}

func (u *UserScopes[T]) Append(userID string, item T, limit int) bool {
	if !u.store.Append(u.Key(userID), item, limit) {
		return false
	}
	u.index(userID, true)
	return true
}

func (u *UserScopes[T]) Clear(userID string) {
	u.store.Clear(u.Key(userID))
	u.index(userID, false)
}

// Users returns the known user ids from the index, sorted.
func (u *UserScopes[T]) Users() []string {
	return u.readIndex()
}

// ScanUsers enumerates every key under the prefix. It is linear in the
// medium's key count and exists for media written before the index.
func (u *UserScopes[T]) ScanUsers() []string {
	keys, err := u.store.medium.Keys(u.prefix)
	if err != nil {
		u.store.log.Warn("cache key scan failed", "prefix", u.prefix, "error", err)
		return []string{}
	}
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		if id := strings.TrimPrefix(k, u.prefix); id != "" {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

func (u *UserScopes[T]) readIndex() []string {
	raw, ok, err := u.store.medium.Get(u.indexKey())
	if err != nil || !ok {
		return []string{}
	}
	var ids []string
	if json.Unmarshal([]byte(raw), &ids) != nil {
		u.store.log.Warn("user index corrupt, treating as empty", "prefix", u.prefix)
		return []string{}
	}
	sort.Strings(ids)
	return ids
}

func (u *UserScopes[T]) index(userID string, add bool) {
	ids := u.readIndex()
	pos := sort.SearchStrings(ids, userID)
	present := pos < len(ids) && ids[pos] == userID
	switch {
	case add && !present:
		ids = append(ids, "")
		copy(ids[pos+1:], ids[pos:])
		ids[pos] = userID
	case !add && present:
		ids = append(ids[:pos], ids[pos+1:]...)
	default:
		return
	}
	b, _ := json.Marshal(ids)
	if err := u.store.medium.Set(u.indexKey(), string(b)); err != nil {
		u.store.log.Warn("user index write failed", "prefix", u.prefix, "error", err)
	}
}
