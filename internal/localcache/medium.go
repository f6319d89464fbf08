package localcache

import (
	"errors"
	"sort"
	"strings"
	"sync"
)

// ErrQuotaExceeded is returned by a medium that has run out of room.
var ErrQuotaExceeded = errors.New("localcache: quota exceeded")

// Medium is a synchronous string key/value store. Implementations give no
// transactional guarantees across keys.
type Medium interface {
	Get(key string) (value string, ok bool, err error)
	Set(key, value string) error
	Delete(key string) error
	Keys(prefix string) ([]string, error)
}

// MemoryMedium keeps values in process memory. MaxBytes > 0 caps the total
// size of keys plus values.
type MemoryMedium struct {
	MaxBytes int

	mu   sync.Mutex
	data map[string]string
	size int
}

func NewMemoryMedium(maxBytes int) *MemoryMedium {
	return &MemoryMedium{MaxBytes: maxBytes, data: map[string]string{}}
}

func (m *MemoryMedium) Get(key string) (string, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *MemoryMedium) Set(key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.data == nil {
		m.data = map[string]string{}
	}
	next := m.size + len(key) + len(value)
	if old, ok := m.data[key]; ok {
		next -= len(key) + len(old)
	}
	if m.MaxBytes > 0 && next > m.MaxBytes {
		return ErrQuotaExceeded
	}
	m.data[key] = value
	m.size = next
	return nil
}

func (m *MemoryMedium) Delete(key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if old, ok := m.data[key]; ok {
		m.size -= len(key) + len(old)
		delete(m.data, key)
	}
	return nil
}

func (m *MemoryMedium) Keys(prefix string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []string{}
	for k := range m.data {
		if strings.HasPrefix(k, prefix) {
			out = append(out, k)
		}
	}
	sort.Strings(out)
	return out, nil
}
