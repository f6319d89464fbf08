package medium

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/pet-board/internal/config"
	"github.com/yourorg/pet-board/internal/localcache"
)

func TestOpen_Memory(t *testing.T) {
	m, closeFn, err := Open(context.Background(), config.CacheConfig{Backend: config.CacheMemory, MaxBytes: 64}, nil)
	require.NoError(t, err)
	defer closeFn()
	_, ok := m.(*localcache.MemoryMedium)
	assert.True(t, ok)
	assert.False(t, Shared(config.CacheConfig{Backend: config.CacheMemory}))
	assert.True(t, Shared(config.CacheConfig{Backend: config.CacheRedis}))
}

func TestOpen_Unknown(t *testing.T) {
	_, _, err := Open(context.Background(), config.CacheConfig{Backend: "etcd"}, nil)
	assert.ErrorContains(t, err, "etcd")
}
