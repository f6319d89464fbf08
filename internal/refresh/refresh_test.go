package refresh

import (
	"context"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestEnqueue_DedupesInFlightKey(t *testing.T) {
	release := make(chan struct{})
	started := make(chan struct{}, 4)
	var runs atomic.Int32
	r := New(4, 1, func(ctx context.Context, j Job) {
		runs.Add(1)
		started <- struct{}{}
		<-release
	})

	assert.True(t, r.Enqueue(Job{Key: "latest"}))
	<-started
	assert.False(t, r.Enqueue(Job{Key: "latest"}))
	assert.True(t, r.Enqueue(Job{Key: "slider"}))

	close(release)
	r.Close()
	assert.Equal(t, int32(2), runs.Load())
}

func TestClose_DrainsQueuedJobs(t *testing.T) {
	var runs atomic.Int32
	r := New(8, 2, func(ctx context.Context, j Job) {
		runs.Add(1)
	})
	for _, k := range []string{"a", "b", "c"} {
		r.Enqueue(Job{Key: k})
	}
	r.Close()
	r.Close()
	assert.Equal(t, int32(3), runs.Load())
}
