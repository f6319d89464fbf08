package refresh

import (
	"context"
	"sync"
	"time"
)

// Job names one logical read to redo, e.g. the "latest" feed.
type Job struct {
	Key string
}

// Refresher runs background refreshes with at most one in flight per key.
type Refresher struct {
	ch      chan Job
	inFly   sync.Map // key -> struct{}
	Do      func(ctx context.Context, j Job)
	Timeout time.Duration
	wg      sync.WaitGroup
	once    sync.Once
}

func New(capacity int, workerCount int, do func(ctx context.Context, j Job)) *Refresher {
	if capacity <= 0 {
		capacity = 256
	}
	if workerCount <= 0 {
		workerCount = 2
	}
	r := &Refresher{ch: make(chan Job, capacity), Do: do, Timeout: 15 * time.Second}
	for i := 0; i < workerCount; i++ {
		r.wg.Add(1)
		go r.worker()
	}
	return r
}

// Enqueue reports whether the job was accepted. Duplicates of an in-flight
// key and jobs arriving while the queue is saturated are dropped.
func (r *Refresher) Enqueue(j Job) bool {
	if _, exists := r.inFly.LoadOrStore(j.Key, struct{}{}); exists {
		return false
	}
	select {
	case r.ch <- j:
		return true
	default:
		// drop if saturated
		r.inFly.Delete(j.Key)
		return false
	}
}

// Close stops accepting work and waits for the workers to drain.
func (r *Refresher) Close() {
	r.once.Do(func() { close(r.ch) })
	r.wg.Wait()
}

func (r *Refresher) worker() {
	defer r.wg.Done()
	for j := range r.ch {
		ctx, cancel := context.WithTimeout(context.Background(), r.Timeout)
		func() {
			defer func() {
				r.inFly.Delete(j.Key)
				cancel()
			}()
			if r.Do != nil {
				r.Do(ctx, j)
			}
		}()
	}
}
