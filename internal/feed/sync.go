package feed

import (
	"context"
	"errors"
	"time"

	"golang.org/x/sync/errgroup"
)

// Sync keeps the feed cache warm by refreshing every feed on an interval.
type Sync struct {
	Service  *Service
	Interval time.Duration
	Timeout  time.Duration
}

func (j *Sync) validate() error {
	if j == nil || j.Service == nil {
		return errors.New("feed sync requires a service")
	}
	if j.Service.Source == nil || j.Service.Normalizer == nil || j.Service.Cache == nil {
		return errors.New("feed sync service is missing source, normalizer or cache")
	}
	return nil
}

func (j *Sync) Run(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	if j.Interval <= 0 {
		return j.RunOnce(ctx)
	}
	log := j.Service.log()
	ticker := time.NewTicker(j.Interval)
	defer ticker.Stop()
	log.Info("feed sync starting", "interval", j.Interval)
	if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
		log.Warn("feed sync initial run failed", "error", err)
	}
	for {
		select {
		case <-ctx.Done():
			log.Info("feed sync stopping", "reason", ctx.Err())
			if errors.Is(ctx.Err(), context.Canceled) {
				return nil
			}
			return ctx.Err()
		case <-ticker.C:
			if err := j.RunOnce(ctx); err != nil && !errors.Is(err, context.Canceled) {
				log.Warn("feed sync iteration failed", "error", err)
			}
		}
	}
}

// RunOnce refreshes the latest and slider feeds concurrently. One feed
// failing does not stop the other; errors are joined.
func (j *Sync) RunOnce(ctx context.Context) error {
	if err := j.validate(); err != nil {
		return err
	}
	timeout := j.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	keys := []string{KeyLatest, KeySlider}
	errs := make([]error, len(keys))
	var g errgroup.Group
	for i, key := range keys {
		i, key := i, key
		g.Go(func() error {
			reqCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			errs[i] = j.Service.Refresh(reqCtx, key)
			return nil
		})
	}
	_ = g.Wait()
	if ctx.Err() != nil {
		return ctx.Err()
	}
	return errors.Join(errs...)
}
