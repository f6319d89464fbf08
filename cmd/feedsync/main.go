package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/yourorg/pet-board/backend"
	"github.com/yourorg/pet-board/internal/config"
	"github.com/yourorg/pet-board/internal/feed"
	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/localcache"
	"github.com/yourorg/pet-board/internal/logger"
	"github.com/yourorg/pet-board/internal/medium"
	"github.com/yourorg/pet-board/internal/photo"
)

// feedsync keeps a shared cache medium warm with the latest and slider
// feeds so gateways can serve them while the backend is down.
func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	if !medium.Shared(cfg.Cache) {
		log.Error("feedsync needs a shared cache; set CACHE_BACKEND to redis or postgres")
		os.Exit(1)
	}
	rootCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheMedium, closeMedium, err := medium.Open(rootCtx, cfg.Cache, log)
	if err != nil {
		log.Error("cache medium", "backend", cfg.Cache.Backend, "error", err)
		os.Exit(1)
	}
	defer closeMedium()

	client := backend.NewClient(backend.Config{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  cfg.Backend.Timeout,
		RetryMax: cfg.Backend.RetryMax,
		RPS:      cfg.Backend.RPS,
		Burst:    cfg.Backend.Burst,
		Log:      log,
	})
	job := &feed.Sync{
		Service: &feed.Service{
			Source:     client,
			Normalizer: listing.NewNormalizer(photo.NewResolver(cfg.Backend.StorageURL)),
			Cache:      localcache.New[listing.PetListing](cacheMedium, log),
			Log:        log,
		},
		Interval: cfg.Feed.Interval,
		Timeout:  cfg.Feed.Timeout,
	}

	if cfg.Feed.RunOnce {
		if err := job.RunOnce(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
			log.Error("feed sync run failed", "error", err)
			os.Exit(1)
		}
		return
	}

	if err := job.Run(rootCtx); err != nil && !errors.Is(err, context.Canceled) {
		log.Error("feed sync stopped with error", "error", err)
		os.Exit(1)
	}
}
