package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/yourorg/pet-board/backend"
	httpapi "github.com/yourorg/pet-board/http"
	httpv1 "github.com/yourorg/pet-board/http/v1"
	"github.com/yourorg/pet-board/internal/config"
	"github.com/yourorg/pet-board/internal/feed"
	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/localcache"
	"github.com/yourorg/pet-board/internal/logger"
	"github.com/yourorg/pet-board/internal/medium"
	"github.com/yourorg/pet-board/internal/photo"
	"github.com/yourorg/pet-board/internal/refresh"
	"github.com/yourorg/pet-board/internal/search"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "config:", err)
		os.Exit(1)
	}
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cacheMedium, closeMedium, err := medium.Open(ctx, cfg.Cache, log)
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
	resolver := photo.NewResolver(cfg.Backend.StorageURL)
	norm := listing.NewNormalizer(resolver)

	feedSvc := &feed.Service{
		Source:     client,
		Normalizer: norm,
		Cache:      localcache.New[listing.PetListing](cacheMedium, log),
		Log:        log,
	}
	resolveDeps := httpv1.ResolveDeps{
		Medium:      cacheMedium,
		Pets:        feedSvc,
		Resolver:    resolver,
		Normalizer:  norm,
		StaleAfter:  5 * time.Minute,
		NegativeTTL: time.Minute,
	}
	refresher := refresh.New(256, cfg.Feed.Workers, func(ctx context.Context, j refresh.Job) {
		if id, ok := strings.CutPrefix(j.Key, httpv1.PetJobPrefix); ok {
			if err := resolveDeps.Refresh(ctx, id); err != nil {
				log.Warn("pet refresh failed", "id", id, "error", err)
			}
			return
		}
		feedSvc.RunRefresh(ctx, j)
	})
	feedSvc.Refresher = refresher
	resolveDeps.Refetch = func(id string) { refresher.Enqueue(refresh.Job{Key: httpv1.PetJobPrefix + id}) }

	mode := search.ModeServer
	if cfg.Search.ClientPaging {
		mode = search.ModeClient
	}
	router := BuildRouter(RouterDeps{
		Listings:  httpapi.ListingsDeps{Feed: feedSvc},
		Search:    httpapi.SearchDeps{Fetcher: client, Normalizer: norm, Options: search.Options{PageSize: cfg.Search.PageSize, Debounce: cfg.Search.Debounce, Mode: mode, Log: log}},
		Subscribe: httpapi.SubscribeDeps{Backend: client},
		Resolve:   resolveDeps,

		CORSOrigins: cfg.CORSOrigins,
		RateLimit:   cfg.RateLimit,
	})

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           logger.Middleware(log, router),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	log.Info("pet-board gateway listening", "port", cfg.Port, "backend", client.BaseURL(), "cache", cfg.Cache.Backend)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Error("server stopped", "error", err)
	}
	refresher.Close()
}
