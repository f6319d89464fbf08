// Command petctl is a terminal client for the pets board: it browses the
// public feeds and, once logged in, manages the user's own listings.
package main

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/yourorg/pet-board/backend"
	"github.com/yourorg/pet-board/internal/config"
	"github.com/yourorg/pet-board/internal/events"
	"github.com/yourorg/pet-board/internal/feed"
	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/localcache"
	"github.com/yourorg/pet-board/internal/logger"
	"github.com/yourorg/pet-board/internal/medium"
	"github.com/yourorg/pet-board/internal/photo"
	"github.com/yourorg/pet-board/internal/search"
	"github.com/yourorg/pet-board/internal/session"
)

type app struct {
	cfg     *config.Config
	log     *slog.Logger
	out     io.Writer
	client  *backend.Client
	norm    *listing.Normalizer
	feed    *feed.Service
	session *session.Session
	pub     events.Publisher
	sub     <-chan events.ListingChanged
	closeFn func()
}

func (a *app) print(v any) error {
	enc := json.NewEncoder(a.out)
	enc.SetIndent("", "  ")
	enc.SetEscapeHTML(false)
	return enc.Encode(v)
}

func (a *app) searchOptions() search.Options {
	mode := search.ModeServer
	if a.cfg.Search.ClientPaging {
		mode = search.ModeClient
	}
	return search.Options{PageSize: a.cfg.Search.PageSize, Debounce: a.cfg.Search.Debounce, Mode: mode, Log: a.log}
}

func newApp(ctx context.Context, out, logOut io.Writer) (*app, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	log := logger.New(logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format, Writer: logOut})
	m, closeFn, err := medium.Open(ctx, cfg.Cache, log)
	if err != nil {
		return nil, err
	}
	if !medium.Shared(cfg.Cache) {
		log.Warn("login state is not kept between runs with the memory cache")
	}
	client := backend.NewClient(backend.Config{
		BaseURL:  cfg.Backend.BaseURL,
		Timeout:  cfg.Backend.Timeout,
		RetryMax: cfg.Backend.RetryMax,
		RPS:      cfg.Backend.RPS,
		Burst:    cfg.Backend.Burst,
		Log:      log,
	})
	norm := listing.NewNormalizer(photo.NewResolver(cfg.Backend.StorageURL))
	cache := localcache.New[listing.PetListing](m, log)
	pub := events.NewInMemory(64)
	return &app{
		cfg:    cfg,
		log:    log,
		out:    out,
		client: client,
		norm:   norm,
		feed:   &feed.Service{Source: client, Normalizer: norm, Cache: cache, Log: log},
		session: session.New(session.Deps{
			Backend:    client,
			Normalizer: norm,
			Prefs:      localcache.NewPrefs(m, log),
			Cache:      cache,
			Events:     pub,
			Log:        log,
		}),
		pub:     pub,
		sub:     pub.SubscribeListingChanged(),
		closeFn: closeFn,
	}, nil
}

// close folds pending listing changes into the cached feed and releases
// the medium.
func (a *app) close(ctx context.Context) {
	if n, err := a.feed.Drain(ctx, a.sub); err != nil {
		a.log.Warn("feed refresh after changes failed", "changes", n, "error", err)
	}
	a.closeFn()
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd(os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}
