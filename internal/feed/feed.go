package feed

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/yourorg/pet-board/backend"
	"github.com/yourorg/pet-board/internal/events"
	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/localcache"
	"github.com/yourorg/pet-board/internal/refresh"
)

// Cache scopes shared with the session controller.
const (
	ScopeLatest = "recentPets"
	ScopeSlider = "sliderPets"
	ScopeLocal  = "localPets"
)

// Refresh job keys.
const (
	KeyLatest = "latest"
	KeySlider = "slider"
)

// Source is the read side of the backend the feed needs.
type Source interface {
	Latest(ctx context.Context) (listing.Payload, error)
	Slider(ctx context.Context) (listing.Payload, error)
	Pet(ctx context.Context, id string) (listing.Payload, error)
}

// Result is a feed read. FromCache is set when the network failed and the
// listings come from the local cache.
type Result struct {
	Listings  []listing.PetListing `json:"listings"`
	FromCache bool                 `json:"fromCache"`
}

// Service reads the public feeds network-first and falls back to the local
// cache on transport failures, queueing a background refresh.
type Service struct {
	Source     Source
	Normalizer *listing.Normalizer
	Cache      *localcache.Store[listing.PetListing]
	Refresher  *refresh.Refresher
	Log        *slog.Logger
}

func (s *Service) log() *slog.Logger {
	if s.Log != nil {
		return s.Log
	}
	return slog.Default()
}

func (s *Service) Latest(ctx context.Context) (Result, error) {
	res, err := s.read(ctx, KeyLatest)
	if err != nil {
		return res, err
	}
	res.Listings = mergeLocal(s.Cache.Get(ScopeLocal), res.Listings)
	return res, nil
}

func (s *Service) Slider(ctx context.Context) (Result, error) {
	return s.read(ctx, KeySlider)
}

func (s *Service) read(ctx context.Context, key string) (Result, error) {
	items, err := s.fetch(ctx, key)
	if err == nil {
		return Result{Listings: items}, nil
	}
	if !errors.Is(err, backend.ErrTransport) {
		return Result{}, err
	}
	cached := s.Cache.Get(scopeFor(key))
	s.log().Warn("feed served from cache", "feed", key, "count", len(cached), "error", err)
	if s.Refresher != nil {
		s.Refresher.Enqueue(refresh.Job{Key: key})
	}
	return Result{Listings: cached, FromCache: true}, nil
}

// Refresh fetches one feed and rewrites its cache scope.
func (s *Service) Refresh(ctx context.Context, key string) error {
	_, err := s.fetch(ctx, key)
	return err
}

func (s *Service) fetch(ctx context.Context, key string) ([]listing.PetListing, error) {
	var (
		p   listing.Payload
		err error
	)
	switch key {
	case KeyLatest:
		p, err = s.Source.Latest(ctx)
	case KeySlider:
		p, err = s.Source.Slider(ctx)
	default:
		return nil, fmt.Errorf("unknown feed %q", key)
	}
	if err != nil {
		return nil, err
	}
	items := s.Normalizer.Normalize(p, listing.SourceAPI)
	s.Cache.Set(scopeFor(key), items)
	return items, nil
}

// Get returns one listing. When the backend is unreachable the cached feeds
// and the local queue are searched by id.
func (s *Service) Get(ctx context.Context, id string) (listing.PetListing, bool, error) {
	p, err := s.Source.Pet(ctx, id)
	if err == nil {
		items := s.Normalizer.Normalize(p, listing.SourceAPI)
		if len(items) == 0 {
			return listing.PetListing{}, false, nil
		}
		return items[0], true, nil
	}
	if !errors.Is(err, backend.ErrTransport) {
		if errors.Is(err, backend.ErrNotFound) {
			return listing.PetListing{}, false, nil
		}
		return listing.PetListing{}, false, err
	}
	for _, scope := range []string{ScopeLocal, ScopeLatest, ScopeSlider} {
		for _, l := range s.Cache.Get(scope) {
			if l.ID == id {
				return l, true, nil
			}
		}
	}
	return listing.PetListing{}, false, err
}

// RunRefresh is the Refresher callback.
func (s *Service) RunRefresh(ctx context.Context, j refresh.Job) {
	if err := s.Refresh(ctx, j.Key); err != nil {
		s.log().Warn("feed refresh failed", "feed", j.Key, "error", err)
		return
	}
	s.log().Info("feed refreshed", "feed", j.Key)
}

// Drain consumes the listing change events already queued on sub and,
// when there was at least one, refreshes the latest feed so the cache shows
// the change. It never blocks waiting for new events.
func (s *Service) Drain(ctx context.Context, sub <-chan events.ListingChanged) (int, error) {
	n := 0
	for {
		select {
		case evt, ok := <-sub:
			if !ok {
				return n, s.refreshIf(ctx, n)
			}
			s.log().Debug("listing changed", "id", evt.ListingID, "action", evt.Action)
			n++
		default:
			return n, s.refreshIf(ctx, n)
		}
	}
}

func (s *Service) refreshIf(ctx context.Context, n int) error {
	if n == 0 {
		return nil
	}
	return s.Refresh(ctx, KeyLatest)
}

func scopeFor(key string) string {
	if key == KeySlider {
		return ScopeSlider
	}
	return ScopeLatest
}

// mergeLocal puts locally queued listings first, skipping ids the backend
// already returned.
func mergeLocal(local, remote []listing.PetListing) []listing.PetListing {
	if len(local) == 0 {
		return remote
	}
	seen := make(map[string]bool, len(remote))
	for _, l := range remote {
		seen[l.ID] = true
	}
	out := make([]listing.PetListing, 0, len(local)+len(remote))
	for i := len(local) - 1; i >= 0; i-- {
		if !seen[local[i].ID] {
			out = append(out, local[i])
		}
	}
	return append(out, remote...)
}
