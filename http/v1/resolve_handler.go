package v1

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/localcache"
	"github.com/yourorg/pet-board/internal/photo"
)

// PetJobPrefix marks refresh jobs that re-resolve one listing.
const PetJobPrefix = "pet:"

// PetGetter is the single-listing read the resolve cache sits in front of.
type PetGetter interface {
	Get(ctx context.Context, id string) (listing.PetListing, bool, error)
}

type ResolveDeps struct {
	Medium     localcache.Medium
	Pets       PetGetter
	Resolver   photo.Resolver
	Normalizer *listing.Normalizer
	// Refetch schedules a background refresh of a stale entry.
	Refetch func(id string)
	// TTL and staleness tuning
	StaleAfter  time.Duration
	NegativeTTL time.Duration
	Now         func() time.Time
}

type cachedEnvelope struct {
	Data listing.PetListing `json:"data"`
	Meta struct {
		LastFetch  time.Time `json:"last_fetch_at"`
		StaleAfter time.Time `json:"stale_after"`
		Source     string    `json:"source"`
	} `json:"meta"`
}

type missMarker struct {
	Until time.Time `json:"until"`
}

func (d ResolveDeps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func cacheKey(id string) string { return "resolve:pet:" + id }
func missKey(id string) string { return "resolve:miss:" + id }

func RegisterResolve(r chi.Router, d ResolveDeps) {
	r.Route("/v1", func(r chi.Router) {
		r.Get("/photos/resolve", func(w http.ResponseWriter, req *http.Request) {
			refs := req.URL.Query()["ref"]
			if len(refs) == 0 {
				refs = []string{""}
			}
			renderResolved(w, req, d.Resolver, refs)
		})
		r.Post("/photos/resolve", func(w http.ResponseWriter, req *http.Request) {
			var body struct {
				Refs []any `json:"refs"`
			}
			if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
				render.Status(req, http.StatusBadRequest)
				render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
				return
			}
			out := make([]map[string]any, 0, len(body.Refs))
			for _, ref := range body.Refs {
				u := d.Resolver.ResolveValue(ref)
				out = append(out, map[string]any{"ref": ref, "url": u, "placeholder": d.Resolver.IsPlaceholder(u)})
			}
			render.JSON(w, req, map[string]any{"ok": true, "photos": out})
		})

		r.Post("/listings/normalize", func(w http.ResponseWriter, req *http.Request) {
			raw, err := io.ReadAll(io.LimitReader(req.Body, 4<<20))
			if err != nil {
				render.Status(req, http.StatusBadRequest)
				render.JSON(w, req, map[string]any{"error": "read_error", "detail": err.Error()})
				return
			}
			p, err := listing.DecodePayload(raw)
			if err != nil {
				render.Status(req, http.StatusBadRequest)
				render.JSON(w, req, map[string]any{"error": "invalid_json", "detail": err.Error()})
				return
			}
			src := listing.Source(req.URL.Query().Get("source"))
			switch src {
			case listing.SourceAPI, listing.SourceLocal, listing.SourceLegacy:
			default:
				src = listing.SourceAPI
			}
			items := d.Normalizer.Normalize(p, src)
			render.JSON(w, req, map[string]any{
				"ok":       true,
				"shape":    p.Shape.String(),
				"count":    len(items),
				"listings": items,
			})
		})

		r.Get("/pets/{id}/resolve", func(w http.ResponseWriter, req *http.Request) {
			resolve(w, req, d, strings.TrimSpace(chi.URLParam(req, "id")))
		})
	})
}

func renderResolved(w http.ResponseWriter, req *http.Request, res photo.Resolver, refs []string) {
	out := make([]map[string]any, 0, len(refs))
	for _, ref := range refs {
		u := res.Resolve(ref)
		out = append(out, map[string]any{"ref": ref, "url": u, "placeholder": res.IsPlaceholder(u)})
	}
	render.JSON(w, req, map[string]any{"ok": true, "photos": out})
}

// resolve serves one listing stale-while-revalidate: a cached entry is
// returned at once and refreshed in the background once stale; misses are
// fetched inline and negative results are remembered for NegativeTTL.
func resolve(w http.ResponseWriter, req *http.Request, d ResolveDeps, id string) {
	if id == "" {
		render.Status(req, http.StatusBadRequest)
		render.JSON(w, req, map[string]any{"error": "id_required"})
		return
	}
	now := d.now()

	if val, ok, _ := d.Medium.Get(missKey(id)); ok {
		var m missMarker
		if json.Unmarshal([]byte(val), &m) == nil && now.Before(m.Until) {
			render.Status(req, http.StatusNotFound)
			render.JSON(w, req, map[string]any{"error": "not_found", "id": id, "cache_miss_cooldown": true})
			return
		}
		_ = d.Medium.Delete(missKey(id))
	}

	if val, ok, _ := d.Medium.Get(cacheKey(id)); ok {
		var env cachedEnvelope
		if err := json.Unmarshal([]byte(val), &env); err == nil {
			stale := now.After(env.Meta.StaleAfter)
			// fire-and-forget background refresh if stale
			if stale && d.Refetch != nil {
				d.Refetch(id)
			}
			render.JSON(w, req, map[string]any{
				"ok":     true,
				"source": "cache",
				"stale":  stale,
				"id":     id,
				"data":   env.Data,
			})
			return
		}
	}

	l, found, err := d.Pets.Get(req.Context(), id)
	if err != nil {
		render.Status(req, http.StatusBadGateway)
		render.JSON(w, req, map[string]any{"error": "upstream_error", "detail": err.Error()})
		return
	}
	if !found {
		b, _ := json.Marshal(missMarker{Until: now.Add(maxDur(d.NegativeTTL, time.Minute))})
		_ = d.Medium.Set(missKey(id), string(b))
		render.Status(req, http.StatusNotFound)
		render.JSON(w, req, map[string]any{"error": "not_found", "id": id})
		return
	}
	_ = d.store(id, l, now)

	render.JSON(w, req, map[string]any{
		"ok":     true,
		"source": "fresh",
		"stale":  false,
		"id":     id,
		"data":   l,
	})
}

func (d ResolveDeps) store(id string, l listing.PetListing, now time.Time) error {
	env := cachedEnvelope{Data: l}
	env.Meta.LastFetch = now
	env.Meta.StaleAfter = now.Add(maxDur(d.StaleAfter, 5*time.Minute))
	env.Meta.Source = string(l.Provenance.Source)
	b, err := json.Marshal(env)
	if err != nil {
		return err
	}
	return d.Medium.Set(cacheKey(id), string(b))
}

// Refresh re-reads one listing into the resolve cache; it backs the
// refresh jobs queued by Refetch.
func (d ResolveDeps) Refresh(ctx context.Context, id string) error {
	l, found, err := d.Pets.Get(ctx, id)
	if err != nil {
		return err
	}
	if !found {
		return d.Medium.Delete(cacheKey(id))
	}
	return d.store(id, l, d.now())
}

func maxDur(a, b time.Duration) time.Duration {
	if a > 0 {
		return a
	}
	return b
}
