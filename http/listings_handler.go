package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/pet-board/internal/feed"
	"github.com/yourorg/pet-board/internal/listing"
)

type ListingsDeps struct {
	Feed *feed.Service
}

func RegisterListings(r chi.Router, d ListingsDeps) {
	r.Get("/pets", func(w http.ResponseWriter, req *http.Request) {
		res, err := d.Feed.Latest(req.Context())
		if err != nil {
			WriteError(w, req, err)
			return
		}
		renderFeed(w, req, res)
	})

	r.Get("/pets/slider", func(w http.ResponseWriter, req *http.Request) {
		res, err := d.Feed.Slider(req.Context())
		if err != nil {
			WriteError(w, req, err)
			return
		}
		renderFeed(w, req, res)
	})

	r.Get("/pets/{id}", func(w http.ResponseWriter, req *http.Request) {
		id := chi.URLParam(req, "id")
		l, ok, err := d.Feed.Get(req.Context(), id)
		if err != nil {
			WriteError(w, req, err)
			return
		}
		if !ok {
			render.Status(req, http.StatusNotFound)
			render.JSON(w, req, map[string]any{"error": "not_found", "id": id})
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "pet": l, "displayDate": listing.DisplayDate(l.Date)})
	})
}

func renderFeed(w http.ResponseWriter, req *http.Request, res feed.Result) {
	render.JSON(w, req, map[string]any{
		"ok":    true,
		"count": len(res.Listings),
		"stale": res.FromCache,
		"pets":  res.Listings,
	})
}
