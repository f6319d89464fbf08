package main

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/go-chi/render"

	httpapi "github.com/yourorg/pet-board/http"
	httpv1 "github.com/yourorg/pet-board/http/v1"
)

type RouterDeps struct {
	Listings    httpapi.ListingsDeps
	Search      httpapi.SearchDeps
	Subscribe   httpapi.SubscribeDeps
	Resolve     httpv1.ResolveDeps
	CORSOrigins []string
	RateLimit   int
}

func BuildRouter(d RouterDeps) http.Handler {
	r := chi.NewRouter()
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: d.CORSOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))
	limit := d.RateLimit
	if limit <= 0 {
		limit = 100
	}
	r.Use(httprate.LimitByIP(limit, 1*time.Minute)) // protect upstream quota
	r.Use(render.SetContentType(render.ContentTypeJSON))
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`{"ok":true}`)) })

	httpapi.RegisterListings(r, d.Listings)
	httpapi.RegisterSearch(r, d.Search)
	httpapi.RegisterSubscribe(r, d.Subscribe)

	// v1 debug endpoints and the stale-while-revalidate pet cache
	httpv1.RegisterResolve(r, d.Resolve)

	return r
}
