package httpapi

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"

	"github.com/yourorg/pet-board/internal/canon"
	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/search"
)

type SearchDeps struct {
	Fetcher    search.Fetcher
	Normalizer *listing.Normalizer
	Options    search.Options
}

// newController builds a per-request controller; the gateway holds no
// search state between requests.
func (d SearchDeps) newController() *search.Controller {
	return search.New(d.Fetcher, d.Normalizer, d.Options)
}

func RegisterSearch(r chi.Router, d SearchDeps) {
	// free-text search
	r.Get("/search", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		text := strings.TrimSpace(q.Get("query"))
		if text == "" {
			badRequest(w, req, "query_required", "query is required")
			return
		}
		runSearch(w, req, d, search.Query{Text: text}, atoi(q.Get("page"), 1))
	})

	// district / kind / status filter
	r.Get("/search/order", func(w http.ResponseWriter, req *http.Request) {
		q := req.URL.Query()
		query := search.Query{
			Kind:   q.Get("kind"),
			Status: q.Get("status"),
		}
		if v := q.Get("district"); v != "" {
			key, ok := canon.DistrictKey(v)
			if !ok {
				badRequest(w, req, "unknown_district", v)
				return
			}
			query.District = key
		}
		runSearch(w, req, d, query, atoi(q.Get("page"), 1))
	})

	r.Get("/search/suggest", func(w http.ResponseWriter, req *http.Request) {
		items, err := d.newController().Suggest(req.Context(), req.URL.Query().Get("query"))
		if err != nil {
			WriteError(w, req, err)
			return
		}
		render.JSON(w, req, map[string]any{"ok": true, "count": len(items), "suggestions": items})
	})

	r.Get("/districts", func(w http.ResponseWriter, req *http.Request) {
		keys := canon.DistrictKeys()
		out := make([]map[string]string, 0, len(keys))
		for _, k := range keys {
			out = append(out, map[string]string{"key": k, "name": canon.DistrictName(k)})
		}
		render.JSON(w, req, map[string]any{"ok": true, "districts": out})
	})
}

func runSearch(w http.ResponseWriter, req *http.Request, d SearchDeps, q search.Query, page int) {
	st, err := d.newController().SearchAt(req.Context(), q, page)
	if err != nil {
		WriteError(w, req, err)
		return
	}
	render.JSON(w, req, map[string]any{
		"ok":           true,
		"query":        st.Query,
		"page":         st.Page,
		"pageSize":     st.PageSize,
		"totalPages":   st.TotalPages,
		"totalResults": st.Total,
		"results":      st.Results,
	})
}

func atoi(v string, def int) int {
	if v == "" {
		return def
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return i
}
