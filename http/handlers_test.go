package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/pet-board/backend"
	"github.com/yourorg/pet-board/internal/feed"
	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/localcache"
	"github.com/yourorg/pet-board/internal/photo"
	"github.com/yourorg/pet-board/internal/search"
)

type fakeBackend struct {
	latest    listing.Payload
	err       error
	advanced  []backend.SearchParams
	subscribe []string
}

func (f *fakeBackend) Latest(context.Context) (listing.Payload, error) { return f.latest, f.err }
func (f *fakeBackend) Slider(context.Context) (listing.Payload, error) { return f.latest, f.err }
func (f *fakeBackend) Pet(_ context.Context, id string) (listing.Payload, error) {
	if f.err != nil {
		return listing.Payload{}, f.err
	}
	if id != "1" {
		return listing.Payload{}, &backend.APIError{Status: 404, Message: "Not found"}
	}
	return decode(`{"data":{"pet":{"id":1,"date":"2024-03-05"}}}`), nil
}

func (f *fakeBackend) QuickSearch(_ context.Context, q string, _, _ int) (listing.Payload, error) {
	return f.latest, f.err
}

func (f *fakeBackend) AdvancedSearch(_ context.Context, p backend.SearchParams) (listing.Payload, error) {
	f.advanced = append(f.advanced, p)
	var b strings.Builder
	b.WriteString("[")
	for i := 1; i <= 12; i++ {
		if i > 1 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"id":%d}`, i)
	}
	b.WriteString("]")
	return decode(b.String()), f.err
}

func (f *fakeBackend) Subscribe(_ context.Context, email string) error {
	f.subscribe = append(f.subscribe, email)
	return f.err
}

func decode(raw string) listing.Payload {
	p, err := listing.DecodePayload([]byte(raw))
	if err != nil {
		panic(err)
	}
	return p
}

func newRouter(b *fakeBackend) chi.Router {
	norm := listing.NewNormalizer(photo.NewResolver("https://pets.example"))
	r := chi.NewRouter()
	RegisterListings(r, ListingsDeps{Feed: &feed.Service{
		Source:     b,
		Normalizer: norm,
		Cache:      localcache.New[listing.PetListing](localcache.NewMemoryMedium(0), nil),
	}})
	RegisterSearch(r, SearchDeps{Fetcher: b, Normalizer: norm, Options: search.Options{PageSize: 5}})
	RegisterSubscribe(r, SubscribeDeps{Backend: b})
	return r
}

func call(t *testing.T, r http.Handler, method, target, body string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, httptest.NewRequest(method, target, strings.NewReader(body)))
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestPets_FeedAndStaleFallback(t *testing.T) {
	b := &fakeBackend{latest: decode(`{"data":{"pets":[{"id":1},{"id":2}]}}`)}
	r := newRouter(b)

	code, out := call(t, r, http.MethodGet, "/pets", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(2), out["count"])
	assert.Equal(t, false, out["stale"])

	b.err = fmt.Errorf("%w: down", backend.ErrTransport)
	code, out = call(t, r, http.MethodGet, "/pets", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, true, out["stale"])
	assert.Equal(t, float64(2), out["count"])
}

func TestPetByID(t *testing.T) {
	r := newRouter(&fakeBackend{})
	code, out := call(t, r, http.MethodGet, "/pets/1", "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "05.03.2024", out["displayDate"])

	code, _ = call(t, r, http.MethodGet, "/pets/2", "")
	assert.Equal(t, http.StatusNotFound, code)
}

func TestSearchOrder_PagesAndDistrict(t *testing.T) {
	b := &fakeBackend{}
	r := newRouter(b)
	code, out := call(t, r, http.MethodGet, "/search/order?"+url.Values{"district": {"Невский"}, "kind": {"кошка"}, "page": {"3"}}.Encode(), "")
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, float64(3), out["page"])
	assert.Equal(t, float64(3), out["totalPages"])
	assert.Equal(t, float64(12), out["totalResults"])
	assert.Len(t, out["results"], 2)
	require.Len(t, b.advanced, 1)
	assert.Equal(t, "nevsky", b.advanced[0].District)

	code, out = call(t, r, http.MethodGet, "/search/order?district=atlantis", "")
	assert.Equal(t, http.StatusBadRequest, code)
	assert.Equal(t, "unknown_district", out["error"])
}

func TestSearch_RequiresQuery(t *testing.T) {
	code, _ := call(t, newRouter(&fakeBackend{}), http.MethodGet, "/search", "")
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestSuggest_ShortQueryEmpty(t *testing.T) {
	b := &fakeBackend{latest: decode(`[{"id":1}]`)}
	r := newRouter(b)
	_, out := call(t, r, http.MethodGet, "/search/suggest?query="+url.QueryEscape("к"), "")
	assert.Equal(t, float64(0), out["count"])
	_, out = call(t, r, http.MethodGet, "/search/suggest?query="+url.QueryEscape("кот"), "")
	assert.Equal(t, float64(1), out["count"])
}

func TestSubscribe(t *testing.T) {
	b := &fakeBackend{}
	r := newRouter(b)
	code, out := call(t, r, http.MethodPost, "/subscription", `{"email":"nope"}`)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, "invalid address", out["fieldErrors"].(map[string]any)["email"])

	code, _ = call(t, r, http.MethodPost, "/subscription", `{"email":"a@x.ru"}`)
	assert.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"a@x.ru"}, b.subscribe)
}

func TestWriteError(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{&backend.APIError{Status: 422, Message: "phone: bad", FieldErrors: map[string]string{"phone": "bad"}}, 422, "validation_failed"},
		{&backend.APIError{Status: 401, Message: "Unauthorized"}, 401, "unauthorized"},
		{&backend.APIError{Status: 503, Message: "down"}, 503, "upstream_error"},
		{fmt.Errorf("%w: x", backend.ErrTransport), 502, "backend_unreachable"},
		{context.DeadlineExceeded, 504, "timeout"},
		{fmt.Errorf("boom"), 500, "internal_error"},
	}
	for _, tc := range cases {
		rec := httptest.NewRecorder()
		WriteError(rec, httptest.NewRequest(http.MethodGet, "/", nil), tc.err)
		assert.Equal(t, tc.status, rec.Code, tc.err.Error())
		var out map[string]any
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
		assert.Equal(t, tc.code, out["error"])
	}
}
