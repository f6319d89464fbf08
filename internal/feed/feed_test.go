package feed

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/pet-board/backend"
	"github.com/yourorg/pet-board/internal/events"
	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/localcache"
	"github.com/yourorg/pet-board/internal/photo"
	"github.com/yourorg/pet-board/internal/refresh"
)

type fakeSource struct {
	latest, slider listing.Payload
	pet            map[string]listing.Payload
	err            error
	calls          atomic.Int32
}

func (f *fakeSource) Latest(context.Context) (listing.Payload, error) {
	f.calls.Add(1)
	return f.latest, f.err
}

func (f *fakeSource) Slider(context.Context) (listing.Payload, error) {
	f.calls.Add(1)
	return f.slider, f.err
}

func (f *fakeSource) Pet(_ context.Context, id string) (listing.Payload, error) {
	if f.err != nil {
		return listing.Payload{}, f.err
	}
	p, ok := f.pet[id]
	if !ok {
		return listing.Payload{}, &backend.APIError{Status: 404, Message: "Not found"}
	}
	return p, nil
}

func payload(t *testing.T, raw string) listing.Payload {
	t.Helper()
	p, err := listing.DecodePayload([]byte(raw))
	require.NoError(t, err)
	return p
}

var errDown = fmt.Errorf("%w: GET /pets: connection refused", backend.ErrTransport)

func newService(src Source) *Service {
	return &Service{
		Source:     src,
		Normalizer: listing.NewNormalizer(photo.NewResolver("https://pets.example")),
		Cache:      localcache.New[listing.PetListing](localcache.NewMemoryMedium(0), nil),
	}
}

func TestLatest_NetworkFirstWritesCache(t *testing.T) {
	src := &fakeSource{latest: payload(t, `{"data":{"orders":[{"id":1,"kind":"кошка"},{"id":2,"kind":"собака"}]}}`)}
	s := newService(src)

	res, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.False(t, res.FromCache)
	require.Len(t, res.Listings, 2)
	assert.Equal(t, "1", res.Listings[0].ID)

	cached := s.Cache.Get(ScopeLatest)
	assert.Len(t, cached, 2)
}

func TestLatest_TransportFailureServesCache(t *testing.T) {
	src := &fakeSource{latest: payload(t, `{"data":{"orders":[{"id":1}]}}`)}
	s := newService(src)
	_, err := s.Latest(context.Background())
	require.NoError(t, err)

	src.err = errDown
	res, err := s.Latest(context.Background())
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	require.Len(t, res.Listings, 1)
	assert.Equal(t, "1", res.Listings[0].ID)
}

func TestLatest_APIErrorIsNotMasked(t *testing.T) {
	src := &fakeSource{err: &backend.APIError{Status: 500, Message: "boom"}}
	s := newService(src)
	_, err := s.Latest(context.Background())
	var ae *backend.APIError
	require.True(t, errors.As(err, &ae))
	assert.Equal(t, 500, ae.Status)
}

func TestLatest_LocalQueueFirst(t *testing.T) {
	src := &fakeSource{latest: payload(t, `[{"id":"1"}]`)}
	s := newService(src)
	s.Cache.Append(ScopeLocal, listing.PetListing{ID: "local-a"}, 0)
	s.Cache.Append(ScopeLocal, listing.PetListing{ID: "local-b"}, 0)

	res, err := s.Latest(context.Background())
	require.NoError(t, err)
	ids := make([]string, 0, len(res.Listings))
	for _, l := range res.Listings {
		ids = append(ids, l.ID)
	}
	assert.Equal(t, []string{"local-b", "local-a", "1"}, ids)
}

func TestLatest_FallbackEnqueuesRefresh(t *testing.T) {
	src := &fakeSource{err: errDown}
	s := newService(src)
	done := make(chan string, 1)
	s.Refresher = refresh.New(4, 1, func(_ context.Context, j refresh.Job) { done <- j.Key })
	defer s.Refresher.Close()

	res, err := s.Slider(context.Background())
	require.NoError(t, err)
	assert.True(t, res.FromCache)
	assert.Empty(t, res.Listings)

	select {
	case key := <-done:
		assert.Equal(t, KeySlider, key)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh not run")
	}
}

func TestGet(t *testing.T) {
	src := &fakeSource{pet: map[string]listing.Payload{
		"7": payload(t, `{"data":{"pet":{"id":7,"kind":"птица","nickname":"Кеша"}}}`),
	}}
	s := newService(src)

	l, ok, err := s.Get(context.Background(), "7")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Кеша", l.Name)

	_, ok, err = s.Get(context.Background(), "8")
	require.NoError(t, err)
	assert.False(t, ok)

	s.Cache.Set(ScopeSlider, []listing.PetListing{{ID: "9", Name: "Барсик"}})
	src.err = errDown
	l, ok, err = s.Get(context.Background(), "9")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Барсик", l.Name)

	_, ok, err = s.Get(context.Background(), "10")
	assert.False(t, ok)
	assert.ErrorIs(t, err, backend.ErrTransport)
}

func TestDrain_RefreshesLatestOnce(t *testing.T) {
	src := &fakeSource{latest: payload(t, `[{"id":"1"}]`)}
	s := newService(src)
	pub := events.NewInMemory(4)
	sub := pub.SubscribeListingChanged()

	n, err := s.Drain(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 0, n)
	assert.Equal(t, int32(0), src.calls.Load())

	pub.PublishListingChanged(context.Background(), events.ListingChanged{ListingID: "1", Action: events.ActionCreated})
	pub.PublishListingChanged(context.Background(), events.ListingChanged{ListingID: "2", Action: events.ActionDeleted})
	n, err = s.Drain(context.Background(), sub)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, int32(1), src.calls.Load())
	assert.Len(t, s.Cache.Get(ScopeLatest), 1)
}

func TestSyncRunOnce(t *testing.T) {
	src := &fakeSource{
		latest: payload(t, `[{"id":"1"}]`),
		slider: payload(t, `[{"id":"2"},{"id":"3"}]`),
	}
	s := newService(src)
	j := &Sync{Service: s}
	require.NoError(t, j.RunOnce(context.Background()))
	assert.Equal(t, int32(2), src.calls.Load())
	assert.Len(t, s.Cache.Get(ScopeLatest), 1)
	assert.Len(t, s.Cache.Get(ScopeSlider), 2)

	src.err = errDown
	err := j.RunOnce(context.Background())
	assert.ErrorIs(t, err, backend.ErrTransport)
	assert.Len(t, s.Cache.Get(ScopeSlider), 2)
}

func TestSyncValidate(t *testing.T) {
	assert.Error(t, (&Sync{}).RunOnce(context.Background()))
	assert.Error(t, (&Sync{Service: &Service{}}).Run(context.Background()))
}
