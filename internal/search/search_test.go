package search

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/yourorg/pet-board/backend"
	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/photo"
)

type fakeTimer struct {
	s       *fakeScheduler
	f       func()
	stopped bool
}

func (t *fakeTimer) Stop() bool {
	t.s.mu.Lock()
	defer t.s.mu.Unlock()
	was := !t.stopped
	t.stopped = true
	return was
}

type fakeScheduler struct {
	mu     sync.Mutex
	timers []*fakeTimer
	delays []time.Duration
}

func (s *fakeScheduler) AfterFunc(d time.Duration, f func()) Timer {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := &fakeTimer{s: s, f: f}
	s.timers = append(s.timers, t)
	s.delays = append(s.delays, d)
	return t
}

// fireLive runs every timer that was not stopped and returns how many ran.
func (s *fakeScheduler) fireLive() int {
	s.mu.Lock()
	var live []*fakeTimer
	for _, t := range s.timers {
		if !t.stopped {
			t.stopped = true
			live = append(live, t)
		}
	}
	s.mu.Unlock()
	for _, t := range live {
		t.f()
	}
	return len(live)
}

func (s *fakeScheduler) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.timers)
}

type fakeFetcher struct {
	mu       sync.Mutex
	quick    func(ctx context.Context, q string, page, limit int) (listing.Payload, error)
	advanced func(ctx context.Context, p backend.SearchParams) (listing.Payload, error)
	queries  []string
}

func (f *fakeFetcher) QuickSearch(ctx context.Context, q string, page, limit int) (listing.Payload, error) {
	f.mu.Lock()
	f.queries = append(f.queries, q)
	f.mu.Unlock()
	return f.quick(ctx, q, page, limit)
}

func (f *fakeFetcher) AdvancedSearch(ctx context.Context, p backend.SearchParams) (listing.Payload, error) {
	return f.advanced(ctx, p)
}

func (f *fakeFetcher) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.queries)
}

func pets(prefix string, n int) listing.Payload {
	var b strings.Builder
	b.WriteString("[")
	for i := 0; i < n; i++ {
		if i > 0 {
			b.WriteString(",")
		}
		fmt.Fprintf(&b, `{"id":"%s%d"}`, prefix, i+1)
	}
	b.WriteString("]")
	p, err := listing.DecodePayload([]byte(b.String()))
	if err != nil {
		panic(err)
	}
	return p
}

func ids(ls []listing.PetListing) []string {
	out := make([]string, 0, len(ls))
	for _, l := range ls {
		out = append(out, l.ID)
	}
	return out
}

func newController(f Fetcher, opts Options) *Controller {
	return New(f, listing.NewNormalizer(photo.NewResolver("https://pets.example")), opts)
}

func TestPaginate(t *testing.T) {
	all := make([]int, 23)
	for i := range all {
		all[i] = i
	}
	items, page, total := Paginate(all, 3, 10)
	assert.Len(t, items, 3)
	assert.Equal(t, 3, page)
	assert.Equal(t, 3, total)

	items, page, _ = Paginate(all, 4, 10)
	assert.Equal(t, 3, page)
	assert.Equal(t, []int{20, 21, 22}, items)

	items, page, _ = Paginate(all, 0, 10)
	assert.Equal(t, 1, page)
	assert.Len(t, items, 10)

	items, page, total = Paginate([]int{}, 5, 10)
	assert.Empty(t, items)
	assert.Equal(t, 1, page)
	assert.Equal(t, 1, total)
}

func TestType_ShortInputClearsWithoutFetch(t *testing.T) {
	sched := &fakeScheduler{}
	f := &fakeFetcher{quick: func(context.Context, string, int, int) (listing.Payload, error) { return pets("s", 2), nil }}
	c := newController(f, Options{Scheduler: sched})

	c.Type("кот")
	require.Equal(t, 1, sched.fireLive())
	assert.Len(t, c.Snapshot().Suggestions, 2)

	c.Type(" к ")
	assert.Empty(t, c.Snapshot().Suggestions)
	assert.Equal(t, 0, sched.fireLive())
	assert.Equal(t, 1, f.calls())
}

func TestType_DebounceKeepsOnlyLastKeystroke(t *testing.T) {
	sched := &fakeScheduler{}
	f := &fakeFetcher{quick: func(context.Context, string, int, int) (listing.Payload, error) { return pets("s", 1), nil }}
	c := newController(f, Options{Scheduler: sched})

	c.Type("ры")
	c.Type("рыж")
	c.Type("рыжий")
	assert.Equal(t, 3, sched.count())
	assert.Equal(t, DefaultDebounce, sched.delays[0])
	assert.Equal(t, 1, sched.fireLive())

	f.mu.Lock()
	defer f.mu.Unlock()
	assert.Equal(t, []string{"рыжий"}, f.queries)
}

func TestType_LastQueryWins(t *testing.T) {
	sched := &fakeScheduler{}
	startedA := make(chan struct{})
	releaseA := make(chan struct{})
	f := &fakeFetcher{quick: func(_ context.Context, q string, _, _ int) (listing.Payload, error) {
		if q == "aa" {
			close(startedA)
			<-releaseA
			return pets("a", 3), nil
		}
		return pets("b", 1), nil
	}}
	c := newController(f, Options{Scheduler: sched})

	c.Type("aa")
	doneA := make(chan struct{})
	go func() {
		defer close(doneA)
		sched.fireLive()
	}()
	<-startedA

	c.Type("bb")
	require.Equal(t, 1, sched.fireLive())
	assert.Equal(t, []string{"b1"}, ids(c.Snapshot().Suggestions))

	close(releaseA)
	<-doneA
	assert.Equal(t, []string{"b1"}, ids(c.Snapshot().Suggestions))
}

func TestSearch_ClientPaging(t *testing.T) {
	f := &fakeFetcher{
		advanced: func(_ context.Context, p backend.SearchParams) (listing.Payload, error) {
			assert.Equal(t, "nevsky", p.District)
			assert.Equal(t, 0, p.Page)
			return pets("p", 23), nil
		},
	}
	var changes []Phase
	c := newController(f, Options{Scheduler: &fakeScheduler{}, OnChange: func(s State) { changes = append(changes, s.Phase) }})

	s, err := c.Search(context.Background(), Query{District: "nevsky", Kind: "кошка"})
	require.NoError(t, err)
	assert.Equal(t, PhaseReady, s.Phase)
	assert.Equal(t, 23, s.Total)
	assert.Equal(t, 3, s.TotalPages)
	assert.Len(t, s.Results, 10)
	assert.Equal(t, []Phase{PhaseQuerying, PhaseReady}, changes)

	f.advanced = func(context.Context, backend.SearchParams) (listing.Payload, error) {
		t.Fatal("client paging must not refetch")
		return listing.Payload{}, nil
	}
	s, err = c.Page(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"p21", "p22", "p23"}, ids(s.Results))

	s, err = c.Page(context.Background(), 9)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Page)
	assert.Len(t, s.Results, 3)
}

func TestSearch_ServerPaging(t *testing.T) {
	f := &fakeFetcher{quick: func(_ context.Context, q string, page, limit int) (listing.Payload, error) {
		assert.Equal(t, "кот", q)
		assert.Equal(t, 5, limit)
		raw := `{"data":{"orders":[{"id":"` + strconv.Itoa(page) + `"}],"last_page":4,"total":17}}`
		return listing.DecodePayload([]byte(raw))
	}}
	c := newController(f, Options{Scheduler: &fakeScheduler{}, Mode: ModeServer, PageSize: 5})

	s, err := c.Search(context.Background(), Query{Text: "кот"})
	require.NoError(t, err)
	assert.Equal(t, []string{"1"}, ids(s.Results))
	assert.Equal(t, 4, s.TotalPages)
	assert.Equal(t, 17, s.Total)

	s, err = c.Page(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, 2, s.Page)
	assert.Equal(t, []string{"2"}, ids(s.Results))
}

func TestSearch_FailureKeepsResultsAndRetry(t *testing.T) {
	fail := true
	f := &fakeFetcher{advanced: func(context.Context, backend.SearchParams) (listing.Payload, error) {
		if fail {
			return listing.Payload{}, fmt.Errorf("%w: down", backend.ErrTransport)
		}
		return pets("r", 2), nil
	}}
	c := newController(f, Options{Scheduler: &fakeScheduler{}})

	fail = false
	_, err := c.Search(context.Background(), Query{Kind: "собака"})
	require.NoError(t, err)

	fail = true
	s, err := c.Search(context.Background(), Query{Kind: "кошка"})
	require.ErrorIs(t, err, backend.ErrTransport)
	assert.Equal(t, PhaseErrored, s.Phase)
	assert.Equal(t, []string{"r1", "r2"}, ids(s.Results))
	assert.Equal(t, "кошка", s.Query.Kind)

	fail = false
	s, err = c.Retry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, PhaseReady, s.Phase)
	assert.Equal(t, "кошка", s.Query.Kind)
}

func TestPageBeforeSearchIsIdle(t *testing.T) {
	c := newController(&fakeFetcher{}, Options{Scheduler: &fakeScheduler{}})
	s, err := c.Page(context.Background(), 2)
	require.NoError(t, err)
	assert.Equal(t, PhaseIdle, s.Phase)
	assert.Equal(t, 1, s.Page)
}

func TestCancelPendingStopsTimer(t *testing.T) {
	sched := &fakeScheduler{}
	f := &fakeFetcher{quick: func(context.Context, string, int, int) (listing.Payload, error) { return pets("s", 1), nil }}
	c := newController(f, Options{Scheduler: sched})
	c.Type("попугай")
	c.CancelPending()
	assert.Equal(t, 0, sched.fireLive())
	assert.Equal(t, 0, f.calls())
}

func TestSuggest_Immediate(t *testing.T) {
	f := &fakeFetcher{quick: func(context.Context, string, int, int) (listing.Payload, error) { return pets("s", 2), nil }}
	c := newController(f, Options{Scheduler: &fakeScheduler{}})

	items, err := c.Suggest(context.Background(), "к")
	require.NoError(t, err)
	assert.Empty(t, items)
	assert.Equal(t, 0, f.calls())

	items, err = c.Suggest(context.Background(), "кот")
	require.NoError(t, err)
	assert.Equal(t, []string{"s1", "s2"}, ids(items))
}

func TestSearchAt_ClampsPage(t *testing.T) {
	f := &fakeFetcher{advanced: func(context.Context, backend.SearchParams) (listing.Payload, error) { return pets("p", 12), nil }}
	c := newController(f, Options{Scheduler: &fakeScheduler{}, PageSize: 5})
	s, err := c.SearchAt(context.Background(), Query{Kind: "кошка"}, 7)
	require.NoError(t, err)
	assert.Equal(t, 3, s.Page)
	assert.Equal(t, []string{"p11", "p12"}, ids(s.Results))
}
