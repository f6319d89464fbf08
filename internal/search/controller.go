package search

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/yourorg/pet-board/backend"
	"github.com/yourorg/pet-board/internal/listing"
)

const (
	DefaultDebounce = 300 * time.Millisecond
	DefaultPageSize = 10
	DefaultMinChars = 2
)

// ErrSuperseded is returned by a search whose result was discarded because
// a newer search started while it was in flight.
var ErrSuperseded = errors.New("search superseded by a newer query")

type Phase int

const (
	PhaseIdle Phase = iota
	PhaseQuerying
	PhaseReady
	PhaseErrored
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseQuerying:
		return "querying"
	case PhaseReady:
		return "ready"
	case PhaseErrored:
		return "errored"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Mode selects who pages the results.
type Mode int

const (
	// ModeClient fetches the full result set once and slices it locally.
	ModeClient Mode = iota
	// ModeServer asks the backend for each page and trusts what it returns.
	ModeServer
)

// Query holds the search parameters. A non-empty Text runs the free-text
// search, otherwise the district/kind/status filter search.
type Query struct {
	Text     string `json:"text,omitempty"`
	Kind     string `json:"kind,omitempty"`
	District string `json:"district,omitempty"`
	Status   string `json:"status,omitempty"`
}

// State is a point-in-time copy of the controller.
type State struct {
	Phase       Phase                `json:"-"`
	Query       Query                `json:"query"`
	Page        int                  `json:"page"`
	PageSize    int                  `json:"pageSize"`
	TotalPages  int                  `json:"totalPages"`
	Total       int                  `json:"totalResults"`
	Results     []listing.PetListing `json:"results"`
	Suggestions []listing.PetListing `json:"suggestions"`
	Err         error                `json:"-"`
}

// Fetcher is the read side of the backend used by search.
type Fetcher interface {
	QuickSearch(ctx context.Context, query string, page, limit int) (listing.Payload, error)
	AdvancedSearch(ctx context.Context, p backend.SearchParams) (listing.Payload, error)
}

type Options struct {
	Debounce  time.Duration
	PageSize  int
	MinChars  int
	Mode      Mode
	Scheduler Scheduler
	// OnChange is called after every state transition, outside the lock.
	OnChange func(State)
	Log      *slog.Logger
}

// Controller drives suggestions and paged search results. It is safe for
// concurrent use; results of superseded requests are discarded by
// generation.
type Controller struct {
	fetch Fetcher
	norm  *listing.Normalizer
	opts  Options
	log   *slog.Logger

	mu            sync.Mutex
	state         State
	all           []listing.PetListing
	timer         Timer
	suggestGen    uint64
	cancelSuggest context.CancelFunc
	searchGen     uint64
	cancelSearch  context.CancelFunc
	searched      bool
}

func New(f Fetcher, n *listing.Normalizer, opts Options) *Controller {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultDebounce
	}
	if opts.PageSize <= 0 {
		opts.PageSize = DefaultPageSize
	}
	if opts.MinChars <= 0 {
		opts.MinChars = DefaultMinChars
	}
	if opts.Scheduler == nil {
		opts.Scheduler = realScheduler{}
	}
	log := opts.Log
	if log == nil {
		log = slog.Default()
	}
	return &Controller{
		fetch: f,
		norm:  n,
		opts:  opts,
		log:   log.With("component", "search"),
		state: State{
			Page:        1,
			PageSize:    opts.PageSize,
			TotalPages:  1,
			Results:     []listing.PetListing{},
			Suggestions: []listing.PetListing{},
		},
	}
}

// Snapshot returns a copy of the current state.
func (c *Controller) Snapshot() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Controller) snapshotLocked() State {
	s := c.state
	s.Results = listing.CloneAll(c.state.Results)
	s.Suggestions = listing.CloneAll(c.state.Suggestions)
	return s
}

func (c *Controller) changed(s State) {
	if c.opts.OnChange != nil {
		c.opts.OnChange(s)
	}
}

// Type feeds one keystroke of the suggestion box. The pending timer is
// replaced; input shorter than MinChars clears suggestions immediately.
func (c *Controller) Type(text string) {
	c.mu.Lock()
	c.stopPendingLocked()
	c.suggestGen++
	gen := c.suggestGen
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < c.opts.MinChars {
		c.state.Suggestions = []listing.PetListing{}
		s := c.snapshotLocked()
		c.mu.Unlock()
		c.changed(s)
		return
	}
	c.timer = c.opts.Scheduler.AfterFunc(c.opts.Debounce, func() { c.suggest(gen, text) })
	c.mu.Unlock()
}

func (c *Controller) suggest(gen uint64, text string) {
	c.mu.Lock()
	if gen != c.suggestGen {
		c.mu.Unlock()
		return
	}
	c.timer = nil
	ctx, cancel := context.WithCancel(context.Background())
	c.cancelSuggest = cancel
	c.mu.Unlock()
	defer cancel()

	p, err := c.fetch.QuickSearch(ctx, text, 0, 0)

	c.mu.Lock()
	if gen != c.suggestGen {
		c.mu.Unlock()
		c.log.Debug("stale suggestions dropped", "query", text)
		return
	}
	c.cancelSuggest = nil
	if err != nil {
		c.mu.Unlock()
		c.log.Warn("suggestions failed", "query", text, "error", err)
		return
	}
	c.state.Suggestions = c.norm.Normalize(p, listing.SourceAPI)
	s := c.snapshotLocked()
	c.mu.Unlock()
	c.changed(s)
}

// Suggest fetches suggestions now, without the debounce. It follows the
// same rules as Type: short input clears, and a newer Type or Suggest wins.
func (c *Controller) Suggest(ctx context.Context, text string) ([]listing.PetListing, error) {
	c.mu.Lock()
	c.stopPendingLocked()
	c.suggestGen++
	gen := c.suggestGen
	text = strings.TrimSpace(text)
	if utf8.RuneCountInString(text) < c.opts.MinChars {
		c.state.Suggestions = []listing.PetListing{}
		c.mu.Unlock()
		return []listing.PetListing{}, nil
	}
	ctx, cancel := context.WithCancel(ctx)
	c.cancelSuggest = cancel
	c.mu.Unlock()
	defer cancel()

	p, err := c.fetch.QuickSearch(ctx, text, 0, 0)

	c.mu.Lock()
	if gen != c.suggestGen {
		c.mu.Unlock()
		return nil, ErrSuperseded
	}
	c.cancelSuggest = nil
	if err != nil {
		c.mu.Unlock()
		return nil, err
	}
	c.state.Suggestions = c.norm.Normalize(p, listing.SourceAPI)
	out := listing.CloneAll(c.state.Suggestions)
	s := c.snapshotLocked()
	c.mu.Unlock()
	c.changed(s)
	return out, nil
}

// CancelPending stops the debounce timer and abandons any in-flight
// suggestion or search.
func (c *Controller) CancelPending() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.stopPendingLocked()
	c.suggestGen++
	if c.cancelSearch != nil {
		c.cancelSearch()
		c.cancelSearch = nil
	}
	c.searchGen++
}

func (c *Controller) stopPendingLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	if c.cancelSuggest != nil {
		c.cancelSuggest()
		c.cancelSuggest = nil
	}
}

// Search runs q immediately and resets to page 1.
func (c *Controller) Search(ctx context.Context, q Query) (State, error) {
	return c.run(ctx, q, 1)
}

// SearchAt runs q immediately and lands on page, clamped to the result.
func (c *Controller) SearchAt(ctx context.Context, q Query, page int) (State, error) {
	return c.run(ctx, q, page)
}

// Page moves to page n of the current query. In client mode this re-slices
// the cached result set without a network call.
func (c *Controller) Page(ctx context.Context, n int) (State, error) {
	c.mu.Lock()
	q := c.state.Query
	searched := c.searched
	if c.opts.Mode == ModeClient && searched && c.state.Phase == PhaseReady {
		c.state.Results, c.state.Page, c.state.TotalPages = Paginate(c.all, n, c.opts.PageSize)
		s := c.snapshotLocked()
		c.mu.Unlock()
		c.changed(s)
		return s, nil
	}
	c.mu.Unlock()
	if !searched {
		return c.Snapshot(), nil
	}
	return c.run(ctx, q, n)
}

// Retry re-issues the last query at the last requested page.
func (c *Controller) Retry(ctx context.Context) (State, error) {
	c.mu.Lock()
	q, page, searched := c.state.Query, c.state.Page, c.searched
	c.mu.Unlock()
	if !searched {
		return c.Snapshot(), nil
	}
	return c.run(ctx, q, page)
}

func (c *Controller) run(ctx context.Context, q Query, page int) (State, error) {
	c.mu.Lock()
	if c.cancelSearch != nil {
		c.cancelSearch()
	}
	c.searchGen++
	gen := c.searchGen
	ctx, cancel := context.WithCancel(ctx)
	c.cancelSearch = cancel
	c.searched = true
	c.state.Query = q
	c.state.Page = page
	c.state.Phase = PhaseQuerying
	c.state.Err = nil
	s := c.snapshotLocked()
	c.mu.Unlock()
	defer cancel()
	c.changed(s)

	fetchPage, limit := 0, 0
	if c.opts.Mode == ModeServer {
		fetchPage, limit = max(page, 1), c.opts.PageSize
	}
	p, err := c.query(ctx, q, fetchPage, limit)

	c.mu.Lock()
	if gen != c.searchGen {
		c.mu.Unlock()
		return c.Snapshot(), ErrSuperseded
	}
	c.cancelSearch = nil
	if err != nil {
		c.state.Phase = PhaseErrored
		c.state.Err = err
		s := c.snapshotLocked()
		c.mu.Unlock()
		c.log.Warn("search failed", "query", q, "page", page, "error", err)
		c.changed(s)
		return s, err
	}

	items := c.norm.Normalize(p, listing.SourceAPI)
	switch c.opts.Mode {
	case ModeServer:
		c.all = nil
		c.state.Results = items
		c.state.Total = p.Total
		if c.state.Total == 0 {
			c.state.Total = len(items)
		}
		c.state.TotalPages = serverPages(p, len(items), c.opts.PageSize)
		c.state.Page = clamp(page, 1, c.state.TotalPages)
	default:
		c.all = items
		c.state.Total = len(items)
		c.state.Results, c.state.Page, c.state.TotalPages = Paginate(items, page, c.opts.PageSize)
	}
	c.state.Phase = PhaseReady
	s = c.snapshotLocked()
	c.mu.Unlock()
	c.changed(s)
	return s, nil
}

func (c *Controller) query(ctx context.Context, q Query, page, limit int) (listing.Payload, error) {
	if text := strings.TrimSpace(q.Text); text != "" {
		return c.fetch.QuickSearch(ctx, text, page, limit)
	}
	return c.fetch.AdvancedSearch(ctx, backend.SearchParams{
		District: q.District,
		Kind:     q.Kind,
		Status:   q.Status,
		Page:     page,
		Limit:    limit,
	})
}

// serverPages prefers the backend's last_page, then its total; without
// either the returned page is the only one known.
func serverPages(p listing.Payload, n, size int) int {
	if p.LastPage > 0 {
		return p.LastPage
	}
	if p.Total > 0 {
		return TotalPages(p.Total, size)
	}
	if p.CurrentPage > 0 {
		return p.CurrentPage
	}
	return TotalPages(n, size)
}
