package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/yourorg/pet-board/backend"
	"github.com/yourorg/pet-board/internal/events"
	"github.com/yourorg/pet-board/internal/feed"
	"github.com/yourorg/pet-board/internal/listing"
	"github.com/yourorg/pet-board/internal/localcache"
)

var (
	// ErrQueuedLocally wraps the transport error of a create that was kept
	// in the local queue instead of reaching the backend.
	ErrQueuedLocally    = errors.New("listing queued locally")
	ErrNotAuthenticated = errors.New("not authenticated")
	ErrNoToken          = errors.New("backend issued no token")
)

// UserScopePrefix namespaces the per-user listing caches.
const UserScopePrefix = "userPets:"

// localQueueLimit bounds the offline create queue.
const localQueueLimit = 50

type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAuthenticating
	PhaseAuthenticated
)

func (p Phase) String() string {
	switch p {
	case PhaseAnonymous:
		return "anonymous"
	case PhaseAuthenticating:
		return "authenticating"
	case PhaseAuthenticated:
		return "authenticated"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Backend is the part of the REST client the session drives.
type Backend interface {
	Login(ctx context.Context, cr backend.Credentials) (backend.AuthResult, error)
	Register(ctx context.Context, r backend.Registration) (backend.AuthResult, error)
	User(ctx context.Context, id string) (backend.User, error)
	UserOrders(ctx context.Context, id string) (listing.Payload, error)
	CreatePet(ctx context.Context, f backend.ListingForm) (string, error)
	UpdatePet(ctx context.Context, id string, f backend.ListingForm) error
	DeleteOrder(ctx context.Context, id string) error
	Subscribe(ctx context.Context, email string) error
}

// State is a copy of the session as seen by callers.
type State struct {
	Phase    Phase
	LoggedIn bool
	User     backend.User
	Listings []listing.PetListing
	// FromCache is set when Listings were served from the per-user cache
	// because the backend was unreachable.
	FromCache bool
	// Unverified is set when a restored session has no user id, so no
	// backend call could confirm the persisted token.
	Unverified bool
}

type Deps struct {
	Backend    Backend
	Normalizer *listing.Normalizer
	Prefs      *localcache.Prefs
	Cache      *localcache.Store[listing.PetListing]
	Events     events.Publisher
	Log        *slog.Logger
}

// Session owns the auth token, the user profile and the user's listings.
// Operations are serialized on a mutex; responses that arrive after a
// login or logout changed the generation are dropped.
type Session struct {
	b      Backend
	norm   *listing.Normalizer
	prefs  *localcache.Prefs
	cache  *localcache.Store[listing.PetListing]
	scopes *localcache.UserScopes[listing.PetListing]
	pub    events.Publisher
	log    *slog.Logger

	mu         sync.Mutex
	gen        uint64
	phase      Phase
	token      string
	user       backend.User
	listings   []listing.PetListing
	fromCache  bool
	unverified bool
}

func New(d Deps) *Session {
	log := d.Log
	if log == nil {
		log = slog.Default()
	}
	return &Session{
		b:        d.Backend,
		norm:     d.Normalizer,
		prefs:    d.Prefs,
		cache:    d.Cache,
		scopes:   localcache.NewUserScopes(d.Cache, UserScopePrefix),
		pub:      d.Events,
		log:      log.With("component", "session"),
		listings: []listing.PetListing{},
	}
}

func (s *Session) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return State{
		Phase:      s.phase,
		LoggedIn:   s.token != "",
		User:       s.user,
		Listings:   listing.CloneAll(s.listings),
		FromCache:  s.fromCache,
		Unverified: s.unverified,
	}
}

// Restore rehydrates from the persisted token, if any. The session stays
// Authenticating until hydration finishes; a 401 clears the token and
// leaves it anonymous. Without a persisted user id no endpoint can check
// the token, so it is trusted and the state is marked Unverified.
func (s *Session) Restore(ctx context.Context) error {
	token := s.prefs.Token()
	if token == "" {
		return nil
	}
	c := s.prefs.Contact()
	user := backend.User{ID: c.UserID, Name: c.Name, Email: c.Email, Phone: c.Phone}

	s.mu.Lock()
	s.gen++
	gen := s.gen
	s.phase = PhaseAuthenticating
	s.token = token
	s.user = user
	s.fromCache = false
	s.unverified = user.ID == ""
	s.mu.Unlock()

	if user.ID == "" {
		s.log.Warn("restored session has no user id; token not verified")
	}
	err := s.hydrate(ctx, gen)
	s.mu.Lock()
	if gen == s.gen && s.phase == PhaseAuthenticating {
		s.phase = PhaseAuthenticated
	}
	s.mu.Unlock()
	return err
}

func (s *Session) Login(ctx context.Context, cr backend.Credentials) error {
	gen := s.begin()
	res, err := s.b.Login(ctx, cr)
	if err == nil && res.Token == "" {
		err = ErrNoToken
	}
	if err != nil {
		s.fail(gen)
		return fmt.Errorf("login: %w", err)
	}
	user := res.User
	if user.Email == "" {
		user.Email = cr.Email
	}
	if !s.authenticated(gen, res.Token, user) {
		return nil
	}
	return s.hydrate(ctx, gen)
}

// Register creates the account and logs in: with the issued token when
// there is one, otherwise with the same credentials.
func (s *Session) Register(ctx context.Context, r backend.Registration) error {
	gen := s.begin()
	res, err := s.b.Register(ctx, r)
	if err != nil {
		s.fail(gen)
		return fmt.Errorf("register: %w", err)
	}
	if res.Token == "" {
		return s.Login(ctx, backend.Credentials{Email: r.Email, Password: r.Password})
	}
	user := res.User
	if user.Name == "" {
		user.Name = r.Name
	}
	if user.Email == "" {
		user.Email = r.Email
	}
	if user.Phone == "" {
		user.Phone = r.Phone
	}
	if !s.authenticated(gen, res.Token, user) {
		return nil
	}
	return s.hydrate(ctx, gen)
}

func (s *Session) Logout() {
	s.mu.Lock()
	s.gen++
	s.clearLocked()
	s.mu.Unlock()
	s.log.Info("logged out")
}

func (s *Session) begin() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.gen++
	s.phase = PhaseAuthenticating
	return s.gen
}

func (s *Session) fail(gen uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	s.clearLocked()
}

func (s *Session) clearLocked() {
	s.phase = PhaseAnonymous
	s.token = ""
	s.user = backend.User{}
	s.listings = []listing.PetListing{}
	s.fromCache = false
	s.unverified = false
	s.prefs.Clear()
}

func (s *Session) authenticated(gen uint64, token string, user backend.User) bool {
	if user.Name == "" {
		user.Name = nameFromEmail(user.Email)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return false
	}
	s.phase = PhaseAuthenticated
	s.token = token
	s.user = user
	s.unverified = false
	s.prefs.SetToken(token)
	s.prefs.SetContact(localcache.Contact{UserID: user.ID, Name: user.Name, Email: user.Email, Phone: user.Phone})
	s.log.Info("logged in", "user", user.ID)
	return true
}

// hydrate refreshes the profile and the listings for generation gen.
// Only a 401 is returned as an error; other failures keep what is known.
func (s *Session) hydrate(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	token, id := s.token, s.user.ID
	s.mu.Unlock()
	if id != "" {
		u, err := s.b.User(backend.WithToken(ctx, token), id)
		switch {
		case errors.Is(err, backend.ErrUnauthorized):
			s.fail(gen)
			return fmt.Errorf("restore session: %w", err)
		case err != nil:
			s.log.Warn("profile refresh failed", "user", id, "error", err)
		default:
			s.mergeUser(gen, u)
		}
	}
	return s.refresh(ctx, gen)
}

func (s *Session) mergeUser(gen uint64, u backend.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	cur := s.user
	if u.ID == "" {
		u.ID = cur.ID
	}
	if u.Name == "" {
		u.Name = cur.Name
	}
	if u.Email == "" {
		u.Email = cur.Email
	}
	if u.Phone == "" {
		u.Phone = cur.Phone
	}
	s.user = u
	s.prefs.SetContact(localcache.Contact{UserID: u.ID, Name: u.Name, Email: u.Email, Phone: u.Phone})
}

// RefreshListings reloads the user's listings. It is a no-op when anonymous.
func (s *Session) RefreshListings(ctx context.Context) error {
	s.mu.Lock()
	if s.phase != PhaseAuthenticated {
		s.mu.Unlock()
		return nil
	}
	gen := s.gen
	s.mu.Unlock()
	return s.refresh(ctx, gen)
}

func (s *Session) refresh(ctx context.Context, gen uint64) error {
	s.mu.Lock()
	token, id, key := s.token, s.user.ID, userKey(s.user)
	s.mu.Unlock()
	if key == "" {
		return nil
	}
	if id == "" {
		s.apply(gen, s.scopes.Get(key), true)
		return nil
	}
	p, err := s.b.UserOrders(backend.WithToken(ctx, token), id)
	switch {
	case errors.Is(err, backend.ErrUnauthorized):
		s.fail(gen)
		return fmt.Errorf("refresh listings: %w", err)
	case errors.Is(err, backend.ErrTransport):
		s.log.Warn("listings served from cache", "user", id, "error", err)
		s.apply(gen, s.scopes.Get(key), true)
		return nil
	case err != nil:
		return fmt.Errorf("refresh listings: %w", err)
	}
	items := s.norm.Normalize(p, listing.SourceAPI)
	if s.apply(gen, items, false) {
		s.scopes.Set(key, items)
	}
	return nil
}

func (s *Session) apply(gen uint64, items []listing.PetListing, fromCache bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		s.log.Debug("stale listings dropped")
		return false
	}
	s.listings = listing.CloneAll(items)
	s.fromCache = fromCache
	return true
}

// AddListing posts a new listing; a token is attached when logged in.
// When the backend is unreachable the listing is kept in the local queue
// and the returned error wraps ErrQueuedLocally.
func (s *Session) AddListing(ctx context.Context, f backend.ListingForm) (string, error) {
	s.mu.Lock()
	token, user := s.token, s.user
	s.mu.Unlock()
	if f.Name == "" {
		f.Name = user.Name
	}
	if f.Phone == "" {
		f.Phone = user.Phone
	}
	if f.Email == "" {
		f.Email = user.Email
	}

	id, err := s.b.CreatePet(backend.WithToken(ctx, token), f)
	switch {
	case errors.Is(err, backend.ErrTransport):
		l := s.queue(f)
		s.publish(ctx, l.ID, user.ID, events.ActionCreated)
		return l.ID, fmt.Errorf("%w: %w", ErrQueuedLocally, err)
	case errors.Is(err, backend.ErrUnauthorized):
		s.failCurrent()
		return "", fmt.Errorf("add listing: %w", err)
	case err != nil:
		return "", fmt.Errorf("add listing: %w", err)
	}
	s.publish(ctx, id, user.ID, events.ActionCreated)
	if err := s.RefreshListings(ctx); err != nil {
		s.log.Warn("refresh after create failed", "error", err)
	}
	return id, nil
}

func (s *Session) queue(f backend.ListingForm) listing.PetListing {
	raw, _ := json.Marshal(map[string]string{
		"localId":     "local-" + uuid.NewString(),
		"kind":        f.Kind,
		"status":      f.Status,
		"name":        f.Name,
		"phone":       f.Phone,
		"email":       f.Email,
		"district":    f.District,
		"mark":        f.Mark,
		"description": f.Description,
		"date":        f.Date,
	})
	rp, _ := listing.NewRawPet(raw)
	l := s.norm.One(rp, listing.SourceLocal)
	s.cache.Append(feed.ScopeLocal, l, localQueueLimit)
	s.log.Warn("listing queued locally", "id", l.ID)
	return l
}

func (s *Session) UpdateListing(ctx context.Context, id string, f backend.ListingForm) error {
	s.mu.Lock()
	token, userID := s.token, s.user.ID
	s.mu.Unlock()
	if token == "" {
		return ErrNotAuthenticated
	}
	if err := s.b.UpdatePet(backend.WithToken(ctx, token), id, f); err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			s.failCurrent()
		}
		return fmt.Errorf("update listing %s: %w", id, err)
	}
	s.publish(ctx, id, userID, events.ActionUpdated)
	return s.RefreshListings(ctx)
}

// DeleteListing removes the listing from the session at once and puts it
// back at its old position if the backend rejects the delete for any
// reason other than auth.
func (s *Session) DeleteListing(ctx context.Context, id string) error {
	s.mu.Lock()
	if s.token == "" {
		s.mu.Unlock()
		return ErrNotAuthenticated
	}
	token, user, gen := s.token, s.user, s.gen
	pos := -1
	var removed listing.PetListing
	for i, l := range s.listings {
		if l.ID == id {
			pos, removed = i, l
			s.listings = append(s.listings[:i:i], s.listings[i+1:]...)
			break
		}
	}
	s.mu.Unlock()

	err := s.b.DeleteOrder(backend.WithToken(ctx, token), id)
	if err != nil {
		if errors.Is(err, backend.ErrUnauthorized) {
			s.fail(gen)
			return fmt.Errorf("delete listing %s: %w", id, err)
		}
		if pos >= 0 {
			s.reinsert(gen, pos, removed)
		}
		return fmt.Errorf("delete listing %s: %w", id, err)
	}

	s.mu.Lock()
	remaining := listing.CloneAll(s.listings)
	current := gen == s.gen
	s.mu.Unlock()
	if current {
		if key := userKey(user); key != "" {
			s.scopes.Set(key, remaining)
		}
	}
	s.publish(ctx, id, user.ID, events.ActionDeleted)
	return nil
}

func (s *Session) reinsert(gen uint64, pos int, l listing.PetListing) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if gen != s.gen {
		return
	}
	for _, cur := range s.listings {
		if cur.ID == l.ID {
			return
		}
	}
	if pos > len(s.listings) {
		pos = len(s.listings)
	}
	s.listings = append(s.listings[:pos], append([]listing.PetListing{l}, s.listings[pos:]...)...)
}

func (s *Session) failCurrent() {
	s.mu.Lock()
	gen := s.gen
	s.mu.Unlock()
	s.fail(gen)
}

// Subscribe signs an email up for the newsletter.
func (s *Session) Subscribe(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if email == "" {
		return &backend.APIError{Status: 422, Message: "email: required", FieldErrors: map[string]string{"email": "required"}}
	}
	if err := s.b.Subscribe(ctx, email); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	return nil
}

func (s *Session) publish(ctx context.Context, id, userID string, a events.Action) {
	if s.pub == nil {
		return
	}
	s.pub.PublishListingChanged(ctx, events.ListingChanged{ListingID: id, UserID: userID, Action: a})
}

// userKey is the per-user cache key: the backend id, else the email.
func userKey(u backend.User) string {
	if u.ID != "" {
		return u.ID
	}
	return strings.ToLower(u.Email)
}

func nameFromEmail(email string) string {
	local, _, ok := strings.Cut(email, "@")
	if !ok {
		return ""
	}
	return local
}
