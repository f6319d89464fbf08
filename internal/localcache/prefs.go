package localcache

import "log/slog"

// Fixed key names of persisted client state.
const (
	KeyToken     = "token"
	KeyUserID    = "userId"
	KeyUserName  = "userName"
	KeyUserEmail = "userEmail"
	KeyUserPhone = "userPhone"
)

// Contact is the last-known contact info remembered between runs.
type Contact struct {
	UserID string
	Name   string
	Email  string
	Phone  string
}

// Prefs persists the auth token and last-known contact fields.
type Prefs struct {
	medium Medium
	log    *slog.Logger
}

func NewPrefs(m Medium, log *slog.Logger) *Prefs {
	if log == nil {
		log = slog.Default()
	}
	return &Prefs{medium: m, log: log.With("component", "prefs")}
}

func (p *Prefs) get(key string) string {
	v, ok, err := p.medium.Get(key)
	if err != nil {
		p.log.Warn("prefs read failed", "key", key, "error", err)
		return ""
	}
	if !ok {
		return ""
	}
	return v
}

func (p *Prefs) set(key, value string) {
	if value == "" {
		p.del(key)
		return
	}
	if err := p.medium.Set(key, value); err != nil {
		p.log.Warn("prefs write failed", "key", key, "error", err)
	}
}

func (p *Prefs) del(key string) {
	if err := p.medium.Delete(key); err != nil {
		p.log.Warn("prefs delete failed", "key", key, "error", err)
	}
}

func (p *Prefs) Token() string { return p.get(KeyToken) }

func (p *Prefs) SetToken(token string) { p.set(KeyToken, token) }

func (p *Prefs) Contact() Contact {
	return Contact{
		UserID: p.get(KeyUserID),
		Name:   p.get(KeyUserName),
		Email:  p.get(KeyUserEmail),
		Phone:  p.get(KeyUserPhone),
	}
}

func (p *Prefs) SetContact(c Contact) {
	p.set(KeyUserID, c.UserID)
	p.set(KeyUserName, c.Name)
	p.set(KeyUserEmail, c.Email)
	p.set(KeyUserPhone, c.Phone)
}

// Clear drops the token and contact fields.
func (p *Prefs) Clear() {
	for _, k := range []string{KeyToken, KeyUserID, KeyUserName, KeyUserEmail, KeyUserPhone} {
		p.del(k)
	}
}
