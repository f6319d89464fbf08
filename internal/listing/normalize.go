package listing

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/yourorg/pet-board/internal/canon"
	"github.com/yourorg/pet-board/internal/photo"
)

// Normalizer maps raw backend records into PetListing values.
type Normalizer struct {
	Resolver photo.Resolver
	// Fallback picks the stock photo for a species; FallbackPhoto when nil.
	Fallback func(kind string) string
}

func NewNormalizer(r photo.Resolver) *Normalizer {
	return &Normalizer{Resolver: r}
}

// Normalize converts every record of a payload. Records never fail as a
// whole: unreadable fields are treated as absent and defaults apply.
func (n *Normalizer) Normalize(p Payload, src Source) []PetListing {
	out := make([]PetListing, 0, len(p.Items))
	for _, rp := range p.Items {
		out = append(out, n.One(rp, src))
	}
	return out
}

// One normalizes a single record.
func (n *Normalizer) One(rp RawPet, src Source) PetListing {
	if src == "" {
		src = SourceAPI
	}
	l := PetListing{
		ID:          rp.Text("id", "order_id", "localId"),
		Kind:        rp.Text("kind"),
		Status:      ParseStatus(rp.Text("status")),
		Name:        rp.Text("nickname", "pet_name"),
		Description: rp.Text("description"),
		District:    district(rp.Text("district")),
		Date:        rp.Text("date", "created_at"),
		Mark:        rp.Text("mark"),
		Contact: Contact{
			Name:  rp.Text("name"),
			Phone: rp.Text("phone"),
			Email: rp.Text("email"),
		},
		Provenance: Provenance{Source: src, Raw: rp.Raw()},
	}
	if user, ok := rp.Object("user"); ok {
		if l.Contact.Name == "" {
			l.Contact.Name = user.Text("name")
		}
		if l.Contact.Phone == "" {
			l.Contact.Phone = user.Text("phone")
		}
		if l.Contact.Email == "" {
			l.Contact.Email = user.Text("email")
		}
	}
	if l.Description == "" {
		l.Description = DefaultDescription
	}
	l.Photos = n.Photos(rp, l.Kind)
	return l
}

// Photos aggregates every photo reference of a record in fixed order and
// appends exactly one fallback when none resolves.
func (n *Normalizer) Photos(rp RawPet, kind string) []string {
	c := collector{res: n.Resolver}

	if v, ok := rp.Value("photos"); ok {
		switch t := v.(type) {
		case []any:
			for _, e := range t {
				c.addValue(e)
			}
		case string:
			// Some endpoints send the array JSON-encoded inside a string.
			var arr []any
			if strings.HasPrefix(strings.TrimSpace(t), "[") && json.Unmarshal([]byte(t), &arr) == nil {
				for _, e := range arr {
					c.addValue(e)
				}
			} else {
				c.add(t)
			}
		}
	}
	for _, k := range []string{"photo1", "photo2", "photo3"} {
		if v, ok := rp.Value(k); ok {
			c.addValue(v)
		}
	}
	if v, ok := rp.Value("image"); ok {
		c.addImage(v)
	}
	if v, ok := rp.Value("localPhotos"); ok {
		if arr, ok := v.([]any); ok {
			for _, e := range arr {
				if s, ok := e.(string); ok {
					c.addVerbatim(s)
				}
			}
		}
	}
	if s := rp.Text("photo"); s != "" {
		c.addVerbatim(s)
	}

	if len(c.urls) == 0 {
		fb := FallbackPhoto
		if n.Fallback != nil {
			fb = n.Fallback
		}
		c.urls = append(c.urls, fb(kind))
	}
	return c.urls
}

type collector struct {
	res  photo.Resolver
	urls []string
}

func (c *collector) push(u string) {
	if u == "" || c.res.IsPlaceholder(u) {
		return
	}
	for _, have := range c.urls {
		if have == u {
			return
		}
	}
	c.urls = append(c.urls, u)
}

func (c *collector) add(ref string) { c.push(c.res.Resolve(ref)) }

func (c *collector) addValue(v any) { c.push(c.res.ResolveValue(v)) }

// addImage skips the reference when a collected URL already contains it.
func (c *collector) addImage(v any) {
	ref, _ := photo.Ref(v)
	ref = strings.TrimLeft(strings.TrimSpace(ref), "./\\")
	if ref == "" {
		return
	}
	for _, have := range c.urls {
		if strings.Contains(have, ref) {
			return
		}
	}
	c.addValue(v)
}

// addVerbatim keeps already-absolute and data URIs as they are.
func (c *collector) addVerbatim(ref string) {
	ref = strings.TrimSpace(ref)
	if photo.IsAbsolute(ref) {
		c.push(ref)
		return
	}
	c.add(ref)
}

// ParseStatus accepts the backend spellings; anything else is "found".
func ParseStatus(s string) Status {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "lost", "потерян", "потеряна", "потерялся", "потерялась":
		return StatusLost
	default:
		return StatusFound
	}
}

func district(s string) string {
	if k, ok := canon.DistrictKey(s); ok {
		return k
	}
	return s
}

var dateLayouts = []string{time.RFC3339, "2006-01-02 15:04:05", "2006-01-02", "02.01.2006"}

// DisplayDate renders a backend date as dd.mm.yyyy. Unparseable input is
// returned unchanged.
func DisplayDate(s string) string {
	s = strings.TrimSpace(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("02.01.2006")
		}
	}
	if len(s) >= 10 {
		if t, err := time.Parse("2006-01-02", s[:10]); err == nil {
			return t.Format("02.01.2006")
		}
	}
	return s
}
