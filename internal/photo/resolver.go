package photo

import (
	"regexp"
	"strings"
)

// DefaultPlaceholder is returned for every reference that cannot name an image.
const DefaultPlaceholder = "https://via.placeholder.com/400x300?text=%D0%9D%D0%B5%D1%82+%D1%84%D0%BE%D1%82%D0%BE"

var leadingSlashes = regexp.MustCompile(`^(?:\.?[/\\])+`)

// Resolver turns raw photo references from the backend into absolute URLs.
// Base is the storage host root, e.g. "https://pets.example.ru".
type Resolver struct {
	Base        string
	Placeholder string
}

func NewResolver(base string) Resolver {
	return Resolver{Base: strings.TrimRight(base, "/"), Placeholder: DefaultPlaceholder}
}

func (r Resolver) placeholder() string {
	if r.Placeholder == "" {
		return DefaultPlaceholder
	}
	return r.Placeholder
}

// IsPlaceholder reports whether u is the resolver's no-photo sentinel.
func (r Resolver) IsPlaceholder(u string) bool { return u == r.placeholder() }

// Resolve maps a path or URL to an absolute URL. Invalid input yields the placeholder.
func (r Resolver) Resolve(ref string) string {
	ref = strings.TrimSpace(ref)
	switch ref {
	case "", "null", "undefined":
		return r.placeholder()
	}
	if IsAbsolute(ref) {
		return ref
	}
	path := leadingSlashes.ReplaceAllString(ref, "")
	if path == "" {
		return r.placeholder()
	}
	base := strings.TrimRight(r.Base, "/")
	if strings.HasPrefix(path, "storage/") || strings.Contains(path, "/storage/") {
		return base + "/" + path
	}
	return base + "/storage/" + path
}

// ResolveValue accepts a decoded JSON value: a string, an object carrying
// "url" (or "path"), or anything else, which resolves to the placeholder.
func (r Resolver) ResolveValue(v any) string {
	if ref, ok := Ref(v); ok {
		return r.Resolve(ref)
	}
	return r.placeholder()
}

// Ref extracts the reference text from a decoded JSON photo value: the
// string itself, or the "url" (else "path") member of an object.
func Ref(v any) (string, bool) {
	switch t := v.(type) {
	case string:
		return t, true
	case map[string]any:
		for _, k := range []string{"url", "path"} {
			if s, ok := t[k].(string); ok {
				return s, true
			}
		}
	}
	return "", false
}

// IsAbsolute reports whether ref already carries a scheme or is a data URI.
func IsAbsolute(ref string) bool {
	lower := strings.ToLower(ref)
	return strings.HasPrefix(lower, "http://") ||
		strings.HasPrefix(lower, "https://") ||
		strings.HasPrefix(lower, "data:") ||
		strings.HasPrefix(lower, "blob:")
}
