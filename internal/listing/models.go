package listing

import "encoding/json"

type Status string

const (
	StatusFound Status = "found"
	StatusLost  Status = "lost"
)

// Source tags where a listing came from.
type Source string

const (
	SourceAPI    Source = "fromAPI"
	SourceLocal  Source = "local"
	SourceLegacy Source = "legacy"
)

const DefaultDescription = "Нет описания"

type Contact struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
	Email string `json:"email,omitempty"`
}

// Provenance keeps the untouched source record for passthrough and debugging.
type Provenance struct {
	Source Source          `json:"source"`
	Raw    json.RawMessage `json:"raw,omitempty"`
}

// PetListing is the canonical listing shape every backend payload maps to.
type PetListing struct {
	ID          string     `json:"id"`
	Kind        string     `json:"kind"`
	Status      Status     `json:"status"`
	Name        string     `json:"name,omitempty"`
	Description string     `json:"description"`
	District    string     `json:"district"`
	Date        string     `json:"date"`
	Photos      []string   `json:"photos"`
	Contact     Contact    `json:"contact"`
	Mark        string     `json:"mark,omitempty"`
	Provenance  Provenance `json:"provenance"`
}

// Clone returns a deep copy so owners never share slices with the normalizer.
func (p PetListing) Clone() PetListing {
	c := p
	c.Photos = append([]string(nil), p.Photos...)
	c.Provenance.Raw = append(json.RawMessage(nil), p.Provenance.Raw...)
	return c
}

func CloneAll(in []PetListing) []PetListing {
	if in == nil {
		return nil
	}
	out := make([]PetListing, len(in))
	for i := range in {
		out[i] = in[i].Clone()
	}
	return out
}
