package listing

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Shape records which key a payload's records were found under.
type Shape int

const (
	ShapeEmpty Shape = iota
	ShapeArray
	ShapePets
	ShapeOrders
	ShapeSingle
)

func (s Shape) String() string {
	switch s {
	case ShapeArray:
		return "array"
	case ShapePets:
		return "pets"
	case ShapeOrders:
		return "orders"
	case ShapeSingle:
		return "single"
	default:
		return "empty"
	}
}

// Payload is the one parsed form of every listing response the backend sends.
type Payload struct {
	Shape Shape
	Items []RawPet
	// Paging metadata, zero when the backend did not report it.
	Total       int
	CurrentPage int
	LastPage    int
}

// DecodePayload probes the known record locations in fixed order:
// explicit array, then "pets", then "orders", then a single "pet".
// Each is looked up at the top level and under "data". The first non-empty
// match wins; no match is an empty payload, not an error.
func DecodePayload(raw []byte) (Payload, error) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return Payload{}, nil
	}
	if raw[0] == '[' {
		items, err := decodeArray(raw)
		if err != nil {
			return Payload{}, err
		}
		return shaped(ShapeArray, items), nil
	}
	var root map[string]json.RawMessage
	if err := json.Unmarshal(raw, &root); err != nil {
		return Payload{}, err
	}

	containers := []map[string]json.RawMessage{}
	var topArray []RawPet
	if d, ok := root["data"]; ok {
		d = bytes.TrimSpace(d)
		switch {
		case len(d) > 0 && d[0] == '[':
			topArray, _ = decodeArray(d)
		case len(d) > 0 && d[0] == '{':
			var inner map[string]json.RawMessage
			if json.Unmarshal(d, &inner) == nil {
				containers = append(containers, inner)
			}
		}
	}
	containers = append(containers, root)

	var p Payload
	switch {
	case len(topArray) > 0:
		p = shaped(ShapeArray, topArray)
	default:
		p = probe(containers)
	}
	for _, c := range containers {
		fillPaging(&p, c)
		if m, ok := c["meta"]; ok {
			var meta map[string]json.RawMessage
			if json.Unmarshal(m, &meta) == nil {
				fillPaging(&p, meta)
			}
		}
	}
	return p, nil
}

func probe(containers []map[string]json.RawMessage) Payload {
	for _, key := range []struct {
		name  string
		shape Shape
	}{{"pets", ShapePets}, {"orders", ShapeOrders}} {
		for _, c := range containers {
			v, ok := c[key.name]
			if !ok {
				continue
			}
			if items, err := decodeArray(v); err == nil && len(items) > 0 {
				return shaped(key.shape, items)
			}
		}
	}
	for _, c := range containers {
		v, ok := c["pet"]
		if !ok {
			continue
		}
		if items, err := decodeArray(v); err == nil && len(items) > 0 {
			return shaped(ShapeSingle, items)
		}
		if rp, ok := decodeRecord(v); ok {
			return shaped(ShapeSingle, []RawPet{rp})
		}
	}
	return Payload{}
}

func shaped(s Shape, items []RawPet) Payload {
	if len(items) == 0 {
		return Payload{}
	}
	return Payload{Shape: s, Items: items}
}

// decodeArray decodes a JSON array of records, skipping elements that are
// not objects.
func decodeArray(raw json.RawMessage) ([]RawPet, error) {
	var elems []json.RawMessage
	if err := json.Unmarshal(raw, &elems); err != nil {
		return nil, err
	}
	out := make([]RawPet, 0, len(elems))
	for _, e := range elems {
		if rp, ok := decodeRecord(e); ok {
			out = append(out, rp)
		}
	}
	return out, nil
}

func decodeRecord(raw json.RawMessage) (RawPet, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return RawPet{}, false
	}
	rp := RawPet{fields: fields, raw: append(json.RawMessage(nil), raw...)}
	if od, ok := fields["originalData"]; ok {
		var nested map[string]json.RawMessage
		if json.Unmarshal(od, &nested) == nil {
			rp.original = nested
		}
	}
	return rp, true
}

func fillPaging(p *Payload, c map[string]json.RawMessage) {
	if p.Total == 0 {
		p.Total = intField(c, "total")
	}
	if p.CurrentPage == 0 {
		p.CurrentPage = intField(c, "current_page")
	}
	if p.LastPage == 0 {
		p.LastPage = intField(c, "last_page")
	}
}

func intField(c map[string]json.RawMessage, key string) int {
	v, ok := c[key]
	if !ok {
		return 0
	}
	var n stringNumber
	if json.Unmarshal(v, &n) != nil {
		return 0
	}
	i, ok := n.Int()
	if !ok {
		return 0
	}
	return i
}

// RawPet is one backend record decoded field by field, so a malformed field
// never spoils its neighbours.
type RawPet struct {
	fields   map[string]json.RawMessage
	original map[string]json.RawMessage
	raw      json.RawMessage
}

// NewRawPet decodes a single JSON object. Malformed input yields ok=false.
func NewRawPet(raw []byte) (RawPet, bool) { return decodeRecord(raw) }

// Raw returns the record bytes as received.
func (r RawPet) Raw() json.RawMessage { return r.raw }

func (r RawPet) lookup(key string) (json.RawMessage, bool) {
	if v, ok := r.fields[key]; ok && !isBlankJSON(v) {
		return v, true
	}
	if v, ok := r.original[key]; ok && !isBlankJSON(v) {
		return v, true
	}
	return nil, false
}

// Text returns a string or number field as text; other JSON kinds read as "".
func (r RawPet) Text(keys ...string) string {
	for _, src := range []map[string]json.RawMessage{r.fields, r.original} {
		for _, k := range keys {
			v, ok := src[k]
			if !ok {
				continue
			}
			var s stringNumber
			if json.Unmarshal(v, &s) != nil {
				continue
			}
			if t := strings.TrimSpace(string(s)); t != "" {
				return t
			}
		}
	}
	return ""
}

// Value decodes a field into a generic JSON value.
func (r RawPet) Value(key string) (any, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return nil, false
	}
	var out any
	if json.Unmarshal(v, &out) != nil {
		return nil, false
	}
	return out, true
}

// Object decodes a nested object field as a RawPet.
func (r RawPet) Object(key string) (RawPet, bool) {
	v, ok := r.lookup(key)
	if !ok {
		return RawPet{}, false
	}
	return decodeRecord(v)
}

func isBlankJSON(v json.RawMessage) bool {
	t := bytes.TrimSpace(v)
	return len(t) == 0 || bytes.Equal(t, []byte("null"))
}

// stringNumber accepts string or number JSON and stores it as text.
type stringNumber string

func (s *stringNumber) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = ""
		return nil
	}
	if len(b) > 0 && b[0] == '"' {
		var str string
		if err := json.Unmarshal(b, &str); err != nil {
			return err
		}
		*s = stringNumber(str)
		return nil
	}
	var num json.Number
	if err := json.Unmarshal(b, &num); err != nil {
		return err
	}
	*s = stringNumber(num.String())
	return nil
}

func (s stringNumber) Int() (int, bool) {
	n := json.Number(strings.TrimSpace(string(s)))
	if i, err := n.Int64(); err == nil {
		return int(i), true
	}
	if f, err := n.Float64(); err == nil {
		return int(f), true
	}
	return 0, false
}
