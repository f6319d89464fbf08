package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strconv"

	"github.com/yourorg/pet-board/internal/canon"
	"github.com/yourorg/pet-board/internal/listing"
)

// Latest returns the newest listings (GET /pets).
func (c *Client) Latest(ctx context.Context) (listing.Payload, error) {
	return c.payload(ctx, "/pets", nil)
}

// Slider returns the featured listings (GET /pets/slider).
func (c *Client) Slider(ctx context.Context) (listing.Payload, error) {
	return c.payload(ctx, "/pets/slider", nil)
}

// QuickSearch is the free-text search used for suggestions.
func (c *Client) QuickSearch(ctx context.Context, query string, page, limit int) (listing.Payload, error) {
	q := url.Values{}
	q.Set("query", query)
	setPaging(q, page, limit)
	return c.payload(ctx, "/search", q)
}

type SearchParams struct {
	// District is a district key; it is sent as the backend display name.
	District string
	Kind     string
	Status   string
	Page     int
	Limit    int
}

// AdvancedSearch filters by district, kind and status (GET /search/order).
func (c *Client) AdvancedSearch(ctx context.Context, p SearchParams) (listing.Payload, error) {
	q := url.Values{}
	if p.District != "" {
		q.Set("district", canon.DistrictName(p.District))
	}
	if p.Kind != "" {
		q.Set("kind", p.Kind)
	}
	if p.Status != "" {
		q.Set("status", p.Status)
	}
	setPaging(q, p.Page, p.Limit)
	return c.payload(ctx, "/search/order", q)
}

// Pet fetches one listing (GET /pets/{id}).
func (c *Client) Pet(ctx context.Context, id string) (listing.Payload, error) {
	return c.payload(ctx, "/pets/"+url.PathEscape(id), nil)
}

func (c *Client) payload(ctx context.Context, path string, q url.Values) (listing.Payload, error) {
	raw, err := c.getJSON(ctx, path, q)
	if err != nil {
		return listing.Payload{}, err
	}
	p, err := listing.DecodePayload(raw)
	if err != nil {
		return listing.Payload{}, fmt.Errorf("decode %s: %w", path, err)
	}
	return p, nil
}

func setPaging(q url.Values, page, limit int) {
	if page > 0 {
		q.Set("page", strconv.Itoa(page))
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
}

// PhotoFile is one uploaded image.
type PhotoFile struct {
	Filename string
	Content  io.Reader
}

// ListingForm is the write-side payload for create and update.
type ListingForm struct {
	Name        string
	Phone       string
	Email       string
	Kind        string
	District    string
	Mark        string
	Description string
	Date        string
	Status      string
	// Anonymous posting registers the author on the fly.
	Password             string
	PasswordConfirmation string
	Confirm              bool
	Photos               [3]*PhotoFile
}

// CreatePet posts a new listing as multipart form (POST /pets/new). Auth is
// optional. It returns the server-assigned id when the backend reports one.
func (c *Client) CreatePet(ctx context.Context, f ListingForm) (string, error) {
	b, err := multipartBody(f)
	if err != nil {
		return "", err
	}
	raw, err := c.do(ctx, http.MethodPost, "/pets/new", nil, b)
	if err != nil {
		return "", err
	}
	return createdID(raw), nil
}

// UpdatePet edits a listing (PATCH /pets/{id}); requires a token.
func (c *Client) UpdatePet(ctx context.Context, id string, f ListingForm) error {
	b, err := multipartBody(f)
	if err != nil {
		return err
	}
	_, err = c.do(ctx, http.MethodPatch, "/pets/"+url.PathEscape(id), nil, b)
	return err
}

// DeleteOrder removes one of the user's listings (DELETE /users/orders/{id}).
func (c *Client) DeleteOrder(ctx context.Context, id string) error {
	_, err := c.do(ctx, http.MethodDelete, "/users/orders/"+url.PathEscape(id), nil, nil)
	return err
}

func multipartBody(f ListingForm) (*body, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	fields := []struct{ k, v string }{
		{"name", f.Name},
		{"phone", f.Phone},
		{"email", f.Email},
		{"kind", f.Kind},
		{"district", canon.DistrictName(f.District)},
		{"mark", f.Mark},
		{"description", f.Description},
		{"date", f.Date},
		{"status", f.Status},
		{"password", f.Password},
		{"password_confirmation", f.PasswordConfirmation},
	}
	for _, kv := range fields {
		if kv.v == "" {
			continue
		}
		if err := w.WriteField(kv.k, kv.v); err != nil {
			return nil, err
		}
	}
	if f.Confirm {
		if err := w.WriteField("confirm", "1"); err != nil {
			return nil, err
		}
	}
	for i, p := range f.Photos {
		if p == nil || p.Content == nil {
			continue
		}
		name := p.Filename
		if name == "" {
			name = fmt.Sprintf("photo%d.jpg", i+1)
		}
		part, err := w.CreateFormFile(fmt.Sprintf("photo%d", i+1), name)
		if err != nil {
			return nil, err
		}
		if _, err := io.Copy(part, p.Content); err != nil {
			return nil, fmt.Errorf("photo%d: %w", i+1, err)
		}
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return &body{reader: &buf, contentType: w.FormDataContentType()}, nil
}

func createdID(raw []byte) string {
	var root struct {
		ID   json.RawMessage `json:"id"`
		Data struct {
			ID json.RawMessage `json:"id"`
		} `json:"data"`
	}
	if json.Unmarshal(raw, &root) != nil {
		return ""
	}
	for _, v := range []json.RawMessage{root.Data.ID, root.ID} {
		if s := rawText(v); s != "" {
			return s
		}
	}
	return ""
}

// rawText renders a JSON string or number as text.
func rawText(v json.RawMessage) string {
	if len(v) == 0 {
		return ""
	}
	var s string
	if json.Unmarshal(v, &s) == nil {
		return s
	}
	var n json.Number
	if json.Unmarshal(v, &n) == nil {
		return n.String()
	}
	return ""
}
