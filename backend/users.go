package backend

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/yourorg/pet-board/internal/listing"
)

type Registration struct {
	Name                 string `json:"name"`
	Phone                string `json:"phone"`
	Email                string `json:"email"`
	Password             string `json:"password"`
	PasswordConfirmation string `json:"password_confirmation"`
	Confirm              bool   `json:"confirm"`
}

type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// User is the profile as the backend reports it; every field may be empty.
type User struct {
	ID            string
	Name          string
	Email         string
	Phone         string
	RegisteredAt  string
	ListingsCount int
}

// AuthResult carries what login/register returned. Token is empty when the
// backend did not issue one.
type AuthResult struct {
	Token string
	User  User
}

// Register creates an account (POST /register).
func (c *Client) Register(ctx context.Context, r Registration) (AuthResult, error) {
	raw, err := c.sendJSON(ctx, http.MethodPost, "/register", r)
	if err != nil {
		return AuthResult{}, err
	}
	return parseAuth(raw), nil
}

// Login exchanges credentials for a token (POST /login).
func (c *Client) Login(ctx context.Context, cr Credentials) (AuthResult, error) {
	raw, err := c.sendJSON(ctx, http.MethodPost, "/login", cr)
	if err != nil {
		return AuthResult{}, err
	}
	return parseAuth(raw), nil
}

// User fetches a profile (GET /users/{id}); requires a token.
func (c *Client) User(ctx context.Context, id string) (User, error) {
	raw, err := c.getJSON(ctx, "/users/"+url.PathEscape(id), nil)
	if err != nil {
		return User{}, err
	}
	u := parseUser(raw)
	if u.ID == "" {
		u.ID = id
	}
	return u, nil
}

// UserOrders lists a user's own listings (GET /users/orders/{id}); requires a token.
func (c *Client) UserOrders(ctx context.Context, id string) (listing.Payload, error) {
	return c.payload(ctx, "/users/orders/"+url.PathEscape(id), nil)
}

// Subscribe signs an email up for news (POST /subscription).
func (c *Client) Subscribe(ctx context.Context, email string) error {
	_, err := c.sendJSON(ctx, http.MethodPost, "/subscription", map[string]string{"email": email})
	return err
}

// userDTO reads every field as raw JSON so one oddly typed field (a numeric
// phone, say) degrades to "" instead of failing the whole record.
type userDTO struct {
	ID               json.RawMessage `json:"id"`
	Name             json.RawMessage `json:"name"`
	Email            json.RawMessage `json:"email"`
	Phone            json.RawMessage `json:"phone"`
	RegistrationDate json.RawMessage `json:"registrationDate"`
	CreatedAt        json.RawMessage `json:"created_at"`
	OrdersCount      json.RawMessage `json:"ordersCount"`
	CountOrder       json.RawMessage `json:"countOrder"`
}

func (d userDTO) user() User {
	u := User{
		ID:           rawText(d.ID),
		Name:         rawText(d.Name),
		Email:        rawText(d.Email),
		Phone:        rawText(d.Phone),
		RegisteredAt: rawText(d.RegistrationDate),
	}
	if u.RegisteredAt == "" {
		u.RegisteredAt = rawText(d.CreatedAt)
	}
	for _, v := range []json.RawMessage{d.OrdersCount, d.CountOrder} {
		if n, err := strconv.Atoi(rawText(v)); err == nil {
			u.ListingsCount = n
			break
		}
	}
	return u
}

// parseUser accepts {data:{user:{..}}}, {data:{..}}, {data:[{..}]}, {user:{..}} and a bare object.
func parseUser(raw []byte) User {
	var root map[string]json.RawMessage
	if json.Unmarshal(raw, &root) != nil {
		return User{}
	}
	candidates := []json.RawMessage{}
	if d, ok := root["data"]; ok {
		var inner map[string]json.RawMessage
		if json.Unmarshal(d, &inner) == nil {
			if u, ok := inner["user"]; ok {
				candidates = append(candidates, u)
			}
		}
		var arr []json.RawMessage
		if json.Unmarshal(d, &arr) == nil && len(arr) > 0 {
			candidates = append(candidates, arr[0])
		}
		candidates = append(candidates, d)
	}
	if u, ok := root["user"]; ok {
		candidates = append(candidates, u)
	}
	candidates = append(candidates, raw)
	for _, c := range candidates {
		var d userDTO
		if json.Unmarshal(c, &d) != nil {
			continue
		}
		if u := d.user(); u != (User{}) {
			return u
		}
	}
	return User{}
}

func parseAuth(raw []byte) AuthResult {
	var root struct {
		Token       string `json:"token"`
		AccessToken string `json:"access_token"`
		Data        struct {
			Token     string `json:"token"`
			UserToken string `json:"user_token"`
		} `json:"data"`
	}
	_ = json.Unmarshal(raw, &root)
	res := AuthResult{User: parseUser(raw)}
	for _, t := range []string{root.Data.Token, root.Data.UserToken, root.Token, root.AccessToken} {
		if t != "" {
			res.Token = t
			break
		}
	}
	return res
}
