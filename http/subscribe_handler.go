package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/mail"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/render"
)

type Subscriber interface {
	Subscribe(ctx context.Context, email string) error
}

type SubscribeDeps struct {
	Backend Subscriber
}

func RegisterSubscribe(r chi.Router, d SubscribeDeps) {
	r.Post("/subscription", func(w http.ResponseWriter, req *http.Request) {
		var body struct {
			Email string `json:"email"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			badRequest(w, req, "invalid_json", err.Error())
			return
		}
		email := strings.TrimSpace(body.Email)
		if _, err := mail.ParseAddress(email); err != nil {
			render.Status(req, http.StatusUnprocessableEntity)
			render.JSON(w, req, map[string]any{
				"error":       "validation_failed",
				"detail":      "email: invalid address",
				"fieldErrors": map[string]string{"email": "invalid address"},
			})
			return
		}
		if err := d.Backend.Subscribe(req.Context(), email); err != nil {
			WriteError(w, req, err)
			return
		}
		render.JSON(w, req, map[string]any{"ok": true})
	})
}
