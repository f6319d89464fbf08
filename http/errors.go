package httpapi

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/render"

	"github.com/yourorg/pet-board/backend"
)

// WriteError maps a backend or controller error to a JSON error response.
func WriteError(w http.ResponseWriter, req *http.Request, err error) {
	var ae *backend.APIError
	switch {
	case errors.As(err, &ae):
		status := ae.Status
		if status < 400 {
			status = http.StatusBadGateway
		}
		body := map[string]any{"error": errorCode(ae), "detail": ae.Message}
		if len(ae.FieldErrors) > 0 {
			body["fieldErrors"] = ae.FieldErrors
		}
		render.Status(req, status)
		render.JSON(w, req, body)
	case errors.Is(err, backend.ErrTransport):
		render.Status(req, http.StatusBadGateway)
		render.JSON(w, req, map[string]any{"error": "backend_unreachable", "detail": err.Error(), "retryable": true})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		render.Status(req, http.StatusGatewayTimeout)
		render.JSON(w, req, map[string]any{"error": "timeout", "detail": err.Error()})
	default:
		render.Status(req, http.StatusInternalServerError)
		render.JSON(w, req, map[string]any{"error": "internal_error", "detail": err.Error()})
	}
}

func errorCode(ae *backend.APIError) string {
	switch {
	case errors.Is(ae, backend.ErrUnauthorized):
		return "unauthorized"
	case errors.Is(ae, backend.ErrValidation):
		return "validation_failed"
	case errors.Is(ae, backend.ErrNotFound):
		return "not_found"
	case ae.Status >= 500:
		return "upstream_error"
	}
	return "bad_request"
}

func badRequest(w http.ResponseWriter, req *http.Request, code, detail string) {
	render.Status(req, http.StatusBadRequest)
	render.JSON(w, req, map[string]any{"error": code, "detail": detail})
}
