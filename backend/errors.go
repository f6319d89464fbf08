package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
)

var (
	ErrTransport    = errors.New("backend unreachable")
	ErrUnauthorized = errors.New("unauthorized")
	ErrValidation   = errors.New("validation failed")
	ErrNotFound     = errors.New("not found")
)

// APIError is the single shape every backend error body is normalized to.
type APIError struct {
	Status      int
	Message     string
	FieldErrors map[string]string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("backend error %d: %s", e.Status, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrUnauthorized:
		return e.Status == http.StatusUnauthorized
	case ErrValidation:
		return e.Status == http.StatusUnprocessableEntity || len(e.FieldErrors) > 0
	case ErrNotFound:
		return e.Status == http.StatusNotFound
	}
	return false
}

// Field returns the message for one form field, "" when it has none.
func (e *APIError) Field(name string) string {
	if e == nil {
		return ""
	}
	return e.FieldErrors[name]
}

// parseAPIError accepts {error:{message,errors}}, {errors}, {message} and a
// plain {error:"..."} body. Field errors are joined as "field: message" with "; ".
func parseAPIError(status int, raw []byte) *APIError {
	e := &APIError{Status: status}

	var root struct {
		Error   json.RawMessage `json:"error"`
		Errors  json.RawMessage `json:"errors"`
		Message string          `json:"message"`
	}
	if json.Unmarshal(raw, &root) == nil {
		e.Message = root.Message
		errs := root.Errors
		if len(root.Error) > 0 {
			var nested struct {
				Message string          `json:"message"`
				Errors  json.RawMessage `json:"errors"`
			}
			var plain string
			switch {
			case json.Unmarshal(root.Error, &plain) == nil:
				if e.Message == "" {
					e.Message = plain
				}
			case json.Unmarshal(root.Error, &nested) == nil:
				if nested.Message != "" {
					e.Message = nested.Message
				}
				if len(nested.Errors) > 0 {
					errs = nested.Errors
				}
			}
		}
		e.FieldErrors = fieldErrors(errs)
	}

	if len(e.FieldErrors) > 0 {
		e.Message = joinFieldErrors(e.FieldErrors)
	}
	if e.Message == "" {
		e.Message = http.StatusText(status)
	}
	return e
}

// fieldErrors reads {"field": ["msg", ...]} or {"field": "msg"}.
func fieldErrors(raw json.RawMessage) map[string]string {
	if len(raw) == 0 {
		return nil
	}
	var m map[string]json.RawMessage
	if json.Unmarshal(raw, &m) != nil {
		return nil
	}
	out := make(map[string]string, len(m))
	for field, v := range m {
		var list []string
		var one string
		switch {
		case json.Unmarshal(v, &list) == nil:
			if len(list) > 0 {
				out[field] = strings.Join(list, ", ")
			}
		case json.Unmarshal(v, &one) == nil:
			if one != "" {
				out[field] = one
			}
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

func joinFieldErrors(m map[string]string) string {
	fields := make([]string, 0, len(m))
	for f := range m {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, 0, len(fields))
	for _, f := range fields {
		parts = append(parts, f+": "+m[f])
	}
	return strings.Join(parts, "; ")
}

// IsRetryable reports whether a retry can help: transport failures and 5xx.
func IsRetryable(err error) bool {
	if errors.Is(err, ErrTransport) {
		return true
	}
	var ae *APIError
	return errors.As(err, &ae) && ae.Status >= 500
}
