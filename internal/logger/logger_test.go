package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	assert.Equal(t, slog.LevelDebug, ParseLevel("DEBUG"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warning"))
	assert.Equal(t, slog.LevelInfo, ParseLevel(""))
}

func TestMiddleware_LogsStatus(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Format: "json", Writer: &buf})
	h := Middleware(log, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTeapot)
		_, _ = w.Write([]byte("hi"))
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/pets", nil))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "http request", line["msg"])
	assert.Equal(t, "/pets", line["path"])
	assert.Equal(t, float64(http.StatusTeapot), line["status"])
	assert.Equal(t, float64(2), line["bytes"])
}

func TestNew_TextIsPlainOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	log := New(Options{Level: "debug", Writer: &buf})
	log.Debug("hello", "k", 1)
	assert.Contains(t, buf.String(), "hello")
	assert.NotContains(t, buf.String(), "\x1b[")
}
