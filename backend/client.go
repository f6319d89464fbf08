package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/time/rate"
)

// maxBody caps every response read from the backend.
const maxBody = 4 << 20

type Config struct {
	BaseURL  string
	Timeout  time.Duration
	RetryMax int
	// RPS throttles outgoing requests; 0 disables the limiter.
	RPS   float64
	Burst int
	Log   *slog.Logger
}

// Client talks to the pets REST backend. Reads are retried on transient
// failures; writes are sent once so a lost response never duplicates a listing.
type Client struct {
	baseURL string
	reads   *retryablehttp.Client
	writes  *retryablehttp.Client
	limiter *rate.Limiter
	log     *slog.Logger
}

func NewClient(cfg Config) *Client {
	log := cfg.Log
	if log == nil {
		log = slog.Default()
	}
	log = log.With("component", "backend")
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	retryMax := cfg.RetryMax
	if retryMax < 0 {
		retryMax = 0
	}

	newRC := func(retries int) *retryablehttp.Client {
		rc := retryablehttp.NewClient()
		rc.RetryWaitMin = 100 * time.Millisecond
		rc.RetryWaitMax = 900 * time.Millisecond
		rc.RetryMax = retries
		rc.HTTPClient.Timeout = timeout
		rc.Logger = log
		// hand the final response back instead of a generic "giving up" error
		rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
		return rc
	}

	c := &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		reads:   newRC(retryMax),
		writes:  newRC(0),
		log:     log,
	}
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}
	return c
}

func (c *Client) BaseURL() string { return c.baseURL }

type tokenKey struct{}

// WithToken attaches a bearer token to requests made with ctx.
func WithToken(ctx context.Context, token string) context.Context {
	if token == "" {
		return ctx
	}
	return context.WithValue(ctx, tokenKey{}, token)
}

func tokenFrom(ctx context.Context) string {
	t, _ := ctx.Value(tokenKey{}).(string)
	return t
}

type body struct {
	reader      io.Reader
	contentType string
}

func jsonBody(v any) (*body, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return &body{reader: bytes.NewReader(b), contentType: "application/json"}, nil
}

func (c *Client) endpoint(path string, q url.Values) string {
	u := c.baseURL + path
	if len(q) > 0 {
		u += "?" + q.Encode()
	}
	return u
}

// do sends one request and returns the response body for 2xx statuses.
// Non-2xx statuses become *APIError, network failures wrap ErrTransport.
func (c *Client) do(ctx context.Context, method, path string, q url.Values, b *body) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}
	var rdr io.Reader
	if b != nil {
		rdr = b.reader
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, c.endpoint(path, q), rdr)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", uuid.NewString())
	if b != nil {
		req.Header.Set("Content-Type", b.contentType)
	}
	if tok := tokenFrom(ctx); tok != "" {
		req.Header.Set("Authorization", "Bearer "+tok)
	}

	hc := c.reads
	if method != http.MethodGet {
		hc = c.writes
	}
	start := time.Now()
	resp, err := hc.Do(req)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		c.log.Warn("backend unreachable", "method", method, "path", path, "error", err)
		return nil, fmt.Errorf("%w: %s %s: %w", ErrTransport, method, path, err)
	}
	defer resp.Body.Close()

	raw, err := ioReadAllLimit(resp.Body, maxBody)
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrTransport, path, err)
	}
	c.log.Debug("backend call", "method", method, "path", path, "status", resp.StatusCode, "took", time.Since(start))
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, parseAPIError(resp.StatusCode, raw)
	}
	return raw, nil
}

func (c *Client) getJSON(ctx context.Context, path string, q url.Values) ([]byte, error) {
	return c.do(ctx, http.MethodGet, path, q, nil)
}

func (c *Client) sendJSON(ctx context.Context, method, path string, v any) ([]byte, error) {
	b, err := jsonBody(v)
	if err != nil {
		return nil, err
	}
	return c.do(ctx, method, path, nil, b)
}

func ioReadAllLimit(r io.Reader, limit int64) ([]byte, error) {
	lr := io.LimitReader(r, limit+1)
	b, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, errors.New("payload too large")
	}
	return b, nil
}
