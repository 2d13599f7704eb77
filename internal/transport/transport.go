// Package transport performs the HTTP exchanges with the Gym server and
// enforces the 200/204 acceptance rule.
package transport

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/gym-http/gymclient/pkg/types"
)

// DefaultTimeout bounds every request, connection to last body byte.
const DefaultTimeout = 20 * time.Second

const (
	mediaTypeJSON = "application/json"
	// maxLoggedBody caps how much of a rejected body is logged.
	maxLoggedBody = 512
)

// Config configures a Transport. The zero value is usable.
type Config struct {
	// RoundTripper replaces http.DefaultTransport when set.
	RoundTripper http.RoundTripper
	// Limiter paces outgoing requests when set. It never retries.
	Limiter *rate.Limiter
	Logger  *slog.Logger
}

// Transport issues GET and POST requests. It is safe for concurrent use;
// concurrent requests share its connection pool and limiter.
type Transport struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
}

// New creates a Transport with the fixed DefaultTimeout.
func New(cfg Config) *Transport {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Transport{
		client: &http.Client{
			Transport: cfg.RoundTripper,
			Timeout:   DefaultTimeout,
			// Redirects are surfaced as rejected statuses.
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		limiter: cfg.Limiter,
		logger:  logger,
	}
}

// Get fetches url and returns the body of an accepted response.
func (t *Transport) Get(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &types.Error{Kind: types.KindTransport, Method: http.MethodGet, URL: url, Err: err}
	}
	return t.do(req)
}

// Post sends body (which may be nil) to url as JSON and returns the body of an
// accepted response.
func (t *Transport) Post(ctx context.Context, url string, body []byte) ([]byte, error) {
	var r io.Reader
	if body != nil {
		r = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, r)
	if err != nil {
		return nil, &types.Error{Kind: types.KindTransport, Method: http.MethodPost, URL: url, Err: err}
	}
	req.Header.Set("Content-Type", mediaTypeJSON)
	req.Header.Set("Accept", mediaTypeJSON)
	return t.do(req)
}

func (t *Transport) do(req *http.Request) ([]byte, error) {
	method, url := req.Method, req.URL.String()
	fail := func(err error) error {
		return &types.Error{Kind: types.KindTransport, Method: method, URL: url, Err: err}
	}

	if t.limiter != nil {
		if err := t.limiter.Wait(req.Context()); err != nil {
			return nil, fail(fmt.Errorf("rate limit: %w", err))
		}
	}

	start := time.Now()
	resp, err := t.client.Do(req)
	if err != nil {
		t.logger.Debug("gym request failed", "method", method, "url", url, "err", err)
		return nil, fail(err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fail(fmt.Errorf("read body: %w", err))
	}
	t.logger.Debug("gym request", "method", method, "url", url,
		"status", resp.StatusCode, "bytes", len(raw), "elapsed", time.Since(start))

	if !Accepted(resp.StatusCode) {
		t.logger.Debug("gym server rejected request", "method", method, "url", url,
			"status", resp.StatusCode, "body", truncate(raw, maxLoggedBody))
		return nil, types.NewStatusError(method, url, resp.StatusCode)
	}
	return raw, nil
}

// Accepted reports whether status passes the success rule: exactly 200 or 204.
func Accepted(status int) bool {
	return status == http.StatusOK || status == http.StatusNoContent
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
