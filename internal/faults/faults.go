// Package faults wraps an http.RoundTripper and injects failures into Gym
// traffic so that client error paths can be exercised against a healthy
// server.
package faults

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strconv"
	"sync"
	"time"
)

// ErrInjected is the network error returned when ErrorRate fires.
var ErrInjected = errors.New("faults: injected network error")

// Config defines the fault injection parameters for a RoundTripper.
type Config struct {
	ErrorRate     float64       // Probability [0,1] of failing before the request is sent
	StatusRate    float64       // Probability [0,1] of replacing the response status
	StatusCode    int           // Status used when StatusRate fires; 0 means 503
	CorruptRate   float64       // Probability [0,1] of truncating the response body
	LatencyJitter time.Duration // Random additional latency [0, LatencyJitter)
}

// RoundTripper injects faults according to Config before and after
// delegating to the inner transport.
type RoundTripper struct {
	inner  http.RoundTripper
	config Config
	rng    *rand.Rand
	mu     sync.Mutex
}

// New creates a RoundTripper with a time-based seed. A nil inner uses
// http.DefaultTransport.
func New(inner http.RoundTripper, config Config) *RoundTripper {
	return NewWithSeed(inner, config, time.Now().UnixNano())
}

// NewWithSeed creates a RoundTripper with a deterministic seed for testing.
func NewWithSeed(inner http.RoundTripper, config Config, seed int64) *RoundTripper {
	if inner == nil {
		inner = http.DefaultTransport
	}
	return &RoundTripper{
		inner:  inner,
		config: config,
		rng:    rand.New(rand.NewSource(seed)), //nolint:gosec
	}
}

type rolls struct {
	err, status, corrupt float64
	jitter               time.Duration
}

func (f *RoundTripper) roll() rolls {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := rolls{
		err:     f.rng.Float64(),
		status:  f.rng.Float64(),
		corrupt: f.rng.Float64(),
	}
	if f.config.LatencyJitter > 0 {
		r.jitter = time.Duration(f.rng.Int63n(int64(f.config.LatencyJitter)))
	}
	return r
}

// RoundTrip implements http.RoundTripper.
func (f *RoundTripper) RoundTrip(req *http.Request) (*http.Response, error) {
	r := f.roll()

	if r.jitter > 0 {
		t := time.NewTimer(r.jitter)
		select {
		case <-t.C:
		case <-req.Context().Done():
			t.Stop()
			closeBody(req)
			return nil, req.Context().Err()
		}
	}

	if f.config.ErrorRate > 0 && r.err < f.config.ErrorRate {
		closeBody(req)
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, ErrInjected)
	}

	resp, err := f.inner.RoundTrip(req)
	if err != nil {
		return nil, err
	}

	if f.config.StatusRate > 0 && r.status < f.config.StatusRate {
		code := f.config.StatusCode
		if code == 0 {
			code = http.StatusServiceUnavailable
		}
		resp.StatusCode = code
		resp.Status = strconv.Itoa(code) + " " + http.StatusText(code)
	}

	if f.config.CorruptRate > 0 && r.corrupt < f.config.CorruptRate {
		if err := truncate(resp); err != nil {
			return nil, err
		}
	}
	return resp, nil
}

// truncate cuts the body in half, leaving JSON unparsable.
func truncate(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return fmt.Errorf("faults: read body: %w", err)
	}
	body = body[:len(body)/2]
	resp.Body = io.NopCloser(bytes.NewReader(body))
	resp.ContentLength = int64(len(body))
	resp.Header.Del("Content-Length")
	return nil
}

// RoundTrippers must close the request body even on error.
func closeBody(req *http.Request) {
	if req.Body != nil {
		req.Body.Close()
	}
}
