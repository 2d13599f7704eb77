// Package gym is a client for the Gym HTTP API. It creates remote environment
// instances, steps them, inspects their spaces and drives their monitors.
//
// Every operation is a blocking call bounded by ctx; use Async or OnComplete
// to run one in the background and receive its outcome exactly once.
package gym

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"golang.org/x/time/rate"

	"github.com/gym-http/gymclient/internal/codec"
	"github.com/gym-http/gymclient/internal/transport"
	"github.com/gym-http/gymclient/pkg/types"
)

// DefaultBaseURL is the address a locally started Gym server listens on.
const DefaultBaseURL = "http://localhost:5000"

// Client talks to one Gym server. It holds no per-instance state and is safe
// for concurrent use.
type Client struct {
	baseURL   string
	transport *transport.Transport
	decoder   *codec.Decoder
	logger    *slog.Logger

	roundTripper http.RoundTripper
	limiter      *rate.Limiter
	policy       types.InfoPolicy
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger used for request tracing.
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithRateLimit paces outgoing requests to rps with the given burst.
// A non-positive rps disables pacing.
func WithRateLimit(rps float64, burst int) Option {
	return func(c *Client) {
		if rps <= 0 {
			c.limiter = nil
			return
		}
		if burst < 1 {
			burst = 1
		}
		c.limiter = rate.NewLimiter(rate.Limit(rps), burst)
	}
}

// WithRoundTripper replaces the HTTP round tripper.
func WithRoundTripper(rt http.RoundTripper) Option {
	return func(c *Client) {
		c.roundTripper = rt
	}
}

// WithInfoPolicy selects how strictly step info keys are required.
// The default is types.InfoStrict.
func WithInfoPolicy(p types.InfoPolicy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// New creates a Client for the server at baseURL.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, &types.Error{Kind: types.KindConfiguration, URL: baseURL, Err: err}
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, &types.Error{
			Kind: types.KindConfiguration,
			URL:  baseURL,
			Err:  fmt.Errorf("base url must be absolute http(s), got %q", baseURL),
		}
	}

	c := &Client{
		baseURL: strings.TrimRight(u.String(), "/"),
		logger:  slog.New(slog.NewTextHandler(io.Discard, nil)),
		policy:  types.InfoStrict,
	}
	for _, opt := range opts {
		opt(c)
	}

	dec, err := codec.NewDecoder(c.policy)
	if err != nil {
		return nil, &types.Error{Kind: types.KindConfiguration, Err: err}
	}
	c.decoder = dec
	c.transport = transport.New(transport.Config{
		RoundTripper: c.roundTripper,
		Limiter:      c.limiter,
		Logger:       c.logger,
	})
	return c, nil
}

// NewDefault creates a Client for DefaultBaseURL.
func NewDefault(opts ...Option) (*Client, error) {
	return New(DefaultBaseURL, opts...)
}

// BaseURL returns the server address the client was created with.
func (c *Client) BaseURL() string { return c.baseURL }

// InfoPolicy returns the step info policy in effect.
func (c *Client) InfoPolicy() types.InfoPolicy { return c.decoder.Policy() }

// Create starts a new instance of spec, e.g. "CartPole-v0".
func (c *Client) Create(ctx context.Context, spec types.EnvironmentSpec) (*types.SessionCreated, error) {
	if strings.TrimSpace(string(spec)) == "" {
		return nil, fmt.Errorf("gym: create: %w", &types.Error{
			Kind: types.KindEncode,
			Err:  errors.New("environment spec is empty"),
		})
	}
	cmd := types.CreateEnvironmentCommand{EnvID: spec}
	return call(ctx, c, "create", http.MethodPost, envsPath, cmd, c.decoder.SessionCreated)
}

// ListInstances returns every live instance on the server.
func (c *Client) ListInstances(ctx context.Context) (*types.EnvironmentList, error) {
	return call(ctx, c, "list instances", http.MethodGet, envsPath, nil, c.decoder.EnvironmentList)
}

// Reset restarts the episode of id and returns the initial observation.
func (c *Client) Reset(ctx context.Context, id types.InstanceID) (*types.Observation, error) {
	return call(ctx, c, "reset", http.MethodPost, instancePath(id, "reset/"), nil, c.decoder.Observation)
}

// Step advances id by one transition. render is advisory.
func (c *Client) Step(ctx context.Context, id types.InstanceID, action int, render bool) (*types.StepOutcome, error) {
	cmd := types.StepCommand{Action: action, Render: render}
	return call(ctx, c, "step", http.MethodPost, instancePath(id, "step/"), cmd, c.decoder.StepOutcome)
}

// SampleAction draws a random action from the action space of id.
func (c *Client) SampleAction(ctx context.Context, id types.InstanceID) (*types.ActionSample, error) {
	return call(ctx, c, "sample action", http.MethodGet, instancePath(id, "action_space/sample"), nil, c.decoder.ActionSample)
}

// ContainsObservation asks whether query describes a member of the
// observation space of id.
func (c *Client) ContainsObservation(ctx context.Context, id types.InstanceID, query types.ObservationQuery) (*types.Membership, error) {
	if query == nil {
		query = types.ObservationQuery{}
	}
	return call(ctx, c, "contains observation", http.MethodPost,
		instancePath(id, "observation_space/contains"), query, c.decoder.Membership)
}

// ContainsAction asks whether action is in the action space of id.
func (c *Client) ContainsAction(ctx context.Context, id types.InstanceID, action int) (*types.Membership, error) {
	return call(ctx, c, "contains action", http.MethodPost,
		instancePath(id, "action_space/contains/"+strconv.Itoa(action)), nil, c.decoder.Membership)
}

// ObservationSpace describes the observation space of id.
func (c *Client) ObservationSpace(ctx context.Context, id types.InstanceID) (*types.ObservationSpaceInfo, error) {
	return call(ctx, c, "observation space", http.MethodGet, instancePath(id, "observation_space/"), nil, c.decoder.ObservationSpace)
}

// ActionSpace describes the action space of id.
func (c *Client) ActionSpace(ctx context.Context, id types.InstanceID) (*types.ActionSpaceInfo, error) {
	return call(ctx, c, "action space", http.MethodGet, instancePath(id, "action_space/"), nil, c.decoder.ActionSpace)
}

// Close shuts down the instance id. The handle is invalid afterwards.
func (c *Client) Close(ctx context.Context, id types.InstanceID) error {
	return c.complete(ctx, "close", instancePath(id, "close/"), nil)
}

// StartMonitor begins recording id into directory on the server host.
// force clears earlier recordings there; resume merges with them.
func (c *Client) StartMonitor(ctx context.Context, id types.InstanceID, directory string, force, resume, videoCallable bool) error {
	cmd := types.StartMonitorCommand{
		Directory:     directory,
		Force:         force,
		Resume:        resume,
		VideoCallable: videoCallable,
	}
	return c.complete(ctx, "start monitor", instancePath(id, "monitor/start/"), cmd)
}

// CloseMonitor stops recording id and flushes the manifest and stats files.
func (c *Client) CloseMonitor(ctx context.Context, id types.InstanceID) error {
	return c.complete(ctx, "close monitor", instancePath(id, "monitor/close/"), nil)
}

// Shutdown stops the server.
func (c *Client) Shutdown(ctx context.Context) error {
	return c.complete(ctx, "shutdown", shutdownPath, nil)
}

// call runs encode, exchange and decode for an operation with a result.
func call[T any](ctx context.Context, c *Client, op, method, path string, cmd types.Command, decode func([]byte) (*T, error)) (*T, error) {
	target := c.baseURL + path
	body, err := c.exchange(ctx, method, target, cmd)
	if err != nil {
		return nil, fmt.Errorf("gym: %s: %w", op, err)
	}
	v, err := decode(body)
	if err != nil {
		kind := types.KindDecode
		if errors.Is(err, types.ErrEmptyBody) {
			kind = types.KindEmptyBody
		}
		return nil, fmt.Errorf("gym: %s: %w", op, &types.Error{Kind: kind, Method: method, URL: target, Err: err})
	}
	return v, nil
}

// complete runs an operation whose only outcome is success or failure. Any
// body, including none, is accepted.
func (c *Client) complete(ctx context.Context, op, path string, cmd types.Command) error {
	if _, err := c.exchange(ctx, http.MethodPost, c.baseURL+path, cmd); err != nil {
		return fmt.Errorf("gym: %s: %w", op, err)
	}
	return nil
}

func (c *Client) exchange(ctx context.Context, method, target string, cmd types.Command) ([]byte, error) {
	var body []byte
	if cmd != nil {
		b, err := codec.Encode(cmd)
		if err != nil {
			return nil, &types.Error{Kind: types.KindEncode, Method: method, URL: target, Err: err}
		}
		body = b
	}
	if method == http.MethodGet {
		return c.transport.Get(ctx, target)
	}
	return c.transport.Post(ctx, target, body)
}
