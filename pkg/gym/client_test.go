package gym_test

import (
	"context"
	"errors"
	"net/http"
	"strings"
	"testing"

	"github.com/segmentio/encoding/json"

	"github.com/gym-http/gymclient/internal/gymtest"
	"github.com/gym-http/gymclient/pkg/gym"
	"github.com/gym-http/gymclient/pkg/types"
)

func newTestClient(t *testing.T, baseURL string, opts ...gym.Option) *gym.Client {
	t.Helper()
	c, err := gym.New(baseURL, opts...)
	if err != nil {
		t.Fatalf("gym.New: %v", err)
	}
	return c
}

func TestNew_RejectsInvalidBaseURL(t *testing.T) {
	for _, raw := range []string{"", "localhost:5000", "ftp://localhost", "http://", "http://[::1"} {
		_, err := gym.New(raw)
		if !errors.Is(err, types.ErrConfiguration) {
			t.Errorf("New(%q): got %v, want ErrConfiguration", raw, err)
		}
	}
}

func TestNewDefault_BaseURL(t *testing.T) {
	c, err := gym.NewDefault()
	if err != nil {
		t.Fatalf("NewDefault: %v", err)
	}
	if c.BaseURL() != "http://localhost:5000" {
		t.Errorf("BaseURL: got %q, want http://localhost:5000", c.BaseURL())
	}
	if c.InfoPolicy() != types.InfoStrict {
		t.Errorf("InfoPolicy: got %q, want strict", c.InfoPolicy())
	}
}

func TestCreate_ReturnsInstanceID(t *testing.T) {
	s := gymtest.New(t)
	s.Script("POST /v1/envs/", gymtest.Response{Raw: `{"instance_id":"abc123"}`})
	c := newTestClient(t, s.URL)

	got, err := c.Create(context.Background(), "CartPole-v0")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if got.InstanceID != "abc123" {
		t.Errorf("InstanceID: got %q, want abc123", got.InstanceID)
	}
	if body := string(s.LastRequest().Body); body != `{"env_id":"CartPole-v0"}` {
		t.Errorf("request body: got %s", body)
	}
}

func TestCreate_EmptySpecIsRejectedLocally(t *testing.T) {
	s := gymtest.New(t)
	c := newTestClient(t, s.URL)

	if _, err := c.Create(context.Background(), " "); !errors.Is(err, types.ErrEncode) {
		t.Fatalf("got %v, want ErrEncode", err)
	}
	if s.CallCount() != 0 {
		t.Errorf("CallCount: got %d, want 0", s.CallCount())
	}
}

func TestServerErrorIsTransportError(t *testing.T) {
	s := gymtest.New(t, gymtest.WithMatchFunc(func(gymtest.Request) *gymtest.Response {
		return &gymtest.Response{Status: http.StatusInternalServerError, Raw: `{"error":"boom"}`}
	}))
	c := newTestClient(t, s.URL)
	ctx := context.Background()

	res, err := c.Create(ctx, "CartPole-v0")
	if res != nil {
		t.Errorf("Create returned a result alongside an error: %+v", res)
	}
	checks := map[string]error{
		"create":   err,
		"close":    c.Close(ctx, "abc123"),
		"shutdown": c.Shutdown(ctx),
	}
	_, checks["step"] = c.Step(ctx, "abc123", 0, false)
	_, checks["list"] = c.ListInstances(ctx)
	_, checks["space"] = c.ObservationSpace(ctx, "abc123")

	for op, err := range checks {
		if !errors.Is(err, types.ErrTransport) {
			t.Errorf("%s: got %v, want ErrTransport", op, err)
		}
		if types.StatusCode(err) != http.StatusInternalServerError {
			t.Errorf("%s: StatusCode got %d, want 500", op, types.StatusCode(err))
		}
		if err != nil && strings.Contains(err.Error(), "boom") {
			t.Errorf("%s: server body leaked into error: %v", op, err)
		}
	}
}

func TestStep_DecodesOutcome(t *testing.T) {
	s := gymtest.New(t)
	s.Script("POST /v1/envs/abc123/step/", gymtest.Response{
		Raw: `{"observation":[[[0]]], "reward":1.5, "done":false, "info":{"ale.lives":3}}`,
	})
	c := newTestClient(t, s.URL)

	got, err := c.Step(context.Background(), "abc123", 2, true)
	if err != nil {
		t.Fatalf("Step: %v", err)
	}
	if got.Reward != 1.5 || got.Done {
		t.Errorf("got reward=%v done=%v, want 1.5 false", got.Reward, got.Done)
	}
	if got.Info.Lives == nil || *got.Info.Lives != 3 {
		t.Errorf("Lives: got %v, want 3", got.Info.Lives)
	}
	if len(got.Observation) != 1 || got.Observation[0][0][0] != 0 {
		t.Errorf("Observation: got %v, want [[[0]]]", got.Observation)
	}

	var sent map[string]any
	if err := json.Unmarshal(s.LastRequest().Body, &sent); err != nil {
		t.Fatalf("unmarshal request: %v", err)
	}
	if sent["action"] != float64(2) || sent["render"] != true || len(sent) != 2 {
		t.Errorf("request body: got %v, want action=2 render=true", sent)
	}
}

func TestStep_StrictInfoPolicy(t *testing.T) {
	s := gymtest.New(t)
	s.Script("POST /v1/envs/abc123/step/", gymtest.Response{
		Raw: `{"observation":[[[0]]],"reward":0,"done":true,"info":{}}`,
	})

	strict := newTestClient(t, s.URL)
	if _, err := strict.Step(context.Background(), "abc123", 0, false); !errors.Is(err, types.ErrDecode) {
		t.Errorf("strict: got %v, want ErrDecode", err)
	}

	optional := newTestClient(t, s.URL, gym.WithInfoPolicy(types.InfoOptional))
	got, err := optional.Step(context.Background(), "abc123", 0, false)
	if err != nil {
		t.Fatalf("optional: %v", err)
	}
	if got.Info.Lives != nil {
		t.Errorf("optional: Lives got %d, want nil", *got.Info.Lives)
	}
}

func TestListInstances(t *testing.T) {
	s := gymtest.New(t)
	s.Script("GET /v1/envs/", gymtest.Response{Raw: `{"all_envs":{"abc123":"CartPole-v0"}}`})
	c := newTestClient(t, s.URL)

	got, err := c.ListInstances(context.Background())
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if len(got.Instances) != 1 || got.Instances["abc123"] != "CartPole-v0" {
		t.Errorf("Instances: got %v, want map[abc123:CartPole-v0]", got.Instances)
	}
}

func TestClose_EmptyBodyIsSuccess(t *testing.T) {
	s := gymtest.New(t)
	s.Script("POST /v1/envs/stale/close/", gymtest.Response{Status: http.StatusOK})
	c := newTestClient(t, s.URL)

	if err := c.Close(context.Background(), "stale"); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestDecodeExpectingCall_EmptyBody(t *testing.T) {
	s := gymtest.New(t)
	s.Script("POST /v1/envs/abc/reset/", gymtest.Response{Status: http.StatusNoContent})
	c := newTestClient(t, s.URL)

	_, err := c.Reset(context.Background(), "abc")
	if !errors.Is(err, types.ErrEmptyBody) {
		t.Fatalf("got %v, want ErrEmptyBody", err)
	}
	if errors.Is(err, types.ErrDecode) {
		t.Error("empty body must not be reported as a decode error")
	}
}

func TestShutdown_AcceptsNonJSONBody(t *testing.T) {
	s := gymtest.New(t)
	c := newTestClient(t, s.URL)

	if err := c.Shutdown(context.Background()); err != nil {
		t.Fatalf("Shutdown: %v", err)
	}
	if got := s.LastRequest().Route(); got != "POST /v1/shutdown/" {
		t.Errorf("route: got %q", got)
	}
}

func TestLifecycleAgainstSimulatedServer(t *testing.T) {
	s := gymtest.New(t, gymtest.WithEpisodeLength(3), gymtest.WithActions(4))
	c := newTestClient(t, s.URL)
	ctx := context.Background()

	created, err := c.Create(ctx, "Pong-v0")
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	id := created.InstanceID

	aspace, err := c.ActionSpace(ctx, id)
	if err != nil {
		t.Fatalf("ActionSpace: %v", err)
	}
	if aspace.Info.N != 4 {
		t.Errorf("ActionSpace.N: got %d, want 4", aspace.Info.N)
	}

	ospace, err := c.ObservationSpace(ctx, id)
	if err != nil {
		t.Fatalf("ObservationSpace: %v", err)
	}
	if ospace.Info.Kind != types.SpaceBox || len(ospace.Info.Box.Shape) != 3 {
		t.Errorf("ObservationSpace: got %+v, want 3-d box", ospace.Info)
	}

	if err := c.StartMonitor(ctx, id, "/tmp/gym-agent", true, false, true); err != nil {
		t.Fatalf("StartMonitor: %v", err)
	}
	if s.Monitor(id) != "/tmp/gym-agent" {
		t.Errorf("monitor dir: got %q", s.Monitor(id))
	}

	obs, err := c.Reset(ctx, id)
	if err != nil {
		t.Fatalf("Reset: %v", err)
	}
	if h, w, ch := obs.Observation.Shape(); h != 2 || w != 2 || ch != 3 {
		t.Errorf("frame shape: got (%d, %d, %d), want (2, 2, 3)", h, w, ch)
	}

	member, err := c.ContainsAction(ctx, id, 3)
	if err != nil {
		t.Fatalf("ContainsAction: %v", err)
	}
	if !member.Member {
		t.Error("ContainsAction(3): got false, want true")
	}
	if got := s.LastRequest().Path; got != "/v1/envs/"+string(id)+"/action_space/contains/3" {
		t.Errorf("contains path: got %q", got)
	}

	member, err = c.ContainsObservation(ctx, id, types.ObservationQuery{"name": "Box"})
	if err != nil {
		t.Fatalf("ContainsObservation: %v", err)
	}
	if !member.Member {
		t.Error("ContainsObservation(Box): got false, want true")
	}

	steps := 0
	for {
		sample, err := c.SampleAction(ctx, id)
		if err != nil {
			t.Fatalf("SampleAction: %v", err)
		}
		out, err := c.Step(ctx, id, sample.Action, false)
		if err != nil {
			t.Fatalf("Step: %v", err)
		}
		steps++
		if out.Done {
			break
		}
		if steps > 10 {
			t.Fatal("episode did not finish")
		}
	}
	if steps != 3 {
		t.Errorf("steps: got %d, want 3", steps)
	}

	list, err := c.ListInstances(ctx)
	if err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if list.Instances[id] != "Pong-v0" {
		t.Errorf("ListInstances: got %v", list.Instances)
	}

	if err := c.CloseMonitor(ctx, id); err != nil {
		t.Fatalf("CloseMonitor: %v", err)
	}
	if err := c.Close(ctx, id); err != nil {
		t.Fatalf("Close: %v", err)
	}

	// The handle is stale now; the server decides.
	if _, err := c.Reset(ctx, id); types.StatusCode(err) != http.StatusBadRequest {
		t.Errorf("Reset after close: got %v, want status 400", err)
	}
}

func TestInstanceIDIsPathEscaped(t *testing.T) {
	s := gymtest.New(t)
	s.Script("POST /v1/envs/a b/reset/", gymtest.Response{Raw: `{"observation":[]}`})
	c := newTestClient(t, s.URL)

	if _, err := c.Reset(context.Background(), "a b"); err != nil {
		t.Fatalf("Reset: %v", err)
	}
}

func TestBaseURLWithPathPrefix(t *testing.T) {
	s := gymtest.New(t)
	s.Script("GET /gym/v1/envs/", gymtest.Response{Raw: `{"all_envs":{}}`})
	c := newTestClient(t, s.URL+"/gym/")

	if _, err := c.ListInstances(context.Background()); err != nil {
		t.Fatalf("ListInstances: %v", err)
	}
	if got := s.LastRequest().Path; got != "/gym/v1/envs/" {
		t.Errorf("path: got %q, want /gym/v1/envs/", got)
	}
}

func TestNew_RejectsUnknownInfoPolicy(t *testing.T) {
	_, err := gym.New("http://localhost:5000", gym.WithInfoPolicy("lenient"))
	if !errors.Is(err, types.ErrConfiguration) {
		t.Fatalf("got %v, want ErrConfiguration", err)
	}
}
