// Package gymtest provides an in-process fake of the Gym HTTP server for tests.
//
// By default the fake simulates a small discrete environment: instances are
// created, reset, stepped and closed with the same routes and status codes as
// the real server. A match function is consulted first, then scripted
// responses, then the simulation.
package gymtest

import (
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"

	"github.com/segmentio/encoding/json"

	"github.com/gym-http/gymclient/pkg/types"
)

// Request is a request received by the fake server.
type Request struct {
	Method string
	Path   string
	Header http.Header
	Body   []byte
}

// Route returns the "METHOD /path" key used for scripting.
func (r Request) Route() string { return r.Method + " " + r.Path }

// Response is a canned reply. Raw is written verbatim when set; otherwise Body
// is JSON encoded. A zero Status means 200.
type Response struct {
	Status int
	Body   any
	Raw    string
}

// Server is a fake Gym server backed by httptest.
type Server struct {
	URL string

	srv *httptest.Server
	mu  sync.Mutex

	scripts   map[string][]Response
	matchFunc func(Request) *Response
	callCount int
	history   []Request

	episodeLength int
	startLives    int
	actions       int
	frame         [3]int
	nextID        int
	envs          map[types.InstanceID]*instance
}

type instance struct {
	spec    types.EnvironmentSpec
	steps   int
	lives   int
	monitor string
}

// Option configures the simulated environment.
type Option func(*Server)

// WithEpisodeLength sets how many steps an episode lasts. Default 5.
func WithEpisodeLength(n int) Option { return func(s *Server) { s.episodeLength = n } }

// WithLives sets the lives reported after reset. Default 3.
func WithLives(n int) Option { return func(s *Server) { s.startLives = n } }

// WithActions sets the size of the discrete action space. Default 2.
func WithActions(n int) Option { return func(s *Server) { s.actions = n } }

// WithMatchFunc installs a function consulted before scripts and simulation.
// Returning nil falls through.
func WithMatchFunc(fn func(Request) *Response) Option {
	return func(s *Server) { s.matchFunc = fn }
}

// New starts a fake server that is closed when t finishes.
func New(t testing.TB, opts ...Option) *Server {
	t.Helper()
	s := &Server{
		scripts:       make(map[string][]Response),
		episodeLength: 5,
		startLives:    3,
		actions:       2,
		frame:         [3]int{2, 2, 3},
		envs:          make(map[types.InstanceID]*instance),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.srv = httptest.NewServer(http.HandlerFunc(s.handle))
	s.URL = s.srv.URL
	t.Cleanup(s.srv.Close)
	return s
}

// Script queues responses for a route such as "POST /v1/envs/". Responses are
// used once each in order; the last one repeats.
func (s *Server) Script(route string, responses ...Response) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.scripts[route] = append(s.scripts[route], responses...)
}

// CallCount returns the number of requests served.
func (s *Server) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.callCount
}

// Requests returns a copy of every request received.
func (s *Server) Requests() []Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Request(nil), s.history...)
}

// LastRequest returns the most recent request, or the zero Request.
func (s *Server) LastRequest() Request {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.history) == 0 {
		return Request{}
	}
	return s.history[len(s.history)-1]
}

// Instances returns the handles currently open on the fake.
func (s *Server) Instances() []types.InstanceID {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]types.InstanceID, 0, len(s.envs))
	for id := range s.envs {
		ids = append(ids, id)
	}
	return ids
}

// Monitor returns the monitor directory of id, or "" when not recording.
func (s *Server) Monitor(id types.InstanceID) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if inst, ok := s.envs[id]; ok {
		return inst.monitor
	}
	return ""
}

func (s *Server) handle(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	req := Request{Method: r.Method, Path: r.URL.Path, Header: r.Header.Clone(), Body: body}

	s.mu.Lock()
	s.callCount++
	s.history = append(s.history, req)
	match := s.matchFunc
	s.mu.Unlock()

	if match != nil {
		if resp := match(req); resp != nil {
			write(w, *resp)
			return
		}
	}
	if resp, ok := s.nextScripted(req.Route()); ok {
		write(w, resp)
		return
	}
	write(w, s.simulate(req))
}

func (s *Server) nextScripted(route string) (Response, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	queue := s.scripts[route]
	if len(queue) == 0 {
		return Response{}, false
	}
	resp := queue[0]
	if len(queue) > 1 {
		s.scripts[route] = queue[1:]
	}
	return resp, true
}

func write(w http.ResponseWriter, resp Response) {
	status := resp.Status
	if status == 0 {
		status = http.StatusOK
	}
	var payload []byte
	switch {
	case resp.Raw != "":
		payload = []byte(resp.Raw)
	case resp.Body != nil:
		b, err := json.Marshal(resp.Body)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		payload = b
	}
	if len(payload) > 0 {
		w.Header().Set("Content-Type", "application/json")
	}
	w.WriteHeader(status)
	_, _ = w.Write(payload)
}

func errorResponse(status int, format string, args ...any) Response {
	return Response{Status: status, Body: map[string]any{"message": fmt.Sprintf(format, args...)}}
}

// simulate answers req the way the reference Gym server does.
func (s *Server) simulate(req Request) Response {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case req.Path == "/v1/shutdown/" && req.Method == http.MethodPost:
		return Response{Raw: "Server shutting down"}
	case req.Path == "/v1/envs/" && req.Method == http.MethodPost:
		return s.create(req.Body)
	case req.Path == "/v1/envs/" && req.Method == http.MethodGet:
		all := make(map[types.InstanceID]types.EnvironmentSpec, len(s.envs))
		for id, inst := range s.envs {
			all[id] = inst.spec
		}
		return Response{Body: types.EnvironmentList{Instances: all}}
	}

	rest, ok := strings.CutPrefix(req.Path, "/v1/envs/")
	if !ok {
		return errorResponse(http.StatusNotFound, "no route for %s", req.Route())
	}
	idPart, action, _ := strings.Cut(rest, "/")
	id := types.InstanceID(idPart)
	inst, ok := s.envs[id]
	if !ok {
		return errorResponse(http.StatusBadRequest, "Instance_id %s unknown", id)
	}

	switch route := req.Method + " " + action; {
	case route == "POST reset/":
		inst.steps = 0
		inst.lives = s.startLives
		return Response{Body: types.Observation{Observation: s.frameAt(0)}}
	case route == "POST step/":
		return s.step(inst, req.Body)
	case route == "GET action_space/sample":
		return Response{Body: types.ActionSample{Action: inst.steps % s.actions}}
	case route == "GET action_space/":
		return Response{Body: types.ActionSpaceInfo{Info: types.DiscreteSpace{Name: "Discrete", N: s.actions}}}
	case route == "GET observation_space/":
		h, w, c := s.frame[0], s.frame[1], s.frame[2]
		return Response{Body: types.ObservationSpaceInfo{Info: types.ObservationSpace{
			Kind: types.SpaceBox,
			Name: "Box",
			Box:  &types.BoxSpace{Shape: []int{h, w, c}, Low: []float64{0}, High: []float64{255}},
		}}}
	case route == "POST observation_space/contains":
		var q map[string]string
		if err := json.Unmarshal(req.Body, &q); err != nil {
			return errorResponse(http.StatusBadRequest, "bad observation query: %v", err)
		}
		return Response{Body: types.Membership{Member: q["name"] == "Box"}}
	case strings.HasPrefix(route, "POST action_space/contains/"):
		n, err := strconv.Atoi(strings.TrimPrefix(action, "action_space/contains/"))
		if err != nil {
			return errorResponse(http.StatusBadRequest, "bad action: %v", err)
		}
		return Response{Body: types.Membership{Member: n >= 0 && n < s.actions}}
	case route == "POST monitor/start/":
		var cmd types.StartMonitorCommand
		if err := json.Unmarshal(req.Body, &cmd); err != nil {
			return errorResponse(http.StatusBadRequest, "bad monitor command: %v", err)
		}
		inst.monitor = cmd.Directory
		return Response{Status: http.StatusNoContent}
	case route == "POST monitor/close/":
		inst.monitor = ""
		return Response{Status: http.StatusNoContent}
	case route == "POST close/":
		delete(s.envs, id)
		return Response{Status: http.StatusNoContent}
	}
	return errorResponse(http.StatusNotFound, "no route for %s", req.Route())
}

func (s *Server) create(body []byte) Response {
	var cmd types.CreateEnvironmentCommand
	if err := json.Unmarshal(body, &cmd); err != nil || cmd.EnvID == "" {
		return errorResponse(http.StatusBadRequest, "env_id is required")
	}
	s.nextID++
	id := types.InstanceID(fmt.Sprintf("%08x", s.nextID))
	s.envs[id] = &instance{spec: cmd.EnvID, lives: s.startLives}
	return Response{Body: types.SessionCreated{InstanceID: id}}
}

func (s *Server) step(inst *instance, body []byte) Response {
	var cmd types.StepCommand
	if err := json.Unmarshal(body, &cmd); err != nil {
		return errorResponse(http.StatusBadRequest, "bad step command: %v", err)
	}
	if cmd.Action < 0 || cmd.Action >= s.actions {
		return errorResponse(http.StatusBadRequest, "action %d out of range", cmd.Action)
	}
	inst.steps++
	if inst.steps%2 == 0 && inst.lives > 0 {
		inst.lives--
	}
	lives := inst.lives
	return Response{Body: types.StepOutcome{
		Observation: s.frameAt(inst.steps),
		Reward:      float64(cmd.Action + 1),
		Done:        inst.steps >= s.episodeLength,
		Info:        types.Info{Lives: &lives},
	}}
}

func (s *Server) frameAt(step int) types.Frame {
	f := make(types.Frame, s.frame[0])
	for i := range f {
		f[i] = make([][]uint8, s.frame[1])
		for j := range f[i] {
			f[i][j] = make([]uint8, s.frame[2])
			for k := range f[i][j] {
				f[i][j][k] = uint8((step + i + j + k) % 256)
			}
		}
	}
	return f
}
