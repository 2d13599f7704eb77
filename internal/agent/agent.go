// Package agent runs episodes against a Gym server and records every step.
package agent

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/gym-http/gymclient/internal/history"
	"github.com/gym-http/gymclient/pkg/types"
)

// Env is the subset of *gym.Client a Runner drives.
type Env interface {
	Create(ctx context.Context, spec types.EnvironmentSpec) (*types.SessionCreated, error)
	Reset(ctx context.Context, id types.InstanceID) (*types.Observation, error)
	Step(ctx context.Context, id types.InstanceID, action int, render bool) (*types.StepOutcome, error)
	SampleAction(ctx context.Context, id types.InstanceID) (*types.ActionSample, error)
	ActionSpace(ctx context.Context, id types.InstanceID) (*types.ActionSpaceInfo, error)
	ObservationSpace(ctx context.Context, id types.InstanceID) (*types.ObservationSpaceInfo, error)
	StartMonitor(ctx context.Context, id types.InstanceID, directory string, force, resume, videoCallable bool) error
	CloseMonitor(ctx context.Context, id types.InstanceID) error
	Close(ctx context.Context, id types.InstanceID) error
}

// Policy picks the next action. last is nil on the first step of an episode.
type Policy interface {
	Act(ctx context.Context, id types.InstanceID, last *types.StepOutcome) (int, error)
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(ctx context.Context, id types.InstanceID, last *types.StepOutcome) (int, error)

func (f PolicyFunc) Act(ctx context.Context, id types.InstanceID, last *types.StepOutcome) (int, error) {
	return f(ctx, id, last)
}

// SamplePolicy asks the server for a random action every step.
func SamplePolicy(env Env) Policy {
	return PolicyFunc(func(ctx context.Context, id types.InstanceID, _ *types.StepOutcome) (int, error) {
		s, err := env.SampleAction(ctx, id)
		if err != nil {
			return 0, err
		}
		return s.Action, nil
	})
}

// Config holds the parameters of one run.
type Config struct {
	Env        types.EnvironmentSpec
	Episodes   int // default 1
	MaxSteps   int // per episode; 0 means until done
	Render     bool
	MonitorDir string // empty disables recording
	Force      bool
	Resume     bool
	Policy     Policy // default SamplePolicy
}

// Episode is the outcome of one episode.
type Episode struct {
	Steps     int
	Return    float64
	Done      bool
	LastLives *int
}

// Result holds the record of a finished run.
type Result struct {
	RunID       string
	InstanceID  types.InstanceID
	ActionSpace types.DiscreteSpace
	ObsSpace    types.ObservationSpace
	Episodes    []Episode
	StoppedBy   string // "done" or "max_steps" for the last episode
}

// Runner executes runs. A nil store disables recording.
type Runner struct {
	env    Env
	store  *history.Store
	logger *slog.Logger
}

// NewRunner creates a Runner.
func NewRunner(env Env, store *history.Store, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Runner{env: env, store: store, logger: logger}
}

// cleanupTimeout bounds close calls issued after ctx is done.
const cleanupTimeout = 5 * time.Second

// Run creates an instance of cfg.Env, inspects its spaces, optionally starts a
// monitor, plays cfg.Episodes episodes and always closes what it opened.
func (r *Runner) Run(ctx context.Context, cfg Config) (res *Result, err error) {
	if cfg.Episodes <= 0 {
		cfg.Episodes = 1
	}
	policy := cfg.Policy
	if policy == nil {
		policy = SamplePolicy(r.env)
	}

	created, err := r.env.Create(ctx, cfg.Env)
	if err != nil {
		return nil, fmt.Errorf("agent: create %s: %w", cfg.Env, err)
	}
	id := created.InstanceID
	res = &Result{RunID: uuid.NewString(), InstanceID: id}
	log := r.logger.With("run_id", res.RunID, "instance_id", id, "env", cfg.Env)

	cleanupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), cleanupTimeout)
	defer cancel()
	defer func() {
		if cerr := r.env.Close(cleanupCtx, id); cerr != nil {
			err = errors.Join(err, fmt.Errorf("agent: close: %w", cerr))
		}
	}()

	aspace, err := r.env.ActionSpace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("agent: action space: %w", err)
	}
	ospace, err := r.env.ObservationSpace(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("agent: observation space: %w", err)
	}
	res.ActionSpace, res.ObsSpace = aspace.Info, ospace.Info
	log.Info("instance ready", "action_space", aspace.Info.String(), "observation_space", ospace.Info.String())

	if cfg.MonitorDir != "" {
		if err := r.env.StartMonitor(ctx, id, cfg.MonitorDir, cfg.Force, cfg.Resume, false); err != nil {
			return nil, fmt.Errorf("agent: start monitor: %w", err)
		}
		defer func() {
			if cerr := r.env.CloseMonitor(cleanupCtx, id); cerr != nil {
				err = errors.Join(err, fmt.Errorf("agent: close monitor: %w", cerr))
			}
		}()
	}

	if r.store != nil {
		if err := r.store.StartRun(res.RunID, id, cfg.Env); err != nil {
			return nil, fmt.Errorf("agent: %w", err)
		}
	}

	for ep := 0; ep < cfg.Episodes; ep++ {
		episode, stoppedBy, err := r.episode(ctx, res.RunID, id, ep, cfg, policy)
		if err != nil {
			return nil, fmt.Errorf("agent: episode %d: %w", ep, err)
		}
		res.Episodes = append(res.Episodes, episode)
		res.StoppedBy = stoppedBy
		log.Info("episode finished", "episode", ep, "steps", episode.Steps, "return", episode.Return, "stopped_by", stoppedBy)
	}

	if r.store != nil {
		if err := r.store.FinishRun(res.RunID); err != nil {
			return nil, fmt.Errorf("agent: %w", err)
		}
	}
	return res, nil
}

func (r *Runner) episode(ctx context.Context, runID string, id types.InstanceID, ep int, cfg Config, policy Policy) (Episode, string, error) {
	var e Episode
	if _, err := r.env.Reset(ctx, id); err != nil {
		return e, "", fmt.Errorf("reset: %w", err)
	}

	var last *types.StepOutcome
	for step := 0; cfg.MaxSteps == 0 || step < cfg.MaxSteps; step++ {
		action, err := policy.Act(ctx, id, last)
		if err != nil {
			return e, "", fmt.Errorf("step %d: policy: %w", step, err)
		}
		out, err := r.env.Step(ctx, id, action, cfg.Render)
		if err != nil {
			return e, "", fmt.Errorf("step %d: %w", step, err)
		}
		e.Steps++
		e.Return += out.Reward
		e.LastLives = out.Info.Lives

		if r.store != nil {
			if err := r.store.RecordStep(runID, ep, step, action, out.Reward, out.Done, out.Info.Lives); err != nil {
				return e, "", err
			}
		}
		if out.Done {
			e.Done = true
			return e, "done", nil
		}
		last = out
	}
	return e, "max_steps", nil
}
