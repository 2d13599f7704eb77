package main

import (
	"fmt"
	"io"
	"log/slog"
	"sort"

	"github.com/spf13/cobra"

	"github.com/gym-http/gymclient/internal/agent"
	"github.com/gym-http/gymclient/internal/config"
	"github.com/gym-http/gymclient/internal/history"
	"github.com/gym-http/gymclient/internal/report"
	"github.com/gym-http/gymclient/pkg/gym"
	"github.com/gym-http/gymclient/pkg/types"
)

const version = "0.1.0-dev"

// app is the state shared by every subcommand once flags are resolved.
type app struct {
	stdout, stderr io.Writer

	cfg    *config.Config
	logger *slog.Logger

	baseURL   string
	historyDB string
	logLevel  string
	envFiles  []string
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	a := &app{stdout: stdout, stderr: stderr, envFiles: config.DefaultEnvFiles}

	root := &cobra.Command{
		Use:          "gym-agent",
		Short:        "gym-agent drives environments on a Gym HTTP server and reports on the runs.",
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			return a.resolve(cmd)
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&a.baseURL, "base-url", "", "Gym server address (default $GYM_BASE_URL or "+gym.DefaultBaseURL+")")
	pf.StringVar(&a.historyDB, "history-db", "", "SQLite file for run history (default $GYM_HISTORY_DB)")
	pf.StringVar(&a.logLevel, "log-level", "", "debug, info, warn or error (default $GYM_LOG_LEVEL or info)")

	root.AddCommand(
		a.versionCmd(),
		a.envsCmd(),
		a.spacesCmd(),
		a.runCmd(),
		a.reportCmd(),
		a.shutdownCmd(),
	)
	return root
}

// resolve loads configuration and applies flag overrides.
func (a *app) resolve(cmd *cobra.Command) error {
	cfg, err := config.Load(a.envFiles...)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("base-url") {
		cfg.BaseURL = a.baseURL
	}
	if flags.Changed("history-db") {
		cfg.HistoryDB = a.historyDB
	}
	if flags.Changed("log-level") {
		level, err := config.ParseLevel(a.logLevel)
		if err != nil {
			return fmt.Errorf("--log-level: %w", err)
		}
		cfg.LogLevel = level
	}
	a.cfg = cfg
	a.logger = slog.New(slog.NewTextHandler(a.stderr, &slog.HandlerOptions{Level: cfg.LogLevel}))
	return nil
}

func (a *app) client() (*gym.Client, error) {
	return gym.New(a.cfg.BaseURL, a.cfg.ClientOptions(a.logger)...)
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the gym-agent version",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, err := fmt.Fprintf(a.stdout, "gym-agent %s\n", version)
			return err
		},
	}
}

func (a *app) envsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "envs",
		Short: "List the environment instances live on the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			list, err := c.ListInstances(cmd.Context())
			if err != nil {
				return err
			}
			ids := make([]string, 0, len(list.Instances))
			for id := range list.Instances {
				ids = append(ids, string(id))
			}
			sort.Strings(ids)
			for _, id := range ids {
				if _, err := fmt.Fprintf(a.stdout, "%s\t%s\n", id, list.Instances[types.InstanceID(id)]); err != nil {
					return err
				}
			}
			return nil
		},
	}
}

func (a *app) spacesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "spaces <instance-id>",
		Short: "Describe the action and observation spaces of an instance",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			id := types.InstanceID(args[0])
			aspace, err := c.ActionSpace(cmd.Context(), id)
			if err != nil {
				return err
			}
			ospace, err := c.ObservationSpace(cmd.Context(), id)
			if err != nil {
				return err
			}
			_, err = fmt.Fprintf(a.stdout, "%s\n%s\n", aspace.Info, ospace.Info)
			return err
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	var (
		cfg       agent.Config
		env       string
		noHistory bool
	)
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Play episodes with a random agent and record them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			var store *history.Store
			if !noHistory {
				store, err = history.Open(a.cfg.HistoryDB)
				if err != nil {
					return err
				}
				defer store.Close()
			}

			cfg.Env = types.EnvironmentSpec(env)
			res, err := agent.NewRunner(c, store, a.logger).Run(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			for i, ep := range res.Episodes {
				if _, err := fmt.Fprintf(a.stdout, "episode %d: steps=%d return=%.3f done=%v\n", i, ep.Steps, ep.Return, ep.Done); err != nil {
					return err
				}
			}
			_, err = fmt.Fprintf(a.stdout, "run %s finished\n", res.RunID)
			return err
		},
	}
	f := cmd.Flags()
	f.StringVar(&env, "env", "CartPole-v0", "environment spec to create")
	f.IntVar(&cfg.Episodes, "episodes", 1, "number of episodes")
	f.IntVar(&cfg.MaxSteps, "max-steps", 0, "step cap per episode (0 = until done)")
	f.BoolVar(&cfg.Render, "render", false, "ask the server to render each step")
	f.StringVar(&cfg.MonitorDir, "monitor", "", "record to this directory on the server host")
	f.BoolVar(&cfg.Force, "force", false, "clear earlier recordings in the monitor directory")
	f.BoolVar(&cfg.Resume, "resume", false, "keep earlier recordings in the monitor directory")
	f.BoolVar(&noHistory, "no-history", false, "do not record the run")
	return cmd
}

func (a *app) reportCmd() *cobra.Command {
	var (
		format string
		limit  int
	)
	cmd := &cobra.Command{
		Use:   "report [run-id]",
		Short: "Report on recorded runs (the latest ones when no ID is given)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := history.Open(a.cfg.HistoryDB)
			if err != nil {
				return err
			}
			defer store.Close()

			var runs []history.Run
			if len(args) == 1 {
				r, err := store.Run(args[0])
				if err != nil {
					return err
				}
				runs = []history.Run{*r}
			} else if runs, err = store.Runs(limit); err != nil {
				return err
			}

			reports := make([]report.Run, 0, len(runs))
			for _, r := range runs {
				stats, err := store.Stats(r.ID)
				if err != nil {
					return err
				}
				reports = append(reports, report.Run{Run: r, Stats: stats})
			}
			return writeReport(a.stdout, format, reports)
		},
	}
	cmd.Flags().StringVar(&format, "format", "markdown", "markdown or json")
	cmd.Flags().IntVar(&limit, "limit", 10, "number of recent runs when no ID is given")
	return cmd
}

func writeReport(w io.Writer, format string, runs []report.Run) error {
	switch format {
	case "markdown", "md":
		return report.GenerateMarkdown(w, "", runs)
	case "json":
		for _, r := range runs {
			out, err := report.GenerateJSONReport(r)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprintf(w, "%s\n", out); err != nil {
				return err
			}
		}
		return nil
	}
	return fmt.Errorf("unknown report format %q", format)
}

func (a *app) shutdownCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "shutdown",
		Short: "Stop the Gym server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := a.client()
			if err != nil {
				return err
			}
			if err := c.Shutdown(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("server shut down", "base_url", c.BaseURL())
			return nil
		},
	}
}
