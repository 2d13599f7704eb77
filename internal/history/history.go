// Package history persists agent runs and their steps in SQLite.
package history

import (
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	_ "modernc.org/sqlite"

	"github.com/gym-http/gymclient/pkg/types"
)

// ErrRunNotFound is returned when a run ID has no row.
var ErrRunNotFound = errors.New("history: run not found")

// Store is a SQLite-backed store for runs and steps.
type Store struct {
	db *sql.DB
}

// Run is one agent run against one environment instance.
type Run struct {
	ID         string
	InstanceID types.InstanceID
	Env        types.EnvironmentSpec
	StartedAt  time.Time
	FinishedAt time.Time // zero while running
}

// RunStats summarises the episodes of a run.
type RunStats struct {
	Episodes   int       `json:"episodes"`
	Steps      int       `json:"steps"`
	MeanReturn float64   `json:"mean_return"`
	StdDev     float64   `json:"stddev_return"`
	MaxReturn  float64   `json:"max_return"`
	Returns    []float64 `json:"returns"`
}

// Open opens (or creates) the database at path and prepares the schema.
// ":memory:" gives a private in-memory store.
func Open(path string) (*Store, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("history: open %s: %w", path, err)
	}
	// A single connection keeps ":memory:" databases shared across calls.
	db.SetMaxOpenConns(1)
	s, err := NewStore(db)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// NewStore creates the runs and steps tables if they don't exist, then
// returns a Store backed by db.
func NewStore(db *sql.DB) (*Store, error) {
	if _, err := db.Exec(`PRAGMA journal_mode=WAL`); err != nil {
		return nil, fmt.Errorf("history: set WAL mode: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS runs (
			id          TEXT    PRIMARY KEY,
			instance_id TEXT    NOT NULL,
			env         TEXT    NOT NULL,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL DEFAULT 0
		)
	`); err != nil {
		return nil, fmt.Errorf("history: create runs table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS steps (
			id         INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id     TEXT    NOT NULL REFERENCES runs(id),
			episode    INTEGER NOT NULL,
			step       INTEGER NOT NULL,
			action     INTEGER NOT NULL,
			reward     REAL    NOT NULL,
			done       INTEGER NOT NULL,
			lives      INTEGER,
			created_at INTEGER NOT NULL
		)
	`); err != nil {
		return nil, fmt.Errorf("history: create steps table: %w", err)
	}

	if _, err := db.Exec(`
		CREATE INDEX IF NOT EXISTS idx_steps_run_episode
		ON steps (run_id, episode, step)
	`); err != nil {
		return nil, fmt.Errorf("history: create steps index: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

// StartRun inserts a new run row.
func (s *Store) StartRun(runID string, id types.InstanceID, env types.EnvironmentSpec) error {
	_, err := s.db.Exec(
		`INSERT INTO runs (id, instance_id, env, started_at) VALUES (?, ?, ?, ?)`,
		runID, string(id), string(env), time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("history: start run: %w", err)
	}
	return nil
}

// RecordStep stores one transition. lives may be nil when the server omits it.
func (s *Store) RecordStep(runID string, episode, step, action int, reward float64, done bool, lives *int) error {
	var l sql.NullInt64
	if lives != nil {
		l = sql.NullInt64{Int64: int64(*lives), Valid: true}
	}
	_, err := s.db.Exec(
		`INSERT INTO steps (run_id, episode, step, action, reward, done, lives, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		runID, episode, step, action, reward, done, l, time.Now().UnixNano(),
	)
	if err != nil {
		return fmt.Errorf("history: record step: %w", err)
	}
	return nil
}

// FinishRun stamps the run's finish time.
func (s *Store) FinishRun(runID string) error {
	res, err := s.db.Exec(`UPDATE runs SET finished_at = ? WHERE id = ?`, time.Now().UnixNano(), runID)
	if err != nil {
		return fmt.Errorf("history: finish run: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("history: finish run %s: %w", runID, ErrRunNotFound)
	}
	return nil
}

// Run returns the run with the given ID.
func (s *Store) Run(runID string) (*Run, error) {
	row := s.db.QueryRow(
		`SELECT id, instance_id, env, started_at, finished_at FROM runs WHERE id = ?`, runID)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("history: run %s: %w", runID, ErrRunNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("history: run %s: %w", runID, err)
	}
	return r, nil
}

// Runs returns up to limit runs, most recent first.
func (s *Store) Runs(limit int) ([]Run, error) {
	rows, err := s.db.Query(
		`SELECT id, instance_id, env, started_at, finished_at FROM runs
		 ORDER BY started_at DESC, rowid DESC
		 LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, fmt.Errorf("history: scan run: %w", err)
		}
		runs = append(runs, *r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: runs rows: %w", err)
	}
	return runs, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(sc scanner) (*Run, error) {
	var (
		r                 Run
		id, env           string
		started, finished int64
	)
	if err := sc.Scan(&r.ID, &id, &env, &started, &finished); err != nil {
		return nil, err
	}
	r.InstanceID = types.InstanceID(id)
	r.Env = types.EnvironmentSpec(env)
	r.StartedAt = time.Unix(0, started)
	if finished > 0 {
		r.FinishedAt = time.Unix(0, finished)
	}
	return &r, nil
}

// EpisodeReturns returns the summed reward of each episode of runID, ordered
// by episode number.
func (s *Store) EpisodeReturns(runID string) ([]float64, error) {
	rows, err := s.db.Query(
		`SELECT SUM(reward) FROM steps
		 WHERE run_id = ?
		 GROUP BY episode
		 ORDER BY episode`,
		runID,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query returns: %w", err)
	}
	defer rows.Close()

	var returns []float64
	for rows.Next() {
		var r float64
		if err := rows.Scan(&r); err != nil {
			return nil, fmt.Errorf("history: scan return: %w", err)
		}
		returns = append(returns, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("history: returns rows: %w", err)
	}
	return returns, nil
}

// Stats computes episode count, step count, mean, population standard
// deviation and maximum of the episode returns of runID. A run with no steps
// yields zero values.
func (s *Store) Stats(runID string) (RunStats, error) {
	var stats RunStats
	row := s.db.QueryRow(`SELECT COUNT(*) FROM steps WHERE run_id = ?`, runID)
	if err := row.Scan(&stats.Steps); err != nil {
		return RunStats{}, fmt.Errorf("history: stats query: %w", err)
	}
	if stats.Steps == 0 {
		return stats, nil
	}

	returns, err := s.EpisodeReturns(runID)
	if err != nil {
		return RunStats{}, err
	}
	stats.Returns = returns
	stats.Episodes = len(returns)

	// SQLite lacks STDDEV_POP.
	var sum float64
	stats.MaxReturn = math.Inf(-1)
	for _, r := range returns {
		sum += r
		stats.MaxReturn = max(stats.MaxReturn, r)
	}
	stats.MeanReturn = sum / float64(len(returns))
	var sumSqDiff float64
	for _, r := range returns {
		diff := r - stats.MeanReturn
		sumSqDiff += diff * diff
	}
	stats.StdDev = math.Sqrt(sumSqDiff / float64(len(returns)))
	return stats, nil
}
