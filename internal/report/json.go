package report

import (
	"fmt"
	"time"

	"github.com/segmentio/encoding/json"

	"github.com/gym-http/gymclient/internal/history"
)

// Run is the input shared by the JSON and Markdown reports.
type Run struct {
	Run   history.Run
	Stats history.RunStats
}

type JSONReport struct {
	Version    string           `json:"version"`
	Timestamp  string           `json:"timestamp"`
	RunID      string           `json:"run_id"`
	Env        string           `json:"env"`
	InstanceID string           `json:"instance_id"`
	DurationMS int64            `json:"duration_ms"`
	Stats      history.RunStats `json:"stats"`
}

// GenerateJSONReport generates a structured JSON report for one run.
func GenerateJSONReport(r Run) ([]byte, error) {
	stats := r.Stats
	if stats.Returns == nil {
		stats.Returns = []float64{}
	}
	report := JSONReport{
		Version:    "1.0",
		Timestamp:  time.Now().UTC().Format(time.RFC3339),
		RunID:      r.Run.ID,
		Env:        string(r.Run.Env),
		InstanceID: string(r.Run.InstanceID),
		DurationMS: duration(r.Run).Milliseconds(),
		Stats:      stats,
	}

	output, err := json.MarshalIndent(report, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("report: marshal JSON: %w", err)
	}
	return output, nil
}

// duration is zero for runs that have not finished.
func duration(r history.Run) time.Duration {
	if r.FinishedAt.IsZero() || r.StartedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}
