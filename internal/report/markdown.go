package report

import (
	"fmt"
	"io"
	"strings"
	"time"
)

// GenerateMarkdown writes a Markdown summary of the given runs to w, one
// section per run with a per-episode returns table.
func GenerateMarkdown(w io.Writer, title string, runs []Run) error {
	if title == "" {
		title = "Gym Agent Report"
	}
	if _, err := fmt.Fprintf(w, "## %s\n\n", title); err != nil {
		return err
	}
	if len(runs) == 0 {
		_, err := fmt.Fprintln(w, "_No runs recorded._")
		return err
	}

	for _, r := range runs {
		if err := writeRun(w, r); err != nil {
			return err
		}
	}
	return nil
}

func writeRun(w io.Writer, r Run) error {
	env := strings.ReplaceAll(string(r.Run.Env), "|", "\\|")
	if _, err := fmt.Fprintf(w, "### `%s` on %s\n\n", r.Run.ID, env); err != nil {
		return err
	}
	if !r.Run.StartedAt.IsZero() {
		if _, err := fmt.Fprintf(w, "**Started:** %s\n\n", r.Run.StartedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	if d := duration(r.Run); d > 0 {
		if _, err := fmt.Fprintf(w, "**Duration:** %dms\n\n", d.Milliseconds()); err != nil {
			return err
		}
	} else if r.Run.FinishedAt.IsZero() {
		if _, err := fmt.Fprint(w, "**Status:** unfinished\n\n"); err != nil {
			return err
		}
	}

	s := r.Stats
	if _, err := fmt.Fprintf(w, "**Episodes:** %d, **Steps:** %d, **Mean return:** %.3f (sd %.3f), **Best:** %.3f\n\n",
		s.Episodes, s.Steps, s.MeanReturn, s.StdDev, s.MaxReturn); err != nil {
		return err
	}

	if len(s.Returns) == 0 {
		_, err := fmt.Fprint(w, "_No steps recorded._\n\n")
		return err
	}

	if _, err := fmt.Fprintln(w, "| Episode | Return |"); err != nil {
		return err
	}
	if _, err := fmt.Fprintln(w, "|---------|--------|"); err != nil {
		return err
	}
	for i, ret := range s.Returns {
		if _, err := fmt.Fprintf(w, "| %d | %.3f |\n", i, ret); err != nil {
			return err
		}
	}
	_, err := fmt.Fprintln(w)
	return err
}
