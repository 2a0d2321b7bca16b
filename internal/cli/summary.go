package cli

import (
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"

	"tsbuild/internal/core"
)

const (
	statusOK      = "ok"
	statusFailed  = "failed"
	statusSkipped = "skipped"
	statusNotRun  = "not run"
	statusNone    = "-"
)

// summaryRows returns one row per target: name, compile, relocate, trim.
// Targets after the first failing one have no result and show as not run.
func summaryRows(targets []core.Target, results []*core.RunResult) [][]string {
	byName := make(map[string]*core.RunResult, len(results))
	for _, r := range results {
		byName[r.Target.DisplayName()] = r
	}

	rows := make([][]string, 0, len(targets))
	for _, t := range targets {
		r, ok := byName[t.DisplayName()]
		if !ok {
			relocate := statusNone
			if t.Relocate {
				relocate = statusNotRun
			}
			rows = append(rows, []string{t.DisplayName(), statusNotRun, relocate, statusNotRun})
			continue
		}
		rows = append(rows, []string{t.DisplayName(), compileStatus(r), relocateStatus(r), trimStatus(r)})
	}
	return rows
}

func compileStatus(r *core.RunResult) string {
	c := r.Compile
	switch {
	case c == nil && r.Err != nil:
		return statusFailed
	case c == nil:
		return statusNotRun
	case !c.Failed():
		return statusOK
	case c.ExitCode < 0:
		return "failed (not started)"
	default:
		return fmt.Sprintf("failed (exit %d)", c.ExitCode)
	}
}

// relocateStatus and trimStatus attribute a run error to the first step
// that has no result.
func relocateStatus(r *core.RunResult) string {
	switch {
	case !r.Target.Relocate:
		return statusNone
	case r.Relocate != nil:
		return statusOK
	case r.Err != nil && r.Compile != nil && !stoppedAtCompile(r):
		return statusFailed
	default:
		return statusSkipped
	}
}

func trimStatus(r *core.RunResult) string {
	switch {
	case r.Trim != nil && r.Trim.Short():
		return fmt.Sprintf("short (%d of %d lines)", r.Trim.Found, r.Trim.Lines)
	case r.Trim != nil:
		return statusOK
	case r.Err == nil || r.Compile == nil || stoppedAtCompile(r):
		return statusSkipped
	case r.Target.Relocate && r.Relocate == nil:
		return statusSkipped
	default:
		return statusFailed
	}
}

// stoppedAtCompile reports whether the run ended on a strict compile failure.
func stoppedAtCompile(r *core.RunResult) bool {
	return r.Err != nil && errors.Is(r.Err, core.ErrCompileFailed)
}

// writeSummary renders the build summary table to w.
func writeSummary(w io.Writer, targets []core.Target, results []*core.RunResult) error {
	if len(targets) == 0 {
		return nil
	}

	table := tablewriter.NewTable(w)
	table.Header("Target", "Compile", "Relocate", "Trim")
	if err := table.Bulk(summaryRows(targets, results)); err != nil {
		return errors.Wrap(err, "adding summary rows")
	}
	if err := table.Render(); err != nil {
		return errors.Wrap(err, "rendering summary")
	}
	return nil
}
