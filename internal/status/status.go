// Package status reports the project's orchestration state: the lock
// holder, task-table statistics, and the last run snapshot.
package status

import (
	"encoding/json"
	"fmt"
	"io"
	"log"

	"github.com/skondo/overture/internal/config"
	"github.com/skondo/overture/internal/journal"
	"github.com/skondo/overture/internal/lock"
	"github.com/skondo/overture/internal/progress"
	"github.com/skondo/overture/internal/render"
)

type Report struct {
	Lock    LockStatus     `json:"lock"`
	Tasks   progress.Stats `json:"tasks"`
	LastRun *RunStatus     `json:"lastRun,omitempty"`
}

type LockStatus struct {
	Locked  bool   `json:"locked"`
	PID     *int   `json:"pid,omitempty"`
	Command string `json:"command,omitempty"`
	Elapsed string `json:"elapsed,omitempty"`
	Stale   bool   `json:"stale,omitempty"`
}

type RunStatus struct {
	RunID       string `json:"runId"`
	State       string `json:"state"`
	Iteration   int    `json:"iteration"`
	TaskID      string `json:"taskId,omitempty"`
	Phase       string `json:"phase,omitempty"`
	LastFailure string `json:"lastFailure,omitempty"`
	UpdatedAt   string `json:"updatedAt"`
}

// Collect gathers the report for the project rooted at root.
func Collect(root string, logger *log.Logger) (Report, error) {
	var report Report

	info := lock.NewManager(config.LockPath(root), logger).Inspect()
	report.Lock = LockStatus{
		Locked:  info.Locked,
		PID:     info.PID,
		Command: info.Command,
		Elapsed: info.Elapsed,
		Stale:   info.Stale,
	}

	doc, err := progress.ParseFile(config.ProgressPath(root))
	if err != nil {
		return report, fmt.Errorf("parse progress: %w", err)
	}
	report.Tasks = doc.Stats()

	snap, ok, err := journal.New(config.JournalPath(root)).Load()
	if err != nil {
		// A damaged journal should not hide lock and task state.
		logger.Printf("[WARN] journal unreadable error=%v", err)
	} else if ok {
		report.LastRun = &RunStatus{
			RunID:       snap.RunID,
			State:       string(snap.State),
			Iteration:   snap.Iteration,
			TaskID:      snap.TaskID,
			Phase:       snap.Phase,
			LastFailure: snap.LastFailure,
			UpdatedAt:   snap.UpdatedAt,
		}
	}

	return report, nil
}

// Run collects and prints the report, as JSON or human-readable text.
func Run(root string, jsonOutput bool, w io.Writer, logger *log.Logger) error {
	report, err := Collect(root, logger)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}

	printReport(w, report)
	return nil
}

func printReport(w io.Writer, r Report) {
	if r.Lock.Locked {
		holder := "unknown holder"
		if r.Lock.PID != nil {
			holder = fmt.Sprintf("pid %d", *r.Lock.PID)
		}
		suffix := ""
		if r.Lock.Stale {
			suffix = " (stale)"
		}
		fmt.Fprintf(w, "Lock: held by %s, command=%s, elapsed=%s%s\n",
			holder, r.Lock.Command, r.Lock.Elapsed, suffix)
	} else {
		fmt.Fprintln(w, "Lock: free")
	}

	fmt.Fprintf(w, "Tasks: %s\n", render.ProgressBar(r.Tasks, 30))

	if r.LastRun != nil {
		fmt.Fprintf(w, "Last run: %s state=%s iteration=%d", r.LastRun.RunID, r.LastRun.State, r.LastRun.Iteration)
		if r.LastRun.TaskID != "" {
			fmt.Fprintf(w, " task=%s", r.LastRun.TaskID)
		}
		if r.LastRun.Phase != "" {
			fmt.Fprintf(w, " phase=%s", r.LastRun.Phase)
		}
		fmt.Fprintln(w)
		if r.LastRun.LastFailure != "" {
			fmt.Fprintf(w, "  last failure: %s\n", r.LastRun.LastFailure)
		}
	} else {
		fmt.Fprintln(w, "Last run: none")
	}
}
