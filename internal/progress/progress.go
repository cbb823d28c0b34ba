// Package progress reads and updates the markdown task table that the
// planning phases emit. Only the state strings matter to the runtime;
// the rest of the document is opaque prose.
package progress

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// TaskState is the normalized status of one task row.
type TaskState string

const (
	StatePending    TaskState = "pending"
	StateInProgress TaskState = "in_progress"
	StateCompleted  TaskState = "completed"
	StateFailed     TaskState = "failed"
)

// Task is one row of the task table.
type Task struct {
	ID    string
	Title string
	State TaskState
}

// Stats aggregates the table for displays and loop decisions.
type Stats struct {
	Total      int
	Completed  int
	InProgress int
	Pending    int
	Failed     int
}

// Percent returns whole-number completion.
func (s Stats) Percent() int {
	if s.Total == 0 {
		return 0
	}
	return s.Completed * 100 / s.Total
}

// Document is the parsed view of a progress file.
type Document struct {
	Tasks []Task
}

// Stats tallies task states.
func (d Document) Stats() Stats {
	s := Stats{Total: len(d.Tasks)}
	for _, t := range d.Tasks {
		switch t.State {
		case StateCompleted:
			s.Completed++
		case StateInProgress:
			s.InProgress++
		case StateFailed:
			s.Failed++
		default:
			s.Pending++
		}
	}
	return s
}

// NextPending returns the first task still needing work (pending or
// left in progress by an interrupted run), or nil when none remain.
func (d Document) NextPending() *Task {
	for i := range d.Tasks {
		if d.Tasks[i].State == StatePending || d.Tasks[i].State == StateInProgress {
			return &d.Tasks[i]
		}
	}
	return nil
}

// ParseFile reads the progress document at path. A missing file parses
// as an empty document: no tasks exist yet.
func ParseFile(path string) (Document, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Document{}, nil
		}
		return Document{}, fmt.Errorf("open progress file: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

// Parse extracts the first markdown table that has ID and Status
// columns. Rows that do not look like tasks are skipped, not errors:
// the file is agent-written and best-effort by nature.
func Parse(r io.Reader) (Document, error) {
	var doc Document
	var idCol, titleCol, stateCol int
	inTable := false

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if !strings.HasPrefix(line, "|") {
			inTable = false
			continue
		}
		cells := splitRow(line)

		if !inTable {
			idCol, titleCol, stateCol = headerColumns(cells)
			if stateCol >= 0 {
				inTable = true
			}
			continue
		}
		if isSeparatorRow(cells) {
			continue
		}
		if stateCol >= len(cells) || idCol >= len(cells) {
			continue
		}

		task := Task{
			ID:    cells[idCol],
			State: normalizeState(cells[stateCol]),
		}
		if titleCol >= 0 && titleCol < len(cells) {
			task.Title = cells[titleCol]
		}
		if task.ID == "" {
			continue
		}
		doc.Tasks = append(doc.Tasks, task)
	}
	if err := scanner.Err(); err != nil {
		return doc, fmt.Errorf("scan progress file: %w", err)
	}
	return doc, nil
}

// MarkTaskState rewrites the status cell of the task with the given ID,
// preserving the rest of the file byte-for-byte. Unknown IDs are a
// no-op; the loop tolerates agents that renumber tasks.
func MarkTaskState(path, taskID string, state TaskState) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read progress file: %w", err)
	}

	lines := strings.Split(string(data), "\n")
	idCol, _, stateCol := -1, -1, -1
	inTable := false

	for i, raw := range lines {
		line := strings.TrimSpace(raw)
		if !strings.HasPrefix(line, "|") {
			inTable = false
			continue
		}
		cells := splitRow(line)
		if !inTable {
			idCol, _, stateCol = headerColumns(cells)
			if stateCol >= 0 {
				inTable = true
			}
			continue
		}
		if isSeparatorRow(cells) || idCol >= len(cells) || stateCol >= len(cells) {
			continue
		}
		if cells[idCol] != taskID {
			continue
		}
		cells[stateCol] = string(state)
		lines[i] = "| " + strings.Join(cells, " | ") + " |"
		break
	}

	out := strings.Join(lines, "\n")
	if err := os.WriteFile(path, []byte(out), 0644); err != nil {
		return fmt.Errorf("write progress file: %w", err)
	}
	return nil
}

func splitRow(line string) []string {
	trimmed := strings.Trim(line, "|")
	parts := strings.Split(trimmed, "|")
	cells := make([]string, len(parts))
	for i, p := range parts {
		cells[i] = strings.TrimSpace(p)
	}
	return cells
}

// headerColumns locates the ID, Task/Title, and Status columns in a
// header row. stateCol of -1 means this row is not a task table header.
func headerColumns(cells []string) (idCol, titleCol, stateCol int) {
	idCol, titleCol, stateCol = -1, -1, -1
	for i, c := range cells {
		switch strings.ToLower(c) {
		case "id", "#", "task id":
			idCol = i
		case "task", "title", "description":
			titleCol = i
		case "status", "state":
			stateCol = i
		}
	}
	if idCol < 0 {
		idCol = 0
	}
	return idCol, titleCol, stateCol
}

func isSeparatorRow(cells []string) bool {
	for _, c := range cells {
		c = strings.TrimSpace(c)
		if c == "" {
			continue
		}
		if strings.Trim(c, ":-") != "" {
			return false
		}
	}
	return true
}

// normalizeState folds the status spellings agents actually produce.
func normalizeState(s string) TaskState {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "completed", "complete", "done", "x", "[x]", "✅", "✓":
		return StateCompleted
	case "in progress", "in_progress", "in-progress", "doing", "wip", "started":
		return StateInProgress
	case "failed", "blocked", "error":
		return StateFailed
	default:
		return StatePending
	}
}
