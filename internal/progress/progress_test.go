package progress

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleDoc = `# Build Plan

Some prose the parser must ignore.

## Tasks

| ID  | Task                  | Status      |
|-----|-----------------------|-------------|
| 1.1 | Scaffold config layer | completed   |
| 1.2 | Wire lock manager     | in progress |
| 2.1 | Gate runner           | pending     |
| 2.2 | Retry policy          | failed      |

Trailing notes.
`

func TestParse_TaskTable(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 4)

	assert.Equal(t, Task{ID: "1.1", Title: "Scaffold config layer", State: StateCompleted}, doc.Tasks[0])
	assert.Equal(t, StateInProgress, doc.Tasks[1].State)
	assert.Equal(t, StatePending, doc.Tasks[2].State)
	assert.Equal(t, StateFailed, doc.Tasks[3].State)

	stats := doc.Stats()
	assert.Equal(t, Stats{Total: 4, Completed: 1, InProgress: 1, Pending: 1, Failed: 1}, stats)
	assert.Equal(t, 25, stats.Percent())
}

func TestParse_StateSpellings(t *testing.T) {
	doc, err := Parse(strings.NewReader(`
| ID | Status |
|----|--------|
| a  | Done   |
| b  | [x]    |
| c  | WIP    |
| d  | blocked|
| e  | todo   |
`))
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 5)
	assert.Equal(t, StateCompleted, doc.Tasks[0].State)
	assert.Equal(t, StateCompleted, doc.Tasks[1].State)
	assert.Equal(t, StateInProgress, doc.Tasks[2].State)
	assert.Equal(t, StateFailed, doc.Tasks[3].State)
	assert.Equal(t, StatePending, doc.Tasks[4].State)
}

func TestParse_IgnoresTablesWithoutStatusColumn(t *testing.T) {
	doc, err := Parse(strings.NewReader(`
| Name | Value |
|------|-------|
| foo  | bar   |
`))
	require.NoError(t, err)
	assert.Empty(t, doc.Tasks)
}

func TestNextPending(t *testing.T) {
	doc, err := Parse(strings.NewReader(sampleDoc))
	require.NoError(t, err)

	next := doc.NextPending()
	require.NotNil(t, next)
	// In-progress rows come back first: an interrupted run resumes them.
	assert.Equal(t, "1.2", next.ID)

	done := Document{Tasks: []Task{{ID: "1", State: StateCompleted}, {ID: "2", State: StateFailed}}}
	assert.Nil(t, done.NextPending())
}

func TestParseFile_Missing(t *testing.T) {
	doc, err := ParseFile(filepath.Join(t.TempDir(), "progress.md"))
	require.NoError(t, err)
	assert.Empty(t, doc.Tasks)
	assert.Equal(t, 0, doc.Stats().Percent())
}

func TestMarkTaskState(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0644))

	require.NoError(t, MarkTaskState(path, "2.1", StateCompleted))

	doc, err := ParseFile(path)
	require.NoError(t, err)
	require.Len(t, doc.Tasks, 4)
	assert.Equal(t, StateCompleted, doc.Tasks[2].State)

	// Prose around the table is untouched.
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "# Build Plan")
	assert.Contains(t, string(data), "Trailing notes.")
}

func TestMarkTaskState_UnknownIDIsNoop(t *testing.T) {
	path := filepath.Join(t.TempDir(), "progress.md")
	require.NoError(t, os.WriteFile(path, []byte(sampleDoc), 0644))

	require.NoError(t, MarkTaskState(path, "9.9", StateCompleted))

	doc, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, 1, doc.Stats().Completed)
}
