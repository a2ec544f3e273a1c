package report

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxkimambo/sparkflow/internal/dag"
	pipelineerrors "github.com/maxkimambo/sparkflow/internal/errors"
	"github.com/maxkimambo/sparkflow/internal/operator"
)

func chain(t *testing.T) *dag.Graph {
	t.Helper()
	g := dag.NewGraph()
	require.NoError(t, g.AddNode("load_users", &operator.LoadDimension{
		DestinationTable: "users", TransformQuery: "SELECT 1",
	}, dag.RetryPolicy{MaxAttempts: 4}))
	require.NoError(t, g.AddNode("check", &operator.QualityCheck{
		Tables: []string{"users"}, Rule: operator.RuleNonEmpty,
	}, dag.NoRetry()))
	require.NoError(t, g.AddEdge("load_users", "check"))
	require.NoError(t, g.Validate())
	return g
}

func TestTable(t *testing.T) {
	tbl := NewTable("Task", "Status")
	tbl.AddRow("stage_events", "success")
	tbl.AddRow("ü")
	tbl.AddRow("a", "b", "dropped")

	assert.Equal(t, 3, tbl.Len())
	want := strings.Join([]string{
		"┌──────────────┬─────────┐",
		"│ Task         │ Status  │",
		"├──────────────┼─────────┤",
		"│ stage_events │ success │",
		"│ ü            │         │",
		"│ a            │ b       │",
		"└──────────────┴─────────┘",
		"",
	}, "\n")
	assert.Equal(t, want, tbl.String())
}

func TestOutcomeTable(t *testing.T) {
	g := chain(t)
	start := time.Date(2018, 11, 3, 7, 0, 0, 0, time.UTC)
	o := &dag.Outcome{
		RunID:      "r1",
		Status:     dag.RunFailed,
		FailedNode: "load_users",
		Nodes: map[string]dag.NodeState{
			"load_users": {Status: dag.StatusFailed, Attempts: 4, StartTime: start, EndTime: start.Add(90 * time.Second)},
			"check":      {Status: dag.StatusSkipped},
		},
	}

	tbl, err := OutcomeTable(g, o)
	require.NoError(t, err)

	out := tbl.String()
	lines := strings.Split(out, "\n")
	require.Len(t, lines, 7)
	assert.Contains(t, lines[3], "load_users")
	assert.Contains(t, lines[3], "load_dimension")
	assert.Contains(t, lines[3], "4/4")
	assert.Contains(t, lines[3], "1m 30s")
	assert.Contains(t, lines[4], "check")
	assert.Contains(t, lines[4], "skipped")
	assert.Contains(t, lines[4], "0/1")
	assert.Contains(t, lines[4], " - ")
}

func TestRunSummary(t *testing.T) {
	ok := &dag.Outcome{RunID: "r1", Status: dag.RunSuccess, Nodes: map[string]dag.NodeState{
		"a": {Status: dag.StatusSuccess},
	}, Duration: 2 * time.Second}
	out := RunSummary(ok)
	assert.Contains(t, out, "Run r1 succeeded")
	assert.Contains(t, out, "1 tasks completed in 2s")

	failed := &dag.Outcome{
		RunID:      "r2",
		Status:     dag.RunFailed,
		FailedNode: "check",
		Cause:      pipelineerrors.NewZeroRowsError("artists"),
		Nodes: map[string]dag.NodeState{
			"a":     {Status: dag.StatusSuccess},
			"check": {Status: dag.StatusFailed},
		},
	}
	out = RunSummary(failed)
	assert.Contains(t, out, "Run r2 failed at check")
	assert.Contains(t, out, "1 succeeded, 1 failed, 0 skipped")
	assert.Contains(t, out, "QUALITY-")

	cancelled := &dag.Outcome{RunID: "r3", Status: dag.RunFailed, Cancelled: true, Cause: errors.New("context canceled")}
	assert.Contains(t, RunSummary(cancelled), "Run r3 was cancelled")
}

func TestBox_Wraps(t *testing.T) {
	box := NewBox(ToneWarning, "title")
	box.width = 30
	box.AddLine(strings.Repeat("word ", 10))

	lines := strings.Split(box.Render(), "\n")
	require.Greater(t, len(lines), 4)
	for _, line := range lines {
		assert.Equal(t, len([]rune(lines[0])), len([]rune(line)), "every line has the same width")
	}
}

func TestWrapText(t *testing.T) {
	assert.Equal(t, []string{"short"}, wrapText("short", 10))
	assert.Equal(t, []string{"one two", "three"}, wrapText("one two three", 8))
	assert.Equal(t, []string{""}, wrapText("             ", 5))
}

func TestBackfillSummary(t *testing.T) {
	hour := time.Date(2018, 11, 1, 0, 0, 0, 0, time.UTC)
	results := []SlotResult{
		{LogicalTime: hour.Add(2 * time.Hour), Outcome: &dag.Outcome{Status: dag.RunFailed, FailedNode: "Stage_events"}},
		{LogicalTime: hour, Outcome: &dag.Outcome{Status: dag.RunSuccess}},
		{LogicalTime: hour.Add(time.Hour), Err: errors.New("warehouse unreachable")},
	}

	out := BackfillSummary(results)
	assert.Contains(t, out, "Runs: 3")
	assert.Contains(t, out, "Succeeded: 1")
	assert.Contains(t, out, "Failed: 2")

	first := strings.Index(out, "2018-11-01T01:00:00Z: warehouse unreachable")
	second := strings.Index(out, "2018-11-01T02:00:00Z: failed at Stage_events")
	require.NotEqual(t, -1, first)
	require.NotEqual(t, -1, second)
	assert.Less(t, first, second)

	assert.NotContains(t, BackfillSummary(results[1:2]), "Failed runs")
}
