package console

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/taskflow/internal/petri"
	"yqhp/taskflow/internal/simulate"
	"yqhp/taskflow/internal/verify"
	"yqhp/taskflow/pkg/types"
)

func newTestReporter(showNodes bool) (*Reporter, *bytes.Buffer) {
	var buf bytes.Buffer
	return New(&Config{ShowNodes: showNodes, ColorOutput: false, Writer: &buf}), &buf
}

func TestReporter_New(t *testing.T) {
	r := New(nil)
	assert.NotNil(t, r.writer)
	assert.True(t, r.config.ShowNodes)

	r = New(&Config{})
	assert.NotNil(t, r.writer)
}

func TestReporter_ExecutionLifecycle(t *testing.T) {
	r, buf := newTestReporter(true)
	ctx := context.Background()
	execCtx := types.NewExecutionContext().WithExecutionID("exec-1")

	extract := &types.TaskNode{ID: "extract", Action: "echo"}
	load := &types.TaskNode{ID: "load", Name: "Load rows", Action: "echo"}
	notify := &types.TaskNode{ID: "notify", Action: "echo"}

	started := time.Now().Add(-20 * time.Millisecond)
	r.OnExecutionStart(ctx, execCtx, "etl", 3)
	r.OnNodeStart(ctx, "exec-1", extract)
	ok := types.NewSuccessOutcome("extract", "rows", 2, started)
	r.OnNodeComplete(ctx, "exec-1", extract, ok)

	failed := types.NewFailedOutcome("load", errors.New("disk full"), 3, started)
	failed.Kind = types.ErrKindActionExecution
	r.OnNodeComplete(ctx, "exec-1", load, failed)

	skipped := types.NewSkippedOutcome("notify", types.SkipReasonDependencyFailed)
	r.OnNodeSkipped(ctx, "exec-1", notify, skipped)

	result := &types.ExecutionResult{
		ExecutionID: "exec-1",
		GraphID:     "etl",
		Status:      types.ExecutionStatusFailed,
		Message:     "1 succeeded, 1 failed, 1 skipped",
		Outcomes:    map[string]*types.NodeOutcome{"extract": ok, "load": failed, "notify": skipped},
		StartedAt:   started,
		FinishedAt:  started.Add(30 * time.Millisecond),
	}
	r.OnExecutionComplete(ctx, result)

	out := buf.String()
	assert.Contains(t, out, "Graph: etl | Nodes: 3 | Execution: exec-1")
	assert.Contains(t, out, "▶ extract (echo)")
	assert.Contains(t, out, "✔ extract [1/3] | attempts=2")
	assert.Contains(t, out, "✘ Load rows [2/3] | attempts=3 | ACTION_EXECUTION: disk full")
	assert.Contains(t, out, "- notify [3/3] | dependency failed")
	assert.Contains(t, out, "Status: failed")
	assert.Contains(t, out, "Succeeded: 1 | Failed: 1 | Skipped: 1")
	assert.Contains(t, out, "Percentiles: p50=")
	assert.Equal(t, int64(2), r.LatencyCount())
}

func TestReporter_QuietNodes(t *testing.T) {
	r, buf := newTestReporter(false)
	ctx := context.Background()
	node := &types.TaskNode{ID: "a", Action: "echo"}

	r.OnExecutionStart(ctx, types.NewExecutionContext(), "g", 1)
	r.OnNodeStart(ctx, "x", node)
	r.OnNodeComplete(ctx, "x", node, types.NewSuccessOutcome("a", nil, 1, time.Now()))

	assert.NotContains(t, buf.String(), "▶")
	assert.NotContains(t, buf.String(), "✔")
}

func TestReporter_StartResetsHistogram(t *testing.T) {
	r, _ := newTestReporter(false)
	ctx := context.Background()
	node := &types.TaskNode{ID: "a", Action: "echo"}
	outcome := types.NewSuccessOutcome("a", nil, 1, time.Now().Add(-time.Millisecond))

	r.OnExecutionStart(ctx, types.NewExecutionContext(), "g", 1)
	r.OnNodeComplete(ctx, "x", node, outcome)
	require.Equal(t, int64(1), r.LatencyCount())

	r.OnExecutionStart(ctx, types.NewExecutionContext(), "g", 1)
	assert.Equal(t, int64(0), r.LatencyCount())
}

func TestReporter_OnExecutionError(t *testing.T) {
	r, buf := newTestReporter(true)
	r.OnExecutionError(context.Background(), "x", errors.New("execution cancelled"))
	assert.Contains(t, buf.String(), "! execution cancelled")
}

func TestReporter_PrintReport(t *testing.T) {
	r, buf := newTestReporter(true)
	report := &verify.ValidationReport{
		NetID:          "release",
		StatesExplored: 5,
		StateBound:     200,
		Complete:       true,
		Results: []verify.PropertyResult{
			{Property: verify.PropertyDeadlockFreedom, Verdict: verify.VerdictFail, Message: "dead marking reachable",
				Marking: petri.Marking{"p": 1}, Path: []string{"t_a", "t_b"}},
			{Property: verify.PropertyBoundedness, Verdict: verify.VerdictPass, Message: "1-bounded"},
		},
	}
	r.PrintReport("release.yaml", report)

	out := buf.String()
	assert.Contains(t, out, "=== Verification: release.yaml ===")
	assert.Contains(t, out, "States: 5/200 | Complete: true")
	assert.Contains(t, out, "deadlock_freedom")
	assert.Contains(t, out, "t_a → t_b")
	assert.Contains(t, out, "Verdict: FAIL")
}

func TestReporter_PrintTrace(t *testing.T) {
	r, buf := newTestReporter(true)
	trace := &simulate.SimulationTrace{
		NetID: "release",
		Mode:  simulate.ModeDeterministic,
		State: simulate.StateCompleted,
		Steps: []simulate.SimulationStep{
			{Index: 0, TransitionID: "t_run_tests", MarkingBefore: petri.Marking{"start": 1}, MarkingAfter: petri.Marking{"p1": 1}, TokenID: "tok-1"},
			{Index: 1, TransitionID: "guard_pass", Label: "pass", MarkingBefore: petri.Marking{"p1": 1}, MarkingAfter: petri.Marking{"p2": 1}, TokenID: "tok-1"},
		},
		FinalMarking: petri.Marking{"p2": 1},
	}
	r.PrintTrace(trace)

	out := buf.String()
	assert.Contains(t, out, "=== Simulation: release (deterministic) ===")
	assert.Contains(t, out, "guard_pass [pass]")
	assert.Contains(t, out, "State: completed | Steps: 2")
}

func TestReporter_PrintChoice(t *testing.T) {
	r, buf := newTestReporter(true)
	r.PrintChoice(simulate.ChoiceRequest{
		Step:    1,
		Marking: petri.Marking{"p1": 1},
		Options: []simulate.Choice{
			{TransitionID: "guard_pass", Label: "pass"},
			{TransitionID: "guard_fail"},
		},
	})

	out := buf.String()
	assert.Contains(t, out, "[1] pass (guard_pass)")
	assert.Contains(t, out, "[2] guard_fail (guard_fail)")
}

func TestFormatDuration(t *testing.T) {
	assert.Equal(t, "500µs", formatDuration(500*time.Microsecond))
	assert.Equal(t, "1.50ms", formatDuration(1500*time.Microsecond))
	assert.Equal(t, "2.00s", formatDuration(2*time.Second))
	assert.Equal(t, int64(histogramMax), clampMicros(2*time.Hour))
	assert.Equal(t, int64(histogramMin), clampMicros(0))
}
