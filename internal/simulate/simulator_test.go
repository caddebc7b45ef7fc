package simulate

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/internal/petri"
	"yqhp/taskflow/internal/verify"
	"yqhp/taskflow/pkg/types"
)

func releaseNet(t *testing.T) *petri.NetModel {
	t.Helper()
	net, err := petri.BuildFromIntents("release", []petri.Intent{
		{Action: "run_tests"},
		{Action: "deploy", Connective: petri.ConnectiveSequential, Condition: "pass"},
		{Action: "alert", Connective: petri.ConnectiveChoice, Condition: "fail"},
	})
	require.NoError(t, err)
	return net
}

// loopNet: p → q 之后可以回到 p，也可以退出到 end。
func loopNet(t *testing.T) *petri.NetModel {
	t.Helper()
	net, err := petri.NewNet("loop",
		[]petri.Place{{ID: "start"}, {ID: "p"}, {ID: "q"}, {ID: "end"}},
		[]petri.Transition{
			{ID: "t_enter", Inputs: []string{"start"}, Outputs: []string{"p"}},
			{ID: "t_work", Inputs: []string{"p"}, Outputs: []string{"q"}},
			{ID: "t_back", Inputs: []string{"q"}, Outputs: []string{"p"}, Kind: petri.TransitionGuard, Label: "retry"},
			{ID: "t_exit", Inputs: []string{"q"}, Outputs: []string{"end"}, Kind: petri.TransitionGuard, Label: "done"},
		},
		petri.Marking{"start": 1})
	require.NoError(t, err)
	return net
}

func TestRun_ReleaseWorkflowEndToEnd(t *testing.T) {
	net := releaseNet(t)

	report, err := verify.NewAnalyzer(verify.DefaultOptions()).Analyze(context.Background(), net)
	require.NoError(t, err)
	assert.Equal(t, verify.VerdictPass, report.Result(verify.PropertyBoundedness).Verdict)
	assert.Equal(t, verify.VerdictPass, report.Result(verify.PropertyReachability).Verdict)

	clock := clockwork.NewFakeClockAt(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	sim, err := New(net, Options{Decisions: []string{"pass"}}, WithClock(clock))
	require.NoError(t, err)

	trace, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, trace.State)
	assert.Equal(t, []string{"t_run_tests", "guard_pass", "t_deploy"}, trace.Fired())
	assert.Equal(t, petri.Marking{petri.SinkPlace: 1}, trace.FinalMarking)
	assert.Equal(t, map[string][]string{petri.SinkPlace: {"tok-1"}}, trace.Tokens)
	for i, step := range trace.Steps {
		assert.Equal(t, i, step.Index)
		assert.Equal(t, "tok-1", step.TokenID)
		assert.Equal(t, clock.Now(), step.Timestamp)
	}
	assert.Equal(t, petri.Marking{"start": 1}, trace.Steps[0].MarkingBefore)
	assert.Equal(t, trace.Steps[0].MarkingAfter, trace.Steps[1].MarkingBefore)
	assert.NotEmpty(t, trace.RunID)
}

func TestRun_AmbiguousWithoutDecision(t *testing.T) {
	sim, err := New(releaseNet(t), Options{})
	require.NoError(t, err)

	trace, err := sim.Run(context.Background())
	var ambiguous *AmbiguousChoiceError
	require.ErrorAs(t, err, &ambiguous)
	assert.Equal(t, types.ErrKindAmbiguousChoice, types.KindOf(err))
	assert.Equal(t, []string{"guard_pass", "guard_fail"}, ambiguous.Enabled)
	assert.Equal(t, 1, ambiguous.Step)

	assert.Equal(t, StateAmbiguous, trace.State)
	assert.Equal(t, 1, trace.Len())
	assert.NotEmpty(t, trace.Error)
}

func TestRun_UnknownDecision(t *testing.T) {
	sim, err := New(releaseNet(t), Options{Decisions: []string{"maybe"}})
	require.NoError(t, err)

	trace, err := sim.Run(context.Background())
	var invalid *InvalidChoiceError
	require.ErrorAs(t, err, &invalid)
	assert.Equal(t, StateFailed, trace.State)
}

func TestRun_ParallelBranchesAreNotAChoice(t *testing.T) {
	g, err := dag.Build("diamond", []types.TaskNode{
		{ID: "a", Action: "x"},
		{ID: "b", Action: "x", DependsOn: []string{"a"}},
		{ID: "c", Action: "x", DependsOn: []string{"a"}},
		{ID: "d", Action: "x", DependsOn: []string{"b", "c"}},
	}, "")
	require.NoError(t, err)
	net, err := petri.FromTaskGraph(g)
	require.NoError(t, err)

	sim, err := New(net, Options{})
	require.NoError(t, err)
	trace, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateCompleted, trace.State)
	assert.Equal(t, []string{"t_a", "t_b", "t_c", "t_d"}, trace.Fired())

	// t_a 产生两个令牌：tok-1 继续前进，tok-2 是新令牌
	assert.Equal(t, []string{"tok-1", "tok-2"}, trace.Steps[0].Produced)
	assert.Equal(t, []string{"tok-1", "tok-2"}, trace.Steps[3].Consumed)
	assert.Equal(t, []string{"tok-1"}, trace.Steps[3].Produced)
}

func TestRun_Deadlocked(t *testing.T) {
	net, err := petri.NewNet("stuck",
		[]petri.Place{{ID: "start"}, {ID: "p"}, {ID: "q"}, {ID: "end"}},
		[]petri.Transition{
			{ID: "g1", Inputs: []string{"start"}, Outputs: []string{"p"}, Label: "left"},
			{ID: "g2", Inputs: []string{"start"}, Outputs: []string{"q"}, Label: "right"},
			{ID: "join", Inputs: []string{"p", "q"}, Outputs: []string{"end"}},
		},
		petri.Marking{"start": 1})
	require.NoError(t, err)

	sim, err := New(net, Options{Decisions: []string{"left"}})
	require.NoError(t, err)
	trace, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateDeadlocked, trace.State)
	assert.Equal(t, petri.Marking{"p": 1}, trace.FinalMarking)
}

func TestRun_MaxSteps(t *testing.T) {
	retry := ChooserFunc(func(ctx context.Context, req ChoiceRequest) (string, error) {
		return "retry", nil
	})
	sim, err := New(loopNet(t), Options{Mode: ModeInteractive, Chooser: retry, MaxSteps: 10})
	require.NoError(t, err)

	trace, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, StateBoundExceeded, trace.State)
	assert.Equal(t, 10, trace.Len())
	var bound *types.StateBoundExceededError
	require.ErrorAs(t, trace.Err, &bound)
	assert.Equal(t, 10, bound.Bound)
}

func TestRun_InteractiveChannelChooser(t *testing.T) {
	chooser := NewChannelChooser()
	defer chooser.Close()

	sim, err := New(loopNet(t), Options{Mode: ModeInteractive, Chooser: chooser})
	require.NoError(t, err)

	type result struct {
		trace *SimulationTrace
		err   error
	}
	done := make(chan result, 1)
	go func() {
		trace, err := sim.Run(context.Background())
		done <- result{trace, err}
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req := <-chooser.Requests()
	assert.Equal(t, 2, req.Step)
	require.Len(t, req.Options, 2)
	assert.Equal(t, "t_back", req.Options[0].TransitionID)
	assert.Equal(t, "done", req.Options[1].Label)
	require.NoError(t, chooser.Answer(ctx, "t_back"))

	req = <-chooser.Requests()
	assert.Equal(t, 4, req.Step)
	require.NoError(t, chooser.Answer(ctx, "done"))

	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, StateCompleted, r.trace.State)
	assert.Equal(t, []string{"t_enter", "t_work", "t_back", "t_work", "t_exit"}, r.trace.Fired())
}

func TestRun_CancelWhileSuspended(t *testing.T) {
	chooser := NewChannelChooser()
	defer chooser.Close()

	sim, err := New(loopNet(t), Options{Mode: ModeInteractive, Chooser: chooser})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan *SimulationTrace, 1)
	go func() {
		trace, err := sim.Run(ctx)
		assert.NoError(t, err)
		done <- trace
	}()

	<-chooser.Requests()
	cancel()

	trace := <-done
	assert.Equal(t, StateCancelled, trace.State)
	// 挂起期间取消不触发任何变迁
	assert.Equal(t, 2, trace.Len())
	assert.Equal(t, petri.Marking{"q": 1}, trace.FinalMarking)
	assert.True(t, errors.Is(trace.Err, context.Canceled))
}

func TestRun_CancelledChooserAnswerDoesNotFire(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	// 忽略 ctx 的选择器：先取消，仍然返回一个合法选择
	stubborn := ChooserFunc(func(_ context.Context, req ChoiceRequest) (string, error) {
		cancel()
		return "done", nil
	})
	sim, err := New(loopNet(t), Options{Mode: ModeInteractive, Chooser: stubborn})
	require.NoError(t, err)

	trace, err := sim.Run(ctx)
	require.NoError(t, err)
	assert.Equal(t, StateCancelled, trace.State)
	assert.Equal(t, []string{"t_enter", "t_work"}, trace.Fired())
	assert.Equal(t, petri.Marking{"q": 1}, trace.FinalMarking)
	assert.ErrorIs(t, trace.Err, context.Canceled)
}

func TestRun_ChooserError(t *testing.T) {
	boom := errors.New("no operator")
	failing := ChooserFunc(func(ctx context.Context, req ChoiceRequest) (string, error) {
		return "", boom
	})
	sim, err := New(loopNet(t), Options{Mode: ModeInteractive, Chooser: failing})
	require.NoError(t, err)

	trace, err := sim.Run(context.Background())
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, StateFailed, trace.State)
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, Options{})
	assert.True(t, types.IsValidationError(err))

	_, err = New(loopNet(t), Options{Mode: ModeInteractive})
	assert.True(t, types.IsValidationError(err))

	_, err = New(loopNet(t), Options{Mode: "random"})
	assert.True(t, types.IsValidationError(err))
}

func TestRun_IndependentRuns(t *testing.T) {
	sim, err := New(releaseNet(t), Options{Decisions: []string{"fail"}})
	require.NoError(t, err)

	first, err := sim.Run(context.Background())
	require.NoError(t, err)
	second, err := sim.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, first.Fired(), second.Fired())
	assert.Equal(t, []string{"t_run_tests", "guard_fail", "t_alert"}, first.Fired())
	assert.NotEqual(t, first.RunID, second.RunID)
}
