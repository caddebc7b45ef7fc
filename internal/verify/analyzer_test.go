package verify

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/internal/petri"
	"yqhp/taskflow/pkg/types"
)

func places(ids ...string) []petri.Place {
	out := make([]petri.Place, len(ids))
	for i, id := range ids {
		out[i] = petri.Place{ID: id}
	}
	return out
}

func tr(id string, in, out []string) petri.Transition {
	return petri.Transition{ID: id, Inputs: in, Outputs: out}
}

// missingJoinNet: deploy 和 cleanup 争用 a_done，b 分支完成后可能永远等不到它。
func missingJoinNet(t *testing.T) *petri.NetModel {
	t.Helper()
	net, err := petri.NewNet("missing-join",
		places("start", "a", "b", "a_done", "b_done", "end"),
		[]petri.Transition{
			{ID: "fork", Inputs: []string{"start"}, Outputs: []string{"a", "b"}, Kind: petri.TransitionFork},
			tr("t_a", []string{"a"}, []string{"a_done"}),
			tr("t_b", []string{"b"}, []string{"b_done"}),
			tr("deploy", []string{"a_done"}, []string{"end"}),
			tr("cleanup", []string{"a_done", "b_done"}, []string{"end"}),
		},
		petri.Marking{"start": 1})
	require.NoError(t, err)
	return net
}

func withJoinNet(t *testing.T) *petri.NetModel {
	t.Helper()
	net, err := petri.NewNet("with-join",
		places("start", "a", "b", "a_done", "b_done", "ready", "end"),
		[]petri.Transition{
			{ID: "fork", Inputs: []string{"start"}, Outputs: []string{"a", "b"}, Kind: petri.TransitionFork},
			tr("t_a", []string{"a"}, []string{"a_done"}),
			tr("t_b", []string{"b"}, []string{"b_done"}),
			{ID: "join", Inputs: []string{"a_done", "b_done"}, Outputs: []string{"ready"}, Kind: petri.TransitionJoin},
			tr("deploy", []string{"ready"}, []string{"end"}),
		},
		petri.Marking{"start": 1})
	require.NoError(t, err)
	return net
}

func TestAnalyze_MissingJoinDeadlocks(t *testing.T) {
	a := NewAnalyzer(DefaultOptions())

	report, err := a.Analyze(context.Background(), missingJoinNet(t))
	require.NoError(t, err)

	res := report.Result(PropertyDeadlockFreedom)
	assert.Equal(t, VerdictFail, res.Verdict)
	assert.Equal(t, petri.Marking{"b_done": 1, "end": 1}, res.Marking)
	assert.Len(t, res.Path, 4)
	assert.Equal(t, "fork", res.Path[0])
	assert.Equal(t, VerdictFail, report.Verdict())
	assert.True(t, report.Complete)
	assert.NoError(t, report.Err)

	report, err = a.Analyze(context.Background(), withJoinNet(t))
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, report.Result(PropertyDeadlockFreedom).Verdict)
	assert.Equal(t, VerdictPass, report.Verdict())
}

func TestAnalyze_SequentialGraphPasses(t *testing.T) {
	g, err := dag.NewBuilder("seq").Then("a", "x", nil).Then("b", "x", nil).Then("c", "x", nil).Build()
	require.NoError(t, err)
	net, err := petri.FromTaskGraph(g)
	require.NoError(t, err)

	report, err := NewAnalyzer(Options{}).Analyze(context.Background(), net)
	require.NoError(t, err)

	assert.Equal(t, 4, report.StatesExplored)
	assert.Equal(t, DefaultStateBound, report.StateBound)
	for _, res := range report.Results {
		assert.Equal(t, VerdictPass, res.Verdict, string(res.Property))
	}
}

func TestAnalyze_ChoiceIntoJoinIsDead(t *testing.T) {
	net, err := petri.NewNet("xor-and",
		places("start", "p", "q", "end"),
		[]petri.Transition{
			{ID: "g1", Inputs: []string{"start"}, Outputs: []string{"p"}, Kind: petri.TransitionGuard},
			{ID: "g2", Inputs: []string{"start"}, Outputs: []string{"q"}, Kind: petri.TransitionGuard},
			{ID: "join", Inputs: []string{"p", "q"}, Outputs: []string{"end"}, Kind: petri.TransitionJoin},
		},
		petri.Marking{"start": 1})
	require.NoError(t, err)

	report, err := NewAnalyzer(DefaultOptions()).Analyze(context.Background(), net)
	require.NoError(t, err)

	assert.Equal(t, VerdictFail, report.Result(PropertyDeadlockFreedom).Verdict)
	assert.Equal(t, petri.Marking{"p": 1}, report.Result(PropertyDeadlockFreedom).Marking)

	reach := report.Result(PropertyReachability)
	assert.Equal(t, VerdictFail, reach.Verdict)
	assert.Equal(t, []string{"end"}, reach.Places)

	live := report.Result(PropertyLiveness)
	assert.Equal(t, VerdictFail, live.Verdict)
	assert.Equal(t, []string{"join"}, live.Transitions)

	assert.Equal(t, VerdictPass, report.Result(PropertyBoundedness).Verdict)
}

func TestAnalyze_Unbounded(t *testing.T) {
	net, err := petri.NewNet("merge",
		places("start", "a", "b", "c", "end"),
		[]petri.Transition{
			tr("split", []string{"start"}, []string{"a", "b"}),
			tr("t_a", []string{"a"}, []string{"c"}),
			tr("t_b", []string{"b"}, []string{"c"}),
			tr("finish", []string{"c"}, []string{"end"}),
		},
		petri.Marking{"start": 1})
	require.NoError(t, err)

	report, err := NewAnalyzer(DefaultOptions()).Analyze(context.Background(), net)
	require.NoError(t, err)

	res := report.Result(PropertyBoundedness)
	assert.Equal(t, VerdictFail, res.Verdict)
	assert.Equal(t, []string{"c"}, res.Places)
	assert.Equal(t, 2, res.Marking.Tokens("c"))

	// 放宽上限后通过
	report, err = NewAnalyzer(Options{MaxTokensPerPlace: 2}).Analyze(context.Background(), net)
	require.NoError(t, err)
	assert.Equal(t, VerdictPass, report.Result(PropertyBoundedness).Verdict)
}

func TestAnalyze_StateBoundIsInconclusive(t *testing.T) {
	b := dag.NewBuilder("long")
	for _, id := range []string{"a", "b", "c", "d", "e", "f"} {
		b.Then(id, "x", nil)
	}
	g, err := b.Build()
	require.NoError(t, err)
	net, err := petri.FromTaskGraph(g)
	require.NoError(t, err)

	report, err := NewAnalyzer(Options{StateBound: 3}).Analyze(context.Background(), net)
	require.NoError(t, err)

	assert.False(t, report.Complete)
	assert.Equal(t, 3, report.StatesExplored)
	for _, res := range report.Results {
		assert.Equal(t, VerdictInconclusive, res.Verdict, string(res.Property))
	}
	assert.Equal(t, VerdictInconclusive, report.Verdict())

	var bound *types.StateBoundExceededError
	require.ErrorAs(t, report.Err, &bound)
	assert.Equal(t, 3, bound.Bound)
	assert.Equal(t, types.ErrKindStateBoundExceeded, types.KindOf(report.Err))
	assert.NotEmpty(t, report.BoundError)

	live := report.Result(PropertyLiveness)
	assert.Contains(t, live.Transitions, "t_f")
}

func TestAnalyze_ReleaseWorkflow(t *testing.T) {
	net, err := petri.BuildFromIntents("release", []petri.Intent{
		{Action: "run_tests"},
		{Action: "deploy", Connective: petri.ConnectiveSequential, Condition: "pass"},
		{Action: "alert", Connective: petri.ConnectiveChoice, Condition: "fail"},
	})
	require.NoError(t, err)

	report, err := NewAnalyzer(DefaultOptions()).Analyze(context.Background(), net)
	require.NoError(t, err)

	assert.Equal(t, VerdictPass, report.Result(PropertyBoundedness).Verdict)
	assert.Equal(t, VerdictPass, report.Result(PropertyReachability).Verdict)
	assert.Equal(t, VerdictPass, report.Result(PropertyDeadlockFreedom).Verdict)
	assert.Equal(t, VerdictPass, report.Result(PropertyLiveness).Verdict)
}

func TestAnalyze_Errors(t *testing.T) {
	a := NewAnalyzer(DefaultOptions())
	_, err := a.Analyze(context.Background(), nil)
	assert.True(t, types.IsValidationError(err))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = a.Analyze(ctx, withJoinNet(t))
	assert.ErrorIs(t, err, context.Canceled)
}
