package petri

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/pkg/types"
)

func TestMarking_KeyIgnoresZeroEntries(t *testing.T) {
	a := Marking{"p1": 1, "p2": 0, "end": 2}
	b := Marking{"end": 2, "p1": 1}

	assert.Equal(t, `"end":2,"p1":1`, a.Key())
	assert.Equal(t, "{end:2,p1:1}", a.String())
	assert.True(t, a.Equal(b))
	assert.Equal(t, 3, a.Total())
	assert.Equal(t, []string{"end", "p1"}, a.Places())

	c := a.Clone()
	c["p1"] = 5
	assert.Equal(t, 1, a.Tokens("p1"))
	assert.False(t, a.Equal(c))
}

func TestMarking_KeyDistinguishesSeparatorsInPlaceIDs(t *testing.T) {
	tests := []struct {
		name string
		a, b Marking
	}{
		{"colon and comma", Marking{"x:1,y": 1}, Marking{"x": 1, "y": 1}},
		{"edge place", Marking{"a->b:1,c": 2}, Marking{"a->b": 1, "c": 2}},
		{"quote", Marking{`p":1,"q`: 1}, Marking{"p": 1, "q": 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.NotEqual(t, tt.a.Key(), tt.b.Key())
			assert.False(t, tt.a.Equal(tt.b))
			assert.True(t, tt.a.Equal(tt.a.Clone()))
		})
	}
}

func TestFromTaskGraph_Sequential(t *testing.T) {
	g, err := dag.NewBuilder("seq").Then("a", "fetch", nil).Then("b", "transform", nil).Then("c", "store", nil).Build()
	require.NoError(t, err)

	net, err := FromTaskGraph(g)
	require.NoError(t, err)

	assert.Len(t, net.Places, 4)
	assert.Len(t, net.Transitions, 3)
	assert.Equal(t, SourcePlace, net.Source)
	assert.Equal(t, []string{SinkPlace}, net.Terminals)
	assert.Len(t, net.Arcs, 6)

	// 只有一条从 start 到 end 的路径
	m := net.InitialMarking
	var fired []string
	for {
		enabled := net.Enabled(m)
		if len(enabled) == 0 {
			break
		}
		require.Len(t, enabled, 1)
		fired = append(fired, enabled[0].ID)
		m, err = net.Fire(m, enabled[0].ID)
		require.NoError(t, err)
	}
	assert.Equal(t, []string{"t_a", "t_b", "t_c"}, fired)
	assert.Equal(t, Marking{SinkPlace: 1}, m)
	assert.True(t, net.IsTerminal(m))
}

func TestFromTaskGraph_ForkAndJoin(t *testing.T) {
	g, err := dag.Build("multi", []types.TaskNode{
		{ID: "a", Action: "x"},
		{ID: "b", Action: "x"},
		{ID: "c", Action: "x", DependsOn: []string{"a", "b"}},
		{ID: "d", Action: "x", DependsOn: []string{"c"}},
		{ID: "e", Action: "x", DependsOn: []string{"c"}},
	}, "")
	require.NoError(t, err)

	net, err := FromTaskGraph(g)
	require.NoError(t, err)

	fork, ok := net.Transition("fork")
	require.True(t, ok)
	assert.Equal(t, TransitionFork, fork.Kind)
	assert.Equal(t, []string{"start->a", "start->b"}, fork.Outputs)

	c, _ := net.Transition("t_c")
	assert.Equal(t, []string{"a->c", "b->c"}, c.Inputs)
	assert.Equal(t, []string{"c->d", "c->e"}, c.Outputs)

	join, ok := net.Transition("join")
	require.True(t, ok)
	assert.Equal(t, []string{"d->end", "e->end"}, join.Inputs)
	assert.Equal(t, []string{SinkPlace}, join.Outputs)
}

func TestNet_FireRequiresTokens(t *testing.T) {
	g, err := dag.NewBuilder("seq").Then("a", "x", nil).Then("b", "x", nil).Build()
	require.NoError(t, err)
	net, err := FromTaskGraph(g)
	require.NoError(t, err)

	_, err = net.Fire(net.InitialMarking, "t_b")
	var notEnabled *NotEnabledError
	assert.ErrorAs(t, err, &notEnabled)

	_, err = net.Fire(net.InitialMarking, "nope")
	assert.True(t, types.IsValidationError(err))

	next, err := net.Fire(net.InitialMarking, "t_a")
	require.NoError(t, err)
	assert.Equal(t, Marking{"a->b": 1}, next)
	assert.Equal(t, Marking{SourcePlace: 1}, net.InitialMarking)
}

func TestNewNet_Malformed(t *testing.T) {
	tests := []struct {
		name        string
		places      []Place
		transitions []Transition
		initial     Marking
		malformed   bool
	}{
		{
			name:        "two sources",
			places:      []Place{{ID: "s1"}, {ID: "s2"}, {ID: "e"}},
			transitions: []Transition{{ID: "t", Inputs: []string{"s1", "s2"}, Outputs: []string{"e"}}},
			initial:     Marking{"s1": 1},
			malformed:   true,
		},
		{
			name:        "no sink",
			places:      []Place{{ID: "s"}, {ID: "a"}},
			transitions: []Transition{{ID: "t1", Inputs: []string{"s"}, Outputs: []string{"a"}}, {ID: "t2", Inputs: []string{"a"}, Outputs: []string{"a"}}},
			initial:     Marking{"s": 1},
			malformed:   true,
		},
		{
			name:        "two initial tokens",
			places:      []Place{{ID: "s"}, {ID: "e"}},
			transitions: []Transition{{ID: "t", Inputs: []string{"s"}, Outputs: []string{"e"}}},
			initial:     Marking{"s": 2},
			malformed:   true,
		},
		{
			name:        "token outside source",
			places:      []Place{{ID: "s"}, {ID: "e"}},
			transitions: []Transition{{ID: "t", Inputs: []string{"s"}, Outputs: []string{"e"}}},
			initial:     Marking{"s": 1, "e": 1},
			malformed:   true,
		},
		{
			name:        "unknown place",
			places:      []Place{{ID: "s"}, {ID: "e"}},
			transitions: []Transition{{ID: "t", Inputs: []string{"s"}, Outputs: []string{"x"}}},
			initial:     Marking{"s": 1},
		},
		{
			name:        "duplicate transition",
			places:      []Place{{ID: "s"}, {ID: "e"}},
			transitions: []Transition{{ID: "t", Inputs: []string{"s"}, Outputs: []string{"e"}}, {ID: "t", Inputs: []string{"s"}, Outputs: []string{"e"}}},
			initial:     Marking{"s": 1},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewNet("n", tt.places, tt.transitions, tt.initial)
			require.Error(t, err)
			if tt.malformed {
				assert.True(t, IsMalformedNet(err), err.Error())
				assert.Equal(t, types.ErrKindMalformedNet, types.KindOf(err))
			} else {
				assert.True(t, types.IsValidationError(err), err.Error())
			}
		})
	}
}

func TestCompileIntents_Stages(t *testing.T) {
	f, err := CompileIntents([]Intent{
		{Action: "fetch"},
		{Action: "resize", Connective: ConnectiveParallel},
		{Action: "scan", Connective: ConnectiveParallel},
		{Action: "publish", Connective: ConnectiveSequential},
	})
	require.NoError(t, err)

	assert.Equal(t, Seq{
		Par{Step{Action: "fetch"}, Step{Action: "resize"}, Step{Action: "scan"}},
		Step{Action: "publish"},
	}, f)
}

func TestCompileIntents_Errors(t *testing.T) {
	_, err := CompileIntents(nil)
	assert.True(t, types.IsValidationError(err))

	_, err = CompileIntents([]Intent{{Action: "a"}, {Action: "b", Connective: ConnectiveParallel}, {Action: "c", Connective: ConnectiveChoice}})
	var ve *types.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "intents[2].connective", ve.Field)

	_, err = CompileIntents([]Intent{{Action: "a", Connective: "maybe"}})
	assert.True(t, types.IsValidationError(err))

	_, err = CompileIntents([]Intent{{Connective: ConnectiveSequential}})
	assert.True(t, types.IsValidationError(err))
}

func testsThenDeployOrAlert() []Intent {
	return []Intent{
		{Action: "run_tests"},
		{Action: "deploy", Connective: ConnectiveSequential, Condition: "pass"},
		{Action: "alert", Connective: ConnectiveChoice, Condition: "fail"},
	}
}

func TestBuildFromIntents_Choice(t *testing.T) {
	net, err := BuildFromIntents("release", testsThenDeployOrAlert())
	require.NoError(t, err)

	assert.Len(t, net.Places, 5)
	assert.Len(t, net.Transitions, 5)

	runTests, _ := net.Transition("t_run_tests")
	pass, ok := net.Transition("guard_pass")
	require.True(t, ok)
	fail, ok := net.Transition("guard_fail")
	require.True(t, ok)

	// 两个 guard 共享 run_tests 的输出库所
	assert.Equal(t, runTests.Outputs, pass.Inputs)
	assert.Equal(t, runTests.Outputs, fail.Inputs)
	assert.Equal(t, TransitionGuard, pass.Kind)
	assert.Equal(t, "pass", pass.Label)

	m, err := net.Fire(net.InitialMarking, "t_run_tests")
	require.NoError(t, err)
	assert.Len(t, net.Enabled(m), 2)

	m, err = net.Fire(m, "guard_pass")
	require.NoError(t, err)
	enabled := net.Enabled(m)
	require.Len(t, enabled, 1)
	assert.Equal(t, "deploy", enabled[0].Action)
}

func TestBuildFromIntents_Parallel(t *testing.T) {
	net, err := BuildFromIntents("par", []Intent{
		{Action: "build"},
		{Action: "lint", Connective: ConnectiveParallel},
		{Action: "ship"},
	})
	require.NoError(t, err)

	fork, ok := net.Transition("fork")
	require.True(t, ok)
	join, ok := net.Transition("join")
	require.True(t, ok)
	assert.Len(t, fork.Outputs, 2)
	assert.Len(t, join.Inputs, 2)

	ship, _ := net.Transition("t_ship")
	assert.Equal(t, join.Outputs, ship.Inputs)
	assert.Equal(t, []string{SinkPlace}, ship.Outputs)
}

func TestDuplicateActionIDsSkipTakenNames(t *testing.T) {
	tests := []struct {
		name        string
		actions     []string
		transitions []string
		nodes       []string
	}{
		{
			name:        "suffix already used",
			actions:     []string{"deploy", "deploy", "deploy_2"},
			transitions: []string{"t_deploy", "t_deploy_2", "t_deploy_2_2"},
			nodes:       []string{"deploy", "deploy_2", "deploy_2_2"},
		},
		{
			name:        "suffixed name first",
			actions:     []string{"deploy_2", "deploy", "deploy"},
			transitions: []string{"t_deploy_2", "t_deploy", "t_deploy_3"},
			nodes:       []string{"deploy_2", "deploy", "deploy_3"},
		},
		{
			name:        "three of a kind",
			actions:     []string{"deploy", "deploy", "deploy"},
			transitions: []string{"t_deploy", "t_deploy_2", "t_deploy_3"},
			nodes:       []string{"deploy", "deploy_2", "deploy_3"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			intents := make([]Intent, len(tt.actions))
			for i, a := range tt.actions {
				intents[i] = Intent{Action: a}
			}

			net, err := BuildFromIntents("dup", intents)
			require.NoError(t, err)
			var ids []string
			for _, tr := range net.Transitions {
				ids = append(ids, tr.ID)
			}
			assert.Equal(t, tt.transitions, ids)

			f, err := CompileIntents(intents)
			require.NoError(t, err)
			g, err := TaskGraphFromFlow("dup", f)
			require.NoError(t, err)
			for _, id := range tt.nodes {
				_, ok := g.Node(id)
				assert.True(t, ok, id)
			}
			assert.Equal(t, len(tt.nodes), g.Len())
		})
	}
}

func TestTaskGraphFromFlow(t *testing.T) {
	f, err := CompileIntents([]Intent{
		{Action: "build", Params: map[string]any{"target": "linux"}},
		{Action: "build", Connective: ConnectiveParallel},
		{Action: "ship"},
	})
	require.NoError(t, err)

	g, err := TaskGraphFromFlow("flow", f)
	require.NoError(t, err)

	assert.Equal(t, 3, g.Len())
	ship, ok := g.Node("ship")
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"build", "build_2"}, ship.DependsOn)
	b, _ := g.Node("build")
	assert.Equal(t, "linux", b.InputParams["target"])
	assert.Equal(t, "ship", g.Root().ID)

	choice, err := CompileIntents(testsThenDeployOrAlert())
	require.NoError(t, err)
	_, err = TaskGraphFromFlow("choice", choice)
	assert.True(t, types.IsValidationError(err))
}
