package petri

import (
	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/pkg/types"
)

const (
	// SourcePlace 源库所，初始标识中唯一持有令牌的库所
	SourcePlace = "start"
	// SinkPlace 汇库所
	SinkPlace = "end"

	forkTransition = "fork"
	joinTransition = "join"
)

// TransitionID returns the transition ID used for a task node.
func TransitionID(nodeID string) string {
	return "t_" + nodeID
}

func edgePlace(from, to string) string {
	return from + "->" + to
}

// FromTaskGraph 把任务图转换为网：每个节点一个变迁，每条依赖边一个库所。
// 多个起始节点时由 fork 变迁分发令牌，多个终止节点时由 join 变迁汇合到 end。
func FromTaskGraph(g *dag.TaskGraph) (*NetModel, error) {
	if g == nil || g.Len() == 0 {
		return nil, types.NewValidationError("graph", "task graph must have at least one node")
	}

	roots := g.Roots()
	sinks := g.Sinks()
	forked := len(roots) > 1
	joined := len(sinks) > 1

	places := []Place{{ID: SourcePlace, Label: "start"}}
	var transitions []Transition

	if forked {
		fork := Transition{ID: forkTransition, Inputs: []string{SourcePlace}, Kind: TransitionFork}
		for _, r := range roots {
			p := edgePlace(SourcePlace, r.ID)
			places = append(places, Place{ID: p})
			fork.Outputs = append(fork.Outputs, p)
		}
		transitions = append(transitions, fork)
	}

	for _, node := range g.Nodes() {
		t := Transition{
			ID:     TransitionID(node.ID),
			Action: node.Action,
			Kind:   TransitionAction,
			Label:  node.DisplayName(),
		}

		deps := g.Dependencies(node.ID)
		switch {
		case len(deps) > 0:
			for _, dep := range deps {
				t.Inputs = append(t.Inputs, edgePlace(dep, node.ID))
			}
		case forked:
			t.Inputs = []string{edgePlace(SourcePlace, node.ID)}
		default:
			t.Inputs = []string{SourcePlace}
		}

		dependents := g.Dependents(node.ID)
		switch {
		case len(dependents) > 0:
			for _, d := range dependents {
				p := edgePlace(node.ID, d)
				places = append(places, Place{ID: p})
				t.Outputs = append(t.Outputs, p)
			}
		case joined:
			p := edgePlace(node.ID, SinkPlace)
			places = append(places, Place{ID: p})
			t.Outputs = []string{p}
		default:
			t.Outputs = []string{SinkPlace}
		}
		transitions = append(transitions, t)
	}

	if joined {
		join := Transition{ID: joinTransition, Outputs: []string{SinkPlace}, Kind: TransitionJoin}
		for _, s := range sinks {
			join.Inputs = append(join.Inputs, edgePlace(s.ID, SinkPlace))
		}
		transitions = append(transitions, join)
	}
	places = append(places, Place{ID: SinkPlace, Label: "end"})

	return NewNet(g.ID(), places, transitions, Marking{SourcePlace: 1})
}
