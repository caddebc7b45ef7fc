// Package petri models workflows as place/transition nets.
//
// Places are the states between actions, transitions are the actions
// themselves (plus the fork, join and guard transitions that realise AND and
// XOR composition), and a Marking assigns tokens to places. A NetModel is
// immutable once built; firing a transition returns a new Marking.
package petri

import (
	"fmt"

	"yqhp/taskflow/pkg/types"
)

// TransitionKind 变迁类型
type TransitionKind string

const (
	// TransitionAction invokes a workflow action.
	TransitionAction TransitionKind = "action"
	// TransitionFork splits one token into parallel branches (AND-split).
	TransitionFork TransitionKind = "fork"
	// TransitionJoin waits for every parallel branch (AND-join).
	TransitionJoin TransitionKind = "join"
	// TransitionGuard selects one branch of an exclusive choice (XOR-split).
	TransitionGuard TransitionKind = "guard"
)

// Place 库所，表示两个动作之间的状态。
type Place struct {
	ID    string `json:"id"`
	Label string `json:"label,omitempty"`
}

// Transition 变迁。所有输入库所都至少有一个令牌时可触发。
type Transition struct {
	ID      string         `json:"id"`
	Inputs  []string       `json:"inputs"`
	Outputs []string       `json:"outputs"`
	Action  string         `json:"action,omitempty"`
	Kind    TransitionKind `json:"kind"`
	// Label 对 guard 是分支条件，对 action 是显示名
	Label string `json:"label,omitempty"`
}

// Arc 连接库所与变迁，由变迁的输入输出推导。
type Arc struct {
	From string `json:"from"`
	To   string `json:"to"`
}

// NetModel 网模型，构建后只读。
type NetModel struct {
	ID             string       `json:"id"`
	Places         []Place      `json:"places"`
	Transitions    []Transition `json:"transitions"`
	Arcs           []Arc        `json:"arcs"`
	InitialMarking Marking      `json:"initial_marking"`
	Source         string       `json:"source"`
	Terminals      []string     `json:"terminals"`

	places      map[string]int
	transitions map[string]int
	terminal    map[string]bool
}

// NewNet 校验并构建网模型。
// 结构错误（重复 ID、引用未知库所）返回 ValidationError；
// 不满足单源点/汇点约束返回 MalformedNetError。
func NewNet(id string, places []Place, transitions []Transition, initial Marking) (*NetModel, error) {
	n := &NetModel{
		ID:             id,
		Places:         append([]Place(nil), places...),
		Transitions:    make([]Transition, len(transitions)),
		InitialMarking: initial.Clone(),
		places:         make(map[string]int, len(places)),
		transitions:    make(map[string]int, len(transitions)),
		terminal:       make(map[string]bool),
	}

	for i, p := range n.Places {
		if p.ID == "" {
			return nil, types.NewValidationError(fmt.Sprintf("places[%d].id", i), "place ID is required")
		}
		if _, dup := n.places[p.ID]; dup {
			return nil, types.NewValidationError(fmt.Sprintf("places[%d].id", i), fmt.Sprintf("duplicate place ID '%s'", p.ID))
		}
		n.places[p.ID] = i
	}

	incoming := make(map[string]int)
	outgoing := make(map[string]int)
	for i, t := range transitions {
		path := fmt.Sprintf("transitions[%d]", i)
		if t.ID == "" {
			return nil, types.NewValidationError(path+".id", "transition ID is required")
		}
		if _, dup := n.transitions[t.ID]; dup {
			return nil, types.NewValidationError(path+".id", fmt.Sprintf("duplicate transition ID '%s'", t.ID))
		}
		if t.Kind == "" {
			t.Kind = TransitionAction
		}
		if err := n.checkArcs(path+".inputs", t.Inputs); err != nil {
			return nil, err
		}
		if err := n.checkArcs(path+".outputs", t.Outputs); err != nil {
			return nil, err
		}
		if len(t.Inputs) == 0 || len(t.Outputs) == 0 {
			return nil, &MalformedNetError{NetID: id, Reason: fmt.Sprintf("transition '%s' must have input and output places", t.ID)}
		}

		t.Inputs = append([]string(nil), t.Inputs...)
		t.Outputs = append([]string(nil), t.Outputs...)
		for _, p := range t.Inputs {
			n.Arcs = append(n.Arcs, Arc{From: p, To: t.ID})
			outgoing[p]++
		}
		for _, p := range t.Outputs {
			n.Arcs = append(n.Arcs, Arc{From: t.ID, To: p})
			incoming[p]++
		}
		n.Transitions[i] = t
		n.transitions[t.ID] = i
	}

	for p := range n.InitialMarking {
		if _, ok := n.places[p]; !ok {
			return nil, types.NewValidationError("initial_marking", fmt.Sprintf("unknown place '%s'", p))
		}
	}

	var sources []string
	for _, p := range n.Places {
		if incoming[p.ID] == 0 {
			sources = append(sources, p.ID)
		}
		if outgoing[p.ID] == 0 {
			n.Terminals = append(n.Terminals, p.ID)
			n.terminal[p.ID] = true
		}
	}

	switch {
	case len(sources) != 1:
		return nil, &MalformedNetError{NetID: id, Reason: fmt.Sprintf("expected exactly one source place, found %d %v", len(sources), sources)}
	case len(n.Terminals) == 0:
		return nil, &MalformedNetError{NetID: id, Reason: "no sink place"}
	case n.terminal[sources[0]]:
		return nil, &MalformedNetError{NetID: id, Reason: fmt.Sprintf("source place '%s' is also a sink", sources[0])}
	}
	n.Source = sources[0]

	if n.InitialMarking.Tokens(n.Source) != 1 || n.InitialMarking.Total() != 1 {
		return nil, &MalformedNetError{NetID: id, Reason: fmt.Sprintf("initial marking must hold exactly one token in source '%s', got %s", n.Source, n.InitialMarking)}
	}
	return n, nil
}

func (n *NetModel) checkArcs(path string, places []string) error {
	seen := make(map[string]bool, len(places))
	for _, p := range places {
		if _, ok := n.places[p]; !ok {
			return types.NewValidationError(path, fmt.Sprintf("unknown place '%s'", p))
		}
		if seen[p] {
			return types.NewValidationError(path, fmt.Sprintf("duplicate place '%s'", p))
		}
		seen[p] = true
	}
	return nil
}

// Place returns the place with the given ID.
func (n *NetModel) Place(id string) (*Place, bool) {
	i, ok := n.places[id]
	if !ok {
		return nil, false
	}
	return &n.Places[i], true
}

// Transition returns the transition with the given ID.
func (n *NetModel) Transition(id string) (*Transition, bool) {
	i, ok := n.transitions[id]
	if !ok {
		return nil, false
	}
	return &n.Transitions[i], true
}

// IsTerminalPlace reports whether place is a sink.
func (n *NetModel) IsTerminalPlace(place string) bool {
	return n.terminal[place]
}

// IsEnabled 所有输入库所都至少持有一个令牌。
func (n *NetModel) IsEnabled(t *Transition, m Marking) bool {
	for _, p := range t.Inputs {
		if m[p] < 1 {
			return false
		}
	}
	return true
}

// Enabled returns the transitions enabled in m, in declaration order.
func (n *NetModel) Enabled(m Marking) []*Transition {
	var out []*Transition
	for i := range n.Transitions {
		if n.IsEnabled(&n.Transitions[i], m) {
			out = append(out, &n.Transitions[i])
		}
	}
	return out
}

// Fire 触发变迁，返回新的标识，m 本身不变。
func (n *NetModel) Fire(m Marking, transitionID string) (Marking, error) {
	t, ok := n.Transition(transitionID)
	if !ok {
		return nil, types.NewValidationError("transition", fmt.Sprintf("unknown transition '%s'", transitionID))
	}
	if !n.IsEnabled(t, m) {
		return nil, &NotEnabledError{TransitionID: transitionID, Marking: m.Clone()}
	}
	next := m.Clone()
	for _, p := range t.Inputs {
		next[p]--
		if next[p] == 0 {
			delete(next, p)
		}
	}
	for _, p := range t.Outputs {
		next[p]++
	}
	return next, nil
}

// IsTerminal 判断标识是否为正常结束：至少一个汇点持有令牌，且所有令牌都在汇点上。
// 汇点有令牌但其他库所仍有滞留令牌不算正常结束。
func (n *NetModel) IsTerminal(m Marking) bool {
	marked := false
	for p, c := range m {
		if c == 0 {
			continue
		}
		if !n.terminal[p] {
			return false
		}
		marked = true
	}
	return marked
}
