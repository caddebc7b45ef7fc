package petri

import (
	"fmt"
	"strconv"

	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/pkg/types"
)

// Connective 描述一个意图与前一个意图的组合方式。
type Connective string

const (
	// ConnectiveSequential starts a new stage after the previous one.
	ConnectiveSequential Connective = "sequential"
	// ConnectiveParallel adds the intent to the current stage as an AND branch.
	ConnectiveParallel Connective = "parallel"
	// ConnectiveChoice adds the intent to the current stage as an XOR branch.
	ConnectiveChoice Connective = "choice"
)

// Intent 是解析后的单个动作意图。
type Intent struct {
	Action     string         `yaml:"action" json:"action"`
	Connective Connective     `yaml:"connective,omitempty" json:"connective,omitempty"`
	Condition  string         `yaml:"condition,omitempty" json:"condition,omitempty"`
	Params     map[string]any `yaml:"params,omitempty" json:"params,omitempty"`
}

// Flow 是意图编译出的组合树：Step、Seq、Par 或 Choice。
type Flow interface {
	flow()
}

// Step is a single action.
type Step struct {
	Action string
	Params map[string]any
}

// Seq runs its children one after another.
type Seq []Flow

// Par runs its children concurrently and waits for all of them.
type Par []Flow

// Branch is one alternative of a Choice.
type Branch struct {
	Condition string
	Flow      Flow
}

// Choice runs exactly one of its branches.
type Choice []Branch

func (Step) flow()   {}
func (Seq) flow()    {}
func (Par) flow()    {}
func (Choice) flow() {}

type stage struct {
	connective Connective
	intents    []Intent
}

// CompileIntents 把扁平的意图列表编译为组合树。
// sequential 开始新阶段；parallel / choice 把意图加入当前阶段；同一阶段不能混用两者。
func CompileIntents(intents []Intent) (Flow, error) {
	if len(intents) == 0 {
		return nil, types.NewValidationError("intents", "at least one intent is required")
	}

	var stages []*stage
	for i, in := range intents {
		field := fmt.Sprintf("intents[%d]", i)
		if in.Action == "" {
			return nil, types.NewValidationError(field+".action", "action is required")
		}
		conn := in.Connective
		if conn == "" {
			conn = ConnectiveSequential
		}

		switch conn {
		case ConnectiveSequential:
			stages = append(stages, &stage{connective: ConnectiveSequential, intents: []Intent{in}})
		case ConnectiveParallel, ConnectiveChoice:
			if len(stages) == 0 {
				stages = append(stages, &stage{connective: ConnectiveSequential, intents: []Intent{in}})
				continue
			}
			cur := stages[len(stages)-1]
			if cur.connective != ConnectiveSequential && cur.connective != conn {
				return nil, types.NewValidationError(field+".connective", "cannot mix parallel and choice in one stage")
			}
			cur.connective = conn
			cur.intents = append(cur.intents, in)
		default:
			return nil, types.NewValidationError(field+".connective", fmt.Sprintf("unknown connective '%s'", conn))
		}
	}

	seq := make(Seq, 0, len(stages))
	for _, s := range stages {
		seq = append(seq, s.compile())
	}
	if len(seq) == 1 {
		return seq[0], nil
	}
	return seq, nil
}

func (s *stage) compile() Flow {
	if len(s.intents) == 1 {
		return stepOf(s.intents[0])
	}
	switch s.connective {
	case ConnectiveChoice:
		c := make(Choice, 0, len(s.intents))
		for _, in := range s.intents {
			cond := in.Condition
			if cond == "" {
				cond = in.Action
			}
			c = append(c, Branch{Condition: cond, Flow: stepOf(in)})
		}
		return c
	default:
		p := make(Par, 0, len(s.intents))
		for _, in := range s.intents {
			p = append(p, stepOf(in))
		}
		return p
	}
}

func stepOf(in Intent) Step {
	return Step{Action: in.Action, Params: types.CloneParams(in.Params)}
}

// BuildFromIntents compiles intents and builds their net.
func BuildFromIntents(id string, intents []Intent) (*NetModel, error) {
	f, err := CompileIntents(intents)
	if err != nil {
		return nil, err
	}
	return BuildFromFlow(id, f)
}

// BuildFromFlow 把组合树编译为网：
// Par 编译为 fork → 各分支 → join；Choice 编译为共享库所 → 每个分支一个 guard 变迁 → 分支。
func BuildFromFlow(id string, f Flow) (*NetModel, error) {
	b := &flowBuilder{used: make(map[string]int)}
	b.places = append(b.places, Place{ID: SourcePlace, Label: "start"})
	if err := b.compile(f, SourcePlace, SinkPlace); err != nil {
		return nil, err
	}
	b.places = append(b.places, Place{ID: SinkPlace, Label: "end"})
	return NewNet(id, b.places, b.transitions, Marking{SourcePlace: 1})
}

type flowBuilder struct {
	places      []Place
	transitions []Transition
	seq         int
	used        map[string]int
}

func (b *flowBuilder) place() string {
	b.seq++
	id := "p" + strconv.Itoa(b.seq)
	b.places = append(b.places, Place{ID: id})
	return id
}

func (b *flowBuilder) uniqueID(base string) string {
	return uniqueName(b.used, base)
}

// uniqueName 同名动作出现多次时追加序号：t_deploy, t_deploy_2。
// used 记录所有已分配的 ID（包括带序号的），序号会跳过已被占用的名字。
func uniqueName(used map[string]int, base string) string {
	if used[base] == 0 {
		used[base] = 1
		return base
	}
	for n := used[base] + 1; ; n++ {
		id := base + "_" + strconv.Itoa(n)
		if used[id] == 0 {
			used[base] = n
			used[id] = 1
			return id
		}
	}
}

func (b *flowBuilder) compile(f Flow, in, out string) error {
	switch f := f.(type) {
	case Step:
		b.transitions = append(b.transitions, Transition{
			ID:      b.uniqueID(TransitionID(f.Action)),
			Inputs:  []string{in},
			Outputs: []string{out},
			Action:  f.Action,
			Kind:    TransitionAction,
			Label:   f.Action,
		})

	case Seq:
		if len(f) == 0 {
			return types.NewValidationError("flow", "empty sequence")
		}
		cur := in
		for i, child := range f {
			next := out
			if i < len(f)-1 {
				next = b.place()
			}
			if err := b.compile(child, cur, next); err != nil {
				return err
			}
			cur = next
		}

	case Par:
		if len(f) == 0 {
			return types.NewValidationError("flow", "empty parallel block")
		}
		fork := Transition{ID: b.uniqueID(forkTransition), Inputs: []string{in}, Kind: TransitionFork}
		join := Transition{ID: b.uniqueID(joinTransition), Outputs: []string{out}, Kind: TransitionJoin}
		forkIdx := len(b.transitions)
		b.transitions = append(b.transitions, fork)
		for _, child := range f {
			branchIn, branchOut := b.place(), b.place()
			b.transitions[forkIdx].Outputs = append(b.transitions[forkIdx].Outputs, branchIn)
			join.Inputs = append(join.Inputs, branchOut)
			if err := b.compile(child, branchIn, branchOut); err != nil {
				return err
			}
		}
		b.transitions = append(b.transitions, join)

	case Choice:
		if len(f) == 0 {
			return types.NewValidationError("flow", "empty choice")
		}
		for _, br := range f {
			guarded := b.place()
			b.transitions = append(b.transitions, Transition{
				ID:      b.uniqueID("guard_" + br.Condition),
				Inputs:  []string{in},
				Outputs: []string{guarded},
				Kind:    TransitionGuard,
				Label:   br.Condition,
			})
			if err := b.compile(br.Flow, guarded, out); err != nil {
				return err
			}
		}

	default:
		return types.NewValidationError("flow", fmt.Sprintf("unsupported flow node %T", f))
	}
	return nil
}

// TaskGraphFromFlow 把不含 Choice 的组合树转换为可执行的任务图。
// 同名动作的节点 ID 追加序号。
func TaskGraphFromFlow(id string, f Flow) (*dag.TaskGraph, error) {
	c := &graphCompiler{used: make(map[string]int)}
	if _, err := c.compile(f, nil); err != nil {
		return nil, err
	}
	return dag.Build(id, c.nodes, "")
}

type graphCompiler struct {
	nodes []types.TaskNode
	used  map[string]int
}

// compile returns the IDs of the nodes that finish f.
func (c *graphCompiler) compile(f Flow, deps []string) ([]string, error) {
	switch f := f.(type) {
	case Step:
		id := uniqueName(c.used, f.Action)
		c.nodes = append(c.nodes, types.TaskNode{
			ID:          id,
			Action:      f.Action,
			InputParams: types.CloneParams(f.Params),
			DependsOn:   append([]string(nil), deps...),
		})
		return []string{id}, nil

	case Seq:
		cur := deps
		for _, child := range f {
			next, err := c.compile(child, cur)
			if err != nil {
				return nil, err
			}
			cur = next
		}
		return cur, nil

	case Par:
		var tails []string
		for _, child := range f {
			out, err := c.compile(child, deps)
			if err != nil {
				return nil, err
			}
			tails = append(tails, out...)
		}
		return tails, nil

	case Choice:
		return nil, types.NewValidationError("flow", "exclusive choice cannot be executed as a task graph")

	default:
		return nil, types.NewValidationError("flow", fmt.Sprintf("unsupported flow node %T", f))
	}
}
