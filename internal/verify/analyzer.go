// Package verify checks safety properties of a petri net before it runs.
//
// The Analyzer enumerates reachable markings breadth-first from the initial
// marking, firing enabled transitions in declaration order, up to a state
// bound. Exploration is deterministic: the same net and options always produce
// the same report.
package verify

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"yqhp/taskflow/internal/petri"
	"yqhp/taskflow/pkg/types"
)

const (
	// DefaultStateBound is the default maximum number of markings explored.
	DefaultStateBound = 200
	// DefaultMaxTokensPerPlace is the default boundedness limit.
	DefaultMaxTokensPerPlace = 1
)

// Options 分析选项，零值使用默认值。
type Options struct {
	StateBound        int `yaml:"state_bound" json:"state_bound"`
	MaxTokensPerPlace int `yaml:"max_tokens_per_place" json:"max_tokens_per_place"`
}

// DefaultOptions returns the default analyzer options.
func DefaultOptions() Options {
	return Options{StateBound: DefaultStateBound, MaxTokensPerPlace: DefaultMaxTokensPerPlace}
}

func (o Options) withDefaults() Options {
	if o.StateBound <= 0 {
		o.StateBound = DefaultStateBound
	}
	if o.MaxTokensPerPlace <= 0 {
		o.MaxTokensPerPlace = DefaultMaxTokensPerPlace
	}
	return o
}

// Analyzer runs bounded reachability analysis. It holds no per-call state and
// may be shared by concurrent callers.
type Analyzer struct {
	opts   Options
	logger *zap.Logger
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithLogger sets the analyzer logger.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Analyzer) {
		a.logger = logger
	}
}

// NewAnalyzer creates an Analyzer.
func NewAnalyzer(opts Options, options ...Option) *Analyzer {
	a := &Analyzer{opts: opts.withDefaults(), logger: zap.NewNop()}
	for _, o := range options {
		o(a)
	}
	return a
}

// Options returns the effective options.
func (a *Analyzer) Options() Options {
	return a.opts
}

// state 是已探索的一个标识；parent/via 用于回溯路径
type state struct {
	marking petri.Marking
	parent  int
	via     string
}

// exploration 保存一次分析调用的全部中间结果
type exploration struct {
	net    *petri.NetModel
	states []state
	seen   map[string]int
	fired  map[string]bool

	reached   map[string]bool
	truncated bool

	deadlock int
	overflow int
	place    string
}

// Analyze 探索网的可达标识并生成报告。
// 触达状态上限不会返回错误，而是体现为报告中的 INCONCLUSIVE 和 StateBoundExceededError；
// 只有网为空或 ctx 被取消时返回错误。
func (a *Analyzer) Analyze(ctx context.Context, net *petri.NetModel) (*ValidationReport, error) {
	if net == nil {
		return nil, types.NewValidationError("net", "net model is required")
	}

	x := &exploration{
		net:      net,
		seen:     make(map[string]int),
		fired:    make(map[string]bool),
		reached:  make(map[string]bool),
		deadlock: -1,
		overflow: -1,
	}
	x.add(net.InitialMarking.Clone(), -1, "")

	for head := 0; head < len(x.states); head++ {
		if err := ctx.Err(); err != nil {
			return nil, fmt.Errorf("analysis of net %s interrupted: %w", net.ID, err)
		}
		m := x.states[head].marking
		x.inspect(head, m, a.opts.MaxTokensPerPlace)

		for _, t := range net.Enabled(m) {
			x.fired[t.ID] = true
			next, err := net.Fire(m, t.ID)
			if err != nil {
				return nil, err
			}
			if _, ok := x.seen[next.Key()]; ok {
				continue
			}
			if len(x.states) >= a.opts.StateBound {
				x.truncated = true
				continue
			}
			x.add(next, head, t.ID)
		}
	}

	report := x.report(a.opts)
	a.logger.Debug("net analyzed",
		zap.String("net_id", net.ID),
		zap.Int("states", report.StatesExplored),
		zap.Bool("complete", report.Complete),
		zap.String("verdict", string(report.Verdict())))
	return report, nil
}

func (x *exploration) add(m petri.Marking, parent int, via string) {
	x.seen[m.Key()] = len(x.states)
	x.states = append(x.states, state{marking: m, parent: parent, via: via})
}

// inspect 记录第一个死锁标识和第一个越界标识（BFS 顺序，即最短路径）。
func (x *exploration) inspect(idx int, m petri.Marking, maxTokens int) {
	for _, p := range m.Places() {
		if x.net.IsTerminalPlace(p) {
			x.reached[p] = true
		}
		if x.overflow < 0 && m[p] > maxTokens {
			x.overflow = idx
			x.place = p
		}
	}
	if x.deadlock < 0 && len(x.net.Enabled(m)) == 0 && !x.net.IsTerminal(m) {
		x.deadlock = idx
	}
}

func (x *exploration) path(idx int) []string {
	var rev []string
	for i := idx; i > 0; i = x.states[i].parent {
		rev = append(rev, x.states[i].via)
	}
	out := make([]string, len(rev))
	for i, id := range rev {
		out[len(rev)-1-i] = id
	}
	return out
}

func (x *exploration) report(opts Options) *ValidationReport {
	r := &ValidationReport{
		NetID:          x.net.ID,
		StatesExplored: len(x.states),
		StateBound:     opts.StateBound,
		Complete:       !x.truncated,
	}
	if x.truncated {
		bound := &types.StateBoundExceededError{Bound: opts.StateBound, Explored: len(x.states), What: "states"}
		r.Err = bound
		r.BoundError = bound.Error()
	}

	r.Results = []PropertyResult{
		x.deadlockResult(),
		x.reachabilityResult(),
		x.livenessResult(),
		x.boundednessResult(opts.MaxTokensPerPlace),
	}
	return r
}

func (x *exploration) deadlockResult() PropertyResult {
	res := PropertyResult{Property: PropertyDeadlockFreedom}
	switch {
	case x.deadlock >= 0:
		m := x.states[x.deadlock].marking
		res.Verdict = VerdictFail
		res.Marking = m.Clone()
		res.Path = x.path(x.deadlock)
		res.Message = fmt.Sprintf("deadlock at marking %s", m)
	case x.truncated:
		res.Verdict = VerdictInconclusive
		res.Message = "state bound reached before all markings were explored"
	default:
		res.Verdict = VerdictPass
		res.Message = "every reachable non-terminal marking enables a transition"
	}
	return res
}

func (x *exploration) reachabilityResult() PropertyResult {
	res := PropertyResult{Property: PropertyReachability}
	var missing []string
	for _, p := range x.net.Terminals {
		if !x.reached[p] {
			missing = append(missing, p)
		}
	}
	switch {
	case len(missing) == 0:
		res.Verdict = VerdictPass
		res.Message = "every terminal place is reachable"
	case x.truncated:
		res.Verdict = VerdictInconclusive
		res.Places = missing
		res.Message = fmt.Sprintf("terminal places %v not reached before the state bound", missing)
	default:
		res.Verdict = VerdictFail
		res.Places = missing
		res.Message = fmt.Sprintf("terminal places %v are unreachable", missing)
	}
	return res
}

func (x *exploration) livenessResult() PropertyResult {
	res := PropertyResult{Property: PropertyLiveness}
	var dead []string
	for _, t := range x.net.Transitions {
		if !x.fired[t.ID] {
			dead = append(dead, t.ID)
		}
	}
	switch {
	case len(dead) == 0:
		res.Verdict = VerdictPass
		res.Message = "every transition fires in some reachable marking"
	case x.truncated:
		res.Verdict = VerdictInconclusive
		res.Transitions = dead
		res.Message = fmt.Sprintf("transitions %v have not fired yet", dead)
	default:
		res.Verdict = VerdictFail
		res.Transitions = dead
		res.Message = fmt.Sprintf("dead transitions: %v", dead)
	}
	return res
}

func (x *exploration) boundednessResult(maxTokens int) PropertyResult {
	res := PropertyResult{Property: PropertyBoundedness}
	switch {
	case x.overflow >= 0:
		m := x.states[x.overflow].marking
		res.Verdict = VerdictFail
		res.Places = []string{x.place}
		res.Marking = m.Clone()
		res.Path = x.path(x.overflow)
		res.Message = fmt.Sprintf("place %s holds %d tokens (max %d)", x.place, m[x.place], maxTokens)
	case x.truncated:
		res.Verdict = VerdictInconclusive
		res.Message = "state bound reached before all markings were explored"
	default:
		res.Verdict = VerdictPass
		res.Message = fmt.Sprintf("no place holds more than %d token(s)", maxTokens)
	}
	return res
}
