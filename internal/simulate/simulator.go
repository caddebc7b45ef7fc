// Package simulate replays a petri net token by token.
//
// A run starts with one token (tok-1) in the source place and fires one
// transition per step until no transition is enabled, the step bound is hit,
// or the caller cancels. Transitions that do not compete for a token with any
// other enabled transition fire in declaration order; at an exclusive choice
// the deterministic mode consumes the next preselected decision and the
// interactive mode suspends on a Chooser.
package simulate

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"yqhp/taskflow/internal/petri"
	"yqhp/taskflow/pkg/types"
)

// DefaultMaxSteps is used when Options.MaxSteps is not set.
const DefaultMaxSteps = 1000

// Options 仿真选项
type Options struct {
	Mode     Mode
	MaxSteps int
	// Decisions 确定性模式下按顺序使用的分支决策（guard 标签或变迁 ID）
	Decisions []string
	// Chooser 交互模式下必填
	Chooser Chooser
}

// Simulator runs simulations of one net. Each Run is independent, so a
// Simulator may be reused and shared.
type Simulator struct {
	net    *petri.NetModel
	opts   Options
	clock  clockwork.Clock
	logger *zap.Logger
}

// Option configures a Simulator.
type Option func(*Simulator)

// WithClock sets the clock used for step timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(s *Simulator) {
		s.clock = clock
	}
}

// WithLogger sets the simulator logger.
func WithLogger(logger *zap.Logger) Option {
	return func(s *Simulator) {
		s.logger = logger
	}
}

// New creates a Simulator for net.
func New(net *petri.NetModel, opts Options, options ...Option) (*Simulator, error) {
	if net == nil {
		return nil, types.NewValidationError("net", "net model is required")
	}
	if opts.Mode == "" {
		opts.Mode = ModeDeterministic
	}
	switch opts.Mode {
	case ModeDeterministic:
	case ModeInteractive:
		if opts.Chooser == nil {
			return nil, types.NewValidationError("chooser", "interactive mode requires a chooser")
		}
	default:
		return nil, types.NewValidationError("mode", fmt.Sprintf("unknown simulation mode '%s'", opts.Mode))
	}
	if opts.MaxSteps <= 0 {
		opts.MaxSteps = DefaultMaxSteps
	}
	opts.Decisions = append([]string(nil), opts.Decisions...)

	s := &Simulator{
		net:    net,
		opts:   opts,
		clock:  clockwork.NewRealClock(),
		logger: zap.NewNop(),
	}
	for _, o := range options {
		o(s)
	}
	return s, nil
}

// run 一次仿真的可变状态，只在 Run 的调用协程中使用
type run struct {
	trace    *SimulationTrace
	marking  petri.Marking
	tokens   map[string][]string
	tokenSeq int
	decision int
}

func (r *run) newToken() string {
	r.tokenSeq++
	return "tok-" + strconv.Itoa(r.tokenSeq)
}

// Run 执行一次仿真并返回轨迹。
// Completed、Deadlocked、BoundExceeded、Cancelled 都是正常结果，error 为 nil；
// Ambiguous 和 Failed 同时返回轨迹和对应的错误。
func (s *Simulator) Run(ctx context.Context) (*SimulationTrace, error) {
	r := &run{
		marking: s.net.InitialMarking.Clone(),
		tokens:  make(map[string][]string),
		trace: &SimulationTrace{
			RunID: uuid.NewString(),
			NetID: s.net.ID,
			Mode:  s.opts.Mode,
			State: StateReady,
			Steps: []SimulationStep{},
		},
	}
	for _, p := range r.marking.Places() {
		for i := 0; i < r.marking[p]; i++ {
			r.tokens[p] = append(r.tokens[p], r.newToken())
		}
	}

	log := s.logger.With(zap.String("run_id", r.trace.RunID), zap.String("net_id", s.net.ID), zap.String("mode", string(s.opts.Mode)))
	r.trace.StartedAt = s.clock.Now()
	r.trace.State = StateRunning

	var err error
	for {
		if ctx.Err() != nil {
			r.trace.State = StateCancelled
			r.trace.Err = context.Cause(ctx)
			break
		}

		enabled := s.net.Enabled(r.marking)
		if len(enabled) == 0 {
			if s.net.IsTerminal(r.marking) {
				r.trace.State = StateCompleted
			} else {
				r.trace.State = StateDeadlocked
			}
			break
		}
		if len(r.trace.Steps) >= s.opts.MaxSteps {
			r.trace.State = StateBoundExceeded
			r.trace.Err = &types.StateBoundExceededError{Bound: s.opts.MaxSteps, Explored: len(r.trace.Steps), What: "steps"}
			break
		}

		t, pickErr := s.pick(ctx, r, enabled)
		if pickErr != nil {
			r.trace.Err = pickErr
			var ambiguous *AmbiguousChoiceError
			switch {
			case ctx.Err() != nil:
				// 挂起期间被取消：不触发任何变迁
				r.trace.State = StateCancelled
				r.trace.Err = context.Cause(ctx)
			case errors.As(pickErr, &ambiguous):
				r.trace.State = StateAmbiguous
				err = pickErr
			default:
				r.trace.State = StateFailed
				err = pickErr
			}
			break
		}
		if ctx.Err() != nil {
			// 选择器返回了结果但执行已被取消：同样不触发
			r.trace.State = StateCancelled
			r.trace.Err = context.Cause(ctx)
			break
		}

		step := s.fire(r, t)
		log.Debug("transition fired",
			zap.Int("step", step.Index),
			zap.String("transition", step.TransitionID),
			zap.String("token", step.TokenID),
			zap.Stringer("marking", step.MarkingAfter))
	}

	r.trace.FinalMarking = r.marking.Clone()
	r.trace.Tokens = r.tokens
	r.trace.FinishedAt = s.clock.Now()
	if r.trace.Err != nil {
		r.trace.Error = r.trace.Err.Error()
	}
	log.Info("simulation finished", zap.String("state", string(r.trace.State)), zap.Int("steps", len(r.trace.Steps)))
	return r.trace, err
}

// pick 选择下一个触发的变迁。
// 不与其他已使能变迁争用输入库所的变迁按声明顺序直接触发；
// 剩下的都处于排他选择中，由预设决策或选择器决定。
func (s *Simulator) pick(ctx context.Context, r *run, enabled []*petri.Transition) (*petri.Transition, error) {
	if len(enabled) == 1 {
		return enabled[0], nil
	}
	for _, t := range enabled {
		if !conflicts(t, enabled) {
			return t, nil
		}
	}

	candidates := conflictSet(enabled[0], enabled)
	step := len(r.trace.Steps)

	if s.opts.Mode == ModeDeterministic {
		if r.decision >= len(s.opts.Decisions) {
			return nil, &AmbiguousChoiceError{Step: step, Enabled: ids(candidates)}
		}
		choice := s.opts.Decisions[r.decision]
		t := match(choice, candidates)
		if t == nil {
			return nil, &InvalidChoiceError{Step: step, Choice: choice, Options: ids(candidates)}
		}
		r.decision++
		return t, nil
	}

	req := ChoiceRequest{RunID: r.trace.RunID, Step: step, Marking: r.marking.Clone()}
	for _, t := range candidates {
		req.Options = append(req.Options, Choice{TransitionID: t.ID, Label: t.Label, Action: t.Action})
	}
	choice, err := s.opts.Chooser.Choose(ctx, req)
	if err != nil {
		return nil, err
	}
	t := match(choice, candidates)
	if t == nil {
		return nil, &InvalidChoiceError{Step: step, Choice: choice, Options: ids(candidates)}
	}
	return t, nil
}

// fire 触发变迁并移动令牌：第一个输入令牌沿第一条输出弧移动，其余输出生成新令牌。
func (s *Simulator) fire(r *run, t *petri.Transition) SimulationStep {
	before := r.marking.Clone()
	after, _ := s.net.Fire(r.marking, t.ID)

	step := SimulationStep{
		Index:         len(r.trace.Steps),
		TransitionID:  t.ID,
		Label:         t.Label,
		MarkingBefore: before,
		MarkingAfter:  after.Clone(),
		Consumed:      []string{},
		Produced:      []string{},
		Timestamp:     s.clock.Now(),
	}
	for _, p := range t.Inputs {
		q := r.tokens[p]
		step.Consumed = append(step.Consumed, q[0])
		if len(q) == 1 {
			delete(r.tokens, p)
		} else {
			r.tokens[p] = q[1:]
		}
	}
	for i, p := range t.Outputs {
		var id string
		if i == 0 {
			id = step.Consumed[0]
		} else {
			id = r.newToken()
		}
		r.tokens[p] = append(r.tokens[p], id)
		step.Produced = append(step.Produced, id)
	}
	step.TokenID = step.Consumed[0]

	r.marking = after
	r.trace.Steps = append(r.trace.Steps, step)
	return step
}

func conflicts(t *petri.Transition, enabled []*petri.Transition) bool {
	for _, other := range enabled {
		if other != t && sharesInput(t, other) {
			return true
		}
	}
	return false
}

func conflictSet(t *petri.Transition, enabled []*petri.Transition) []*petri.Transition {
	var out []*petri.Transition
	for _, other := range enabled {
		if other == t || sharesInput(t, other) {
			out = append(out, other)
		}
	}
	return out
}

func sharesInput(a, b *petri.Transition) bool {
	for _, p := range a.Inputs {
		for _, q := range b.Inputs {
			if p == q {
				return true
			}
		}
	}
	return false
}

// match 先按变迁 ID 匹配，再按 guard 标签匹配；标签匹配多个时视为无效。
func match(choice string, candidates []*petri.Transition) *petri.Transition {
	for _, t := range candidates {
		if t.ID == choice {
			return t
		}
	}
	var found *petri.Transition
	for _, t := range candidates {
		if t.Label == choice {
			if found != nil {
				return nil
			}
			found = t
		}
	}
	return found
}

func ids(ts []*petri.Transition) []string {
	out := make([]string, len(ts))
	for i, t := range ts {
		out[i] = t.ID
	}
	return out
}
