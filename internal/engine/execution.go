package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/pkg/types"
)

type nodeState int

const (
	statePending nodeState = iota
	stateRunning
	stateDone
)

type nodeDone struct {
	nodeID  string
	outcome *types.NodeOutcome
}

// Execution 表示一次正在运行（或已结束）的执行。
type Execution struct {
	engine        *Engine
	graph         *dag.TaskGraph
	execCtx       *types.ExecutionContext
	parent        context.Context
	ctx           context.Context
	cancel        context.CancelCauseFunc
	cancelTimeout context.CancelFunc
	pool          *ants.Pool
	limit         int
	failFast      bool
	log           *zap.Logger

	cancelOnce sync.Once
	done       chan struct{}
	result     *types.ExecutionResult
}

// ID returns the execution ID.
func (x *Execution) ID() string {
	return x.execCtx.ExecutionID
}

// Done is closed when the execution reaches a terminal state.
func (x *Execution) Done() <-chan struct{} {
	return x.done
}

// Wait blocks until the execution finishes and returns the frozen result.
func (x *Execution) Wait() *types.ExecutionResult {
	<-x.done
	return x.result
}

// Cancel 取消执行并等待其进入终态。
// 可重复调用，每次都返回同一个冻结的结果；已结束的执行不受影响。
func (x *Execution) Cancel() *types.ExecutionResult {
	x.cancelOnce.Do(func() {
		x.cancel(&CancellationError{ExecutionID: x.ID()})
	})
	return x.Wait()
}

// scheduler holds the coordinator-owned state of one execution.
type scheduler struct {
	x         *Execution
	state     map[string]nodeState
	remaining map[string]int
	outcomes  map[string]*types.NodeOutcome
	order     []string
	ready     []string
	running   int
	stopped   bool
	stopCause error
	results   chan nodeDone
}

// run is the coordinator loop. It is the only goroutine touching scheduler state.
func (x *Execution) run() {
	e := x.engine
	defer x.cancelTimeout()

	s := &scheduler{
		x:         x,
		state:     make(map[string]nodeState, x.graph.Len()),
		remaining: make(map[string]int, x.graph.Len()),
		outcomes:  make(map[string]*types.NodeOutcome, x.graph.Len()),
		results:   make(chan nodeDone, x.graph.Len()),
	}
	for _, n := range x.graph.Nodes() {
		s.state[n.ID] = statePending
		s.remaining[n.ID] = len(x.graph.Dependencies(n.ID))
	}
	for _, n := range x.graph.Roots() {
		s.ready = append(s.ready, n.ID)
	}

	startedAt := e.now()
	e.callback.OnExecutionStart(x.parent, x.execCtx, x.graph.ID(), x.graph.Len())
	x.log.Info("execution started", zap.Int("nodes", x.graph.Len()), zap.Int("max_concurrency", x.limit), zap.Bool("fail_fast", x.failFast))

	ctxDone := x.ctx.Done()
	// 取消/超时总是先于节点结果处理，保证未开始的节点记录为取消而不是依赖失败
	checkStop := func() {
		if ctxDone != nil && x.ctx.Err() != nil {
			ctxDone = nil
			s.stop(context.Cause(x.ctx))
		}
	}
	for {
		checkStop()
		if !s.stopped {
			s.dispatch()
		}
		if s.running == 0 && (s.stopped || len(s.ready) == 0) {
			break
		}

		select {
		case <-ctxDone:
			checkStop()

		case d := <-s.results:
			checkStop()
			s.running--
			s.complete(d)
		}
	}

	x.pool.Release()
	x.cancel(nil)
	x.result = s.buildResult(startedAt)

	if s.stopCause != nil {
		x.log.Warn("execution stopped", zap.String("status", string(x.result.Status)), zap.Error(s.stopCause))
	} else {
		x.log.Info("execution finished", zap.String("status", string(x.result.Status)), zap.Duration("duration", x.result.Duration()))
	}
	e.callback.OnExecutionComplete(x.parent, x.result)
	close(x.done)
}

// dispatch submits ready nodes until the concurrency limit is reached.
func (s *scheduler) dispatch() {
	x := s.x
	for s.running < x.limit && len(s.ready) > 0 {
		id := s.ready[0]
		s.ready = s.ready[1:]
		if s.state[id] != statePending {
			continue
		}

		node, _ := x.graph.Node(id)
		s.state[id] = stateRunning
		s.running++
		x.engine.callback.OnNodeStart(x.parent, x.ID(), node)

		deps := make(map[string]any)
		for _, depID := range x.graph.Dependencies(id) {
			if o := s.outcomes[depID]; o != nil && o.IsSuccess() {
				deps[depID] = o.Data
			}
		}

		err := x.pool.Submit(func() {
			s.results <- nodeDone{nodeID: id, outcome: x.runNode(node, deps)}
		})
		if err != nil {
			// 提交失败时直接记录失败，由 results 通道统一处理
			s.results <- nodeDone{nodeID: id, outcome: types.NewFailedOutcome(id, &NodeError{NodeID: id, Action: node.Action, Cause: err}, 0, x.engine.now())}
		}
	}
}

// runNode runs on a worker goroutine and never panics.
func (x *Execution) runNode(node *types.TaskNode, deps map[string]any) (outcome *types.NodeOutcome) {
	startedAt := x.engine.now()
	defer func() {
		if v := recover(); v != nil {
			x.log.Error("node panicked", zap.String("node_id", node.ID), zap.Any("panic", v))
			outcome = types.NewFailedOutcome(node.ID, &NodeError{NodeID: node.ID, Action: node.Action, Attempts: 1, Cause: &PanicError{Action: node.Action, Value: v}}, 1, startedAt)
		}
	}()
	return x.engine.runner.Run(x.ctx, x.execCtx, node, deps)
}

// complete records a worker result and releases or skips dependents.
func (s *scheduler) complete(d nodeDone) {
	x := s.x
	node, _ := x.graph.Node(d.nodeID)
	s.record(node, d.outcome)
	x.engine.callback.OnNodeComplete(x.parent, x.ID(), node, d.outcome)

	if d.outcome.IsSuccess() {
		for _, depID := range x.graph.Dependents(d.nodeID) {
			s.remaining[depID]--
			if s.remaining[depID] == 0 && s.state[depID] == statePending {
				s.ready = append(s.ready, depID)
			}
		}
		return
	}

	// 失败：所有（传递）下游节点跳过
	for _, depID := range x.graph.TransitiveDependents(d.nodeID) {
		if s.state[depID] == statePending {
			s.skip(depID, types.SkipReasonDependencyFailed)
		}
	}

	if x.failFast && !s.stopped {
		cause := &FailFastError{NodeID: d.nodeID, Cause: d.outcome.Err}
		s.stopped = true
		s.stopCause = cause
		x.engine.callback.OnExecutionError(x.parent, x.ID(), cause)
		s.skipPending(types.SkipReasonFailFast)
	}
}

// stop handles cancellation and timeout: no more dispatching, pending nodes are skipped.
func (s *scheduler) stop(cause error) {
	if cause == nil {
		cause = &CancellationError{ExecutionID: s.x.ID()}
	}
	reason := types.SkipReasonCancelled
	if types.KindOf(cause) == types.ErrKindTimeout {
		reason = types.SkipReasonTimeout
	}

	// 取消/超时优先于 fail-fast 作为最终原因
	s.stopped = true
	s.stopCause = cause
	s.x.engine.callback.OnExecutionError(s.x.parent, s.x.ID(), cause)
	s.skipPending(reason)
}

func (s *scheduler) skipPending(reason string) {
	for _, n := range s.x.graph.Nodes() {
		if s.state[n.ID] == statePending {
			s.skip(n.ID, reason)
		}
	}
	s.ready = nil
}

func (s *scheduler) skip(id, reason string) {
	x := s.x
	node, _ := x.graph.Node(id)
	outcome := types.NewSkippedOutcome(id, reason)
	s.record(node, outcome)
	x.engine.tracer.Append(types.TraceEvent{
		ExecutionID: x.ID(),
		NodeID:      id,
		Type:        types.TraceEventSkip,
		Action:      node.Action,
		Message:     reason,
		Timestamp:   x.engine.now(),
	})
	x.engine.callback.OnNodeSkipped(x.parent, x.ID(), node, outcome)
}

func (s *scheduler) record(node *types.TaskNode, outcome *types.NodeOutcome) {
	s.state[node.ID] = stateDone
	s.outcomes[node.ID] = outcome
	s.order = append(s.order, node.ID)
}

// buildResult freezes the execution result.
func (s *scheduler) buildResult(startedAt time.Time) *types.ExecutionResult {
	x := s.x
	succeeded, failed, skipped := s.summary()

	status := types.ExecutionStatusCompleted
	switch {
	case s.stopCause != nil && types.KindOf(s.stopCause) == types.ErrKindTimeout:
		status = types.ExecutionStatusTimeout
	case s.stopCause != nil && types.KindOf(s.stopCause) == types.ErrKindCancelled:
		status = types.ExecutionStatusCancelled
	case failed > 0:
		status = types.ExecutionStatusFailed
	}

	result := &types.ExecutionResult{
		ExecutionID: x.ID(),
		GraphID:     x.graph.ID(),
		Status:      status,
		Success:     status == types.ExecutionStatusCompleted,
		Message:     describe(status, succeeded, failed, skipped),
		Data:        make(map[string]any, succeeded),
		Outcomes:    s.outcomes,
		Order:       s.order,
		StartedAt:   startedAt,
		FinishedAt:  x.engine.now(),
	}

	var errs *multierror.Error
	for _, id := range x.graph.TopologicalOrder() {
		o := s.outcomes[id]
		switch {
		case o.IsSuccess():
			result.Data[id] = o.Data
		case o.IsFailed():
			errs = multierror.Append(errs, o.Err)
		}
	}
	if status == types.ExecutionStatusCancelled || status == types.ExecutionStatusTimeout {
		errs = multierror.Append(errs, s.stopCause)
	}
	result.Err = errs.ErrorOrNil()
	return result
}

func (s *scheduler) summary() (succeeded, failed, skipped int) {
	for _, o := range s.outcomes {
		switch o.Status {
		case types.OutcomeSuccess:
			succeeded++
		case types.OutcomeFailed:
			failed++
		case types.OutcomeSkipped:
			skipped++
		}
	}
	return
}

func describe(status types.ExecutionStatus, succeeded, failed, skipped int) string {
	return fmt.Sprintf("execution %s: %d succeeded, %d failed, %d skipped", status, succeeded, failed, skipped)
}
