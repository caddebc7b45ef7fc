package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"yqhp/taskflow/internal/breaker"
	"yqhp/taskflow/internal/capability"
	"yqhp/taskflow/pkg/types"
)

// NodeRunner 执行单个节点：参数解析、熔断检查、重试退避和降级。
// 同一个 NodeRunner 可以被多个工作协程并发使用。
type NodeRunner struct {
	capability capability.Capability
	breaker    *breaker.CircuitBreaker
	tracer     types.TraceSink
	clock      clockwork.Clock
	maxDelay   time.Duration
	logger     *zap.Logger
}

// NewNodeRunner creates a NodeRunner. breaker may be nil to disable circuit breaking.
func NewNodeRunner(c capability.Capability, cb *breaker.CircuitBreaker, tracer types.TraceSink, clock clockwork.Clock, maxDelay time.Duration, logger *zap.Logger) *NodeRunner {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &NodeRunner{
		capability: c,
		breaker:    cb,
		tracer:     tracer,
		clock:      clock,
		maxDelay:   maxDelay,
		logger:     logger,
	}
}

// Run executes node and returns its terminal outcome.
// deps holds the outputs of the node's completed dependencies, keyed by node ID.
func (r *NodeRunner) Run(ctx context.Context, execCtx *types.ExecutionContext, node *types.TaskNode, deps map[string]any) *types.NodeOutcome {
	startedAt := r.clock.Now()
	executionID := execCtx.ExecutionID
	log := r.logger.With(zap.String("execution_id", executionID), zap.String("node_id", node.ID), zap.String("action", node.Action))

	r.trace(types.TraceEvent{ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventStart, Action: node.Action})

	values := execCtx.Snapshot()
	input, err := capability.ResolveParams(node.InputParams, capability.NewScope(values, deps))
	if err != nil {
		return r.abort(node, executionID, startedAt, 0, err, log)
	}
	params := capability.MergeParams(values, input)
	if execCtx.Options.Debug {
		log.Debug("resolved node params", zap.Any("params", params))
	}

	callCtx := capability.WithNodeID(capability.WithExecutionContext(ctx, execCtx), node.ID)
	maxAttempts := node.MaxRetries + 1
	attempts := 0
	var lastErr error

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if ctx.Err() != nil {
			return r.abort(node, executionID, startedAt, attempts, context.Cause(ctx), log)
		}

		if err := r.allow(node.Action); err != nil {
			// 熔断打开：不消耗重试次数，直接进入降级
			lastErr = err
			r.trace(types.TraceEvent{
				ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventError,
				Action: node.Action, Attempt: attempt, Message: err.Error(), Kind: types.KindOf(err),
			})
			log.Warn("circuit open, skipping remaining attempts", zap.Int("attempt", attempt))
			break
		}

		attempts++
		r.trace(types.TraceEvent{ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventAttempt, Action: node.Action, Attempt: attempt})

		data, err := r.call(callCtx, node.Action, params, log)
		if err == nil {
			r.recordSuccess(node.Action)
			outcome := types.NewSuccessOutcome(node.ID, data, attempts, startedAt)
			r.trace(types.TraceEvent{ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventComplete, Action: node.Action, Attempt: attempt})
			return outcome
		}

		if ctx.Err() != nil {
			// 执行被取消或超时，不计入熔断统计
			r.release(node.Action)
			return r.abort(node, executionID, startedAt, attempts, context.Cause(ctx), log)
		}

		r.recordFailure(node.Action)
		lastErr = err
		r.trace(types.TraceEvent{
			ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventError,
			Action: node.Action, Attempt: attempt, Message: err.Error(), Kind: types.KindOf(err),
		})
		log.Debug("attempt failed", zap.Int("attempt", attempt), zap.Int("max_attempts", maxAttempts), zap.Error(err))

		if attempt < maxAttempts {
			delay := CalculateBackoffDelay(node.RetryDelay(), attempt, node.BackoffMultiplier, r.maxDelay)
			if delay > 0 {
				select {
				case <-ctx.Done():
					return r.abort(node, executionID, startedAt, attempts, context.Cause(ctx), log)
				case <-r.clock.After(delay):
				}
			}
		}
	}

	if !node.HasFallback() {
		return r.fail(node, executionID, startedAt, attempts, lastErr, log)
	}
	return r.runFallback(ctx, callCtx, executionID, node, params, startedAt, attempts, lastErr, log)
}

// runFallback 在主动作耗尽重试（或熔断打开）后调用一次降级动作。
func (r *NodeRunner) runFallback(ctx, callCtx context.Context, executionID string, node *types.TaskNode, params map[string]any, startedAt time.Time, attempts int, primaryErr error, log *zap.Logger) *types.NodeOutcome {
	if ctx.Err() != nil {
		return r.abort(node, executionID, startedAt, attempts, context.Cause(ctx), log)
	}

	attempt := attempts + 1
	fallback := node.FallbackAction

	if err := r.allow(fallback); err != nil {
		r.trace(types.TraceEvent{
			ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventError,
			Action: fallback, Attempt: attempt, Fallback: true, Message: err.Error(), Kind: types.KindOf(err),
		})
		return r.fail(node, executionID, startedAt, attempts, &FallbackError{Fallback: fallback, Primary: primaryErr, Cause: err}, log)
	}

	r.trace(types.TraceEvent{ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventAttempt, Action: fallback, Attempt: attempt, Fallback: true})
	log.Info("invoking fallback", zap.String("fallback", fallback), zap.Error(primaryErr))

	data, err := r.call(callCtx, fallback, params, log)
	if err == nil {
		r.recordSuccess(fallback)
		outcome := types.NewSuccessOutcome(node.ID, data, attempts, startedAt)
		outcome.UsedFallback = true
		r.trace(types.TraceEvent{ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventComplete, Action: fallback, Attempt: attempt, Fallback: true})
		return outcome
	}

	if ctx.Err() != nil {
		r.release(fallback)
		return r.abort(node, executionID, startedAt, attempts, context.Cause(ctx), log)
	}

	r.recordFailure(fallback)
	r.trace(types.TraceEvent{
		ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventError,
		Action: fallback, Attempt: attempt, Fallback: true, Message: err.Error(), Kind: types.KindOf(err),
	})
	outcome := r.fail(node, executionID, startedAt, attempts, &FallbackError{Fallback: fallback, Primary: primaryErr, Cause: err}, log)
	outcome.UsedFallback = true
	return outcome
}

// abort 记录一次没有对应尝试事件的失败（参数解析失败、取消、超时）。
func (r *NodeRunner) abort(node *types.TaskNode, executionID string, startedAt time.Time, attempts int, cause error, log *zap.Logger) *types.NodeOutcome {
	outcome := r.fail(node, executionID, startedAt, attempts, cause, log)
	r.trace(types.TraceEvent{
		ExecutionID: executionID, NodeID: node.ID, Type: types.TraceEventError,
		Action: node.Action, Attempt: attempts, Message: outcome.ErrorMessage, Kind: outcome.Kind,
	})
	return outcome
}

func (r *NodeRunner) fail(node *types.TaskNode, executionID string, startedAt time.Time, attempts int, cause error, log *zap.Logger) *types.NodeOutcome {
	if cause == nil {
		cause = fmt.Errorf("node %s failed without an error", node.ID)
	}
	err := &NodeError{NodeID: node.ID, Action: node.Action, Attempts: attempts, Cause: cause}
	outcome := types.NewFailedOutcome(node.ID, err, attempts, startedAt)
	log.Warn("node failed", zap.Int("attempts", attempts), zap.String("error_kind", string(outcome.Kind)), zap.Error(cause))
	return outcome
}

// call 调用动作，动作 panic 时转换为 PanicError，保证熔断器总能记录本次调用的结果
func (r *NodeRunner) call(ctx context.Context, action string, params map[string]any, log *zap.Logger) (data any, err error) {
	defer func() {
		if v := recover(); v != nil {
			log.Error("action panicked", zap.String("action", action), zap.Any("panic", v))
			data, err = nil, &PanicError{Action: action, Value: v}
		}
	}()
	return capability.Call(ctx, r.capability, action, params)
}

func (r *NodeRunner) trace(event types.TraceEvent) {
	if r.tracer == nil {
		return
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = r.clock.Now()
	}
	r.tracer.Append(event)
}

func (r *NodeRunner) allow(action string) error {
	if r.breaker == nil {
		return nil
	}
	return r.breaker.Allow(action)
}

func (r *NodeRunner) recordSuccess(action string) {
	if r.breaker != nil {
		r.breaker.RecordSuccess(action)
	}
}

func (r *NodeRunner) recordFailure(action string) {
	if r.breaker != nil {
		r.breaker.RecordFailure(action)
	}
}

func (r *NodeRunner) release(action string) {
	if r.breaker != nil {
		r.breaker.Release(action)
	}
}
