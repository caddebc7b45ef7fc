// Package engine executes TaskGraphs.
//
// A single coordinator goroutine per execution owns all bookkeeping
// (dependency counters, node states, the ready queue) and hands ready nodes
// to a bounded ants worker pool. Workers run nodes through the NodeRunner and
// report outcomes back on a channel, so no state is shared between workers.
package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/panjf2000/ants/v2"
	"go.uber.org/zap"

	"yqhp/taskflow/internal/breaker"
	"yqhp/taskflow/internal/capability"
	"yqhp/taskflow/internal/config"
	"yqhp/taskflow/internal/dag"
	"yqhp/taskflow/internal/tracer"
	"yqhp/taskflow/pkg/types"
)

// DefaultMaxConcurrency is used when neither the config nor the execution options set a limit.
const DefaultMaxConcurrency = 10

// Engine 是 DAG 执行引擎，可被多个执行并发使用。
// 熔断器和追踪器在所有执行之间共享。
type Engine struct {
	cfg        *config.Config
	capability capability.Capability
	breaker    *breaker.CircuitBreaker
	tracer     types.TraceSink
	callback   types.ExecutionCallback
	clock      clockwork.Clock
	logger     *zap.Logger
	runner     *NodeRunner
}

// Option configures an Engine.
type Option func(*Engine)

// WithBreaker shares an existing circuit breaker.
func WithBreaker(cb *breaker.CircuitBreaker) Option {
	return func(e *Engine) {
		e.breaker = cb
	}
}

// WithTracer sets the trace sink.
func WithTracer(t types.TraceSink) Option {
	return func(e *Engine) {
		e.tracer = t
	}
}

// WithCallback sets the progress callback.
func WithCallback(cb types.ExecutionCallback) Option {
	return func(e *Engine) {
		e.callback = cb
	}
}

// WithClock sets the time source for retry backoff and timestamps.
func WithClock(clock clockwork.Clock) Option {
	return func(e *Engine) {
		e.clock = clock
	}
}

// WithLogger sets the engine logger.
func WithLogger(logger *zap.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

// New creates an Engine. A nil cfg means config.DefaultConfig().
func New(cfg *config.Config, c capability.Capability, opts ...Option) *Engine {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	e := &Engine{
		cfg:        cfg,
		capability: c,
		clock:      clockwork.NewRealClock(),
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(e)
	}

	if e.breaker == nil && cfg.Breaker.Enabled {
		e.breaker = breaker.New(breaker.Config{
			FailureThreshold: cfg.Breaker.FailureThreshold,
			Window:           cfg.Breaker.Window,
			Cooldown:         cfg.Breaker.Cooldown,
		}, breaker.WithClock(e.clock), breaker.WithLogger(e.logger.Named("breaker")))
	}
	if e.tracer == nil {
		e.tracer = tracer.New(tracer.WithClock(e.clock), tracer.WithLogger(e.logger.Named("tracer")))
	}
	if e.callback == nil {
		e.callback = &types.NoopCallback{}
	}
	e.runner = NewNodeRunner(e.capability, e.breaker, e.tracer, e.clock, cfg.Retry.MaxDelay, e.logger.Named("runner"))
	return e
}

// Breaker returns the shared circuit breaker, or nil when disabled.
func (e *Engine) Breaker() *breaker.CircuitBreaker {
	return e.breaker
}

// Tracer returns the trace sink.
func (e *Engine) Tracer() types.TraceSink {
	return e.tracer
}

// Execute runs graph to completion and returns the frozen result.
func (e *Engine) Execute(ctx context.Context, graph *dag.TaskGraph, execCtx *types.ExecutionContext) (*types.ExecutionResult, error) {
	exec, err := e.Start(ctx, graph, execCtx)
	if err != nil {
		return nil, err
	}
	return exec.Wait(), nil
}

// Start 启动一次执行并立即返回。
// 调用方通过 Wait 等待结果，或通过 Cancel 取消。
func (e *Engine) Start(ctx context.Context, graph *dag.TaskGraph, execCtx *types.ExecutionContext) (*Execution, error) {
	if graph == nil {
		return nil, types.NewValidationError("graph", "task graph is required")
	}
	if e.capability == nil {
		return nil, types.NewValidationError("capability", "capability is required")
	}
	if execCtx == nil {
		execCtx = types.NewExecutionContext()
	}
	if execCtx.ExecutionID == "" {
		return nil, types.NewValidationError("execution_id", "execution ID is required")
	}

	limit := e.concurrencyLimit(execCtx.Options, graph.Len())
	pool, err := ants.NewPool(limit, ants.WithPanicHandler(func(v any) {
		e.logger.Error("worker panic", zap.Any("panic", v))
	}))
	if err != nil {
		return nil, fmt.Errorf("创建工作池失败: %w", err)
	}

	runCtx := ctx
	var cancelTimeout context.CancelFunc = func() {}
	timeout := execCtx.Options.Timeout
	if timeout <= 0 {
		timeout = e.cfg.Engine.DefaultTimeout
	}
	if timeout > 0 {
		runCtx, cancelTimeout = context.WithTimeoutCause(ctx, timeout, &TimeoutError{ExecutionID: execCtx.ExecutionID, Timeout: timeout})
	}
	runCtx, cancel := context.WithCancelCause(runCtx)

	x := &Execution{
		engine:        e,
		graph:         graph,
		execCtx:       execCtx,
		parent:        ctx,
		ctx:           runCtx,
		cancel:        cancel,
		cancelTimeout: cancelTimeout,
		pool:          pool,
		limit:         limit,
		failFast:      execCtx.Options.FailFast || e.cfg.Engine.FailFast,
		done:          make(chan struct{}),
		log: e.logger.With(
			zap.String("execution_id", execCtx.ExecutionID),
			zap.String("graph_id", graph.ID()),
		),
	}
	go x.run()
	return x, nil
}

// concurrencyLimit 取执行选项与配置中较小的并发上限，并不超过节点数。
func (e *Engine) concurrencyLimit(opts types.ExecutionOptions, nodes int) int {
	limit := e.cfg.Engine.MaxConcurrency
	if limit <= 0 {
		limit = DefaultMaxConcurrency
	}
	if opts.MaxConcurrency > 0 && opts.MaxConcurrency < limit {
		limit = opts.MaxConcurrency
	}
	if nodes > 0 && nodes < limit {
		limit = nodes
	}
	if limit <= 0 {
		limit = 1
	}
	return limit
}

func (e *Engine) now() time.Time {
	return e.clock.Now()
}
